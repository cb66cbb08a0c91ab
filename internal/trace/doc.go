// Package trace records, compares and persists the calls a test function
// makes against compiled modules.
//
// A TracedModule wraps a backend.CompiledModule and appends a Call to its
// Trace for every method invoked through it. Running the same trace function
// against a reference backend and a target backend yields two traces that
// CompareTraces checks call by call:
//
//   - the (method, rtol, atol) sequences must be identical, otherwise the
//     setup is broken and a *StructuralError is returned
//   - inputs and outputs are compared structurally, with floating point
//     arrays held to |ref - tar| <= atol + rtol*|tar|
//
// Traces persist to a directory of JSON files (Serialize, Load) plus a
// plaintext log.txt for humans, so they can be diffed, archived and compared
// again without rerunning any backend.
package trace
