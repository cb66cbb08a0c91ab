// Package value provides the closed set of value types recorded by traces.
//
// Every input and output of an intercepted call is converted into a Value
// before it is stored. The set is sealed: Null, Bool, Int, Float, *Array,
// List and Map are the only implementations, so comparison and persistence
// can dispatch on the concrete type with an exhaustive switch.
//
// Key constraints:
//   - Values are owned: FromGo and Clone always produce independent copies
//   - Backend-native handles are rejected, callers materialize them first
//   - Float values round-trip exactly through the JSON codec
//   - Map iteration uses SortedKeys for deterministic output
//
// This package imports nothing internal.
package value
