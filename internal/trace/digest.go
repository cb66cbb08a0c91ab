package trace

import (
	"fmt"
	"strconv"

	"github.com/roach88/difftrace/internal/value"
)

// Digest domains. The version suffix allows the encoding to change without
// colliding with older digests.
const (
	DomainTrace   = "difftrace/trace/v1"
	DomainContent = "difftrace/content/v1"
)

// Digest identifies a trace by everything it records: module, backend,
// function and every call.
func Digest(t *Trace) (string, error) {
	tree, err := t.canonicalTree(true)
	if err != nil {
		return "", err
	}
	return value.Digest(DomainTrace, tree)
}

// ContentDigest covers only the call sequence: methods, tolerances, inputs
// and outputs. Two backends producing bit-identical results share a content
// digest, so an exact match can be detected without a numeric comparison.
func ContentDigest(t *Trace) (string, error) {
	tree, err := t.canonicalTree(false)
	if err != nil {
		return "", err
	}
	return value.Digest(DomainContent, tree)
}

func (t *Trace) canonicalTree(full bool) (map[string]any, error) {
	calls := make([]any, len(t.calls))
	for i, c := range t.calls {
		enc, err := c.canonicalTree(full)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		calls[i] = enc
	}
	tree := map[string]any{"calls": calls}
	if !full {
		return tree, nil
	}

	paths := make(map[string]any, len(t.CompiledPaths))
	for k, v := range t.CompiledPaths {
		paths[k] = v
	}
	tree["module_name"] = t.ModuleName
	tree["compiled_paths"] = paths
	tree["backend_name"] = t.BackendName
	tree["backend_id"] = t.BackendID
	tree["backend_driver"] = t.BackendDriver
	tree["benchmark_serializable"] = t.BenchmarkSerializable
	tree["graph_serializable"] = t.GraphSerializable
	tree["function_name"] = t.FunctionName
	return tree, nil
}

func (c *Call) canonicalTree(full bool) (map[string]any, error) {
	inputs, err := value.Encode(value.List(c.inputs))
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outputs, err := value.Encode(value.List(c.outputs))
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	tree := map[string]any{
		"method":  c.method,
		"rtol":    strconv.FormatFloat(c.rtol, 'g', -1, 64),
		"atol":    strconv.FormatFloat(c.atol, 'g', -1, 64),
		"inputs":  inputs,
		"outputs": outputs,
	}
	if full {
		tree["serialized_inputs"] = stringsToAny(c.serializedInputs)
		tree["serialized_outputs"] = stringsToAny(c.serializedOutputs)
	}
	return tree, nil
}

func stringsToAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
