// Package backend describes the computational backends a model is compiled to
// and the live modules they produce.
//
// A backend is identified by name ("ref", "interp", "jit") and, within one run,
// by a unique id. Compilation itself is out of scope: implementations register
// a Compiler per backend name and the harness asks the Registry to compile a
// Model for every backend under test.
package backend

import (
	"context"
	"fmt"
	"strings"
)

// Info identifies one backend instance within a comparison run.
type Info struct {
	// Name selects the compiler, e.g. "interp".
	Name string `json:"name"`

	// ID is unique within a run: repeated names are suffixed "_0", "_1", ...
	// and the reference backend is "<name>_ref".
	ID string `json:"id"`

	// Driver is the runtime driver recorded in benchmark flagfiles.
	Driver string `json:"driver"`
}

// String returns the backend id.
func (i Info) String() string {
	return i.ID
}

// Model is the backend-independent program handed to a Compiler.
type Model interface {
	// Name identifies the model. It names the artifacts directory and keys
	// the module cache.
	Name() string
}

// CompiledModule is a model compiled to one backend and loaded into memory.
//
// Implementations expose the model's functions as exported Go methods; the
// trace proxy discovers them by reflection, so CompiledModule only covers the
// metadata every module must provide.
type CompiledModule interface {
	// ModuleName is the name of the compiled model.
	ModuleName() string

	// BackendInfo returns the backend this module runs on.
	BackendInfo() Info

	// CompiledPaths maps exported function names to compiled artifact paths.
	// It may be nil when nothing was written to disk.
	CompiledPaths() map[string]string

	// BenchmarkSerializable reports whether calls can be replayed by a
	// standalone benchmark binary (a flagfile is written next to the trace).
	BenchmarkSerializable() bool

	// GraphSerializable reports whether the compiled artifact is a
	// standalone graph (a graph_path file is written next to the trace).
	GraphSerializable() bool

	// Reinitialize resets any state held by the module.
	Reinitialize() error
}

// CompileOptions configures one compilation.
type CompileOptions struct {
	// ExportedNames restricts compilation to these functions. Empty compiles
	// every function.
	ExportedNames []string

	// ArtifactsDir receives compiled artifacts.
	ArtifactsDir string
}

// Compiler produces CompiledModules for one backend name.
type Compiler interface {
	// Driver names the runtime driver for this backend.
	Driver() string

	// Compile compiles model for the backend described by info.
	Compile(ctx context.Context, model Model, info Info, opts CompileOptions) (CompiledModule, error)
}

// UnknownBackendError reports a backend name with no registered compiler.
type UnknownBackendError struct {
	Name  string
	Known []string
}

func (e *UnknownBackendError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown backend %q (no backends registered)", e.Name)
	}
	return fmt.Sprintf("unknown backend %q (registered: %s)", e.Name, strings.Join(e.Known, ", "))
}

// SplitNames parses a comma separated backend list such as "ref,interp,ref".
// Surrounding whitespace is trimmed and empty entries are dropped.
func SplitNames(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// TargetIDs returns a unique id for each backend name. Names that occur more
// than once are indexed in order of appearance; unique names are kept as-is.
//
//	["tf", "jit", "tf"] -> ["tf_0", "jit", "tf_1"]
func TargetIDs(names []string) []string {
	counts := make(map[string]int, len(names))
	for _, name := range names {
		counts[name]++
	}

	next := make(map[string]int, len(names))
	ids := make([]string, len(names))
	for i, name := range names {
		if counts[name] > 1 {
			ids[i] = fmt.Sprintf("%s_%d", name, next[name])
			next[name]++
			continue
		}
		ids[i] = name
	}
	return ids
}

// ReferenceID returns the id used for the reference backend.
func ReferenceID(name string) string {
	return name + "_ref"
}
