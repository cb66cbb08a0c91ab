// Package harness runs one trace function against a reference backend and
// any number of target backends, and reports whether the targets reproduce
// the reference.
//
// # Flow
//
//  1. CompileModules compiles the model once per process for every backend
//     and caches the resulting Modules.
//  2. CompareBackends reseeds the shared random source, runs the trace
//     function through a trace.TracedModule per backend and freezes each
//     trace.
//  3. Every target trace is compared with the reference trace.
//  4. All traces are persisted under the artifacts directory whatever the
//     outcome, then recorded in the store and metrics when configured.
//
// A numeric mismatch is not an error: it is reported in the Result, and
// Result.Err turns it into a *MismatchError for callers that want to fail a
// test. A structural mismatch between traces means the trace function itself
// misbehaved and is returned as an error.
//
// # Usage
//
//	mods, err := harness.CompileModules(ctx, cache, reg, model, harness.CompileConfig{
//		Reference: "tf",
//		Targets:   []string{"iree_vmvx"},
//	})
//	require.NoError(t, err)
//	require.NoError(t, mods.Reinitialize())
//
//	h := harness.New(harness.WithLogger(logger))
//	res, err := h.CompareBackends(ctx, func(m *trace.TracedModule) error {
//		_, err := m.Call("Add", []float32{1, 2}, []float32{3, 4})
//		return err
//	}, mods)
//	require.NoError(t, err)
//	require.NoError(t, res.Err())
package harness
