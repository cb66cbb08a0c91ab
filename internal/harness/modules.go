package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/difftrace/internal/backend"
)

// Modules is a model compiled for the reference backend and every target.
type Modules struct {
	Reference    backend.CompiledModule
	Targets      []backend.CompiledModule
	ArtifactsDir string
}

// All returns the reference module followed by the targets.
func (m *Modules) All() []backend.CompiledModule {
	return append([]backend.CompiledModule{m.Reference}, m.Targets...)
}

// Reinitialize resets the state of every module. Call it before each test
// case so stateful modules start fresh.
func (m *Modules) Reinitialize() error {
	var errs []error
	for _, mod := range m.All() {
		if err := mod.Reinitialize(); err != nil {
			errs = append(errs, fmt.Errorf("reinitialize %s: %w", mod.BackendInfo().ID, err))
		}
	}
	return errors.Join(errs...)
}

// CacheConflictError is returned when a ModuleCache already holds modules
// for a different model.
type CacheConflictError struct {
	Cached    string
	Requested string
}

func (e *CacheConflictError) Error() string {
	return fmt.Sprintf("module cache holds %q, cannot compile %q: one model per process", e.Cached, e.Requested)
}

// ModuleCache memoizes compiled Modules for the lifetime of a process.
// Compilation is expensive and every test case of a model reuses the same
// modules. The first compilation wins; asking for a different model fails.
type ModuleCache struct {
	mu   sync.Mutex
	key  string
	mods *Modules
}

// NewModuleCache returns an empty cache.
func NewModuleCache() *ModuleCache {
	return &ModuleCache{}
}

// Get returns the cached modules for key, calling build on first use. A
// failed build is not cached.
func (c *ModuleCache) Get(key string, build func() (*Modules, error)) (*Modules, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mods != nil {
		if c.key != key {
			return nil, &CacheConflictError{Cached: c.key, Requested: key}
		}
		return c.mods, nil
	}
	mods, err := build()
	if err != nil {
		return nil, err
	}
	c.key, c.mods = key, mods
	return mods, nil
}

// CompileConfig selects the backends to compile for.
type CompileConfig struct {
	// Reference is the reference backend name; its id gets a "_ref" suffix.
	Reference string

	// Targets lists target backend names. Empty selects every registered
	// backend.
	Targets []string

	// ExportedNames restricts compilation to these functions. Empty
	// compiles every exported function.
	ExportedNames []string

	// ArtifactsRoot is the configured artifacts root. See SetupArtifactsDir.
	ArtifactsRoot string
}

// CompileModules compiles model for the reference and target backends of
// cfg, through cache when it is non-nil.
func CompileModules(ctx context.Context, cache *ModuleCache, reg *backend.Registry, model backend.Model, cfg CompileConfig) (*Modules, error) {
	build := func() (*Modules, error) {
		return compileModules(ctx, reg, model, cfg)
	}
	if cache == nil {
		return build()
	}
	return cache.Get(model.Name(), build)
}

func compileModules(ctx context.Context, reg *backend.Registry, model backend.Model, cfg CompileConfig) (*Modules, error) {
	dir, err := SetupArtifactsDir(cfg.ArtifactsRoot, model.Name())
	if err != nil {
		return nil, err
	}

	refInfo, err := reg.Reference(cfg.Reference)
	if err != nil {
		return nil, err
	}
	tarInfos, err := reg.Targets(cfg.Targets)
	if err != nil {
		return nil, err
	}

	opts := backend.CompileOptions{ExportedNames: cfg.ExportedNames, ArtifactsDir: dir}
	ref, err := reg.Compile(ctx, model, refInfo, opts)
	if err != nil {
		return nil, err
	}
	mods := &Modules{Reference: ref, ArtifactsDir: dir}
	for _, info := range tarInfos {
		tar, err := reg.Compile(ctx, model, info, opts)
		if err != nil {
			return nil, err
		}
		mods.Targets = append(mods.Targets, tar)
	}
	return mods, nil
}

// Environment variables consulted by SetupArtifactsDir, in order.
const (
	EnvUndeclaredOutputsDir = "TEST_UNDECLARED_OUTPUTS_DIR"
	EnvTestTmpDir           = "TEST_TMPDIR"
)

// SetupArtifactsDir creates and returns <parent>/<moduleName>, where parent
// is the first non-empty of: root, $TEST_UNDECLARED_OUTPUTS_DIR,
// $TEST_TMPDIR, <os temp dir>/difftrace/modules.
func SetupArtifactsDir(root, moduleName string) (string, error) {
	parent := root
	for _, candidate := range []string{
		os.Getenv(EnvUndeclaredOutputsDir),
		os.Getenv(EnvTestTmpDir),
		filepath.Join(os.TempDir(), "difftrace", "modules"),
	} {
		if parent != "" {
			break
		}
		parent = candidate
	}

	dir := filepath.Join(parent, moduleName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	return dir, nil
}
