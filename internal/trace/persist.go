package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/difftrace/internal/value"
)

// File names inside a trace directory.
const (
	MetadataFile  = "metadata.json"
	PlaintextFile = "log.txt"
	FlagFile      = "flagfile"
	GraphPathFile = "graph_path"
)

// PlaintextEdgeItems is the number of leading and trailing items shown per
// axis in log.txt. It is larger than the default since the file is not
// interleaved with other logs.
const PlaintextEdgeItems = 10

// callMetadata is the on-disk form of a Call without its values.
type callMetadata struct {
	Method            string   `json:"method"`
	SerializedInputs  []string `json:"serialized_inputs"`
	SerializedOutputs []string `json:"serialized_outputs"`
	RTol              float64  `json:"rtol"`
	ATol              float64  `json:"atol"`
}

// Dir returns the directory a trace is persisted to:
// <artifactsDir>/<backend-id>/traces/<function-name>.
func Dir(artifactsDir string, t *Trace) string {
	return filepath.Join(artifactsDir, t.BackendID, "traces", t.FunctionName)
}

// PadWidth returns the number of digits used to zero-pad indices of count
// entries so they sort lexicographically: ceil(log10(count)), and 0 when
// count <= 1.
func PadWidth(count int) int {
	width := 0
	for n := count - 1; n > 0; n /= 10 {
		width++
	}
	return width
}

func indexedName(prefix string, i, width int, ext string) string {
	return fmt.Sprintf("%s_%0*d%s", prefix, width, i, ext)
}

// Serialize writes the trace to dir so Load can reconstruct it:
//
//	metadata.json
//	call_<i>/metadata.json
//	call_<i>/input_<j>.json
//	call_<i>/output_<j>.json
//	flagfile or graph_path
//
// A flagfile is written for benchmark-serializable traces, a graph_path for
// graph-serializable ones. Neither is written for a trace without calls.
// Call directories and companion files left in dir by an earlier trace are
// removed first.
func (t *Trace) Serialize(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	if err := removeStale(dir); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), t.Metadata); err != nil {
		return err
	}

	width := PadWidth(len(t.calls))
	for i, c := range t.calls {
		callDir := filepath.Join(dir, indexedName("call", i, width, ""))
		if err := c.serialize(callDir); err != nil {
			return fmt.Errorf("serialize call %d: %w", i, err)
		}
	}
	return t.writeCompanion(dir)
}

func removeStale(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read trace dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "call_") && name != FlagFile && name != GraphPathFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
	}
	return nil
}

func (c *Call) serialize(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	meta := callMetadata{
		Method:            c.method,
		SerializedInputs:  c.serializedInputs,
		SerializedOutputs: c.serializedOutputs,
		RTol:              c.rtol,
		ATol:              c.atol,
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), meta); err != nil {
		return err
	}
	if err := writeValueFiles(dir, "input", c.inputs); err != nil {
		return err
	}
	return writeValueFiles(dir, "output", c.outputs)
}

func writeValueFiles(dir, prefix string, vals []value.Value) error {
	width := PadWidth(len(vals))
	for i, v := range vals {
		data, err := value.MarshalIndent(v)
		if err != nil {
			return fmt.Errorf("encode %s %d: %w", prefix, i, err)
		}
		if err := os.WriteFile(filepath.Join(dir, indexedName(prefix, i, width, ".json")), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writeCompanion writes the file that lets the first call be replayed
// outside the test: a benchmark flagfile or the path of a standalone graph.
func (t *Trace) writeCompanion(dir string) error {
	if len(t.calls) == 0 || !(t.BenchmarkSerializable || t.GraphSerializable) {
		return nil
	}
	entry := t.calls[0]
	compiledPath, ok := t.CompiledPaths[entry.method]
	if !ok {
		return fmt.Errorf("no compiled path for entry function %q", entry.method)
	}

	if t.BenchmarkSerializable {
		lines := []string{
			"--module_file=" + compiledPath,
			"--driver=" + t.BackendDriver,
			"--function_inputs=" + strings.Join(entry.serializedInputs, ", "),
			"--entry_function=" + entry.method,
		}
		return os.WriteFile(filepath.Join(dir, FlagFile), []byte(strings.Join(lines, "\n")+"\n"), 0o644)
	}
	return os.WriteFile(filepath.Join(dir, GraphPathFile), []byte(compiledPath+"\n"), 0o644)
}

// SavePlaintext writes the human-readable rendering to dir/log.txt. With
// summarize, large arrays are elided; without it every element is written,
// which is slow for large outputs.
func (t *Trace) SavePlaintext(dir string, summarize bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, PlaintextFile), []byte(t.Format(PlaintextOptions(summarize))+"\n"), 0o644)
}

// PlaintextOptions returns the array formatting used for log.txt.
func PlaintextOptions(summarize bool) value.FormatOptions {
	opts := value.FormatOptions{
		LineWidth: value.LineWidth,
		EdgeItems: PlaintextEdgeItems,
	}
	if summarize {
		opts.Threshold = value.DefaultFormatOptions().Threshold
	}
	return opts
}

// Load reconstructs a trace written by Serialize. The result is frozen and
// has no live module.
func Load(dir string) (*Trace, error) {
	var meta Metadata
	if err := readJSON(filepath.Join(dir, MetadataFile), &meta); err != nil {
		return nil, err
	}
	if meta.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("trace %s has format version %d, newer than supported %d", dir, meta.FormatVersion, FormatVersion)
	}

	callDirs, err := matchSorted(dir, "call_*", true)
	if err != nil {
		return nil, err
	}
	t := &Trace{Metadata: meta, calls: make([]*Call, 0, len(callDirs))}
	for _, callDir := range callDirs {
		c, err := loadCall(callDir)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(callDir), err)
		}
		t.calls = append(t.calls, c)
	}
	t.Freeze()
	return t, nil
}

func loadCall(dir string) (*Call, error) {
	var meta callMetadata
	if err := readJSON(filepath.Join(dir, MetadataFile), &meta); err != nil {
		return nil, err
	}
	inputs, err := loadValues(dir, "input_*.json")
	if err != nil {
		return nil, err
	}
	outputs, err := loadValues(dir, "output_*.json")
	if err != nil {
		return nil, err
	}
	return newCall(meta.Method, inputs, outputs, meta.SerializedInputs, meta.SerializedOutputs,
		WithTolerances(meta.RTol, meta.ATol)), nil
}

func loadValues(dir, pattern string) ([]value.Value, error) {
	files, err := matchSorted(dir, pattern, false)
	if err != nil {
		return nil, err
	}
	vals := make([]value.Value, len(files))
	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		v, err := value.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		vals[i] = v
	}
	return vals, nil
}

// matchSorted globs pattern in dir, keeping only directories or only files,
// in lexicographic order.
func matchSorted(dir, pattern string, dirs bool) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, err
		}
		if info.IsDir() == dirs {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("not a trace directory: %w", err)
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
