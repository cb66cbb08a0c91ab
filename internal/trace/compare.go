package trace

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/roach88/difftrace/internal/value"
)

// Comparator checks target traces against a reference trace.
type Comparator struct {
	Logger *slog.Logger
}

// NewComparator returns a Comparator logging to logger. A nil logger
// discards output.
func NewComparator(logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Comparator{Logger: logger}
}

// CompareTraces compares two traces with a discarding logger.
// See Comparator.CompareTraces.
func CompareTraces(ref, tar *Trace) (bool, []string, error) {
	return NewComparator(nil).CompareTraces(ref, tar)
}

// CompareTraces reports whether tar reproduces ref.
//
// Both traces must have the same (method, rtol, atol) sequence; otherwise a
// *StructuralError is returned. Each call pair is then compared with the
// reference call's tolerances, inputs and outputs independently, and one
// message is collected per failing side.
func (c *Comparator) CompareTraces(ref, tar *Trace) (bool, []string, error) {
	refSigs, tarSigs := ref.Signatures(), tar.Signatures()
	if !signaturesEqual(refSigs, tarSigs) {
		return false, nil, &StructuralError{
			ReferenceID: ref.BackendID,
			TargetID:    tar.BackendID,
			Reference:   refSigs,
			Target:      tarSigs,
		}
	}

	match := true
	messages := []string{}
	for i, refCall := range ref.calls {
		tarCall := tar.calls[i]
		rtol, atol := refCall.Tolerances()
		log := c.Logger.With("backend", tar.BackendID, "method", refCall.method, "call", i)
		log.Info("comparing calls")

		inputsMatch, msg, err := checkSame(log, value.List(refCall.inputs), value.List(tarCall.inputs), rtol, atol, "inputs")
		if err != nil {
			return false, nil, fmt.Errorf("call %d (%s): %w", i, refCall.method, err)
		}
		if !inputsMatch {
			messages = append(messages, msg)
			log.Error("inputs did not match", "error", msg)
		}

		outputsMatch, msg, err := checkSame(log, value.List(refCall.outputs), value.List(tarCall.outputs), rtol, atol, "outputs")
		if err != nil {
			return false, nil, fmt.Errorf("call %d (%s): %w", i, refCall.method, err)
		}
		if !outputsMatch {
			messages = append(messages, msg)
			log.Error("outputs did not match", "error", msg)
		}

		if !inputsMatch || !outputsMatch {
			match = false
			log.Error("comparison failed",
				"reference", ref.BackendID,
				"reference_call", refCall.String(),
				"target_call", tarCall.String())
		}
	}
	return match, messages, nil
}

func signaturesEqual(a, b []Signature) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CheckSame reports whether tar has the same structure as ref and equal
// leaves, with floating arrays compared under rtol and atol. On mismatch the
// message describes the first failing leaf in depth-first order. The error
// is non-nil only for values no rule covers (*UnsupportedValueError).
func CheckSame(ref, tar value.Value, rtol, atol float64) (bool, string, error) {
	return NewComparator(nil).CheckSame(ref, tar, rtol, atol)
}

// CheckSame behaves like the package-level CheckSame and also logs floating
// arrays that pass, with their max abs and relative differences.
func (c *Comparator) CheckSame(ref, tar value.Value, rtol, atol float64) (bool, string, error) {
	return checkSame(c.Logger, ref, tar, rtol, atol, "")
}

func checkSame(log *slog.Logger, ref, tar value.Value, rtol, atol float64, path string) (bool, string, error) {
	if err := supported(ref, path); err != nil {
		return false, "", err
	}
	if err := supported(tar, path); err != nil {
		return false, "", err
	}

	if ref.Kind() != tar.Kind() {
		return mismatch(path, "Expected ref and tar to have the same type, but got '%s' and '%s'", ref.Kind(), tar.Kind())
	}

	switch r := ref.(type) {
	case value.Null:
		return true, "", nil

	case value.Map:
		t := tar.(value.Map)
		refKeys, tarKeys := r.SortedKeys(), t.SortedKeys()
		if !keysEqual(refKeys, tarKeys) {
			return mismatch(path, "Expected ref and tar to have the same keys, but got %q and %q", refKeys, tarKeys)
		}
		for _, k := range refKeys {
			if same, msg, err := checkSame(log, r[k], t[k], rtol, atol, path+"["+strconv.Quote(k)+"]"); !same || err != nil {
				return same, msg, err
			}
		}
		return true, "", nil

	case value.List:
		t := tar.(value.List)
		if len(r) != len(t) {
			return mismatch(path, "Expected ref and tar to have the same length, but got %d and %d", len(r), len(t))
		}
		for i := range r {
			if same, msg, err := checkSame(log, r[i], t[i], rtol, atol, path+"["+strconv.Itoa(i)+"]"); !same || err != nil {
				return same, msg, err
			}
		}
		return true, "", nil

	case *value.Array:
		return checkArrays(log, r, tar.(*value.Array), rtol, atol, path)

	case value.Int, value.Float, value.Bool:
		if ref != tar {
			return mismatch(path, "Expected ref and tar to be equal, but got %s and %s", value.String(ref), value.String(tar))
		}
		return true, "", nil
	}
	return false, "", &UnsupportedValueError{Type: fmt.Sprintf("%T", ref), Path: path}
}

func supported(v value.Value, path string) error {
	switch val := v.(type) {
	case nil:
		return &UnsupportedValueError{Type: "<nil>", Path: path}
	case *value.Array:
		if val == nil {
			return &UnsupportedValueError{Type: "nil *value.Array", Path: path}
		}
	}
	return nil
}

func mismatch(path, format string, args ...any) (bool, string, error) {
	msg := fmt.Sprintf(format, args...)
	if path != "" {
		msg = path + ": " + msg
	}
	return false, msg, nil
}

func keysEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkArrays(log *slog.Logger, ref, tar *value.Array, rtol, atol float64, path string) (bool, string, error) {
	if ref.DType() != tar.DType() {
		return mismatch(path, "Expected ref and tar to have the same dtype, but got '%s' and '%s'", ref.DType(), tar.DType())
	}
	if !ref.Shape().Equal(tar.Shape()) {
		return mismatch(path, "Expected ref and tar to have the same shape, but got %s and %s", ref.Shape(), tar.Shape())
	}
	if ref.Size() == 0 {
		return true, "", nil
	}

	switch {
	case ref.DType().IsFloating():
		stats := closeness(ref, tar, rtol, atol)
		if !stats.close {
			return mismatch(path, "Floating point difference between ref and tar was too large. %s", stats.describe(rtol, atol))
		}
		log.Info("Floating point difference between ref and tar was within tolerance. "+stats.describe(rtol, atol), "path", path)
		return true, "", nil

	case ref.DType().IsInteger():
		if value.ElementsEqual(ref, tar) {
			return true, "", nil
		}
		return mismatch(path, "Expected array equality between ref and tar, but got a max elementwise difference of %d", maxIntDiff(ref, tar))

	default:
		if value.ElementsEqual(ref, tar) {
			return true, "", nil
		}
		differ := 0
		for i := 0; i < ref.Size(); i++ {
			if ref.Int64At(i) != tar.Int64At(i) {
				differ++
			}
		}
		return mismatch(path, "Expected array equality between ref and tar, but %d of %d elements differ", differ, ref.Size())
	}
}

// diffStats summarizes an element-wise floating comparison.
type diffStats struct {
	close  bool
	maxAbs float64
	maxRel float64
}

// closeness applies |r - t| <= atol + rtol*|t| to every finite pair. NaN is
// never close. An infinite element is close only to the same infinity.
//
// The relative difference is max|r - t| / max|t| over finite targets. When
// that denominator is zero it is 0 for identical arrays and +Inf otherwise.
func closeness(ref, tar *value.Array, rtol, atol float64) diffStats {
	stats := diffStats{close: true}
	maxTar := 0.0
	for i := 0; i < ref.Size(); i++ {
		r, t := ref.Float64At(i), tar.Float64At(i)
		var d float64
		switch {
		case r == t:
			d = 0
		case math.IsNaN(r) || math.IsNaN(t):
			d = math.NaN()
		case math.IsInf(r, 0) || math.IsInf(t, 0):
			d = math.Inf(1)
		default:
			d = math.Abs(r - t)
		}

		if math.IsNaN(d) || math.IsInf(d, 0) || d > atol+rtol*math.Abs(t) {
			stats.close = false
		}
		if math.IsNaN(d) || d > stats.maxAbs {
			stats.maxAbs = d
		}
		if a := math.Abs(t); !math.IsInf(a, 0) && a > maxTar {
			maxTar = a
		}
	}

	switch {
	case maxTar != 0:
		stats.maxRel = stats.maxAbs / maxTar
	case stats.maxAbs == 0:
		stats.maxRel = 0
	default:
		stats.maxRel = math.Inf(1)
	}
	return stats
}

func (s diffStats) describe(rtol, atol float64) string {
	return fmt.Sprintf("Max abs diff: %.2e, atol: %.2e, max relative diff: %.2e, rtol: %.2e", s.maxAbs, atol, s.maxRel, rtol)
}

func maxIntDiff(ref, tar *value.Array) uint64 {
	var largest uint64
	for i := 0; i < ref.Size(); i++ {
		r, t := ref.Int64At(i), tar.Int64At(i)
		var d uint64
		if r > t {
			d = uint64(r) - uint64(t)
		} else {
			d = uint64(t) - uint64(r)
		}
		if d > largest {
			largest = d
		}
	}
	return largest
}
