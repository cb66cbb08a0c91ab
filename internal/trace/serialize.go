package trace

import (
	"strconv"
	"strings"

	"github.com/roach88/difftrace/internal/value"
)

// ValueSerializer is implemented by modules that know how their runtime
// encodes call arguments on the command line. The strings are recorded
// verbatim and written to the benchmark flagfile.
type ValueSerializer interface {
	SerializeValues(method string, inputs, outputs []value.Value) (serializedInputs, serializedOutputs []string)
}

// DefaultSerializer encodes arrays and scalars in the runtime's
// "<dims>x<type>=<elements>" form, e.g. "2x2xf32=1 2 3 4" or "i64=3".
// Values with no such form (null, lists, maps) encode as "".
type DefaultSerializer struct{}

// SerializeValues implements ValueSerializer.
func (DefaultSerializer) SerializeValues(_ string, inputs, outputs []value.Value) ([]string, []string) {
	return serializeAll(inputs), serializeAll(outputs)
}

func serializeAll(vals []value.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = SerializeValue(v)
	}
	return out
}

// SerializeValue encodes one value. See DefaultSerializer.
func SerializeValue(v value.Value) string {
	switch val := v.(type) {
	case value.Bool:
		if val {
			return "i1=1"
		}
		return "i1=0"
	case value.Int:
		return "i64=" + strconv.FormatInt(int64(val), 10)
	case value.Float:
		return "f64=" + strconv.FormatFloat(float64(val), 'g', -1, 64)
	case *value.Array:
		var b strings.Builder
		for _, d := range val.Shape() {
			b.WriteString(strconv.Itoa(d))
			b.WriteByte('x')
		}
		b.WriteString(val.DType().Abbrev())
		b.WriteByte('=')
		for i := 0; i < val.Size(); i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(serializeElement(val, i))
		}
		return b.String()
	default:
		return ""
	}
}

func serializeElement(a *value.Array, i int) string {
	switch a.DType() {
	case value.Float32:
		return strconv.FormatFloat(a.Float64At(i), 'g', -1, 32)
	case value.Float64:
		return strconv.FormatFloat(a.Float64At(i), 'g', -1, 64)
	default:
		return strconv.FormatInt(a.Int64At(i), 10)
	}
}
