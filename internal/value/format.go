package value

import (
	"math"
	"strconv"
	"strings"
)

// LineWidth is the fixed width used when rendering arrays, so diagnostics are
// reproducible across runs and machines.
const LineWidth = 120

// FormatOptions controls array rendering.
type FormatOptions struct {
	// LineWidth is the maximum rendered line length for 1-D runs of elements.
	LineWidth int

	// Threshold is the element count above which arrays are summarized.
	// Zero or negative disables summarization, which is slow for large arrays.
	Threshold int

	// EdgeItems is the number of leading and trailing items kept per axis
	// when summarizing.
	EdgeItems int
}

// DefaultFormatOptions mirrors numpy's defaults at the fixed line width.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{LineWidth: LineWidth, Threshold: 1000, EdgeItems: 3}
}

// Describe returns the short descriptor used in call summaries:
// "(2, 3) float32" for arrays and the kind name otherwise.
func Describe(v Value) string {
	if a, ok := v.(*Array); ok {
		return a.shape.String() + " " + a.dtype.String()
	}
	if v == nil {
		return "<nil>"
	}
	return v.Kind().String()
}

// String renders v with DefaultFormatOptions.
func String(v Value) string {
	return Format(v, DefaultFormatOptions())
}

// Format renders v as human-readable text.
func Format(v Value, opts FormatOptions) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return formatFloat(float64(val), 64)
	case *Array:
		return formatArray(val, opts)
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Format(elem, opts)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Map:
		keys := val.SortedKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + Format(val[k], opts)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<unknown>"
	}
}

// formatFloat renders the shortest round-tripping representation and keeps a
// decimal point so floats are distinguishable from integers.
func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func formatElement(a *Array, i int) string {
	switch d := a.data.(type) {
	case []float32:
		return formatFloat(float64(d[i]), 32)
	case []float64:
		return formatFloat(d[i], 64)
	case []bool:
		return strconv.FormatBool(d[i])
	default:
		return strconv.FormatInt(a.Int64At(i), 10)
	}
}

// arrayPrinter renders nested brackets numpy style: elements right-aligned to
// a common width, rows separated by newlines and one blank line per extra
// dimension.
type arrayPrinter struct {
	a         *Array
	opts      FormatOptions
	summarize bool
	strides   []int
	width     int
}

const ellipsis = "..."

func formatArray(a *Array, opts FormatOptions) string {
	if len(a.shape) == 0 {
		return formatElement(a, 0)
	}
	if a.Size() == 0 {
		return strings.Repeat("[", len(a.shape)) + strings.Repeat("]", len(a.shape))
	}

	p := &arrayPrinter{
		a:         a,
		opts:      opts,
		summarize: opts.Threshold > 0 && a.Size() > opts.Threshold,
		strides:   make([]int, len(a.shape)),
	}
	stride := 1
	for i := len(a.shape) - 1; i >= 0; i-- {
		p.strides[i] = stride
		stride *= a.shape[i]
	}
	p.measure(0, 0)
	return p.render(0, 0, 0)
}

// indices returns the positions displayed along axis, with -1 standing in for
// the summarization ellipsis.
func (p *arrayPrinter) indices(axis int) []int {
	n := p.a.shape[axis]
	edge := p.opts.EdgeItems
	if p.summarize && n > 2*edge {
		out := make([]int, 0, 2*edge+1)
		for i := 0; i < edge; i++ {
			out = append(out, i)
		}
		out = append(out, -1)
		for i := n - edge; i < n; i++ {
			out = append(out, i)
		}
		return out
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (p *arrayPrinter) measure(axis, offset int) {
	for _, i := range p.indices(axis) {
		if i < 0 {
			continue
		}
		pos := offset + i*p.strides[axis]
		if axis == len(p.a.shape)-1 {
			if w := len(formatElement(p.a, pos)); w > p.width {
				p.width = w
			}
			continue
		}
		p.measure(axis+1, pos)
	}
}

func (p *arrayPrinter) render(axis, offset, indent int) string {
	var b strings.Builder
	b.WriteByte('[')
	idx := p.indices(axis)

	if axis == len(p.a.shape)-1 {
		lineLen := indent + 1
		for n, i := range idx {
			tok := ellipsis
			if i >= 0 {
				tok = formatElement(p.a, offset+i*p.strides[axis])
				tok = strings.Repeat(" ", p.width-len(tok)) + tok
			}
			if n > 0 {
				if lineLen+1+len(tok)+1 > p.opts.LineWidth {
					b.WriteByte('\n')
					b.WriteString(strings.Repeat(" ", indent+1))
					lineLen = indent + 1
				} else {
					b.WriteByte(' ')
					lineLen++
				}
			}
			b.WriteString(tok)
			lineLen += len(tok)
		}
		b.WriteByte(']')
		return b.String()
	}

	sep := strings.Repeat("\n", len(p.a.shape)-axis-1) + strings.Repeat(" ", indent+1)
	for n, i := range idx {
		if n > 0 {
			b.WriteString(sep)
		}
		if i < 0 {
			b.WriteString(ellipsis)
			continue
		}
		b.WriteString(p.render(axis+1, offset+i*p.strides[axis], indent+1))
	}
	b.WriteByte(']')
	return b.String()
}
