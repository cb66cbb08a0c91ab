package value

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Tagged encoding
//
// Every Value encodes to a JSON object carrying a "type" discriminator:
//
//	{"type":"null"}
//	{"type":"bool","value":true}
//	{"type":"int","value":42}
//	{"type":"float","value":"0.1"}
//	{"type":"array","dtype":"float32","shape":[2,2],"data":"<base64>"}
//	{"type":"list","items":[...]}
//	{"type":"map","entries":{"k":...}}
//
// Floats are carried as shortest round-trip strings so NaN and the
// infinities survive and no precision is lost to JSON number parsing. Array
// data is the little-endian element bytes, one byte per bool.

// Encode converts v into a tree of map[string]any, []any, string, int64 and
// bool. The tree contains no floats or nulls, so it is accepted by
// MarshalCanonical.
func Encode(v Value) (any, error) {
	switch val := v.(type) {
	case Null:
		return map[string]any{"type": "null"}, nil
	case Bool:
		return map[string]any{"type": "bool", "value": bool(val)}, nil
	case Int:
		return map[string]any{"type": "int", "value": int64(val)}, nil
	case Float:
		return map[string]any{"type": "float", "value": strconv.FormatFloat(float64(val), 'g', -1, 64)}, nil
	case *Array:
		if val == nil {
			return nil, fmt.Errorf("cannot encode nil array")
		}
		shape := make([]any, len(val.shape))
		for i, d := range val.shape {
			shape[i] = int64(d)
		}
		return map[string]any{
			"type":  "array",
			"dtype": val.dtype.String(),
			"shape": shape,
			"data":  base64.StdEncoding.EncodeToString(val.bytes()),
		}, nil
	case List:
		items := make([]any, len(val))
		for i, elem := range val {
			enc, err := Encode(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = enc
		}
		return map[string]any{"type": "list", "items": items}, nil
	case Map:
		entries := make(map[string]any, len(val))
		for k, elem := range val {
			enc, err := Encode(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			entries[k] = enc
		}
		return map[string]any{"type": "map", "entries": entries}, nil
	default:
		return nil, fmt.Errorf("cannot encode %T", v)
	}
}

// Decode is the inverse of Encode. It accepts trees produced by Encode and
// trees produced by encoding/json (float64 or json.Number integers).
func Decode(tree any) (Value, error) {
	obj, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected tagged object, got %T", tree)
	}
	tag, _ := obj["type"].(string)
	switch tag {
	case "null":
		return Null{}, nil
	case "bool":
		b, ok := obj["value"].(bool)
		if !ok {
			return nil, fmt.Errorf("bool: missing value")
		}
		return Bool(b), nil
	case "int":
		i, err := decodeInt(obj["value"])
		if err != nil {
			return nil, fmt.Errorf("int: %w", err)
		}
		return Int(i), nil
	case "float":
		s, ok := obj["value"].(string)
		if !ok {
			return nil, fmt.Errorf("float: value must be a string")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("float: %w", err)
		}
		return Float(f), nil
	case "array":
		return decodeArray(obj)
	case "list":
		items, ok := obj["items"].([]any)
		if !ok {
			return nil, fmt.Errorf("list: missing items")
		}
		out := make(List, len(items))
		for i, item := range items {
			v, err := Decode(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case "map":
		entries, ok := obj["entries"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("map: missing entries")
		}
		out := make(Map, len(entries))
		for k, entry := range entries {
			v, err := Decode(entry)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", tag)
	}
}

// Marshal returns the canonical JSON encoding of v.
func Marshal(v Value) ([]byte, error) {
	tree, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(tree)
}

// MarshalIndent returns an indented, human-diffable encoding of v. Object keys
// are sorted.
func MarshalIndent(v Value) ([]byte, error) {
	tree, err := Encode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data produced by Marshal or MarshalIndent.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return Decode(tree)
}

func decodeInt(raw any) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func decodeArray(obj map[string]any) (Value, error) {
	name, _ := obj["dtype"].(string)
	dt, err := ParseDataType(name)
	if err != nil {
		return nil, fmt.Errorf("array: %w", err)
	}
	rawShape, ok := obj["shape"].([]any)
	if !ok {
		return nil, fmt.Errorf("array: missing shape")
	}
	shape := make(Shape, len(rawShape))
	for i, d := range rawShape {
		n, err := decodeInt(d)
		if err != nil {
			return nil, fmt.Errorf("array: shape[%d]: %w", i, err)
		}
		shape[i] = int(n)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("array: %w", err)
	}
	encoded, _ := obj["data"].(string)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("array: data: %w", err)
	}
	a, err := arrayFromBytes(dt, shape, raw)
	if err != nil {
		return nil, fmt.Errorf("array: %w", err)
	}
	return a, nil
}

// bytes returns the little-endian element encoding.
func (a *Array) bytes() []byte {
	out := make([]byte, 0, a.Size()*a.dtype.Size())
	switch d := a.data.(type) {
	case []float32:
		for _, x := range d {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
		}
	case []float64:
		for _, x := range d {
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(x))
		}
	case []int32:
		for _, x := range d {
			out = binary.LittleEndian.AppendUint32(out, uint32(x))
		}
	case []int64:
		for _, x := range d {
			out = binary.LittleEndian.AppendUint64(out, uint64(x))
		}
	case []uint8:
		out = append(out, d...)
	case []bool:
		for _, x := range d {
			if x {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}
	return out
}

func arrayFromBytes(dt DataType, shape Shape, raw []byte) (*Array, error) {
	n := shape.NumElements()
	if len(raw) != n*dt.Size() {
		return nil, fmt.Errorf("%s%v needs %d bytes, got %d", dt, shape, n*dt.Size(), len(raw))
	}
	a := &Array{dtype: dt, shape: shape.Clone()}
	switch dt {
	case Float32:
		d := make([]float32, n)
		for i := range d {
			d[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		a.data = d
	case Float64:
		d := make([]float64, n)
		for i := range d {
			d[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		a.data = d
	case Int32:
		d := make([]int32, n)
		for i := range d {
			d[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		a.data = d
	case Int64:
		d := make([]int64, n)
		for i := range d {
			d[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		a.data = d
	case Uint8:
		a.data = append(make([]uint8, 0, n), raw...)
	case Bool8:
		d := make([]bool, n)
		for i, b := range raw {
			d[i] = b != 0
		}
		a.data = d
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dt)
	}
	return a, nil
}
