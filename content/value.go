package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON value. Numbers keep their literal text so documents
// round-trip without float rounding. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	s    string
	arr  []Value
	obj  *Object
}

// NullValue returns JSON null.
func NullValue() Value { return Value{} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ArrayValue wraps items in order.
func ArrayValue(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// NumberValue wraps a JSON number literal such as "42" or "1.5e3".
func NumberValue(n json.Number) Value { return Value{kind: KindNumber, s: string(n)} }

// ObjectValue wraps o; a nil object becomes an empty one.
func ObjectValue(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsNumber() (json.Number, bool) { return json.Number(v.s), v.kind == KindNumber }

// AsArray returns the elements of an array value. The slice is shared with v.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsObject returns the members of an object value. The object is shared with v.
func (v Value) AsObject() (*Object, bool) { return v.obj, v.kind == KindObject }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.Clone()
		}
		return Value{kind: KindArray, arr: items}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Equal reports structural equality. Object member order is ignored.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber, KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	}
	return false
}

// Get returns the value addressed by path, relative to v.
func (v Value) Get(path Path) (Value, bool) {
	cur := v
	for _, seg := range path {
		switch cur.kind {
		case KindObject:
			if seg.isIndex {
				return Value{}, false
			}
			next, ok := cur.obj.Get(seg.key)
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindArray:
			if !seg.isIndex || seg.index < 0 || seg.index >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[seg.index]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// set writes x at path inside v's containers. It reports false, leaving v
// untouched, when an intermediate segment does not address a container.
func (v Value) set(path Path, x Value) bool {
	if len(path) == 0 {
		return false
	}
	seg := path[0]
	switch v.kind {
	case KindObject:
		if seg.isIndex {
			return false
		}
		if len(path) == 1 {
			v.obj.Set(seg.key, x)
			return true
		}
		child, ok := v.obj.Get(seg.key)
		if !ok {
			return false
		}
		return child.set(path[1:], x)
	case KindArray:
		if !seg.isIndex || seg.index < 0 || seg.index >= len(v.arr) {
			return false
		}
		if len(path) == 1 {
			v.arr[seg.index] = x
			return true
		}
		return v.arr[seg.index].set(path[1:], x)
	}
	return false
}

// Walk visits v and every nested value depth-first, parents before children.
func (v Value) Walk(fn func(path Path, v Value)) {
	v.walk(nil, fn)
}

func (v Value) walk(path Path, fn func(Path, Value)) {
	fn(path, v)
	switch v.kind {
	case KindArray:
		for i, item := range v.arr {
			item.walk(path.Append(Index(i)), fn)
		}
	case KindObject:
		for _, key := range v.obj.keys {
			v.obj.vals[key].walk(path.Append(Key(key)), fn)
		}
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if !json.Valid([]byte(v.s)) {
			return fmt.Errorf("content: invalid number literal %q", v.s)
		}
		buf.WriteString(v.s)
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		return v.obj.encode(buf)
	default:
		return fmt.Errorf("content: unknown value kind %d", v.kind)
	}
	return nil
}

// Parse decodes a single JSON value.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("content: trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ArrayValue(items...), nil
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("content: object key is %T", keyTok)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ObjectValue(obj), nil
		}
	}
	return Value{}, fmt.Errorf("content: unexpected token %v", tok)
}

// Object is a JSON object that remembers member insertion order.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{vals: map[string]Value{}}
}

// ParseObject decodes data, which must hold a JSON object.
func ParseObject(data []byte) (*Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("content: expected object, got %s", v.Kind())
	}
	return obj, nil
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns member names in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Set replaces an existing member in place or appends a new one.
func (o *Object) Set(key string, v Value) {
	if o.vals == nil {
		o.vals = map[string]Value{}
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

func (o *Object) Clone() *Object {
	out := &Object{
		keys: make([]string, 0, o.Len()),
		vals: make(map[string]Value, o.Len()),
	}
	if o == nil {
		return out
	}
	for _, key := range o.keys {
		out.keys = append(out.keys, key)
		out.vals[key] = o.vals[key].Clone()
	}
	return out
}

func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	if o == nil {
		return true
	}
	for key, v := range o.vals {
		ov, ok := other.Get(key)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// SetPath writes v at path, which is relative to o and must start with a key.
func (o *Object) SetPath(path Path, v Value) bool {
	if o == nil {
		return false
	}
	return ObjectValue(o).set(path, v)
}

// GetPath reads the value at path relative to o.
func (o *Object) GetPath(path Path) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	return ObjectValue(o).Get(path)
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := o.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object or null (decoded as empty).
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case KindNull:
		*o = Object{vals: map[string]Value{}}
	case KindObject:
		*o = *v.obj
	default:
		return fmt.Errorf("content: expected object, got %s", v.Kind())
	}
	return nil
}

func (o *Object) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	if o != nil {
		for i, key := range o.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := o.vals[key].encode(buf); err != nil {
				return err
			}
		}
	}
	buf.WriteByte('}')
	return nil
}
