package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
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

// Value is a closed JSON-like variant. The zero Value is null.
// Objects keep their key order; numbers keep their literal text.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	items  []Value
	fields []Field
}

// Field is one key/value pair of an object Value.
type Field struct {
	Key   string
	Value Value
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }
func Object(fields ...Field) Value { return Value{kind: KindObject, fields: fields} }

// Int is a convenience constructor for integral numbers.
func Int(n int64) Value { return Number(json.Number(strconv.FormatInt(n, 10))) }

func (v Value) Kind() Kind { return v.kind }
func (v Value) BoolValue() bool { return v.b }
func (v Value) NumberValue() json.Number { return v.num }
func (v Value) StringValue() string { return v.str }
func (v Value) Items() []Value { return v.items }
func (v Value) Fields() []Field { return v.fields }

// Get returns the value stored under key in an object.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Equal reports structural equality. Object key order is significant, because
// the backend compares embedded documents field by field in order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Key != o.fields[i].Key || !v.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON serializes the value, preserving object key order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.num.String())
	case KindString:
		s, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(s)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

// ErrTooDeep is returned when a document nests beyond the parser's depth limit.
var ErrTooDeep = errors.New("document nesting too deep")

// Parse decodes exactly one JSON value from data. Nesting deeper than
// maxDepth (when > 0) fails with ErrTooDeep; duplicate object keys and
// trailing data are rejected.
func Parse(data []byte, maxDepth int) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	p := &parser{dec: dec, maxDepth: maxDepth}
	v, err := p.value(0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

type parser struct {
	dec      *json.Decoder
	maxDepth int
}

func (p *parser) value(depth int) (Value, error) {
	tok, err := p.dec.Token()
	if err != nil {
		if err == io.EOF {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}
	return p.fromToken(tok, depth)
}

func (p *parser) fromToken(tok json.Token, depth int) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		if p.maxDepth > 0 && depth >= p.maxDepth {
			return Value{}, ErrTooDeep
		}
		switch t {
		case '[':
			return p.array(depth + 1)
		case '{':
			return p.object(depth + 1)
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

func (p *parser) array(depth int) (Value, error) {
	items := []Value{}
	for p.dec.More() {
		item, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
	if _, err := p.dec.Token(); err != nil {
		return Value{}, err
	}
	return Array(items...), nil
}

func (p *parser) object(depth int) (Value, error) {
	fields := []Field{}
	seen := make(map[string]struct{})
	for p.dec.More() {
		tok, err := p.dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key must be a string, got %v", tok)
		}
		if _, dup := seen[key]; dup {
			return Value{}, fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = struct{}{}

		val, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}
		fields = append(fields, Field{Key: key, Value: val})
	}
	if _, err := p.dec.Token(); err != nil {
		return Value{}, err
	}
	return Object(fields...), nil
}
