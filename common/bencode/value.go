package bencode

import (
	"github.com/elliotchance/orderedmap"
)

type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindBytes
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindBytes:
		return "byte string"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return "invalid"
	}
}

// Value is one of integer, byte string, list or dictionary.
// The zero Value is invalid and cannot be encoded.
type Value struct {
	kind Kind
	i    int64
	b    []byte
	list []Value
	dict *Dict
}

func NewInt(i int64) Value {
	return Value{kind: KindInt, i: i}
}

func NewBytes(b []byte) Value {
	return Value{kind: KindBytes, b: b}
}

func NewString(s string) Value {
	return Value{kind: KindBytes, b: []byte(s)}
}

func NewList(items ...Value) Value {
	if items == nil {
		items = make([]Value, 0)
	}
	return Value{kind: KindList, list: items}
}

func NewDictValue(d *Dict) Value {
	if d == nil {
		d = NewDict()
	}
	return Value{kind: KindDict, dict: d}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) Int() (int64, bool) {
	return v.i, v.kind == KindInt
}

func (v Value) Bytes() ([]byte, bool) {
	return v.b, v.kind == KindBytes
}

func (v Value) List() ([]Value, bool) {
	return v.list, v.kind == KindList
}

func (v Value) Dict() (*Dict, bool) {
	return v.dict, v.kind == KindDict
}

// Native converts v into plain Go values: int64, []byte, []any and
// map[string]any. Dictionary order is lost in the conversion.
func (v Value) Native() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindBytes:
		return v.b
	case KindList:
		ret := make([]any, 0, len(v.list))
		for _, item := range v.list {
			ret = append(ret, item.Native())
		}
		return ret
	case KindDict:
		ret := make(map[string]any, v.dict.Len())
		v.dict.Each(func(key string, value Value) {
			ret[key] = value.Native()
		})
		return ret
	}
	return nil
}

// Dict keeps keys in the order they were first set. Keys are raw byte
// strings held in Go strings.
type Dict struct {
	m *orderedmap.OrderedMap
}

func NewDict() *Dict {
	return &Dict{m: orderedmap.NewOrderedMap()}
}

// Set stores value under key. Setting an existing key replaces its value
// and keeps the key at its original position.
func (d *Dict) Set(key string, value Value) {
	d.m.Set(key, value)
}

func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.m.Get(key)
	if !ok {
		return Value{}, false
	}
	return v.(Value), true
}

func (d *Dict) Len() int {
	return d.m.Len()
}

func (d *Dict) Keys() []string {
	keys := make([]string, 0, d.m.Len())
	for el := d.m.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key.(string))
	}
	return keys
}

func (d *Dict) Each(fn func(key string, value Value)) {
	for el := d.m.Front(); el != nil; el = el.Next() {
		fn(el.Key.(string), el.Value.(Value))
	}
}
