package bencode

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var (
	ErrMissingKey   = errors.New("missing key")
	ErrTypeMismatch = errors.New("type mismatch")
)

// Lookup returns the value stored under key, or false if d has no such key.
func Lookup(d *Dict, key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	return d.Get(key)
}

func get(d *Dict, key string, kind Kind) (Value, error) {
	v, ok := Lookup(d, key)
	if !ok {
		return Value{}, errors.Wrapf(ErrMissingKey, "key %q", key)
	}
	if v.kind != kind {
		return Value{}, errors.Wrapf(ErrTypeMismatch, "key %q: want %s, got %s", key, kind, v.kind)
	}
	return v, nil
}

func GetInt(d *Dict, key string) (int64, error) {
	v, err := get(d, key, KindInt)
	return v.i, err
}

func GetBytes(d *Dict, key string) ([]byte, error) {
	v, err := get(d, key, KindBytes)
	return v.b, err
}

func GetString(d *Dict, key string) (string, error) {
	b, err := GetBytes(d, key)
	return string(b), err
}

func GetList(d *Dict, key string) ([]Value, error) {
	v, err := get(d, key, KindList)
	return v.list, err
}

func GetDict(d *Dict, key string) (*Dict, error) {
	v, err := get(d, key, KindDict)
	return v.dict, err
}

var tierListType = reflect.TypeOf([][]string{})

// Unmarshal decodes v into out using mapstructure tags. Byte strings become
// strings where the target field is a string, with invalid UTF-8 dropped.
// Integers become bools. A flat list of strings decoded into [][]string
// becomes a single tier. Fields whose value has another shape are left
// untouched and reported in the returned error; the remaining fields are
// still decoded.
func Unmarshal(v Value, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		DecodeHook: mapstructure.DecodeHookFuncType(decodeHook),
	})
	if err != nil {
		return errors.WithStack(err)
	}
	err = decoder.Decode(v.Native())
	if err != nil {
		return errors.Wrap(ErrTypeMismatch, err.Error())
	}
	return nil
}

func decodeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	switch to.Kind() {
	case reflect.String:
		switch v := data.(type) {
		case []byte:
			return strings.ToValidUTF8(string(v), ""), nil
		case string:
			return strings.ToValidUTF8(v, ""), nil
		}
	case reflect.Bool:
		if i, ok := data.(int64); ok {
			return i != 0, nil
		}
	}
	if to == tierListType {
		if flat, ok := flatStrings(data); ok {
			return [][]string{flat}, nil
		}
	}
	return data, nil
}

func flatStrings(data interface{}) ([]string, bool) {
	items, ok := data.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	ret := make([]string, 0, len(items))
	for _, item := range items {
		b, ok := item.([]byte)
		if !ok {
			return nil, false
		}
		ret = append(ret, strings.ToValidUTF8(string(b), ""))
	}
	return ret, true
}
