package bencode

import (
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Encode serializes v. Dictionaries are written in their stored key order,
// so a decoded value encodes back to the bytes it was read from.
func Encode(v Value) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := encodeAny(buf, v)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeTo(w io.Writer, v Value) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return errors.WithStack(err)
}

func encodeAny(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindInt:
		encodeInt(buf, v.i)
	case KindBytes:
		encodeBytes(buf, v.b)
	case KindList:
		return encodeList(buf, v.list)
	case KindDict:
		return encodeDict(buf, v.dict)
	default:
		return errors.New("cannot encode invalid value")
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, val int64) {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(val, 10))
	buf.WriteByte('e')
}

func encodeBytes(buf *bytes.Buffer, data []byte) {
	buf.WriteString(strconv.Itoa(len(data)))
	buf.WriteByte(':')
	buf.Write(data)
}

func encodeList(buf *bytes.Buffer, list []Value) error {
	buf.WriteByte('l')
	for _, item := range list {
		err := encodeAny(buf, item)
		if err != nil {
			return err
		}
	}
	buf.WriteByte('e')
	return nil
}

func encodeDict(buf *bytes.Buffer, d *Dict) error {
	buf.WriteByte('d')
	var err error
	d.Each(func(key string, value Value) {
		if err != nil {
			return
		}
		encodeBytes(buf, []byte(key))
		err = encodeAny(buf, value)
	})
	if err != nil {
		return err
	}
	buf.WriteByte('e')
	return nil
}
