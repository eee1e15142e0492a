package bencode

import (
	"strconv"

	"github.com/pkg/errors"
)

const maxDepth = 512

var ErrMalformedEncoding = errors.New("malformed bencode")

// Decode parses exactly one value from buf. Trailing bytes are rejected.
//
// Dictionaries with a repeated key keep the last value read for that key,
// stored at the position where the key first appeared.
func Decode(buf []byte) (Value, error) {
	v, pos, err := DecodePrefix(buf)
	if err != nil {
		return Value{}, err
	}
	if pos != len(buf) {
		return Value{}, malformed(pos, "%d trailing bytes", len(buf)-pos)
	}
	return v, nil
}

// DecodePrefix parses one value from the start of buf and returns the
// number of bytes it consumed.
func DecodePrefix(buf []byte) (Value, int, error) {
	return decodeAny(buf, 0, 0)
}

func malformed(pos int, format string, args ...any) error {
	return errors.Wrapf(ErrMalformedEncoding, "offset %d: "+format, append([]any{pos}, args...)...)
}

func decodeAny(buf []byte, pos int, depth int) (Value, int, error) {
	if pos >= len(buf) {
		return Value{}, 0, malformed(pos, "unexpected end of input")
	}
	if depth > maxDepth {
		return Value{}, 0, malformed(pos, "nesting deeper than %d", maxDepth)
	}
	switch buf[pos] {
	case 'i':
		i, offset, err := decodeInt(buf, pos)
		return NewInt(i), offset, err
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		b, offset, err := decodeBytes(buf, pos)
		return NewBytes(b), offset, err
	case 'l':
		return decodeList(buf, pos, depth)
	case 'd':
		return decodeDict(buf, pos, depth)
	default:
		return Value{}, 0, malformed(pos, "unsupported type %q", buf[pos])
	}
}

func decodeList(buf []byte, pos int, depth int) (Value, int, error) {
	items := make([]Value, 0)
	i := pos + 1
	for {
		if i >= len(buf) {
			return Value{}, 0, malformed(pos, "unterminated list")
		}
		if buf[i] == 'e' {
			break
		}
		item, offset, err := decodeAny(buf, i, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		items = append(items, item)
		i = offset
	}
	return NewList(items...), i + 1, nil
}

func decodeDict(buf []byte, pos int, depth int) (Value, int, error) {
	dict := NewDict()
	i := pos + 1
	for {
		if i >= len(buf) {
			return Value{}, 0, malformed(pos, "unterminated dictionary")
		}
		if buf[i] == 'e' {
			break
		}
		if buf[i] < '0' || buf[i] > '9' {
			return Value{}, 0, malformed(i, "dictionary key must be a byte string")
		}
		key, offset, err := decodeBytes(buf, i)
		if err != nil {
			return Value{}, 0, err
		}
		if offset >= len(buf) || buf[offset] == 'e' {
			return Value{}, 0, malformed(i, "dictionary key %q has no value", key)
		}
		value, next, err := decodeAny(buf, offset, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		dict.Set(string(key), value)
		i = next
	}
	return NewDictValue(dict), i + 1, nil
}

func decodeBytes(buf []byte, pos int) ([]byte, int, error) {
	i := pos
	for ; i < len(buf) && buf[i] != ':'; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			return nil, 0, malformed(i, "non-digit %q in string length", buf[i])
		}
	}
	if i >= len(buf) {
		return nil, 0, malformed(pos, "unterminated string length")
	}
	digits := buf[pos:i]
	if len(digits) > 1 && digits[0] == '0' {
		return nil, 0, malformed(pos, "leading zero in string length")
	}
	l, err := strconv.Atoi(string(digits))
	if err != nil {
		return nil, 0, malformed(pos, "invalid string length %q", digits)
	}
	begin := i + 1
	if l > len(buf)-begin {
		return nil, 0, malformed(pos, "string of length %d truncated", l)
	}
	return buf[begin : begin+l], begin + l, nil
}

func decodeInt(buf []byte, pos int) (int64, int, error) {
	begin := pos + 1
	i := begin
	for ; i < len(buf) && buf[i] != 'e'; i++ {
	}
	if i >= len(buf) {
		return 0, 0, malformed(pos, "unterminated integer")
	}
	digits := buf[begin:i]
	if err := checkIntDigits(digits); err != nil {
		return 0, 0, malformed(pos, "%s", err)
	}
	ret, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, 0, malformed(pos, "invalid integer %q", digits)
	}
	return ret, i + 1, nil
}

func checkIntDigits(digits []byte) error {
	body := digits
	if len(body) > 0 && body[0] == '-' {
		body = body[1:]
	}
	if len(body) == 0 {
		return errors.Errorf("empty integer %q", digits)
	}
	for _, c := range body {
		if c < '0' || c > '9' {
			return errors.Errorf("non-digit %q in integer", c)
		}
	}
	if len(body) > 1 && body[0] == '0' {
		return errors.Errorf("leading zero in integer %q", digits)
	}
	if body[0] == '0' && len(digits) != len(body) {
		return errors.New("negative zero")
	}
	return nil
}
