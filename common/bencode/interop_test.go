package bencode

import (
	"bytes"
	"testing"

	jackpal "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJackpalEncoded(t *testing.T) {
	buf := &bytes.Buffer{}
	err := jackpal.Marshal(buf, map[string]interface{}{
		"b": 1,
		"a": "x",
		"l": []interface{}{2, "y"},
	})
	require.NoError(t, err)

	v, err := Decode(buf.Bytes())
	require.NoError(t, err)
	d, ok := v.Dict()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "l"}, d.Keys())
	b, err := GetInt(d, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b)
	a, err := GetString(d, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", a)
	l, err := GetList(d, "l")
	require.NoError(t, err)
	assert.Len(t, l, 2)
}

func TestEncodeReadByJackpal(t *testing.T) {
	d := NewDict()
	d.Set("foo", NewInt(42))
	d.Set("spam", NewList(NewString("a"), NewString("b")))
	raw, err := Encode(NewDictValue(d))
	require.NoError(t, err)

	decoded, err := jackpal.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	m, ok := decoded.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 42, m["foo"])
	assert.Equal(t, []interface{}{"a", "b"}, m["spam"])
}
