package jsoncodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := person{ID: 42, Name: "graphsink"}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out person
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	indented, err := MarshalIndent(in, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n  \"id\": 42")
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, map[string]any{"b": 1, "a": 2}))
	assert.Equal(t, "{\"a\":2,\"b\":1}\n", buf.String())
}

func TestDecodeValue(t *testing.T) {
	t.Run("keeps integers integral", func(t *testing.T) {
		v, err := DecodeValue([]byte(`{"id":1,"score":1.5,"tags":["a"],"nested":{"ok":true}}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"id":     int64(1),
			"score":  1.5,
			"tags":   []any{"a"},
			"nested": map[string]any{"ok": true},
		}, v)
	})

	t.Run("empty payload is nil", func(t *testing.T) {
		v, err := DecodeValue(nil)
		require.NoError(t, err)
		assert.Nil(t, v)

		v, err = DecodeValue([]byte("  "))
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("null is nil", func(t *testing.T) {
		v, err := DecodeValue([]byte("null"))
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeValue([]byte("{"))
		assert.Error(t, err)
	})
}

func TestConvert(t *testing.T) {
	var out person
	require.NoError(t, Convert(map[string]any{"id": int64(7), "name": "ada"}, &out))
	assert.Equal(t, person{ID: 7, Name: "ada"}, out)
}
