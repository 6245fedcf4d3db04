package jsoncodec

import (
	"bytes"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

// valueConfig decodes untyped payloads. Integers stay int64 so identifiers
// written to the graph keep their integral type.
var valueConfig = sonic.Config{
	EscapeHTML:     true,
	SortMapKeys:    true,
	CopyString:     true,
	ValidateString: true,
	UseInt64:       true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return valueConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// DecodeValue decodes an arbitrary JSON document into maps, slices and
// scalars. An empty payload decodes to nil, which marks a tombstone.
func DecodeValue(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out any
	if err := valueConfig.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Convert re-encodes src into dst, typically to turn a decoded map into a
// typed struct.
func Convert(src any, dst any) error {
	data, err := valueConfig.Marshal(src)
	if err != nil {
		return err
	}
	return valueConfig.Unmarshal(data, dst)
}
