// Package codec provides the deep-serialization primitive behind envelope
// payloads.
package codec

import "errors"

// ErrTrailingData is returned by Unmarshal when the input holds more bytes
// than one encoded value. A payload decoded with the wrong compression flag
// usually trips this instead of yielding a plausible but wrong value.
var ErrTrailingData = errors.New("codec: trailing data after value")

// Codec encodes and decodes values for envelope payloads.
type Codec interface {
	// Marshal serializes v into bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes data into v (must be a pointer). The whole input
	// must be consumed.
	Unmarshal(data []byte, v any) error
	// Name returns the codec identifier used in configuration and diagnostics.
	Name() string
}

// ByName returns the codec registered under name, or nil.
func ByName(name string) Codec {
	switch name {
	case "", "msgpack":
		return MsgPack{}
	case "json":
		return JSON{}
	}
	return nil
}
