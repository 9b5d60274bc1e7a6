// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// envelope.go — the envelope Codec: payload framing (serialize, optional
// compression, header), version dispatch on decode, and the pluggable legacy
// deserializer.

package envelope

import (
	"fmt"
	"sync/atomic"

	"github.com/AndrewDonelson/envelope/internal/codec"
	"github.com/AndrewDonelson/envelope/internal/compress"
)

// Re-export types so callers only import this package.
type (
	Serializer = codec.Codec
	Compressor = compress.Compressor
)

// LegacyDetector reports whether data was written by the header-less legacy
// format. It must be pure; it runs on every decode.
type LegacyDetector func(data []byte) (bool, error)

// Deserializer decodes a whole buffer (header included, if any) into dest.
// timestamp is the value ParseVersion read from the buffer.
type Deserializer func(data []byte, compress bool, timestamp float64, dest any) error

// Options configures a Codec.
type Options struct {
	// Serializer is the deep-serialization primitive. Default: MessagePack.
	Serializer Serializer
	// Compressor is applied when the compress flag is set. Default: zlib.
	Compressor Compressor
	// IsLegacy recognises legacy buffers. nil means no buffer is legacy.
	IsLegacy LegacyDetector
	// Legacy decodes legacy buffers. It can also be installed later with
	// RegisterLegacyDeserializer.
	Legacy Deserializer
}

// Codec serializes values into envelopes and back. It is safe for concurrent
// use once constructed.
type Codec struct {
	serializer Serializer
	compressor Compressor
	isLegacy   LegacyDetector
	legacy     atomic.Pointer[Deserializer]
}

// Decoded describes an envelope that was successfully deserialized.
type Decoded struct {
	Version   Version
	Timestamp float64
}

// Value pairs a decoded domain value with the version and timestamp of the
// envelope it came from.
type Value[T any] struct {
	Value     T
	Version   Version
	Timestamp float64
}

// NewCodec returns a Codec configured by opts.
func NewCodec(opts Options) *Codec {
	if opts.Serializer == nil {
		opts.Serializer = codec.Default
	}
	if opts.Compressor == nil {
		opts.Compressor = compress.Default
	}
	c := &Codec{
		serializer: opts.Serializer,
		compressor: opts.Compressor,
		isLegacy:   opts.IsLegacy,
	}
	if opts.Legacy != nil {
		c.RegisterLegacyDeserializer(opts.Legacy)
	}
	return c
}

// RegisterLegacyDeserializer installs the deserializer used for buffers the
// legacy predicate accepts. Call it during startup, before legacy buffers can
// reach Deserialize; until then they fail with UnsupportedVersionError.
func (c *Codec) RegisterLegacyDeserializer(fn Deserializer) {
	if fn == nil {
		c.legacy.Store(nil)
		return
	}
	c.legacy.Store(&fn)
}

// Serializer returns the configured serializer.
func (c *Codec) Serializer() Serializer { return c.serializer }

// Compressor returns the configured compressor.
func (c *Codec) Compressor() Compressor { return c.compressor }

// Serialize encodes v as a Current-version envelope stamped with timestamp.
// The compress flag is not recorded in the envelope; readers must pass the
// same flag to Deserialize.
func (c *Codec) Serialize(timestamp float64, v any, compress bool) ([]byte, error) {
	payload, err := c.serializer.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerializationFailed, c.serializer.Name(), err)
	}
	if compress {
		payload, err = c.compressor.Compress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCompressionFailed, c.compressor.Name(), err)
		}
	}
	out := make([]byte, HeaderSize+len(payload))
	putHeader(out, timestamp)
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Deserialize decodes data into dest, which must be a non-nil pointer. On
// error the contents of dest are unspecified; Decode returns nothing at all.
func (c *Codec) Deserialize(data []byte, compress bool, dest any) (Decoded, error) {
	ts, v, err := c.ParseVersion(data)
	if err != nil {
		return Decoded{}, err
	}
	fn := c.deserializer(v)
	if fn == nil {
		return Decoded{}, &UnsupportedVersionError{Version: v}
	}
	if err := fn(data, compress, ts, dest); err != nil {
		return Decoded{}, err
	}
	return Decoded{Version: v, Timestamp: ts}, nil
}

// Decode is the typed form of Deserialize.
func Decode[T any](c *Codec, data []byte, compress bool) (*Value[T], error) {
	var out T
	d, err := c.Deserialize(data, compress, &out)
	if err != nil {
		return nil, err
	}
	return &Value[T]{Value: out, Version: d.Version, Timestamp: d.Timestamp}, nil
}

func (c *Codec) deserializer(v Version) Deserializer {
	if v == Legacy {
		if p := c.legacy.Load(); p != nil {
			return *p
		}
		return nil
	}
	info, ok := lookupVersion(v)
	if !ok {
		return nil
	}
	return func(data []byte, compress bool, ts float64, dest any) error {
		return info.decode(c, data, compress, ts, dest)
	}
}

// decodeV1 strips the header, optionally decompresses, and unmarshals.
func (c *Codec) decodeV1(data []byte, compress bool, _ float64, dest any) error {
	var payload []byte
	if len(data) > HeaderSize {
		payload = data[HeaderSize:]
	}
	if compress {
		var err error
		payload, err = c.compressor.Decompress(payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecompressionFailed, c.compressor.Name(), err)
		}
	}
	if err := c.serializer.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeserializationFailed, c.serializer.Name(), err)
	}
	return nil
}
