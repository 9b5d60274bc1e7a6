// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// errors.go — sentinel errors returned by the envelope codec, the cache and
// the memoizer, plus the UnsupportedVersionError carrying the detected version.

// Package envelope wraps cached values in a small self-describing binary
// header (format version + creation timestamp) and stores them through a
// tiered key-value cache with an optional call-result memoizer on top.
package envelope

import (
	"errors"
	"fmt"
)

// Codec errors
var (
	ErrUnsupportedVersion    = errors.New("envelope: unsupported version or invalid package")
	ErrSerializationFailed   = errors.New("envelope: failed to serialize value")
	ErrDeserializationFailed = errors.New("envelope: failed to deserialize value")
	ErrCompressionFailed     = errors.New("envelope: failed to compress payload")
	ErrDecompressionFailed   = errors.New("envelope: failed to decompress payload")
)

// Cache errors
var (
	ErrNotFound      = errors.New("envelope: key not found")
	ErrClosed        = errors.New("envelope: cache closed")
	ErrNoStore       = errors.New("envelope: no store tier configured")
	ErrInvalidConfig = errors.New("envelope: invalid configuration")
)

// UnsupportedVersionError is returned by Deserialize when no deserializer is
// registered for the detected version. Version is Unknown when the header
// matched nothing.
type UnsupportedVersionError struct {
	Version Version
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupportedVersion.Error(), e.Version)
}

// Is reports whether target is ErrUnsupportedVersion.
func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}
