// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// header.go — the 15-byte envelope header: the XOR-masked "version" marker
// followed by a native-endian float64 Unix timestamp.
//
//	| 0..7  | "version" XOR mask (mask bytes cycled)   |
//	| 7..15 | float64 timestamp, native byte order     |
//	| 15..  | payload                                  |
//
// The mask is obfuscation, not protection. It lets a reader tell a headered
// buffer from a legacy one without allocating.

package envelope

import (
	"encoding/binary"
	"math"
)

const (
	// Marker is the literal masked into the first bytes of every envelope.
	Marker = "version"
	// MarkerSize is the length of the masked marker.
	MarkerSize = len(Marker)
	// TimestampSize is the length of the encoded timestamp.
	TimestampSize = 8
	// HeaderSize is the full header length for the current version.
	HeaderSize = MarkerSize + TimestampSize
)

// EncodeHeader returns the header for a new envelope written at timestamp.
func EncodeHeader(timestamp float64) []byte {
	buf := make([]byte, HeaderSize)
	putHeader(buf, timestamp)
	return buf
}

func putHeader(dst []byte, timestamp float64) {
	mask := versions[0].mask
	if info, ok := lookupVersion(Current); ok {
		mask = info.mask
	}
	for i := 0; i < MarkerSize; i++ {
		dst[i] = Marker[i] ^ mask[i%len(mask)]
	}
	binary.NativeEndian.PutUint64(dst[MarkerSize:HeaderSize], math.Float64bits(timestamp))
}

// unmasks reports whether the first MarkerSize bytes of data equal Marker once
// XORed with mask.
func unmasks(data, mask []byte) bool {
	if len(data) < MarkerSize || len(mask) == 0 {
		return false
	}
	for i := 0; i < MarkerSize; i++ {
		if data[i]^mask[i%len(mask)] != Marker[i] {
			return false
		}
	}
	return true
}

// DecodeVersion identifies the format of data. The legacy predicate runs
// first; when it reports true no mask is tried. Otherwise the version table
// is checked in order and Unknown is returned if nothing matches. Errors from
// the predicate are returned unchanged.
func (c *Codec) DecodeVersion(data []byte) (Version, error) {
	if c.isLegacy != nil {
		legacy, err := c.isLegacy(data)
		if err != nil {
			return Unknown, err
		}
		if legacy {
			return Legacy, nil
		}
	}
	for _, info := range versions {
		if unmasks(data, info.mask) {
			return info.version, nil
		}
	}
	return Unknown, nil
}

// ParseVersion returns the header timestamp and the detected version. The
// timestamp is 0 when no version was identified or fewer than 8 timestamp
// bytes follow the marker; a short header is not an error.
func (c *Codec) ParseVersion(data []byte) (float64, Version, error) {
	v, err := c.DecodeVersion(data)
	if err != nil {
		return 0, Unknown, err
	}
	var ts float64
	if v != Unknown && len(data) >= HeaderSize {
		ts = math.Float64frombits(binary.NativeEndian.Uint64(data[MarkerSize:HeaderSize]))
	}
	return ts, v, nil
}

// Timestamp returns only the header timestamp of data.
func (c *Codec) Timestamp(data []byte) (float64, error) {
	ts, _, err := c.ParseVersion(data)
	return ts, err
}
