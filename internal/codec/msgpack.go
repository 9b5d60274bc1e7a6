package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack is the default codec using MessagePack encoding.
type MsgPack struct{}

// Default is the codec used when none is configured.
var Default Codec = MsgPack{}

// Marshal serializes v to MessagePack bytes.
func (MsgPack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal deserializes MessagePack bytes into v and fails when bytes remain
// after the decoded value.
func (MsgPack) Unmarshal(data []byte, v any) error {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if r.Len() != 0 {
		return ErrTrailingData
	}
	return nil
}

// Name returns "msgpack".
func (MsgPack) Name() string { return "msgpack" }
