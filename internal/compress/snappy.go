package compress

import "github.com/golang/snappy"

// Snappy uses the snappy block format. It trades ratio for speed.
type Snappy struct{}

// Compress returns the snappy block encoding of data.
func (Snappy) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress decodes a snappy block.
func (Snappy) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

// Name returns "snappy".
func (Snappy) Name() string { return "snappy" }
