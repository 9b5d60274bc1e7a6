// Package compress provides the lossless compression transform applied to
// envelope payloads. Every Decompress must fail on input it did not produce
// rather than return truncated or garbage output.
package compress

// Compressor compresses and decompresses payload bytes.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	// Name returns the identifier used in configuration and diagnostics.
	Name() string
}

// Default is the compressor used when none is configured. Zlib keeps the
// payload readable by any zlib implementation.
var Default Compressor = Zlib{}

// ByName returns the compressor registered under name, or nil.
func ByName(name string) Compressor {
	switch name {
	case "", "zlib":
		return Zlib{}
	case "zstd":
		return Zstd{}
	case "snappy":
		return Snappy{}
	}
	return nil
}
