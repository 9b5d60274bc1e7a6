package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Zlib compresses with the zlib (RFC 1950) format. The stream carries an
// Adler-32 trailer, so corrupt or foreign input is rejected on read.
type Zlib struct {
	// Level is a zlib compression level; zero means zlib.DefaultCompression.
	Level int
}

// Compress returns the zlib stream for data.
func (z Zlib) Compress(data []byte) ([]byte, error) {
	level := z.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream.
func (Zlib) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Name returns "zlib".
func (Zlib) Name() string { return "zlib" }
