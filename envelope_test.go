package envelope_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/AndrewDonelson/envelope"
	"github.com/AndrewDonelson/envelope/internal/codec"
	"github.com/AndrewDonelson/envelope/internal/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	ID    int      `msgpack:"id" json:"id"`
	Name  string   `msgpack:"name" json:"name"`
	Tags  []string `msgpack:"tags" json:"tags"`
	Score float64  `msgpack:"score" json:"score"`
}

func isOldData(data []byte) (bool, error) {
	return bytes.HasPrefix(data, []byte("OLDDATA")), nil
}

// ── Header ───────────────────────────────────────────────────────────────────

func TestEncodeHeader_Layout(t *testing.T) {
	for _, ts := range []float64{0, 1, 1700000000.0, 1700000000.125, -5.5, math.MaxFloat64} {
		h := envelope.EncodeHeader(ts)
		require.Len(t, h, envelope.HeaderSize)
		assert.Equal(t, 15, len(h))

		mask := []byte("V1")
		unmasked := make([]byte, envelope.MarkerSize)
		for i := range unmasked {
			unmasked[i] = h[i] ^ mask[i%len(mask)]
		}
		assert.Equal(t, []byte("version"), unmasked)
		assert.Equal(t, ts, math.Float64frombits(binary.NativeEndian.Uint64(h[7:15])))
	}
}

func TestEncodeHeader_Deterministic(t *testing.T) {
	assert.Equal(t, envelope.EncodeHeader(42.5), envelope.EncodeHeader(42.5))
	assert.Equal(t, envelope.EncodeHeader(1)[:7], envelope.EncodeHeader(2)[:7])
}

func TestDecodeVersion_Current(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	v, err := c.DecodeVersion(envelope.EncodeHeader(1))
	require.NoError(t, err)
	assert.Equal(t, envelope.Current, v)
	assert.Equal(t, envelope.V1, v)
}

func TestDecodeVersion_LegacyTakesPrecedence(t *testing.T) {
	calls := 0
	c := envelope.NewCodec(envelope.Options{
		IsLegacy: func([]byte) (bool, error) {
			calls++
			return true, nil
		},
	})
	// A perfectly valid current-version header is still reported as legacy.
	v, err := c.DecodeVersion(envelope.EncodeHeader(1))
	require.NoError(t, err)
	assert.Equal(t, envelope.Legacy, v)
	assert.Equal(t, 1, calls)
}

func TestDecodeVersion_Unknown(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{IsLegacy: isOldData})
	v, err := c.DecodeVersion([]byte("random bytes that are not an envelope"))
	require.NoError(t, err)
	assert.Equal(t, envelope.Unknown, v)
}

func TestDecodeVersion_ShortBuffers(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	h := envelope.EncodeHeader(9)
	for n := 0; n < envelope.MarkerSize; n++ {
		v, err := c.DecodeVersion(h[:n])
		require.NoError(t, err)
		assert.Equal(t, envelope.Unknown, v, "len=%d", n)
	}
}

func TestDecodeVersion_PredicateError(t *testing.T) {
	boom := errors.New("predicate exploded")
	c := envelope.NewCodec(envelope.Options{
		IsLegacy: func([]byte) (bool, error) { return false, boom },
	})
	_, err := c.DecodeVersion(envelope.EncodeHeader(1))
	assert.ErrorIs(t, err, boom)

	_, err = c.Deserialize(envelope.EncodeHeader(1), false, new(int))
	assert.ErrorIs(t, err, boom)
}

func TestParseVersion(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})

	ts, v, err := c.ParseVersion(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ts)
	assert.Equal(t, envelope.Unknown, v)

	ts, v, err = c.ParseVersion([]byte{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, ts)
	assert.Equal(t, envelope.Unknown, v)

	// A bare marker with no timestamp bytes is recognised with a zero timestamp.
	ts, v, err = c.ParseVersion(envelope.EncodeHeader(123)[:7])
	require.NoError(t, err)
	assert.Equal(t, 0.0, ts)
	assert.Equal(t, envelope.Current, v)

	// A partial timestamp is also lenient.
	ts, v, err = c.ParseVersion(envelope.EncodeHeader(123)[:12])
	require.NoError(t, err)
	assert.Equal(t, 0.0, ts)
	assert.Equal(t, envelope.Current, v)

	ts, v, err = c.ParseVersion(envelope.EncodeHeader(1700000000.5))
	require.NoError(t, err)
	assert.Equal(t, 1700000000.5, ts)
	assert.Equal(t, envelope.Current, v)

	ts, err = c.Timestamp(envelope.EncodeHeader(77))
	require.NoError(t, err)
	assert.Equal(t, 77.0, ts)
}

func TestParseVersion_UnknownHasZeroTimestamp(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	ts, v, err := c.ParseVersion(bytes.Repeat([]byte{0xAB}, 32))
	require.NoError(t, err)
	assert.Equal(t, 0.0, ts)
	assert.Equal(t, envelope.Unknown, v)
}

// ── Round trip ───────────────────────────────────────────────────────────────

func codecs() map[string]*envelope.Codec {
	return map[string]*envelope.Codec{
		"msgpack+zlib":   envelope.NewCodec(envelope.Options{}),
		"json+zstd":      envelope.NewCodec(envelope.Options{Serializer: codec.JSON{}, Compressor: compress.Zstd{}}),
		"msgpack+snappy": envelope.NewCodec(envelope.Options{Compressor: compress.Snappy{}}),
	}
}

func TestRoundTrip_Struct(t *testing.T) {
	in := profile{ID: 7, Name: "ada", Tags: []string{"a", "b"}, Score: 99.5}
	for name, c := range codecs() {
		for _, compressFlag := range []bool{false, true} {
			for _, ts := range []float64{0, 1700000000.0, 1700000000.123456} {
				buf, err := c.Serialize(ts, in, compressFlag)
				require.NoError(t, err, name)

				var out profile
				d, err := c.Deserialize(buf, compressFlag, &out)
				require.NoError(t, err, name)
				assert.Equal(t, in, out, name)
				assert.Equal(t, ts, d.Timestamp, name)
				assert.Equal(t, envelope.Current, d.Version, name)
			}
		}
	}
}

func TestRoundTrip_NilAndEmpty(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	for _, compressFlag := range []bool{false, true} {
		buf, err := c.Serialize(0, nil, compressFlag)
		require.NoError(t, err)
		var out any = "sentinel"
		_, err = c.Deserialize(buf, compressFlag, &out)
		require.NoError(t, err)
		assert.Nil(t, out)

		buf, err = c.Serialize(1, "", compressFlag)
		require.NoError(t, err)
		s, err := envelope.Decode[string](c, buf, compressFlag)
		require.NoError(t, err)
		assert.Equal(t, "", s.Value)

		buf, err = c.Serialize(1, map[string]int{}, compressFlag)
		require.NoError(t, err)
		m, err := envelope.Decode[map[string]int](c, buf, compressFlag)
		require.NoError(t, err)
		assert.Empty(t, m.Value)
	}
}

func TestScenario_MapValue(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	buf, err := c.Serialize(1700000000.0, map[string]int{"a": 1}, false)
	require.NoError(t, err)
	assert.Equal(t, envelope.EncodeHeader(1700000000.0), buf[:envelope.HeaderSize])

	got, err := envelope.Decode[map[string]int](c, buf, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, got.Value)
	assert.Equal(t, envelope.Current, got.Version)
	assert.Equal(t, 1700000000.0, got.Timestamp)
}

func TestSerialize_CompressedPayloadIsSmaller(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	big := bytes.Repeat([]byte("abcdefgh"), 1024)
	plain, err := c.Serialize(0, big, false)
	require.NoError(t, err)
	packed, err := c.Serialize(0, big, true)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(plain))
}

// ── Failures ─────────────────────────────────────────────────────────────────

func TestDeserialize_Unknown(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{IsLegacy: isOldData})
	var out any
	_, err := c.Deserialize([]byte("\x01\x02\x03 not an envelope at all"), false, &out)
	require.ErrorIs(t, err, envelope.ErrUnsupportedVersion)

	var uv *envelope.UnsupportedVersionError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, envelope.Unknown, uv.Version)
	assert.Contains(t, err.Error(), "unknown")
}

func TestDeserialize_EmptyBuffer(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	_, err := envelope.Decode[int](c, nil, false)
	assert.ErrorIs(t, err, envelope.ErrUnsupportedVersion)
}

func TestDeserialize_HeaderOnly(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	_, err := envelope.Decode[int](c, envelope.EncodeHeader(1), false)
	assert.ErrorIs(t, err, envelope.ErrDeserializationFailed)
}

func TestDeserialize_CompressionMismatch(t *testing.T) {
	for name, c := range codecs() {
		in := map[string]int{"a": 1, "b": 2}

		packed, err := c.Serialize(1, in, true)
		require.NoError(t, err)
		_, err = envelope.Decode[map[string]int](c, packed, false)
		assert.True(t, errors.Is(err, envelope.ErrDeserializationFailed) || errors.Is(err, envelope.ErrDecompressionFailed), "%s: %v", name, err)

		var anyOut any
		_, err = c.Deserialize(packed, false, &anyOut)
		assert.Error(t, err, name)

		plain, err := c.Serialize(1, in, false)
		require.NoError(t, err)
		_, err = envelope.Decode[map[string]int](c, plain, true)
		assert.True(t, errors.Is(err, envelope.ErrDeserializationFailed) || errors.Is(err, envelope.ErrDecompressionFailed), "%s: %v", name, err)
	}
}

func TestDeserialize_ZlibMismatchIsDecompressionError(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	plain, err := c.Serialize(1, map[string]int{"a": 1}, false)
	require.NoError(t, err)
	_, err = envelope.Decode[map[string]int](c, plain, true)
	assert.ErrorIs(t, err, envelope.ErrDecompressionFailed)
}

type unmarshalable struct {
	Ch chan int
}

func TestSerialize_Failure(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{Serializer: codec.JSON{}})
	_, err := c.Serialize(0, unmarshalable{Ch: make(chan int)}, false)
	assert.ErrorIs(t, err, envelope.ErrSerializationFailed)
}

type failingCompressor struct{}

func (failingCompressor) Compress([]byte) ([]byte, error)   { return nil, errors.New("nope") }
func (failingCompressor) Decompress([]byte) ([]byte, error) { return nil, errors.New("nope") }
func (failingCompressor) Name() string                      { return "failing" }

func TestSerialize_CompressionFailure(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{Compressor: failingCompressor{}})
	_, err := c.Serialize(0, 1, true)
	assert.ErrorIs(t, err, envelope.ErrCompressionFailed)

	// Without the flag the compressor is never consulted.
	_, err = c.Serialize(0, 1, false)
	assert.NoError(t, err)
}

// ── Legacy ───────────────────────────────────────────────────────────────────

func TestLegacy_NotRegistered(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{IsLegacy: isOldData})
	_, err := envelope.Decode[string](c, []byte("OLDDATA payload"), false)
	require.ErrorIs(t, err, envelope.ErrUnsupportedVersion)
	var uv *envelope.UnsupportedVersionError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, envelope.Legacy, uv.Version)
}

func TestLegacy_Scenario(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{IsLegacy: isOldData})

	var gotData []byte
	var gotCompress bool
	c.RegisterLegacyDeserializer(func(data []byte, compress bool, ts float64, dest any) error {
		gotData = data
		gotCompress = compress
		*(dest.(*string)) = string(data[len("OLDDATA"):])
		return nil
	})

	buf := []byte("OLDDATA...")
	got, err := envelope.Decode[string](c, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "...", got.Value)
	assert.Equal(t, envelope.Legacy, got.Version)
	assert.Equal(t, buf, gotData)
	assert.False(t, gotCompress)
}

func TestLegacy_ViaOptions(t *testing.T) {
	legacyErr := errors.New("legacy decode failed")
	c := envelope.NewCodec(envelope.Options{
		IsLegacy: isOldData,
		Legacy: func([]byte, bool, float64, any) error {
			return legacyErr
		},
	})
	_, err := envelope.Decode[string](c, []byte("OLDDATA"), true)
	assert.ErrorIs(t, err, legacyErr)

	// Current envelopes are unaffected by the legacy path.
	buf, err := c.Serialize(3, "fresh", true)
	require.NoError(t, err)
	got, err := envelope.Decode[string](c, buf, true)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Value)

	c.RegisterLegacyDeserializer(nil)
	_, err = envelope.Decode[string](c, []byte("OLDDATA"), true)
	assert.ErrorIs(t, err, envelope.ErrUnsupportedVersion)
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "unknown", envelope.Unknown.String())
	assert.Equal(t, "V1", envelope.V1.String())
	assert.Equal(t, "legacy", envelope.Legacy.String())
	assert.Equal(t, "Version(9)", envelope.Version(9).String())
}

func TestCodec_Concurrent(t *testing.T) {
	c := envelope.NewCodec(envelope.Options{})
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				in := profile{ID: g*1000 + i, Name: "n"}
				buf, err := c.Serialize(float64(i), in, i%2 == 0)
				if !assert.NoError(t, err) {
					return
				}
				got, err := envelope.Decode[profile](c, buf, i%2 == 0)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, in.ID, got.Value.ID)
			}
		}(g)
	}
	wg.Wait()
}
