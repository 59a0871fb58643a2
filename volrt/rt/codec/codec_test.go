package codec

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDecompressor struct {
	calls int
	inner Decompressor
}

func (c *countingDecompressor) DecodeAll(input, dst []byte) ([]byte, error) {
	c.calls++
	return c.inner.DecodeAll(input, dst)
}

func newCountingCodec(t *testing.T) (*Codec, *countingDecompressor) {
	t.Helper()
	dec, err := NewZstdDecoder()
	require.NoError(t, err)
	t.Cleanup(dec.Close)
	counter := &countingDecompressor{inner: dec}
	return New(counter), counter
}

// rawContainer assembles a container by hand so tests can lie in the header.
func rawContainer(t *testing.T, magic uint32, header string, samples []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()

	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(header)))
	out = append(out, header...)
	return enc.EncodeAll(samples, out)
}

func gradient(n int) []byte {
	samples := make([]byte, n)
	for i := range samples {
		samples[i] = byte(i * 7)
	}
	return samples
}

func TestDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		w, h, d int
	}{
		{"single voxel", 1, 1, 1},
		{"cube", 4, 4, 4},
		{"anisotropic", 16, 3, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			samples := gradient(tc.w * tc.h * tc.d)
			data, err := Encode(Metadata{Width: tc.w, Height: tc.h, Depth: tc.d}, samples)
			require.NoError(t, err)

			vol, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tc.w, vol.Width)
			assert.Equal(t, tc.h, vol.Height)
			assert.Equal(t, tc.d, vol.Depth)
			assert.Equal(t, samples, vol.Samples)
		})
	}
}

func TestDecode_IgnoresVariantBits(t *testing.T) {
	samples := gradient(8)
	data, err := EncodeWith(Metadata{Width: 2, Height: 2, Depth: 2}, samples, EncodeOptions{Variant: 0x0E})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x184D2A5E), binary.LittleEndian.Uint32(data[0:4]))

	vol, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, samples, vol.Samples)
}

func TestDecode_BadMagicSkipsDecompression(t *testing.T) {
	c, counter := newCountingCodec(t)

	for _, magic := range []uint32{0, 0x184D2A40, 0x284D2A50, 0xFD2FB528} {
		data := rawContainer(t, magic, `{"width":1,"height":1,"depth":1}`, []byte{1})
		_, err := c.Decode(data)
		assert.ErrorIs(t, err, ErrBadMagic, "magic 0x%08X", magic)
	}

	_, err := c.Decode([]byte{0x50, 0x2A})
	assert.ErrorIs(t, err, ErrBadMagic)
	assert.Zero(t, counter.calls)
}

func TestDecode_BadMetadata(t *testing.T) {
	c, counter := newCountingCodec(t)

	cases := map[string][]byte{
		"malformed json":   rawContainer(t, FrameMagic, `{"width":1,`, []byte{1}),
		"missing depth":    rawContainer(t, FrameMagic, `{"width":1,"height":1}`, []byte{1}),
		"negative width":   rawContainer(t, FrameMagic, `{"width":-1,"height":1,"depth":1}`, []byte{1}),
		"fractional":       rawContainer(t, FrameMagic, `{"width":1.5,"height":1,"depth":1}`, []byte{1}),
		"string dimension": rawContainer(t, FrameMagic, `{"width":"2","height":1,"depth":1}`, []byte{1}),
		"not an object":    rawContainer(t, FrameMagic, `[1,2,3]`, []byte{1}),
		"header only":      {0x50, 0x2A, 0x4D, 0x18, 0x01},
	}

	truncated := rawContainer(t, FrameMagic, `{"width":1,"height":1,"depth":1}`, nil)
	binary.LittleEndian.PutUint32(truncated[4:8], 4096)
	cases["length past end"] = truncated

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(data)
			assert.ErrorIs(t, err, ErrBadMetadata)
		})
	}
	assert.Zero(t, counter.calls)
}

func TestDecode_RejectsOversizedGrid(t *testing.T) {
	c, counter := newCountingCodec(t)
	c.MaxSamples = 64

	data := rawContainer(t, FrameMagic, `{"width":8,"height":8,"depth":2}`, gradient(128))
	_, err := c.Decode(data)
	assert.ErrorIs(t, err, ErrBadMetadata)
	assert.Zero(t, counter.calls)
}

func TestDecode_DecompressFailed(t *testing.T) {
	header := `{"width":2,"height":2,"depth":2}`
	good := rawContainer(t, FrameMagic, header, gradient(8))

	corrupt := append([]byte(nil), good...)
	payload := 8 + len(header)
	for i := payload; i < len(corrupt); i++ {
		corrupt[i] ^= 0xA5
	}

	truncated := good[:len(good)-3]

	for name, data := range map[string][]byte{"corrupt": corrupt, "truncated": truncated} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrDecompressFailed)
		})
	}
}

func TestDecode_SizeMismatch(t *testing.T) {
	for name, n := range map[string]int{"short": 7, "long": 9, "empty": 0} {
		t.Run(name, func(t *testing.T) {
			data := rawContainer(t, FrameMagic, `{"width":2,"height":2,"depth":2}`, gradient(n))
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrSizeMismatch)
		})
	}
}

// streamedContainer compresses samples through the streaming writer, so the
// frame carries no content size.
func streamedContainer(t *testing.T, header string, samples []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], FrameMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(header)))
	buf.Write(hdr)
	buf.WriteString(header)

	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(samples)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func TestDecode_OversizedPayloadStaysBounded(t *testing.T) {
	const payloadSize = 64 << 20
	const header = `{"width":1,"height":1,"depth":1}`

	cases := map[string]func(*testing.T, string, []byte) []byte{
		"content size in frame": func(t *testing.T, h string, s []byte) []byte {
			return rawContainer(t, FrameMagic, h, s)
		},
		"streamed frame": streamedContainer,
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			data := build(t, header, make([]byte, payloadSize))
			require.Less(t, len(data), payloadSize/16)
			c, _ := newCountingCodec(t)

			runtime.GC()
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err := c.Decode(data)
			runtime.ReadMemStats(&after)

			assert.ErrorIs(t, err, ErrSizeMismatch)
			assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(payloadSize/4))
		})
	}
}

func TestReadMetadata_KeepsExtraKeys(t *testing.T) {
	data, err := Encode(Metadata{
		Width: 2, Height: 1, Depth: 1,
		Extra: map[string]any{"spacing": 0.75, "kind": "pores"},
	}, []byte{1, 2})
	require.NoError(t, err)

	meta, err := ReadMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.SampleCount())
	assert.Equal(t, "pores", meta.Extra["kind"])
	assert.InDelta(t, 0.75, meta.Extra["spacing"], 1e-9)
	assert.NotContains(t, meta.Extra, "width")
}

func TestEncode_Validation(t *testing.T) {
	_, err := Encode(Metadata{Width: 2, Height: 2, Depth: 2}, gradient(7))
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Encode(Metadata{Width: 0, Height: 2, Depth: 2}, nil)
	assert.ErrorIs(t, err, ErrBadMetadata)

	_, err = EncodeWith(Metadata{Width: 1, Height: 1, Depth: 1}, []byte{0}, EncodeOptions{Variant: 16})
	assert.Error(t, err)
}
