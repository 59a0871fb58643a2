package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

const (
	// FrameMagic is the zstd skippable-frame magic. The low 4 bits of the
	// stored value are variant bits and are masked off before comparison.
	FrameMagic   uint32 = 0x184D2A50
	frameMagicMask      = 0xFFFFFFF0

	headerSize = 8

	// DefaultMaxSamples caps width*height*depth so a hostile header cannot
	// make the decoder allocate unbounded memory.
	DefaultMaxSamples = 1 << 31
)

var (
	ErrBadMagic         = errors.New("codec: bad magic")
	ErrBadMetadata      = errors.New("codec: bad metadata")
	ErrDecompressFailed = errors.New("codec: decompression failed")
	ErrSizeMismatch     = errors.New("codec: size mismatch")
)

// Metadata is the JSON block stored in the container header.
type Metadata struct {
	Width  int
	Height int
	Depth  int

	// Extra holds every metadata key other than the grid dimensions.
	Extra map[string]any
}

// SampleCount returns width*height*depth.
func (m Metadata) SampleCount() int {
	return m.Width * m.Height * m.Depth
}

// Volume is a decoded scalar grid, one byte per sample, x-fastest.
type Volume struct {
	Width   int
	Height  int
	Depth   int
	Samples []byte
}

// Size returns the grid dimensions.
func (v *Volume) Size() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Decompressor is satisfied by *zstd.Decoder.
type Decompressor interface {
	DecodeAll(input, dst []byte) ([]byte, error)
}

// Codec decodes volume containers with a reusable decompression engine.
type Codec struct {
	dec        Decompressor
	MaxSamples int
}

// New returns a codec backed by the given decompressor.
func New(dec Decompressor) *Codec {
	return &Codec{dec: dec, MaxSamples: DefaultMaxSamples}
}

// NewZstdDecoder prepares the streaming decompression engine used by Decode.
// It is safe for concurrent DecodeAll calls. DecodeAll never writes past the
// capacity of its destination, which Decode sizes to the declared grid.
func NewZstdDecoder() (*zstd.Decoder, error) {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecodeAllCapLimit(true),
		zstd.WithDecoderMaxMemory(DefaultMaxSamples),
	)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to create zstd decoder: %w", err)
	}
	return dec, nil
}

// Decode parses a container with a throwaway zstd decoder.
func Decode(data []byte) (*Volume, error) {
	dec, err := NewZstdDecoder()
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return New(dec).Decode(data)
}

// Decode parses the container header, decompresses the payload and checks it
// against the grid dimensions.
func (c *Codec) Decode(data []byte) (*Volume, error) {
	meta, payloadOffset, err := c.readHeader(data)
	if err != nil {
		return nil, err
	}

	expected := meta.SampleCount()
	samples, err := c.dec.DecodeAll(data[payloadOffset:], make([]byte, 0, expected))
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
		return nil, fmt.Errorf("%w: metadata describes %dx%dx%d = %d samples, payload is larger",
			ErrSizeMismatch, meta.Width, meta.Height, meta.Depth, expected)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	if len(samples) != expected {
		return nil, fmt.Errorf("%w: metadata describes %dx%dx%d = %d samples, payload has %d",
			ErrSizeMismatch, meta.Width, meta.Height, meta.Depth, expected, len(samples))
	}

	return &Volume{
		Width:   meta.Width,
		Height:  meta.Height,
		Depth:   meta.Depth,
		Samples: samples,
	}, nil
}

// ReadMetadata parses only the header. The payload is not touched.
func ReadMetadata(data []byte) (Metadata, error) {
	meta, _, err := (&Codec{MaxSamples: DefaultMaxSamples}).readHeader(data)
	return meta, err
}

func (c *Codec) readHeader(data []byte) (Metadata, int, error) {
	if len(data) < 4 {
		return Metadata{}, 0, fmt.Errorf("%w: buffer is %d bytes", ErrBadMagic, len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic&frameMagicMask != FrameMagic {
		return Metadata{}, 0, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}

	if len(data) < headerSize {
		return Metadata{}, 0, fmt.Errorf("%w: truncated length field", ErrBadMetadata)
	}
	length := uint64(binary.LittleEndian.Uint32(data[4:8]))
	if uint64(len(data)-headerSize) < length {
		return Metadata{}, 0, fmt.Errorf("%w: metadata length %d exceeds buffer", ErrBadMetadata, length)
	}
	end := headerSize + int(length)

	meta, err := parseMetadata(data[headerSize:end])
	if err != nil {
		return Metadata{}, 0, err
	}

	limit := c.MaxSamples
	if limit <= 0 {
		limit = DefaultMaxSamples
	}
	w, h, d, n := uint64(meta.Width), uint64(meta.Height), uint64(meta.Depth), uint64(limit)
	if w > n || h > n || d > n || w*h > n || w*h*d > n {
		return Metadata{}, 0, fmt.Errorf("%w: %dx%dx%d exceeds %d samples",
			ErrBadMetadata, meta.Width, meta.Height, meta.Depth, limit)
	}
	return meta, end, nil
}

func parseMetadata(raw []byte) (Metadata, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}

	meta := Metadata{Extra: make(map[string]any)}
	dims := map[string]*int{"width": &meta.Width, "height": &meta.Height, "depth": &meta.Depth}
	for key, value := range fields {
		dst, ok := dims[key]
		if !ok {
			meta.Extra[key] = value
			continue
		}
		n, ok := value.(float64)
		if !ok || n != float64(int(n)) {
			return Metadata{}, fmt.Errorf("%w: %s must be an integer, got %v", ErrBadMetadata, key, value)
		}
		*dst = int(n)
	}
	for _, key := range []string{"width", "height", "depth"} {
		if *dims[key] <= 0 {
			return Metadata{}, fmt.Errorf("%w: %s must be positive", ErrBadMetadata, key)
		}
	}
	return meta, nil
}
