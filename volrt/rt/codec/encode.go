package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// EncodeOptions tunes Encode. The zero value uses the default zstd level and
// variant 0.
type EncodeOptions struct {
	Level   zstd.EncoderLevel
	Variant uint8
}

// Encode builds a container from metadata and raw samples.
func Encode(meta Metadata, samples []byte) ([]byte, error) {
	return EncodeWith(meta, samples, EncodeOptions{})
}

// EncodeWith is Encode with explicit compression options.
func EncodeWith(meta Metadata, samples []byte, opts EncodeOptions) ([]byte, error) {
	if meta.Width <= 0 || meta.Height <= 0 || meta.Depth <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %dx%dx%d",
			ErrBadMetadata, meta.Width, meta.Height, meta.Depth)
	}
	if len(samples) != meta.SampleCount() {
		return nil, fmt.Errorf("%w: %d samples for a %dx%dx%d grid",
			ErrSizeMismatch, len(samples), meta.Width, meta.Height, meta.Depth)
	}
	if opts.Variant > 0x0F {
		return nil, fmt.Errorf("codec: variant %d does not fit in 4 bits", opts.Variant)
	}

	fields := make(map[string]any, len(meta.Extra)+3)
	for k, v := range meta.Extra {
		fields[k] = v
	}
	fields["width"] = meta.Width
	fields["height"] = meta.Height
	fields["depth"] = meta.Depth
	header, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to marshal metadata: %w", err)
	}

	level := opts.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("codec: failed to create zstd encoder: %w", err)
	}
	defer enc.Close()

	out := make([]byte, headerSize, headerSize+len(header)+len(samples)/4)
	binary.LittleEndian.PutUint32(out[0:4], FrameMagic|uint32(opts.Variant))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(header)))
	out = append(out, header...)
	return enc.EncodeAll(samples, out), nil
}
