package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gekko3d/soilvol/volrt/rt/codec"
	"github.com/gekko3d/soilvol/volrt/rt/loader"
	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v3"
)

type packOptions struct {
	Width, Height, Depth int
	Level                string
	Variant              int
	VoxelSize            float64
}

func packCommand() *cli.Command {
	var opts packOptions
	return &cli.Command{
		Name:      "pack",
		Usage:     "wrap a raw 8-bit x-fastest grid into a volume container",
		ArgsUsage: "RAW OUT",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Usage: "samples along x", Destination: &opts.Width, Required: true},
			&cli.IntFlag{Name: "height", Usage: "samples along y", Destination: &opts.Height, Required: true},
			&cli.IntFlag{Name: "depth", Usage: "samples along z", Destination: &opts.Depth, Required: true},
			&cli.StringFlag{Name: "level", Usage: "zstd level: fastest, default, better or best", Value: "default", Destination: &opts.Level},
			&cli.IntFlag{Name: "variant", Usage: "magic variant bits (0-15)", Destination: &opts.Variant},
			&cli.FloatFlag{Name: "voxel-size", Usage: "voxel edge length stored as metadata", Destination: &opts.VoxelSize},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return errors.New("pack: expected RAW and OUT arguments")
			}
			_, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			out, err := packVolume(raw, opts)
			if err != nil {
				return err
			}
			dst := cmd.Args().Get(1)
			if err := os.WriteFile(dst, out, 0o644); err != nil {
				return err
			}
			logger.Infof("wrote %s: %s -> %s", dst, loader.FormatSize(int64(len(raw))), loader.FormatSize(int64(len(out))))
			return nil
		},
	}
}

func packVolume(raw []byte, opts packOptions) ([]byte, error) {
	ok, level := zstd.EncoderLevelFromString(opts.Level)
	if !ok {
		return nil, fmt.Errorf("pack: unknown level %q", opts.Level)
	}
	if opts.Variant < 0 || opts.Variant > 0x0F {
		return nil, fmt.Errorf("pack: variant %d out of range", opts.Variant)
	}
	meta := codec.Metadata{Width: opts.Width, Height: opts.Height, Depth: opts.Depth}
	if opts.VoxelSize > 0 {
		meta.Extra = map[string]any{"voxel_size": opts.VoxelSize}
	}
	return codec.EncodeWith(meta, raw, codec.EncodeOptions{
		Level:   level,
		Variant: uint8(opts.Variant),
	})
}
