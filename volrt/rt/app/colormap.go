package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"

	"github.com/gekko3d/soilvol/volrt/rt/loader"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// BuiltinColorMap is a 256x1 black-to-white ramp, used when no colour map
// location is configured.
func BuiltinColorMap() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 256, 1))
	for x := 0; x < 256; x++ {
		i := x * 4
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(x), uint8(x), uint8(x), 255
	}
	return img
}

// DecodeColorMap decodes a PNG or WebP image into tightly packed RGBA.
func DecodeColorMap(data []byte) (*image.RGBA, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode colour map: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode colour map: empty %s image", format)
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}

func fetchColorMap(ctx context.Context, fetcher loader.Fetcher, location string) (*image.RGBA, error) {
	if location == "" {
		return BuiltinColorMap(), nil
	}
	data, err := fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, &loader.LoadError{Kind: loader.KindNetwork, URL: location, Err: err}
	}
	img, err := DecodeColorMap(data)
	if err != nil {
		return nil, &loader.LoadError{Kind: loader.KindDecode, URL: location, Err: err}
	}
	return img, nil
}
