package shaders

import (
	_ "embed"
)

//go:embed default_volume.wgsl
var DefaultVolumeWGSL string

//go:embed custom_volume.wgsl
var CustomVolumeWGSL string
