package soilvol

import (
	"fmt"
	"strings"
)

// VolumeKind selects which scan of a sample is shown and which color map it
// is paired with.
type VolumeKind string

const (
	Solids VolumeKind = "SOLIDS"
	Pores  VolumeKind = "PORES"
)

// Asset file names for the bundled demo sample.
const (
	SolidsAsset = "g1r03_010-020_0750_solids.raw.zst"
	PoresAsset  = "g1r03_010-020_0750_pores.raw.zst"

	DefaultColorMapAsset = "cm-default.webp"
)

// ParseVolumeKind accepts "solids"/"pores" in any case.
func ParseVolumeKind(s string) (VolumeKind, error) {
	switch VolumeKind(strings.ToUpper(strings.TrimSpace(s))) {
	case Solids:
		return Solids, nil
	case Pores:
		return Pores, nil
	}
	return "", fmt.Errorf("soilvol: unknown volume kind %q", s)
}

// AssetName returns the fixed file name for a kind.
func (k VolumeKind) AssetName() string {
	if k == Pores {
		return PoresAsset
	}
	return SolidsAsset
}

// AssetURL joins the configured base path with the kind's file name. The base
// may be a URL, an absolute path or empty (current directory).
func AssetURL(base string, kind VolumeKind) string {
	return JoinAsset(base, kind.AssetName())
}

// JoinAsset joins base and name with exactly one slash.
func JoinAsset(base, name string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return name
	}
	return base + "/" + strings.TrimLeft(name, "/")
}
