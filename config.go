package soilvol

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment overrides, applied on top of the config file.
const (
	EnvAssetBase = "SOILVOL_ASSET_BASE"
	EnvShader    = "SOILVOL_SHADER"
	EnvDebug     = "SOILVOL_DEBUG"
)

// Config is the viewer configuration (~/.config/soilvol/config.yaml).
type Config struct {
	// AssetBase is prepended to the per-kind asset file names.
	AssetBase string `yaml:"asset_base"`
	// ColorMap overrides the default color map location.
	ColorMap string     `yaml:"color_map"`
	Shader   string     `yaml:"shader"`
	Kind     VolumeKind `yaml:"kind"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	ServeAddress string `yaml:"serve_address"`
	Debug        bool   `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		Shader:       "default",
		Kind:         Solids,
		Width:        1280,
		Height:       720,
		ServeAddress: "127.0.0.1:8080",
	}
}

// DefaultConfigPath returns "" when the user config dir is unknown.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "soilvol", "config.yaml")
}

// LoadConfig reads path over DefaultConfig and then applies environment
// overrides. A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: could not read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: could not parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if kind, err := ParseVolumeKind(string(cfg.Kind)); err == nil {
		cfg.Kind = kind
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAssetBase); ok {
		c.AssetBase = v
	}
	if v, ok := lookup(EnvShader); ok && v != "" {
		c.Shader = v
	}
	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDebug, err)
		}
		c.Debug = debug
	}
	return nil
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("config: window size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Shader != "default" && c.Shader != "custom" {
		return fmt.Errorf("config: unknown shader %q", c.Shader)
	}
	if _, err := ParseVolumeKind(string(c.Kind)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// VolumeURL is the asset location for the configured kind.
func (c Config) VolumeURL() string {
	return AssetURL(c.AssetBase, c.Kind)
}

// ColorMapURL falls back to the default color map next to the volumes.
func (c Config) ColorMapURL() string {
	if c.ColorMap != "" {
		return c.ColorMap
	}
	return JoinAsset(c.AssetBase, DefaultColorMapAsset)
}
