// Package framkalla wires the render pipeline, caches, scheduler and
// thumbnail service into a single service.
package framkalla

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/cache"
	"github.com/tstromberg/framkalla/pkg/develop"
	"github.com/tstromberg/framkalla/pkg/schedule"
	"github.com/tstromberg/framkalla/pkg/thumbnail"
)

// Config holds configuration for framkalla.
type Config struct {
	InDirs []string `yaml:"in"`
	OutDir string   `yaml:"out"`
	// ThumbDir holds generated thumbnails. Empty keeps them in memory only.
	ThumbDir string `yaml:"thumbnails_dir"`
	// Preset is a recipe file applied to every asset instead of its sidecar.
	Preset string `yaml:"preset"`

	Decoders   int `yaml:"decoder_cache"`
	Rasters    int `yaml:"raster_cache"`
	Thumbnails int `yaml:"thumbnail_cache"`
	Workers    int `yaml:"workers"`

	Quality     int    `yaml:"quality"`
	MaxDim      int    `yaml:"max_dimension"`
	PreviewTier string `yaml:"preview_tier"`

	// Exiftool enables RAW decoding, camera metadata and export tagging.
	Exiftool bool `yaml:"exiftool"`
	// CopyOriginals copies each exported original and its recipe next to the export.
	CopyOriginals bool `yaml:"copy_originals"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Decoders:    cache.DefaultDecoders,
		Rasters:     cache.DefaultRasters,
		Thumbnails:  thumbnail.DefaultCapacity,
		Workers:     schedule.DefaultWorkers,
		Quality:     90,
		PreviewTier: develop.Full.String(),
		Exiftool:    true,
	}
}

// LoadConfig reads a YAML config file. Fields it does not set keep their defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if err := yaml.Unmarshal(bs, c); err != nil {
		return nil, fmt.Errorf("yaml %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	klog.V(1).Infof("loaded config %s: %+v", path, *c)
	return c, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality %d out of range 1-100", c.Quality)
	}
	if c.MaxDim < 0 {
		return fmt.Errorf("%w: %d", develop.ErrInvalidDimension, c.MaxDim)
	}
	if _, err := develop.ParseTier(c.PreviewTier); err != nil {
		return err
	}
	return nil
}
