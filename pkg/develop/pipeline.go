// Package develop renders a source image and an edit recipe into a raster.
package develop

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/cache"
	"github.com/tstromberg/framkalla/pkg/raw"
	"github.com/tstromberg/framkalla/pkg/recipe"
)

// Tier selects the quality/speed tradeoff of a render.
type Tier int

const (
	// Fast skips the expensive operators, for interactive dragging.
	Fast Tier = iota
	// Full runs every operator.
	Full
	// Export runs every operator, at any size including native.
	Export
)

func (t Tier) String() string {
	switch t {
	case Fast:
		return "fast"
	case Full:
		return "full"
	case Export:
		return "export"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range []Tier{Fast, Full, Export} {
		if t.String() == s {
			return t, nil
		}
	}
	return Full, fmt.Errorf("unknown tier %q", s)
}

// Source describes the image to render.
type Source struct {
	Path string
	// Fingerprint identifies the content; it keys the caches. Empty disables caching.
	Fingerprint string
	Raw         bool

	// Image and Sensor supply in-memory data instead of reading Path.
	Image  image.Image
	Sensor raw.Sensor

	// Profile overrides the camera profile picked for RAW sources.
	Profile string
}

// Options configure a Pipeline.
type Options struct {
	Decoders *cache.Decoders
	Rasters  *cache.Rasters
	// Exiftool reads RAW files; it must extract binary metadata. Nil restricts
	// RAW rendering to sources that carry a Sensor.
	Exiftool *exiftool.Exiftool
}

// Pipeline renders sources. It is safe for concurrent use and retains no recipe.
type Pipeline struct {
	decoders *cache.Decoders
	rasters  *cache.Rasters
	et       *exiftool.Exiftool
}

// New returns a pipeline. Missing caches are created with default sizes.
func New(o Options) *Pipeline {
	p := &Pipeline{decoders: o.Decoders, rasters: o.Rasters, et: o.Exiftool}
	if p.decoders == nil {
		p.decoders = cache.NewDecoders(cache.DefaultDecoders, nil)
	}
	if p.rasters == nil {
		p.rasters = cache.NewRasters(cache.DefaultRasters, nil)
	}
	return p
}

// Render develops src with r. maxDim bounds the larger output dimension; 0
// means native size. Images are never upscaled.
func (p *Pipeline) Render(ctx context.Context, src Source, r recipe.Recipe, maxDim int, tier Tier) (*image.RGBA, error) {
	if maxDim < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, maxDim)
	}
	if tier == Fast {
		r = r.WithoutExpensive()
	}
	start := time.Now()

	var img *image.RGBA
	var err error
	stages := standardChain
	if src.Raw {
		img, err = p.decodeRaw(ctx, src, r)
		stages = chain
		r = rawRemainder(r)
	} else {
		img, err = p.loadStandard(ctx, src)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DecodeError{Path: src.Path, Err: err}
	}

	img = downscale(img, maxDim)
	out, err := apply(ctx, img, r, stages)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("rendered %s (%s, raw=%v) to %v in %s", src.Path, tier, src.Raw, out.Bounds().Size(), time.Since(start))
	return out, nil
}

// rawRemainder returns the part of r that is not applied at decode time.
func rawRemainder(r recipe.Recipe) recipe.Recipe {
	c := r.Clone()
	c.Light.Exposure = 0
	c.Light.Shadows = math.Min(0, r.Light.Shadows)
	return c
}

func (p *Pipeline) decodeRaw(ctx context.Context, src Source, r recipe.Recipe) (*image.RGBA, error) {
	create := func() (*raw.Decoder, error) {
		s := src.Sensor
		if s == nil {
			if p.et == nil {
				return nil, fmt.Errorf("no RAW reader configured for %s", src.Path)
			}
			es, err := raw.NewExifSensor(src.Path, p.et)
			if err != nil {
				return nil, err
			}
			s = es
		}
		prof, ok := raw.ProfileByID(src.Profile)
		if !ok {
			prof = raw.ProfileFor(s.Camera())
		}
		return raw.NewDecoder(s, prof)
	}

	fp := src.Fingerprint
	if fp == "" {
		fp = "path:" + src.Path
	}

	var img *image.RGBA
	err := p.decoders.With(ctx, fp, create, func(d *raw.Decoder, asShot raw.WhiteBalance) error {
		d.SetExposure(r.Light.Exposure)
		d.SetShadows(r.Light.Shadows)
		if r.WhiteBalance.IsDefault() {
			d.ResetWhiteBalance()
		} else {
			t, tint := r.WhiteBalance.Resolve(asShot.Temperature, asShot.Tint)
			d.SetWhiteBalance(raw.WhiteBalance{Temperature: t, Tint: tint})
		}
		var err error
		img, err = d.Decode(ctx)
		return err
	})
	return img, err
}

func (p *Pipeline) loadStandard(ctx context.Context, src Source) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.Fingerprint != "" {
		if img, ok := p.rasters.Get(src.Fingerprint); ok {
			return img, nil
		}
	}

	var img image.Image
	if src.Image != nil {
		img = src.Image
	} else {
		var err error
		img, err = open(src.Path)
		if err != nil {
			return nil, err
		}
	}
	base := rebase(clone.AsRGBA(img))
	if base.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}
	if src.Fingerprint != "" {
		p.rasters.Put(src.Fingerprint, base)
	}
	return base, nil
}

// downscale fits img within maxDim on its larger side.
func downscale(img *image.RGBA, maxDim int) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if maxDim == 0 || max(w, h) <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(max(w, h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	klog.V(1).Infof("downscaling %dx%d to %dx%d", w, h, nw, nh)
	return transform.Resize(img, nw, nh, transform.Lanczos)
}

// rebase moves img's origin to (0, 0) without copying.
func rebase(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	return &image.RGBA{Pix: img.Pix, Stride: img.Stride, Rect: image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy())}
}
