package cache

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/raw"
)

// DefaultDecoders is the default number of cached RAW decoders.
const DefaultDecoders = 3

// DefaultRasters is the default number of cached base rasters.
const DefaultRasters = 8

type decoderEntry struct {
	dec    *raw.Decoder
	asShot raw.WhiteBalance
}

// Decoders caches per-asset RAW decoders keyed by fingerprint. All access goes
// through With, which runs one caller at a time.
type Decoders struct {
	sem  *semaphore.Weighted
	fifo *FIFO[string, *decoderEntry]
}

// NewDecoders returns a decoder cache. m may be nil.
func NewDecoders(capacity int, m *Manager) *Decoders {
	c := &Decoders{
		sem: semaphore.NewWeighted(1),
		fifo: NewFIFO(capacity, func(fp string, _ *decoderEntry) {
			klog.V(1).Infof("dropped decoder for %s", fp)
		}),
	}
	if m != nil {
		c.fifo.Register(m, "decoders", func(e *decoderEntry) int64 { return e.dec.EstimatedBytes() })
	}
	return c
}

// With runs fn with the decoder for fingerprint, creating it on a miss. The
// as-shot white balance passed to fn is the one captured when the decoder was
// first created. No other With call runs concurrently.
func (c *Decoders) With(ctx context.Context, fingerprint string, create func() (*raw.Decoder, error), fn func(*raw.Decoder, raw.WhiteBalance) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	e, ok := c.fifo.Get(fingerprint)
	if !ok {
		d, err := create()
		if err != nil {
			return fmt.Errorf("create decoder: %w", err)
		}
		e = &decoderEntry{dec: d, asShot: d.AsShot()}
		c.fifo.Put(fingerprint, e)
		klog.V(1).Infof("created decoder for %s (as shot %+v)", fingerprint, e.asShot)
	}

	err := fn(e.dec, e.asShot)
	c.fifo.UpdateSize(fingerprint)
	return err
}

// Contains reports whether a decoder for fingerprint is cached.
func (c *Decoders) Contains(fingerprint string) bool {
	for _, k := range c.fifo.Keys() {
		if k == fingerprint {
			return true
		}
	}
	return false
}

// Len returns the number of cached decoders.
func (c *Decoders) Len() int { return c.fifo.Len() }

// Clear drops every decoder.
func (c *Decoders) Clear() { c.fifo.Clear() }

// Stats returns the counters.
func (c *Decoders) Stats() Stats { return c.fifo.Stats() }

// Rasters caches decoded, unedited base rasters of standard sources. Cached
// rasters are shared: callers must not modify them.
type Rasters struct {
	fifo *FIFO[string, *image.RGBA]
}

// NewRasters returns a raster cache. m may be nil.
func NewRasters(capacity int, m *Manager) *Rasters {
	c := &Rasters{fifo: NewFIFO[string, *image.RGBA](capacity, nil)}
	if m != nil {
		c.fifo.Register(m, "rasters", RasterBytes)
	}
	return c
}

// RasterBytes estimates the memory held by img.
func RasterBytes(img *image.RGBA) int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Pix))
}

// Get returns the base raster for fingerprint.
func (c *Rasters) Get(fingerprint string) (*image.RGBA, bool) { return c.fifo.Get(fingerprint) }

// Put stores the base raster for fingerprint.
func (c *Rasters) Put(fingerprint string, img *image.RGBA) { c.fifo.Put(fingerprint, img) }

// Len returns the number of cached rasters.
func (c *Rasters) Len() int { return c.fifo.Len() }

// Clear drops every raster.
func (c *Rasters) Clear() { c.fifo.Clear() }

// Stats returns the counters.
func (c *Rasters) Stats() Stats { return c.fifo.Stats() }
