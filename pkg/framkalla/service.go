package framkalla

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/asset"
	"github.com/tstromberg/framkalla/pkg/cache"
	"github.com/tstromberg/framkalla/pkg/develop"
	"github.com/tstromberg/framkalla/pkg/graph"
	"github.com/tstromberg/framkalla/pkg/raw"
	"github.com/tstromberg/framkalla/pkg/recipe"
	"github.com/tstromberg/framkalla/pkg/schedule"
	"github.com/tstromberg/framkalla/pkg/thumbnail"
)

// Service develops assets. It is safe for concurrent use.
type Service struct {
	c *Config

	manager  *cache.Manager
	decoders *cache.Decoders
	rasters  *cache.Rasters
	pipeline *develop.Pipeline
	sched    *schedule.Scheduler
	thumbs   *thumbnail.Service
	tier     develop.Tier

	// rawET reads sensor data; metaET reads and writes tags.
	rawET  *exiftool.Exiftool
	metaET *exiftool.Exiftool

	pressure chan cache.Pressure
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a service from c. A nil c uses DefaultConfig. If exiftool is
// enabled but cannot be started, the service runs without it.
func New(c *Config) (*Service, error) {
	if c == nil {
		c = DefaultConfig()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	tier, err := develop.ParseTier(c.PreviewTier)
	if err != nil {
		return nil, err
	}

	s := &Service{c: c, tier: tier, manager: cache.NewManager(), pressure: make(chan cache.Pressure, 4)}
	if c.Exiftool {
		if et, err := raw.NewExiftool(); err != nil {
			klog.Warningf("exiftool unavailable, RAW sources disabled: %v", err)
		} else {
			s.rawET = et
		}
		if et, err := exiftool.NewExiftool(); err != nil {
			klog.Warningf("exiftool unavailable, metadata disabled: %v", err)
		} else {
			s.metaET = et
		}
	}

	s.decoders = cache.NewDecoders(c.Decoders, s.manager)
	s.rasters = cache.NewRasters(c.Rasters, s.manager)
	s.pipeline = develop.New(develop.Options{Decoders: s.decoders, Rasters: s.rasters, Exiftool: s.rawET})
	s.sched = schedule.New(c.Workers)
	s.thumbs = thumbnail.New(c.ThumbDir, s.renderThumb, c.Thumbnails, s.manager)

	ctx, stop := context.WithCancel(context.Background())
	s.stop = stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.manager.Watch(ctx, s.pressure)
	}()

	klog.Infof("framkalla ready: %d workers, %d decoders, %d rasters, %d thumbnails, preview tier %s",
		c.Workers, c.Decoders, c.Rasters, c.Thumbnails, tier)
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config { return s.c }

// Manager returns the memory-pressure manager shared by every cache.
func (s *Service) Manager() *cache.Manager { return s.manager }

// Pressure returns a channel that accepts memory-pressure events. Events are
// handled asynchronously.
func (s *Service) Pressure() chan<- cache.Pressure { return s.pressure }

// Find scans root for assets, reading camera metadata when exiftool is available.
func (s *Service) Find(root string) ([]asset.Asset, error) {
	return asset.Find(root, s.metaET)
}

func source(a asset.Asset) develop.Source {
	return develop.Source{Path: a.Path, Fingerprint: a.Fingerprint(), Raw: a.IsRaw()}
}

// Submit schedules a render of a with r and returns immediately. A newer
// submission for the same asset replaces it while it is still pending.
func (s *Service) Submit(a asset.Asset, r recipe.Recipe, maxDim int, tier develop.Tier, p schedule.Priority) *schedule.Ticket {
	return s.submit(a.Path, a, r, maxDim, tier, p)
}

// submit schedules under key; previews, thumbnails and exports of one asset
// use different keys so they never supersede each other.
func (s *Service) submit(key string, a asset.Asset, r recipe.Recipe, maxDim int, tier develop.Tier, p schedule.Priority) *schedule.Ticket {
	src := source(a)
	return s.sched.Submit(schedule.Request{
		Asset:    key,
		Priority: p,
		Run: func(ctx context.Context) (*image.RGBA, error) {
			return s.pipeline.Render(ctx, src, r, maxDim, tier)
		},
	})
}

// Preview renders a for display at urgent priority. Canceling ctx cancels the request.
func (s *Service) Preview(ctx context.Context, a asset.Asset, r recipe.Recipe, maxDim int, tier develop.Tier) (*image.RGBA, error) {
	return wait(ctx, s.Submit(a, r, maxDim, tier, schedule.Urgent))
}

// Prefetch warms the caches for a at the given priority, typically Low or Normal.
func (s *Service) Prefetch(a asset.Asset, r recipe.Recipe, maxDim int, p schedule.Priority) *schedule.Ticket {
	return s.Submit(a, r, maxDim, s.tier, p)
}

func wait(ctx context.Context, t *schedule.Ticket) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		t.Cancel()
		return nil, err
	}
	img, err := t.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		t.Cancel()
		return nil, ctx.Err()
	}
	return img, err
}

// Thumbnail returns a thumbnail of a developed with its sidecar recipe.
func (s *Service) Thumbnail(ctx context.Context, a asset.Asset, o thumbnail.Options) (*image.RGBA, thumbnail.Meta, error) {
	return s.thumbs.Get(ctx, a, o)
}

func (s *Service) renderThumb(ctx context.Context, a asset.Asset, maxDim int) (*image.RGBA, error) {
	r, err := recipe.LoadSidecar(a.Path)
	if err != nil {
		klog.Warningf("recipe for %s: %v", a.Path, err)
		r = recipe.New()
	}
	return wait(ctx, s.submit(fmt.Sprintf("thumb:%d:%s", maxDim, a.Path), a, r, maxDim, develop.Full, schedule.High))
}

// RenderNodeGraph composites g over base.
func (s *Service) RenderNodeGraph(ctx context.Context, g *graph.Graph, base *image.RGBA) (*image.RGBA, error) {
	return s.pipeline.RenderGraph(ctx, g, base)
}

// Evict drops the oldest fraction of cached entries across every cache.
func (s *Service) Evict(fraction float64) int {
	return s.manager.Evict(fraction)
}

// Clear flushes every cache.
func (s *Service) Clear() {
	s.manager.Clear()
}

// Close stops the scheduler and releases exiftool.
func (s *Service) Close() error {
	s.sched.Close()
	s.stop()
	s.wg.Wait()
	s.manager.Clear()

	var errs []error
	for _, et := range []*exiftool.Exiftool{s.rawET, s.metaET} {
		if et == nil {
			continue
		}
		if err := et.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close exiftool: %w", err)
	}
	return nil
}
