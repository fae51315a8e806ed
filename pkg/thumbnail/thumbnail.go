// Package thumbnail renders small previews of developed assets, keeping them
// in memory and on disk.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/asset"
	"github.com/tstromberg/framkalla/pkg/cache"
)

// ModTimeFormat is embedded in file names so edits to the source bust the cache.
var ModTimeFormat = "150405"

// DefaultCapacity is how many thumbnails are kept in memory.
const DefaultCapacity = 64

// Options size a thumbnail. Set one of X or Y; the other follows the aspect ratio.
type Options struct {
	X       int
	Y       int
	Quality int
}

// Tiny is the grid-sized thumbnail.
var Tiny = Options{Y: 180, Quality: 75}

// Presets are the sizes generated for every asset.
var Presets = map[string]Options{
	"Tiny":   Tiny,
	"Stream": {X: 640, Quality: 85},
	"View":   {X: 2048, Quality: 85},
}

func (o Options) String() string {
	if o.X != 0 {
		return fmt.Sprintf("x%d", o.X)
	}
	return fmt.Sprintf("y%d", o.Y)
}

// Meta describes a thumbnail written to disk.
type Meta struct {
	X       int
	Y       int
	RelPath string
	Path    string
}

// Renderer develops an asset so its larger side is at most maxDim pixels.
type Renderer func(ctx context.Context, a asset.Asset, maxDim int) (*image.RGBA, error)

// Service produces thumbnails through a Renderer.
type Service struct {
	outDir string
	render Renderer
	mem    *cache.FIFO[string, *image.RGBA]
}

// New returns a thumbnail service writing below outDir. An empty outDir keeps
// thumbnails in memory only. m may be nil.
func New(outDir string, render Renderer, capacity int, m *cache.Manager) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	mem := cache.NewFIFO[string, *image.RGBA](capacity, nil)
	if m != nil {
		mem.Register(m, "thumbnails", cache.RasterBytes)
	}
	return &Service{outDir: outDir, render: render, mem: mem}
}

// Len returns how many thumbnails are held in memory.
func (s *Service) Len() int { return s.mem.Len() }

// Stats returns the in-memory cache counters.
func (s *Service) Stats() cache.Stats { return s.mem.Stats() }

// RelPath returns the thumbnail location relative to the output directory:
// dir/_/name@y180_150405.jpg.
func RelPath(a asset.Asset, o Options) string {
	rel := a.RelPath
	if rel == "" {
		rel = filepath.Base(a.Path)
	}
	base := filepath.Base(rel)
	noExt := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s@%s_%s.jpg", noExt, o, a.ModTime.Format(ModTimeFormat))
	return filepath.Join(filepath.Dir(rel), "_", name)
}

// Get returns the thumbnail for a, rendering it only when neither memory nor
// disk holds a fresh copy. The returned image is shared and must not be modified.
func (s *Service) Get(ctx context.Context, a asset.Asset, o Options) (*image.RGBA, Meta, error) {
	if o.X <= 0 && o.Y <= 0 {
		return nil, Meta{}, fmt.Errorf("thumbnail needs a width or height: %+v", o)
	}
	if o.Quality == 0 {
		o.Quality = Tiny.Quality
	}
	relPath := RelPath(a, o)
	meta := Meta{RelPath: relPath}
	if s.outDir != "" {
		meta.Path = filepath.Join(s.outDir, relPath)
	}
	key := a.Fingerprint() + "@" + o.String()

	if img, ok := s.mem.Get(key); ok && s.fresh(a, meta.Path) {
		meta.X, meta.Y = img.Rect.Dx(), img.Rect.Dy()
		return img, meta, nil
	}

	if meta.Path != "" && s.fresh(a, meta.Path) {
		img, err := imgio.Open(meta.Path)
		if err == nil {
			klog.V(1).Infof("%s is fresh", meta.Path)
			rgba := clone.AsRGBA(img)
			s.mem.Put(key, rgba)
			meta.X, meta.Y = rgba.Rect.Dx(), rgba.Rect.Dy()
			return rgba, meta, nil
		}
		klog.Warningf("unable to read thumb: %v", err)
	}

	// render oversized so the resize below sets the exact edge
	src, err := s.render(ctx, a, 3*max(o.X, o.Y))
	if err != nil {
		return nil, meta, fmt.Errorf("render %s: %w", a.Path, err)
	}
	img, err := create(src, meta.Path, o)
	if err != nil {
		return nil, meta, fmt.Errorf("create thumb: %w", err)
	}
	s.mem.Put(key, img)
	meta.X, meta.Y = img.Rect.Dx(), img.Rect.Dy()
	return img, meta, nil
}

// Invalidate drops the in-memory thumbnails of a.
func (s *Service) Invalidate(a asset.Asset) {
	prefix := a.Fingerprint() + "@"
	for _, k := range s.mem.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.mem.Remove(k)
		}
	}
}

// fresh reports whether the thumbnail at path postdates the asset and its
// recipe. With no path there is no disk copy to go stale.
func (s *Service) fresh(a asset.Asset, path string) bool {
	if path == "" {
		return !a.Stale()
	}
	st, err := os.Stat(path)
	if err != nil {
		klog.V(1).Infof("updating %s: does not exist", path)
		return false
	}
	if st.Size() <= 128 {
		klog.Infof("updating %s: truncated", path)
		return false
	}
	if a.ModTime.After(st.ModTime()) {
		klog.Infof("updating %s: source newer", path)
		return false
	}
	if sc, err := os.Stat(a.Sidecar()); err == nil && sc.ModTime().After(st.ModTime()) {
		klog.Infof("updating %s: recipe newer", path)
		return false
	}
	return true
}

// create resizes src to o and, if path is set, saves it as JPEG.
func create(src *image.RGBA, path string, o Options) (*image.RGBA, error) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image %+v", src.Bounds())
	}
	x, y := o.X, o.Y
	if x == 0 {
		x = max(1, int(float64(w)*float64(y)/float64(h)))
	}
	if y == 0 {
		y = max(1, int(float64(h)*float64(x)/float64(w)))
	}
	img := transform.Resize(src, x, y, transform.Lanczos)
	if path == "" {
		return img, nil
	}

	klog.Infof("creating %dx%d thumb: %s", x, y, path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	if err := imgio.Save(path, img, imgio.JPEGEncoder(o.Quality)); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	return img, nil
}
