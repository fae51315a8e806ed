// Package manage provides HTTP handlers for previewing assets and managing caches.
package manage

import (
	"fmt"
	"image"
	"net/http"
	"strconv"
	"sync"

	"github.com/anthonynsimon/bild/imgio"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/asset"
	"github.com/tstromberg/framkalla/pkg/cache"
	"github.com/tstromberg/framkalla/pkg/develop"
	"github.com/tstromberg/framkalla/pkg/framkalla"
	"github.com/tstromberg/framkalla/pkg/recipe"
	"github.com/tstromberg/framkalla/pkg/thumbnail"
)

// Server serves previews of scanned assets.
type Server struct {
	s *framkalla.Service

	mu     sync.RWMutex
	assets map[string]asset.Asset
}

// New creates a new server.
func New(s *framkalla.Service) *Server {
	return &Server{s: s, assets: map[string]asset.Asset{}}
}

// SetAssets replaces the assets the server knows about, keyed by relative path.
func (srv *Server) SetAssets(as []asset.Asset) {
	m := make(map[string]asset.Asset, len(as))
	for _, a := range as {
		m[a.RelPath] = a
	}
	srv.mu.Lock()
	srv.assets = m
	srv.mu.Unlock()
}

func (srv *Server) lookup(r *http.Request) (asset.Asset, bool) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	a, ok := srv.assets[r.URL.Query().Get("path")]
	return a, ok
}

// Handler returns a mux with every endpoint registered.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/preview", srv.PreviewHandler())
	mux.HandleFunc("/thumbnail", srv.ThumbnailHandler())
	mux.HandleFunc("/evict", srv.EvictHandler())
	return mux
}

func writeJPEG(w http.ResponseWriter, img image.Image, quality int) {
	w.Header().Set("Content-Type", "image/jpeg")
	if err := imgio.JPEGEncoder(quality)(w, img); err != nil {
		klog.Errorf("encode response: %v", err)
	}
}

// PreviewHandler renders ?path= with its sidecar recipe, bounded by ?max= and at ?tier=.
func (srv *Server) PreviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := srv.lookup(r)
		if !ok {
			http.Error(w, "unknown asset", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		maxDim := 0
		if v := q.Get("max"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, fmt.Sprintf("bad max %q", v), http.StatusBadRequest)
				return
			}
			maxDim = n
		}
		tier := develop.Full
		if v := q.Get("tier"); v != "" {
			t, err := develop.ParseTier(v)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			tier = t
		}

		rec, err := recipe.LoadSidecar(a.Path)
		if err != nil {
			klog.Warningf("recipe for %s: %v", a.Path, err)
			rec = recipe.New()
		}
		img, err := srv.s.Preview(r.Context(), a, rec, maxDim, tier)
		if err != nil {
			klog.Errorf("preview %s: %v", a.Path, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJPEG(w, img, srv.s.Config().Quality)
	}
}

// ThumbnailHandler serves the grid thumbnail of ?path=.
func (srv *Server) ThumbnailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := srv.lookup(r)
		if !ok {
			http.Error(w, "unknown asset", http.StatusNotFound)
			return
		}
		img, _, err := srv.s.Thumbnail(r.Context(), a, thumbnail.Tiny)
		if err != nil {
			klog.Errorf("thumbnail %s: %v", a.Path, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJPEG(w, img, thumbnail.Tiny.Quality)
	}
}

// EvictHandler applies memory pressure: ?level=warning|critical, or ?fraction= to evict directly.
func (srv *Server) EvictHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		switch q.Get("level") {
		case "warning":
			srv.s.Manager().Signal(cache.Warning)
		case "critical":
			srv.s.Manager().Signal(cache.Critical)
		case "":
			f, err := strconv.ParseFloat(q.Get("fraction"), 64)
			if err != nil || f < 0 || f > 1 {
				http.Error(w, "fraction must be within 0-1", http.StatusBadRequest)
				return
			}
			n := srv.s.Evict(f)
			klog.Infof("evicted %d entries", n)
		default:
			http.Error(w, "unknown level", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, "%d entries, %d bytes cached\n", srv.s.Manager().Len(), srv.s.Manager().Bytes())
	}
}
