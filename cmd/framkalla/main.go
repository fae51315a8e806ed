// framkalla develops photos with their edit recipes and exports them as JPEG.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/asset"
	"github.com/tstromberg/framkalla/pkg/framkalla"
	"github.com/tstromberg/framkalla/pkg/graph"
	"github.com/tstromberg/framkalla/pkg/manage"
	"github.com/tstromberg/framkalla/pkg/recipe"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	inDir      = flag.String("in", "", "Location of input directory (or pass directories as arguments)")
	outDir     = flag.String("out", "", "Location of output directory")
	preset     = flag.String("preset", "", "recipe file (JSON or YAML) applied to every photo instead of its sidecar")
	graphPath  = flag.String("graph", "", "node graph (JSON) composited over every export")
	quality    = flag.Int("quality", 0, "JPEG quality, 1-100")
	maxDim     = flag.Int("max", 0, "bound the larger side of exports, 0 for native size")
	tier       = flag.String("tier", "", "preview tier: fast, full or export")
	thumbDir   = flag.String("thumbs", "", "directory for generated thumbnails")
	workers    = flag.Int("workers", 0, "concurrent renders")
	noExiftool = flag.Bool("no-exiftool", false, "disable exiftool: no RAW decoding, metadata or tagging")
	copyOrig   = flag.Bool("copy", false, "copy originals and recipes next to the exports")
	listen     = flag.Bool("listen", false, "serve previews via HTTP")
	addr       = flag.String("addr", "localhost:12800", "host:port to bind to in listen mode")
	watchFlag  = flag.Bool("watch", false, "watch input directories and re-export changed photos")
)

func config() (*framkalla.Config, error) {
	c := framkalla.DefaultConfig()
	if *configPath != "" {
		var err error
		if c, err = framkalla.LoadConfig(*configPath); err != nil {
			return nil, err
		}
	}

	// flags override the file only when given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			c.OutDir = *outDir
		case "preset":
			c.Preset = *preset
		case "quality":
			c.Quality = *quality
		case "max":
			c.MaxDim = *maxDim
		case "tier":
			c.PreviewTier = *tier
		case "thumbs":
			c.ThumbDir = *thumbDir
		case "workers":
			c.Workers = *workers
		case "no-exiftool":
			c.Exiftool = !*noExiftool
		case "copy":
			c.CopyOriginals = *copyOrig
		}
	})
	if *inDir != "" {
		c.InDirs = append(c.InDirs, *inDir)
	}
	c.InDirs = append(c.InDirs, flag.Args()...)
	return c, c.Validate()
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c, err := config()
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	if len(c.InDirs) == 0 {
		klog.Exitf("--in or an input directory argument is required")
	}
	if c.OutDir == "" && !*listen {
		klog.Exitf("--out is a required flag")
	}

	var presetRecipe *recipe.Recipe
	if c.Preset != "" {
		r, err := recipe.Load(c.Preset)
		if err != nil {
			klog.Exitf("preset: %v", err)
		}
		presetRecipe = &r
	}

	var g *graph.Graph
	if *graphPath != "" {
		if g, err = loadGraph(*graphPath); err != nil {
			klog.Exitf("graph: %v", err)
		}
	}

	s, err := framkalla.New(c)
	if err != nil {
		klog.Exitf("init failed: %v", err)
	}
	defer s.Close()

	e := &exporter{s: s, c: c, preset: presetRecipe, graph: g}
	ctx := context.Background()

	assets, err := e.scan()
	if err != nil {
		klog.Exitf("scan failed: %v", err)
	}
	if c.OutDir != "" {
		if err := e.export(ctx, assets); err != nil {
			klog.Errorf("export failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	srv := manage.New(s)
	srv.SetAssets(assets)

	if *watchFlag {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.watch(ctx, srv); err != nil {
				klog.Exitf("watch failed: %v", err)
			}
		}()
	}

	if *listen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(srv, *addr)
		}()
	}

	wg.Wait()
}

func loadGraph(path string) (*graph.Graph, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	g := &graph.Graph{}
	if err := json.Unmarshal(bs, g); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return g, nil
}

// serve serves previews via HTTP
func serve(srv *manage.Server, addr string) {
	klog.Infof("Listening on %s...", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		klog.Exitf("listen failed: %v", err)
	}
}

type exporter struct {
	s      *framkalla.Service
	c      *framkalla.Config
	preset *recipe.Recipe
	graph  *graph.Graph
}

func (e *exporter) scan() ([]asset.Asset, error) {
	var all []asset.Asset
	for _, d := range e.c.InDirs {
		as, err := e.s.Find(d)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		klog.Infof("found %d photos in %s", len(as), d)
		all = append(all, as...)
	}
	return all, nil
}

func (e *exporter) recipeFor(a asset.Asset) recipe.Recipe {
	if e.preset != nil {
		return e.preset.Clone()
	}
	r, err := recipe.LoadSidecar(a.Path)
	if err != nil {
		klog.Warningf("recipe for %s: %v", a.Path, err)
		return recipe.New()
	}
	return r
}

func (e *exporter) export(ctx context.Context, as []asset.Asset) error {
	jobs := make([]framkalla.Job, 0, len(as))
	for _, a := range as {
		jobs = append(jobs, framkalla.Job{Asset: a, Recipe: e.recipeFor(a), Graph: e.graph, MaxDim: e.c.MaxDim})
	}
	rs := e.s.ExportBatch(ctx, jobs)
	ok := 0
	for _, r := range rs {
		if r.Err == nil {
			ok++
		}
	}
	klog.Infof("exported %d of %d photos to %s", ok, len(rs), e.c.OutDir)
	return framkalla.Failed(rs)
}

// changed maps a file event to the asset it affects, if any.
func (e *exporter) changed(path string) (asset.Asset, bool) {
	path = strings.TrimSuffix(path, recipe.SidecarExt)
	if asset.KindOf(path) == asset.Unsupported {
		return asset.Asset{}, false
	}
	a, err := asset.New(path)
	if err != nil {
		klog.V(1).Infof("skipping %s: %v", path, err)
		return asset.Asset{}, false
	}
	for _, d := range e.c.InDirs {
		if rel, err := filepath.Rel(d, path); err == nil && !strings.HasPrefix(rel, "..") {
			a.RelPath = rel
		}
	}
	return a, true
}

// watch watches the input directories and re-exports photos whose file or recipe changes.
func (e *exporter) watch(ctx context.Context, srv *manage.Server) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watches: %w", err)
	}
	defer w.Close()

	var dirs []string
	for _, root := range e.c.InDirs {
		err := godirwalk.Walk(root, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if path != root && strings.HasPrefix(filepath.Base(path), ".") {
					return godirwalk.SkipThis
				}
				if de.IsDir() {
					dirs = append(dirs, path)
				}
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
	}
	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	klog.Infof("watching %d dirs ...", len(dirs))
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			klog.V(1).Infof("event: %v", event)
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			a, ok := e.changed(event.Name)
			if !ok {
				continue
			}
			if e.c.OutDir != "" {
				if err := e.export(ctx, []asset.Asset{a}); err != nil {
					klog.Errorf("re-export %s: %v", a.Path, err)
				}
			}
			if as, err := e.scan(); err == nil {
				srv.SetAssets(as)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		}
	}
}
