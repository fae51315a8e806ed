package framkalla

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/barasher/go-exiftool"
	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/asset"
	"github.com/tstromberg/framkalla/pkg/develop"
	"github.com/tstromberg/framkalla/pkg/graph"
	"github.com/tstromberg/framkalla/pkg/recipe"
	"github.com/tstromberg/framkalla/pkg/schedule"
)

// DeliveryColorSpace is the color space exports are encoded in and tagged with.
// Rendering already happens in sRGB, so no conversion precedes the tag.
const DeliveryColorSpace = "sRGB"

// Job is a single export.
type Job struct {
	Asset  asset.Asset
	Recipe recipe.Recipe
	// Graph, if active, is composited over the developed image.
	Graph *graph.Graph
	// Dest is the output file. Empty derives it from the asset under Config.OutDir.
	Dest string
	// MaxDim bounds the larger side; 0 keeps the native size.
	MaxDim int
}

// Result is the outcome of one export job.
type Result struct {
	Job      Job
	Path     string
	Err      error
	Duration time.Duration
}

// Dest returns where j is written.
func (s *Service) Dest(j Job) string {
	if j.Dest != "" {
		return j.Dest
	}
	rel := j.Asset.RelPath
	if rel == "" {
		rel = filepath.Base(j.Asset.Path)
	}
	return filepath.Join(s.c.OutDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".jpg")
}

// Export renders j at export quality, writes it as JPEG and tags its color space.
func (s *Service) Export(ctx context.Context, j Job) (string, error) {
	dest := s.Dest(j)
	klog.Infof("exporting %s -> %s", j.Asset.Path, dest)

	t := s.submit("export:"+dest, j.Asset, j.Recipe, j.MaxDim, develop.Export, schedule.Normal)
	img, err := wait(ctx, t)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	if j.Graph != nil && j.Graph.Active() {
		if img, err = s.pipeline.RenderGraph(ctx, j.Graph, img); err != nil {
			return "", fmt.Errorf("render graph: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := s.encode(dest, img); err != nil {
		return "", err
	}
	if err := s.tag(dest, j); err != nil {
		klog.Warningf("tag %s: %v", dest, err)
	}
	if s.c.CopyOriginals {
		if err := copyOriginal(j.Asset, filepath.Dir(dest)); err != nil {
			return dest, fmt.Errorf("copy original: %w", err)
		}
	}
	klog.Infof("wrote %s (%dx%d)", dest, img.Rect.Dx(), img.Rect.Dy())
	return dest, nil
}

func (s *Service) encode(dest string, img *image.RGBA) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &develop.EncodeError{Path: dest, Err: fmt.Errorf("mkdir: %w", err)}
	}
	if err := imgio.Save(dest, img, imgio.JPEGEncoder(s.c.Quality)); err != nil {
		return &develop.EncodeError{Path: dest, Err: err}
	}
	return nil
}

// exportTags returns the tags written to an export of j.
func exportTags(j Job) exiftool.FileMetadata {
	fm := exiftool.EmptyFileMetadata()
	fm.SetString("ColorSpace", DeliveryColorSpace)
	fm.SetString("Software", "framkalla")

	a := j.Asset
	if a.Make != "" {
		fm.SetString("Make", a.Make)
	}
	if a.Model != "" {
		fm.SetString("Model", a.Model)
	}
	if !a.Taken.IsZero() {
		fm.SetString("DateTimeOriginal", a.Taken.Format("2006:01:02 15:04:05"))
	}

	m := j.Recipe.Metadata
	if m.Rating > 0 {
		fm.SetInt("Rating", int64(m.Rating))
	}
	if m.Title != "" {
		fm.SetString("Headline", m.Title)
	}
	if m.Description != "" {
		fm.SetString("ImageDescription", m.Description)
	}
	if len(m.Tags) > 0 {
		fm.SetStrings("Keywords", m.Tags)
	}
	return fm
}

func (s *Service) tag(dest string, j Job) error {
	if s.metaET == nil {
		klog.V(1).Infof("exiftool disabled, %s left untagged", dest)
		return nil
	}
	fm := exportTags(j)
	fm.File = dest
	fms := []exiftool.FileMetadata{fm}
	s.metaET.WriteMetadata(fms)
	return fms[0].Err
}

// copyOriginal copies the asset and its recipe sidecar into dir/originals.
func copyOriginal(a asset.Asset, dir string) error {
	dst := filepath.Join(dir, "originals", filepath.Base(a.Path))
	if err := copy.Copy(a.Path, dst); err != nil {
		return err
	}
	sc := a.Sidecar()
	if _, err := os.Stat(sc); err != nil {
		return nil
	}
	return copy.Copy(sc, dst+recipe.SidecarExt)
}

// ExportBatch runs jobs with bounded concurrency. A failed job never stops
// the others; results are in job order.
func (s *Service) ExportBatch(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(1, s.c.Workers))
	for i, j := range jobs {
		g.Go(func() error {
			start := time.Now()
			path, err := s.Export(ctx, j)
			results[i] = Result{Job: j, Path: path, Err: err, Duration: time.Since(start)}
			if err != nil {
				klog.Errorf("export %s failed: %v", j.Asset.Path, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed returns the results that carry an error, joined.
func Failed(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Job.Asset.Path, r.Err))
		}
	}
	return errors.Join(errs...)
}
