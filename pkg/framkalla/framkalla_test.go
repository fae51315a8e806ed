package framkalla

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstromberg/framkalla/pkg/asset"
	"github.com/tstromberg/framkalla/pkg/cache"
	"github.com/tstromberg/framkalla/pkg/develop"
	"github.com/tstromberg/framkalla/pkg/graph"
	"github.com/tstromberg/framkalla/pkg/recipe"
	"github.com/tstromberg/framkalla/pkg/thumbnail"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 120, 0xff})
		}
	}
	return img
}

func mean(img *image.RGBA) float64 {
	var sum float64
	for i := 0; i < len(img.Pix); i += 4 {
		sum += float64(img.Pix[i]) + float64(img.Pix[i+1]) + float64(img.Pix[i+2])
	}
	return sum / float64(len(img.Pix)/4*3)
}

// writeAsset saves a PNG in dir and returns it as an asset.
func writeAsset(t *testing.T, dir, name string, img image.Image) asset.Asset {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imgio.Save(path, img, imgio.PNGEncoder()))
	a, err := asset.New(path)
	require.NoError(t, err)
	return a
}

func newService(t *testing.T) *Service {
	t.Helper()
	c := DefaultConfig()
	c.Exiftool = false
	c.OutDir = t.TempDir()
	c.ThumbDir = t.TempDir()
	s, err := New(c)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 3, c.Decoders)
	assert.Equal(t, 8, c.Rasters)
	assert.Equal(t, 64, c.Thumbnails)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, 90, c.Quality)
	assert.Equal(t, "full", c.PreviewTier)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framkalla.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quality: 75\nworkers: 4\npreview_tier: fast\nout: /tmp/out\n"), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 75, c.Quality)
	assert.Equal(t, 4, c.Workers)
	assert.Equal(t, "fast", c.PreviewTier)
	assert.Equal(t, "/tmp/out", c.OutDir)
	assert.Equal(t, 3, c.Decoders, "unset fields keep defaults")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("quality: 0\n"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	c := DefaultConfig()
	c.PreviewTier = "turbo"
	_, err := New(c)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	src := testImage(64, 48)
	a := writeAsset(t, t.TempDir(), "a.png", src)

	got, err := s.Preview(ctx, a, recipe.New(), 0, develop.Full)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, got.Pix, "default recipe is the unedited decode")

	small, err := s.Preview(ctx, a, recipe.New(), 32, develop.Fast)
	require.NoError(t, err)
	assert.Equal(t, 32, small.Rect.Dx())
	assert.Equal(t, 24, small.Rect.Dy())

	r := recipe.New()
	r.Light.Exposure = 1
	bright, err := s.Preview(ctx, a, r, 0, develop.Full)
	require.NoError(t, err)
	assert.Greater(t, mean(bright), mean(got))
}

func TestPreviewCanceled(t *testing.T) {
	s := newService(t)
	a := writeAsset(t, t.TempDir(), "a.png", testImage(8, 8))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Preview(ctx, a, recipe.New(), 0, develop.Full)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreviewDecodeError(t *testing.T) {
	s := newService(t)
	a := asset.Asset{Path: filepath.Join(t.TempDir(), "missing.png"), Kind: asset.Standard}
	_, err := s.Preview(context.Background(), a, recipe.New(), 0, develop.Full)
	assert.ErrorIs(t, err, develop.ErrDecode)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	a := writeAsset(t, t.TempDir(), "a.png", testImage(80, 60))

	path, err := s.Export(ctx, Job{Asset: a, Recipe: recipe.New(), MaxDim: 40})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Config().OutDir, "a.jpg"), path)

	img, err := imgio.Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 30), img.Bounds().Size())
}

func TestExportWithGraph(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	a := writeAsset(t, t.TempDir(), "a.png", testImage(32, 32))
	out := t.TempDir()

	plain, err := s.Export(ctx, Job{Asset: a, Recipe: recipe.New(), Dest: filepath.Join(out, "plain.jpg")})
	require.NoError(t, err)

	g := graph.New()
	g.Nodes[1].Recipe.Light.Exposure = -1
	dark, err := s.Export(ctx, Job{Asset: a, Recipe: recipe.New(), Graph: g, Dest: filepath.Join(out, "dark.jpg")})
	require.NoError(t, err)

	pi, err := imgio.Open(plain)
	require.NoError(t, err)
	di, err := imgio.Open(dark)
	require.NoError(t, err)
	assert.Less(t, mean(toRGBA(di)), mean(toRGBA(pi)))
}

func toRGBA(img image.Image) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func TestExportBatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	dir := t.TempDir()
	good := writeAsset(t, dir, "good.png", testImage(16, 16))
	missing := asset.Asset{Path: filepath.Join(dir, "missing.png"), RelPath: "missing.png", Kind: asset.Standard}

	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	results := s.ExportBatch(ctx, []Job{
		{Asset: missing, Recipe: recipe.New()},
		{Asset: good, Recipe: recipe.New(), Dest: filepath.Join(blocker, "x.jpg")},
		{Asset: good, Recipe: recipe.New()},
	})
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[0].Err, develop.ErrDecode)
	assert.ErrorIs(t, results[1].Err, develop.ErrEncode)
	require.NoError(t, results[2].Err)
	assert.FileExists(t, results[2].Path)

	err := Failed(results)
	assert.ErrorIs(t, err, develop.ErrDecode)
	assert.ErrorIs(t, err, develop.ErrEncode)
	assert.NoError(t, Failed(results[2:]))
}

func TestCopyOriginals(t *testing.T) {
	s := newService(t)
	s.c.CopyOriginals = true
	dir := t.TempDir()
	a := writeAsset(t, dir, "a.png", testImage(8, 8))
	r := recipe.New()
	r.Light.Contrast = 10
	require.NoError(t, recipe.Save(a.Sidecar(), r))

	path, err := s.Export(context.Background(), Job{Asset: a, Recipe: r})
	require.NoError(t, err)
	orig := filepath.Join(filepath.Dir(path), "originals", "a.png")
	assert.FileExists(t, orig)
	assert.FileExists(t, orig+recipe.SidecarExt)
}

func TestExportTags(t *testing.T) {
	r := recipe.New()
	r.Metadata.Rating = 4
	r.Metadata.Title = "Harbor"
	r.Metadata.Tags = []string{"sea", "fav"}
	fm := exportTags(Job{Asset: asset.Asset{Make: "FUJIFILM", Taken: time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)}, Recipe: r})

	cs, err := fm.GetString("ColorSpace")
	require.NoError(t, err)
	assert.Equal(t, "sRGB", cs)
	mk, err := fm.GetString("Make")
	require.NoError(t, err)
	assert.Equal(t, "FUJIFILM", mk)
	taken, err := fm.GetString("DateTimeOriginal")
	require.NoError(t, err)
	assert.Equal(t, "2024:05:01 07:30:00", taken)
	kw, err := fm.GetStrings("Keywords")
	require.NoError(t, err)
	assert.Equal(t, []string{"sea", "fav"}, kw)
	_, err = fm.GetString("Model")
	assert.Error(t, err, "unknown fields are not written")
}

func TestThumbnail(t *testing.T) {
	s := newService(t)
	a := writeAsset(t, t.TempDir(), "a.png", testImage(300, 200))

	img, meta, err := s.Thumbnail(context.Background(), a, thumbnail.Tiny)
	require.NoError(t, err)
	assert.Equal(t, 180, img.Rect.Dy())
	assert.Equal(t, 270, img.Rect.Dx())
	assert.FileExists(t, meta.Path)
}

func TestEvictAndPressure(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		a := writeAsset(t, dir, name, testImage(16, 16))
		_, err := s.Preview(ctx, a, recipe.New(), 0, develop.Full)
		require.NoError(t, err)
	}
	require.Equal(t, 2, s.Manager().Len())

	assert.Equal(t, 1, s.Evict(0.5))
	assert.Equal(t, 1, s.Manager().Len())

	s.Pressure() <- cache.Critical
	assert.Eventually(t, func() bool { return s.Manager().Len() == 0 }, time.Second, 5*time.Millisecond)

	a := writeAsset(t, dir, "c.png", testImage(16, 16))
	_, err := s.Preview(ctx, a, recipe.New(), 0, develop.Full)
	require.NoError(t, err)
	s.Clear()
	assert.Equal(t, 0, s.Manager().Len())
}

func TestRenderNodeGraph(t *testing.T) {
	s := newService(t)
	base := testImage(16, 16)
	out, err := s.RenderNodeGraph(context.Background(), graph.New(), base)
	require.NoError(t, err)
	assert.Equal(t, base.Pix, out.Pix)
}
