package thumbnail

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstromberg/framkalla/pkg/asset"
	"github.com/tstromberg/framkalla/pkg/cache"
)

type fakeRenderer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRenderer) render(_ context.Context, _ asset.Asset, _ int) (*image.RGBA, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), 90, 0xff})
		}
	}
	return img, nil
}

func newAsset(t *testing.T) asset.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("source"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	a, err := asset.New(path)
	require.NoError(t, err)
	return a
}

func TestRelPath(t *testing.T) {
	a := asset.Asset{
		Path:    "/photos/2024/trip/IMG_1.NEF",
		RelPath: filepath.Join("2024", "trip", "IMG_1.NEF"),
		ModTime: time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC),
	}
	assert.Equal(t, filepath.Join("2024", "trip", "_", "IMG_1@y180_150405.jpg"), RelPath(a, Tiny))
	assert.Equal(t, filepath.Join("2024", "trip", "_", "IMG_1@x640_150405.jpg"), RelPath(a, Presets["Stream"]))
}

func TestGetRendersOnceAndReusesDisk(t *testing.T) {
	ctx := context.Background()
	out := t.TempDir()
	a := newAsset(t)
	f := &fakeRenderer{}
	s := New(out, f.render, 0, nil)

	img, meta, err := s.Get(ctx, a, Tiny)
	require.NoError(t, err)
	assert.Equal(t, 270, img.Rect.Dx())
	assert.Equal(t, 180, img.Rect.Dy())
	assert.Equal(t, Meta{X: 270, Y: 180, RelPath: RelPath(a, Tiny), Path: filepath.Join(out, RelPath(a, Tiny))}, meta)
	assert.FileExists(t, meta.Path)

	again, _, err := s.Get(ctx, a, Tiny)
	require.NoError(t, err)
	assert.Same(t, img, again, "served from memory")
	assert.EqualValues(t, 1, f.calls.Load())

	// a fresh service finds the file on disk
	f2 := &fakeRenderer{}
	disk, meta2, err := New(out, f2.render, 0, nil).Get(ctx, a, Tiny)
	require.NoError(t, err)
	assert.EqualValues(t, 0, f2.calls.Load())
	assert.Equal(t, 270, disk.Rect.Dx())
	assert.Equal(t, meta.Path, meta2.Path)
}

func TestNewerRecipeRerenders(t *testing.T) {
	ctx := context.Background()
	a := newAsset(t)
	f := &fakeRenderer{}
	s := New(t.TempDir(), f.render, 0, nil)

	_, _, err := s.Get(ctx, a, Tiny)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(a.Sidecar(), []byte(`{"light":{"exposure":1}}`), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(a.Sidecar(), future, future))

	_, _, err = s.Get(ctx, a, Tiny)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestMemoryOnly(t *testing.T) {
	ctx := context.Background()
	a := newAsset(t)
	f := &fakeRenderer{}
	m := cache.NewManager()
	s := New("", f.render, 2, m)

	img, meta, err := s.Get(ctx, a, Options{X: 150})
	require.NoError(t, err)
	assert.Empty(t, meta.Path)
	assert.Equal(t, 150, img.Rect.Dx())
	assert.Equal(t, 100, img.Rect.Dy())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(len(img.Pix)), m.Bytes())

	m.Clear()
	assert.Equal(t, 0, s.Len())
	_, _, err = s.Get(ctx, a, Options{X: 150})
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())

	s.Invalidate(a)
	assert.Equal(t, 0, s.Len())
}

func TestGetErrors(t *testing.T) {
	ctx := context.Background()
	a := newAsset(t)
	boom := errors.New("boom")
	s := New("", (&fakeRenderer{err: boom}).render, 0, nil)

	_, _, err := s.Get(ctx, a, Options{})
	assert.Error(t, err)

	_, _, err = s.Get(ctx, a, Tiny)
	assert.ErrorIs(t, err, boom)
}
