// Package asset describes the photos framkalla develops and finds them on disk.
package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

// Kind is how an asset is decoded.
type Kind int

const (
	Unsupported Kind = iota
	Standard         // decoded by an image codec
	Raw              // decoded from sensor data by the RAW decoder
)

func (k Kind) String() string {
	switch k {
	case Standard:
		return "standard"
	case Raw:
		return "raw"
	}
	return "unsupported"
}

var rawExts = map[string]bool{
	".3fr": true, ".arw": true, ".cr2": true, ".cr3": true, ".dng": true,
	".erf": true, ".iiq": true, ".mrw": true, ".nef": true, ".nrw": true,
	".orf": true, ".pef": true, ".raf": true, ".rw2": true, ".rwl": true,
	".srw": true, ".x3f": true,
}

var standardExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tif": true, ".tiff": true,
	".webp": true, ".bmp": true,
}

// KindOf classifies a path by its extension.
func KindOf(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case rawExts[ext]:
		return Raw
	case standardExts[ext]:
		return Standard
	}
	return Unsupported
}

// Asset is a photo on disk with the camera metadata found for it.
type Asset struct {
	Path    string
	RelPath string
	Kind    Kind
	Size    int64
	ModTime time.Time

	Taken       time.Time
	Make        string
	Model       string
	LensModel   string
	Width       int64
	Height      int64
	Keywords    []string
	Title       string
	Description string
}

// New stats path and returns its asset without camera metadata.
func New(path string) (Asset, error) {
	a := Asset{Path: path, RelPath: filepath.Base(path), Kind: KindOf(path)}
	if a.Kind == Unsupported {
		return a, fmt.Errorf("%s: unsupported file type", path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return a, fmt.Errorf("stat: %w", err)
	}
	if fi.IsDir() {
		return a, fmt.Errorf("%s: is a directory", path)
	}
	a.Size = fi.Size()
	a.ModTime = fi.ModTime()
	return a, nil
}

// IsRaw reports whether the asset goes through the RAW decoder.
func (a Asset) IsRaw() bool {
	return a.Kind == Raw
}

// Fingerprint identifies the file content by size and modification time. It
// survives renames and moves; it changes whenever the file is modified.
func (a Asset) Fingerprint() string {
	return fmt.Sprintf("%d|%d", a.Size, a.ModTime.UnixNano())
}

// Sidecar returns where the asset's recipe is stored.
func (a Asset) Sidecar() string {
	return recipe.SidecarPath(a.Path)
}

// Stale reports whether the file on disk no longer matches the asset.
func (a Asset) Stale() bool {
	fi, err := os.Stat(a.Path)
	if err != nil {
		return true
	}
	return fi.Size() != a.Size || !fi.ModTime().Equal(a.ModTime)
}
