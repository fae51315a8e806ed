package asset

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

var exifDate = "2006:01:02 15:04:05"

// ReadMetadata fills in camera metadata using exiftool. Missing optional tags
// are logged, not returned.
func (a *Asset) ReadMetadata(et *exiftool.Exiftool) error {
	fis := et.ExtractMetadata(a.Path)
	if len(fis) == 0 {
		return fmt.Errorf("extract %q: no result", a.Path)
	}
	fi := fis[0]
	if fi.Err != nil {
		return fmt.Errorf("extract fail for %q: %w", a.Path, fi.Err)
	}

	for k, v := range fi.Fields {
		klog.V(2).Infof("%q=%v", k, v)
	}

	var err error
	a.Make, err = fi.GetString("Make")
	if err != nil {
		klog.V(1).Infof("unable to get make for %s: %v", a.Path, err)
	}
	a.Model, err = fi.GetString("Model")
	if err != nil {
		klog.V(1).Infof("unable to get model for %s: %v", a.Path, err)
	}
	a.LensModel, _ = fi.GetString("LensModel")

	a.Width, err = fi.GetInt("ImageWidth")
	if err != nil {
		klog.V(1).Infof("unable to get width for %s: %v", a.Path, err)
	}
	a.Height, err = fi.GetInt("ImageHeight")
	if err != nil {
		klog.V(1).Infof("unable to get height for %s: %v", a.Path, err)
	}

	a.Keywords, _ = fi.GetStrings("Keywords")
	a.Description, _ = fi.GetString("ImageDescription")
	a.Title, err = fi.GetString("Headline")
	if err != nil {
		klog.V(2).Infof("unable to get headline: %v", err)
	}

	ds, err := fi.GetString("DateTimeOriginal")
	if err != nil {
		klog.V(1).Infof("unable to get date time for %s: %v", a.Path, err)
		return nil
	}
	a.Taken, err = time.Parse(exifDate, ds)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", ds, err)
	}
	return nil
}

// Find returns every supported photo below root in lexical order, skipping
// dot files and directories. If et is non-nil, camera metadata is read too.
func Find(root string, et *exiftool.Exiftool) ([]Asset, error) {
	found := []Asset{}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}
			if de.IsDir() || KindOf(path) == Unsupported {
				return nil
			}

			a, err := New(path)
			if err != nil {
				klog.Errorf("stat failure: %v", err)
				return err
			}
			a.RelPath, err = filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if et != nil {
				if err := a.ReadMetadata(et); err != nil {
					klog.Warningf("metadata for %s: %v", path, err)
				}
			}
			klog.V(1).Infof("found %s (%s)", a.RelPath, a.Kind)
			found = append(found, a)
			return nil
		},
	})
	if err != nil {
		return found, fmt.Errorf("walk %s: %w", root, err)
	}
	return found, nil
}
