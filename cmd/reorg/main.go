// reorg files each photo directory under <parent>/<year>/<month> by capture date,
// carrying recipe sidecars along with the photos.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/asset"
)

var dryRun = flag.Bool("n", false, "dry-run mode, don't move things")

// target returns where dir belongs given when its photos were taken, or "" if
// none carry a capture date.
func target(dir string, as []asset.Asset) string {
	var taken time.Time
	for _, a := range as {
		if !a.Taken.IsZero() {
			taken = a.Taken
		}
	}
	if taken.IsZero() {
		return ""
	}
	base := filepath.Base(dir)
	// fix bad apostrophes
	base = strings.ReplaceAll(base, "_s ", "'s ")
	return filepath.Join(filepath.Dir(dir), fmt.Sprint(taken.Year()), fmt.Sprintf("%02d", int(taken.Month())), base)
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() == 0 {
		klog.Exitf("usage: reorg [-n] <photo dir>")
	}
	root := flag.Arg(0)

	et, err := exiftool.NewExiftool()
	if err != nil {
		klog.Exitf("exiftool failed: %v", err)
	}
	defer et.Close()

	as, err := asset.Find(root, et)
	if err != nil {
		klog.Exitf("unable to find: %v", err)
	}

	albums := map[string][]asset.Asset{}
	for _, a := range as {
		d := filepath.Dir(a.Path)
		albums[d] = append(albums[d], a)
	}

	for dir, photos := range albums {
		if dir == root {
			continue
		}
		dst := target(dir, photos)
		if dst == "" {
			klog.Infof("no year in %s", dir)
			continue
		}
		klog.Infof("%s -> %s", dir, dst)
		if *dryRun {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			klog.Errorf("mkdir: %v", err)
			continue
		}
		if err := os.Rename(dir, dst); err != nil {
			klog.Errorf("rename: %v", err)
		}
	}
}
