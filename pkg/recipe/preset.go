package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// SidecarExt is appended to an asset path to locate its recipe.
var SidecarExt = ".framkalla.json"

// SidecarPath returns the recipe sidecar location for an asset.
func SidecarPath(assetPath string) string {
	return assetPath + SidecarExt
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a recipe from a JSON or YAML file, chosen by extension.
// Missing fields resolve to their defaults.
func Load(path string) (Recipe, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return New(), fmt.Errorf("read: %w", err)
	}

	if !isYAML(path) {
		r, err := Decode(bs)
		if err != nil {
			return New(), fmt.Errorf("decode %s: %w", path, err)
		}
		return r, nil
	}

	r := New()
	if err := yaml.Unmarshal(bs, &r); err != nil {
		return New(), fmt.Errorf("yaml %s: %w", path, err)
	}
	klog.V(1).Infof("loaded preset %s (edits=%v)", path, r.HasEdits())
	return r.normalized(), nil
}

// LoadSidecar returns the recipe stored next to an asset, or the identity
// recipe if there is none.
func LoadSidecar(assetPath string) (Recipe, error) {
	p := SidecarPath(assetPath)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return New(), fmt.Errorf("stat: %w", err)
	}
	return Load(p)
}

// Save writes a recipe as JSON or YAML, chosen by extension.
func Save(path string, r Recipe) error {
	var bs []byte
	var err error
	if isYAML(path) {
		bs, err = yaml.Marshal(r.normalized())
	} else {
		bs, err = Encode(r)
	}
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return os.WriteFile(path, bs, 0o644)
}
