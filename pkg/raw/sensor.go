package raw

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	// embedded previews are JPEG, some cameras store TIFF
	_ "image/jpeg"

	_ "golang.org/x/image/tiff"

	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"
)

// Sensor provides the demosaiced data a Decoder develops, plus the white
// balance it was captured with.
type Sensor interface {
	Load(ctx context.Context) (image.Image, error)
	AsShot() WhiteBalance
	Camera() (string, string)
}

// previewTags are tried in order; the first one present wins.
var previewTags = []string{"JpgFromRaw", "PreviewImage", "OtherImage", "ThumbnailImage"}

// asShotTags hold the capture color temperature on various cameras.
var asShotTags = []string{"ColorTempAsShot", "ColorTemperature", "WB_ColorTemp", "ColorTempMeasured"}

// ExifSensor extracts the largest embedded image from a RAW file via exiftool.
// The exiftool instance must be created with ExtractAllBinaryMetadata.
type ExifSensor struct {
	path   string
	et     *exiftool.Exiftool
	asShot WhiteBalance
	make   string
	model  string
}

// NewExiftool returns an exiftool instance configured for preview extraction.
func NewExiftool() (*exiftool.Exiftool, error) {
	buf := make([]byte, 1024*1024)
	return exiftool.NewExiftool(exiftool.ExtractAllBinaryMetadata(), exiftool.Buffer(buf, 256*1024*1024))
}

// NewExifSensor reads the capture metadata for path.
func NewExifSensor(path string, et *exiftool.Exiftool) (*ExifSensor, error) {
	fms := et.ExtractMetadata(path)
	if len(fms) == 0 {
		return nil, fmt.Errorf("no metadata for %q", path)
	}
	fm := fms[0]
	if fm.Err != nil {
		return nil, fmt.Errorf("extract fail for %q: %w", path, fm.Err)
	}

	s := &ExifSensor{path: path, et: et, asShot: DefaultAsShot}
	for _, tag := range asShotTags {
		k, err := fm.GetFloat(tag)
		if err == nil && k >= 2000 && k <= 12000 {
			s.asShot.Temperature = k
			break
		}
	}

	var err error
	s.make, err = fm.GetString("Make")
	if err != nil {
		klog.V(1).Infof("unable to get make for %s: %v", path, err)
	}
	s.model, err = fm.GetString("Model")
	if err != nil {
		klog.V(1).Infof("unable to get model for %s: %v", path, err)
	}

	klog.V(1).Infof("%s: %s %s, as shot %.0fK", path, s.make, s.model, s.asShot.Temperature)
	return s, nil
}

// AsShot returns the captured white balance.
func (s *ExifSensor) AsShot() WhiteBalance { return s.asShot }

// Camera returns the make and model.
func (s *ExifSensor) Camera() (string, string) { return s.make, s.model }

// Load decodes the embedded image.
func (s *ExifSensor) Load(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fms := s.et.ExtractMetadata(s.path)
	if len(fms) == 0 || fms[0].Err != nil {
		return nil, fmt.Errorf("extract %q: %v", s.path, fms)
	}

	for _, tag := range previewTags {
		v, err := fms[0].GetString(tag)
		if err != nil || !strings.HasPrefix(v, "base64:") {
			continue
		}
		bs, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, "base64:"))
		if err != nil {
			klog.Warningf("%s: bad %s payload: %v", s.path, tag, err)
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(bs))
		if err != nil {
			klog.Warningf("%s: unable to decode %s: %v", s.path, tag, err)
			continue
		}
		klog.V(1).Infof("%s: using %s %v", s.path, tag, img.Bounds())
		return img, nil
	}
	return nil, fmt.Errorf("%q has no decodable embedded image", s.path)
}

// ImageSensor serves an in-memory image as sensor data.
type ImageSensor struct {
	Image   image.Image
	Capture WhiteBalance
	Make    string
	Model   string
}

// NewImageSensor wraps img. A zero asShot falls back to DefaultAsShot.
func NewImageSensor(img image.Image, asShot WhiteBalance) *ImageSensor {
	if asShot.Temperature == 0 {
		asShot = DefaultAsShot
	}
	return &ImageSensor{Image: img, Capture: asShot}
}

// Load returns the wrapped image.
func (s *ImageSensor) Load(ctx context.Context) (image.Image, error) {
	if s.Image == nil {
		return nil, fmt.Errorf("no image")
	}
	return s.Image, ctx.Err()
}

// AsShot returns the captured white balance.
func (s *ImageSensor) AsShot() WhiteBalance { return s.Capture }

// Camera returns the make and model.
func (s *ImageSensor) Camera() (string, string) { return s.Make, s.Model }
