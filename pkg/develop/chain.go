package develop

import (
	"context"
	"fmt"
	"image"

	// formats accepted for standard sources, beyond the jpeg and png that imgio registers
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

// operator transforms img according to r. It returns img itself when its
// parameters are at their defaults, and nil when it cannot produce output.
type operator func(img *image.RGBA, r *recipe.Recipe) *image.RGBA

type stage struct {
	name string
	op   operator
}

// chain is the post-decode operator chain, in order.
var chain = []stage{
	{"contrast", contrast},
	{"highlights-shadows", highlightsShadows},
	{"vibrance", vibrance},
	{"saturation", saturation},
	{"whites-blacks", whitesBlacks},
	{"tone-curve", toneCurve},
	{"rgb-curves", rgbCurves},
	{"vignette", vignette},
	{"split-toning", splitToning},
	{"sharpness", sharpness},
	{"noise-reduction", noiseReduction},
	{"hsl", hsl},
	{"clarity", clarity},
	{"dehaze", dehaze},
	{"texture", texture},
	{"grain", grain},
	{"chromatic-aberration", chromaticAberration},
	{"perspective", perspective},
	{"calibration", calibration},
	{"rotate", rotate},
	{"crop", crop},
}

// standardChain applies exposure and white balance after decode, for sources
// that have no decode-time controls.
var standardChain = append([]stage{
	{"exposure", exposure},
	{"white-balance", whiteBalance},
}, chain...)

func open(path string) (image.Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return img, nil
}

// apply runs stages over img, checking ctx between stages. The result never
// aliases img.
func apply(ctx context.Context, img *image.RGBA, r recipe.Recipe, stages []stage) (*image.RGBA, error) {
	in := img
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img = run(s, img, &r)
	}
	if img == in {
		img = clone.AsRGBA(in)
	}
	return img, nil
}

// run executes one stage. A stage that panics or produces no image is
// skipped and its input passed through.
func run(s stage, img *image.RGBA, r *recipe.Recipe) (out *image.RGBA) {
	defer func() {
		if rec := recover(); rec != nil {
			klog.Warningf("%s failed, skipping: %v", s.name, rec)
			out = img
		}
	}()

	out = s.op(img, r)
	if out == nil || out.Bounds().Empty() {
		klog.Warningf("%s produced no output, skipping", s.name)
		return img
	}
	if out != img {
		klog.V(2).Infof("applied %s", s.name)
	}
	return rebase(out)
}
