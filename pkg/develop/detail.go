package develop

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/math/f64"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

// unsharp sharpens with a blur of blurRadius pixels. Negative amounts soften
// by dissolving toward the blurred image instead.
func unsharp(img *image.RGBA, blurRadius, amount float64) *image.RGBA {
	if amount == 0 {
		return img
	}
	if amount < 0 {
		return blend.Opacity(img, blur.Gaussian(img, blurRadius), math.Min(1, -amount))
	}
	// UnsharpMask blurs with five times the radius it is given
	return effect.UnsharpMask(img, blurRadius/5, amount)
}

func sharpness(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	s := clampUnit(r.Effects.Sharpness / 100)
	if s == 0 {
		return img
	}
	return unsharp(img, 5, s*1.5)
}

func noiseReduction(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	nr := f64.Clamp(r.Effects.NoiseReduction/100, 0, 1)
	if nr == 0 {
		return img
	}
	return blend.Opacity(img, blur.Gaussian(img, 0.5+nr*1.5), nr*0.7)
}

// clarityPass is local contrast from two cascaded unsharp masks at ~50px and
// ~25px. Strong settings restore some of the original in the extremes.
func clarityPass(img *image.RGBA, c float64) *image.RGBA {
	out := unsharp(img, 50, 0.5*c)
	out = unsharp(out, 25, 0.35*c)
	if math.Abs(c) <= 0.3 {
		return out
	}
	return eachPixel(out, func(x, y int, px [3]float64) [3]float64 {
		i := img.PixOffset(x, y)
		orig := [3]float64{float64(img.Pix[i]) / 255, float64(img.Pix[i+1]) / 255, float64(img.Pix[i+2]) / 255}
		e := math.Abs(2*luma(orig[0], orig[1], orig[2]) - 1)
		w := e * e * 0.5
		for k := range px {
			px[k] += (orig[k] - px[k]) * w
		}
		return px
	})
}

func clarity(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	c := clampUnit(r.Grading.Clarity / 100)
	if c == 0 {
		return img
	}
	return clarityPass(img, c)
}

// dehaze approximates haze removal: gamma, contrast, then saturation, plus
// some clarity for stronger settings.
func dehaze(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	d := clampUnit(r.Grading.Dehaze / 100)
	if d == 0 {
		return img
	}
	out := adjust.Gamma(img, 1-0.25*d)
	out = adjust.Contrast(out, 0.3*d)
	out = adjust.Saturation(out, 0.25*d)
	if math.Abs(r.Grading.Dehaze) > 20 {
		out = clarityPass(out, 0.5*d)
	}
	return out
}

// texture enhances fine detail with unsharp masks at ~1.5px and ~4px.
func texture(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	t := clampUnit(r.Grading.Texture / 100)
	if t == 0 {
		return img
	}
	out := unsharp(img, 1.5, 0.6*t)
	return unsharp(out, 4, 0.4*t)
}
