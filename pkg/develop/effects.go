package develop

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/math/f64"
	"github.com/anthonynsimon/bild/parallel"
	"github.com/anthonynsimon/bild/perlin"
	"github.com/anthonynsimon/bild/transform"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

// grainSeed fixes the grain pattern so renders are reproducible.
const grainSeed = 1

// eachPixel returns a copy of src with fn applied to every pixel's color in
// [0,1]. Alpha is preserved.
func eachPixel(src *image.RGBA, fn func(x, y int, px [3]float64) [3]float64) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				si := y*src.Stride + x*4
				di := y*dst.Stride + x*4
				px := [3]float64{float64(src.Pix[si]) / 255, float64(src.Pix[si+1]) / 255, float64(src.Pix[si+2]) / 255}
				px = fn(x, y, px)
				dst.Pix[di], dst.Pix[di+1], dst.Pix[di+2] = to8(px[0]), to8(px[1]), to8(px[2])
				dst.Pix[di+3] = src.Pix[si+3]
			}
		}
	})
	return dst
}

// radius returns the distance of (x, y) from the frame center, 1 at the corners.
func radius(x, y, w, h int) float64 {
	dx := (float64(x)+0.5)/float64(w) - 0.5
	dy := (float64(y)+0.5)/float64(h) - 0.5
	return math.Sqrt(dx*dx+dy*dy) / math.Sqrt(0.5)
}

func smoothstep(lo, hi, v float64) float64 {
	if hi <= lo {
		if v < lo {
			return 0
		}
		return 1
	}
	t := f64.Clamp((v-lo)/(hi-lo), 0, 1)
	return t * t * (3 - 2*t)
}

// vignette darkens (negative amount) or brightens the frame edges. Midpoint
// moves where the falloff starts, feather widens it.
func vignette(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	v := r.Effects.Vignette
	a := clampUnit(v.Amount / 100)
	if a == 0 {
		return img
	}
	start := 0.15 + 0.7*f64.Clamp(v.Midpoint/100, 0, 1)
	width := 0.05 + 0.9*f64.Clamp(v.Feather/100, 0, 1)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	return eachPixel(img, func(x, y int, px [3]float64) [3]float64 {
		k := smoothstep(start, start+width, radius(x, y, w, h)) * a
		for i := range px {
			if k < 0 {
				px[i] *= 1 + k
			} else {
				px[i] += (1 - px[i]) * k
			}
		}
		return px
	})
}

// grainLayer renders mid-gray centered noise. Roughness both desaturates and
// strengthens the noise.
func grainLayer(w, h int, g recipe.Grain) *image.RGBA {
	p := perlin.NewPerlin(2, 2, 3, grainSeed)
	scale := 1.5 + f64.Clamp(g.Size/100, 0, 1)*6
	rough := f64.Clamp(g.Roughness/100, 0, 1)
	gain := 0.5 + rough

	return eachPixel(image.NewRGBA(image.Rect(0, 0, w, h)), func(x, y int, _ [3]float64) [3]float64 {
		fx, fy := float64(x)/scale, float64(y)/scale
		n := [3]float64{
			p.Noise2D(fx, fy),
			p.Noise2D(fx+101.3, fy+17.9),
			p.Noise2D(fx+47.1, fy+211.7),
		}
		m := (n[0] + n[1] + n[2]) / 3
		for i := range n {
			n[i] += (m - n[i]) * rough
			n[i] = 0.5 + n[i]*gain*0.5
		}
		return n
	})
}

func grain(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	g := r.Effects.Grain
	a := f64.Clamp(g.Amount/100, 0, 1)
	if a == 0 {
		return img
	}
	layer := grainLayer(img.Bounds().Dx(), img.Bounds().Dy(), g)
	for i := 3; i < len(layer.Pix); i += 4 {
		layer.Pix[i] = 0xff
	}
	return blend.Opacity(img, blend.Overlay(img, layer), a)
}

// chromaticAberration approximates radial fringe correction with a slight
// zoom blur, dissolved in toward the edges of the frame.
func chromaticAberration(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	ca := f64.Clamp(math.Abs(r.Lens.ChromaticAberration)/100, 0, 1)
	if ca == 0 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	z := 1 + 0.02*ca
	zw, zh := int(math.Round(float64(w)*z)), int(math.Round(float64(h)*z))
	zoomed := transform.Resize(img, zw, zh, transform.Linear)
	ox, oy := (zw-w)/2, (zh-h)/2
	zoomed = rebase(transform.Crop(zoomed, image.Rect(ox, oy, ox+w, oy+h)))
	blurred := blend.Opacity(img, zoomed, 0.5)

	return eachPixel(img, func(x, y int, px [3]float64) [3]float64 {
		d := radius(x, y, w, h)
		k := d * d * ca
		i := blurred.PixOffset(x, y)
		for c := range px {
			px[c] += (float64(blurred.Pix[i+c])/255 - px[c]) * k
		}
		return px
	})
}
