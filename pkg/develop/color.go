package develop

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/math/f64"
	"github.com/anthonynsimon/bild/util"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

// vibrance raises saturation more for muted colors than for saturated ones.
func vibrance(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	v := clampUnit(r.Color.Vibrance / 100)
	if v == 0 {
		return img
	}
	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		h, s, l := util.RGBToHSL(c)
		if s == 0 {
			return c
		}
		s = f64.Clamp(s*(1+v*(1-s)), 0, 1)
		out := util.HSLToRGB(h, s, l)
		out.A = c.A
		return out
	})
}

func saturation(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	s := clampUnit(r.Color.Saturation / 100)
	if s == 0 {
		return img
	}
	return adjust.Saturation(img, s)
}

// toneColor returns the additive bias for a hue at the given strength.
func toneColor(hue, strength float64) [3]float64 {
	c := util.HSLToRGB(math.Mod(math.Mod(hue, 360)+360, 360), 1, 0.5)
	return [3]float64{
		(float64(c.R)/255 - 0.5) * strength,
		(float64(c.G)/255 - 0.5) * strength,
		(float64(c.B)/255 - 0.5) * strength,
	}
}

func splitToning(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	st := r.Effects.SplitToning
	if st.HighlightSaturation == 0 && st.ShadowSaturation == 0 {
		return img
	}
	hi := toneColor(st.HighlightHue, f64.Clamp(st.HighlightSaturation/100, 0, 1)*0.25)
	lo := toneColor(st.ShadowHue, f64.Clamp(st.ShadowSaturation/100, 0, 1)*0.25)
	bal := clampUnit(st.Balance / 100)

	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		px := [3]float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
		l := luma(px[0], px[1], px[2])
		wh := l * l * (1 + bal)
		ws := (1 - l) * (1 - l) * (1 - bal)
		var out [3]uint8
		for i := range px {
			out[i] = to8(px[i] + hi[i]*wh + lo[i]*ws)
		}
		return color.RGBA{out[0], out[1], out[2], c.A}
	})
}

// hslShift blends the eight band adjustments for one hue. Each band's weight
// falls off linearly to zero 30° from its center.
func hslShift(bands [8]recipe.HSLBand, hue float64) (dh, ds, dl float64) {
	var total float64
	for i, b := range bands {
		d := math.Abs(hue - recipe.BandHues[i])
		if d > 180 {
			d = 360 - d
		}
		w := math.Max(0, 1-d/30)
		if w == 0 {
			continue
		}
		total += w
		dh += w * b.Hue
		ds += w * b.Saturation
		dl += w * b.Luminance
	}
	if total == 0 {
		return 0, 0, 0
	}
	return dh / total, ds / total, dl / total
}

// hslCube builds the 32³ cube for the 8-band HSL adjustment.
func hslCube(h recipe.HSL) *Cube {
	bands := h.Bands()
	return NewCube(32, func(r, g, b float64) (float64, float64, float64) {
		hue, s, l := util.RGBToHSL(color.RGBA{to8(r), to8(g), to8(b), 0xff})
		if s == 0 {
			return r, g, b
		}
		dh, ds, dl := hslShift(bands, hue)
		if dh == 0 && ds == 0 && dl == 0 {
			return r, g, b
		}
		hue = math.Mod(hue+dh/100*30+360, 360)
		s = f64.Clamp(s*(1+ds/100), 0, 1)
		l = f64.Clamp(l+dl/100*0.3*s, 0, 1)
		out := util.HSLToRGB(hue, s, l)
		return float64(out.R) / 255, float64(out.G) / 255, float64(out.B) / 255
	})
}

func hsl(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	if r.HSL.IsDefault() {
		return img
	}
	return hslCube(r.HSL).Apply(img)
}

// calibration approximates per-primary calibration with a shadow tint on
// green plus a global hue rotation and saturation change.
func calibration(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	cal := r.Grading.Calibration
	if cal == (recipe.Calibration{}) {
		return img
	}
	out := img
	if cal.ShadowTint != 0 {
		// positive tint is magenta: darken green, mostly in the shadows
		g := 1 + clampUnit(cal.ShadowTint/100)*0.15
		id := newLUT(func(v float64) float64 { return v })
		green := newLUT(func(v float64) float64 { return math.Pow(v, g) })
		out = applyLUTs(out, id, green, id)
	}
	if hue := int(math.Round((cal.RedHue + cal.GreenHue + cal.BlueHue) / 3 / 100 * 20)); hue != 0 {
		// adjust.Hue expects a non-negative rotation
		out = adjust.Hue(out, (hue%360+360)%360)
	}
	if sat := (cal.RedSaturation + cal.GreenSaturation + cal.BlueSaturation) / 3 / 100 * 0.5; sat != 0 {
		out = adjust.Saturation(out, sat)
	}
	return out
}
