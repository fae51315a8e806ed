package develop

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/math/f64"

	"github.com/tstromberg/framkalla/pkg/raw"
	"github.com/tstromberg/framkalla/pkg/recipe"
)

// lut is a per-channel 8-bit lookup table.
type lut [256]uint8

func newLUT(fn func(float64) float64) *lut {
	var l lut
	for i := range l {
		l[i] = uint8(f64.Clamp(math.Round(fn(float64(i)/255)*255), 0, 255))
	}
	return &l
}

func applyLUTs(img *image.RGBA, r, g, b *lut) *image.RGBA {
	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return color.RGBA{r[c.R], g[c.G], b[c.B], c.A}
	})
}

func applyLUT(img *image.RGBA, l *lut) *image.RGBA {
	return applyLUTs(img, l, l, l)
}

// exposure brightens by 2^EV after decode.
func exposure(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	ev := r.Light.Exposure
	if ev == 0 {
		return img
	}
	return adjust.Brightness(img, math.Exp2(ev)-1)
}

// whiteBalance rebalances channels relative to a neutral 6500K capture.
func whiteBalance(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	if r.WhiteBalance.IsDefault() {
		return img
	}
	t, tint := r.WhiteBalance.Resolve(recipe.NeutralTemperature, 0)
	g := raw.Gains(raw.WhiteBalance{Temperature: recipe.NeutralTemperature}, raw.WhiteBalance{Temperature: t, Tint: tint})
	if g == [3]float64{1, 1, 1} {
		return img
	}
	gain := func(k float64) *lut { return newLUT(func(v float64) float64 { return v * k }) }
	return applyLUTs(img, gain(g[0]), gain(g[1]), gain(g[2]))
}

// contrastCurve is the S-curve for contrast in -1..1: positive pulls the
// quarter tone down and the three-quarter tone up around a fixed midpoint.
func contrastCurve(c float64) recipe.Curve {
	d := 0.12 * c
	return recipe.Curve{{X: 0, Y: 0}, {X: 0.25, Y: 0.25 - d}, {X: 0.5, Y: 0.5}, {X: 0.75, Y: 0.75 + d}, {X: 1, Y: 1}}
}

func contrast(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	if r.Light.Contrast == 0 {
		return img
	}
	cv := contrastCurve(clampUnit(r.Light.Contrast / 100))
	return applyLUT(img, newLUT(cv.At))
}

// amplify scales a -1..1 control so the extremes act stronger than linear.
func amplify(v float64) float64 {
	return v * (1 + math.Abs(v))
}

func highlightsShadows(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	h := clampUnit(r.Light.Highlights / 100)
	s := clampUnit(r.Light.Shadows / 100)
	if h == 0 && s == 0 {
		return img
	}
	ah, as := amplify(h), amplify(s)
	out := applyLUT(img, newLUT(func(v float64) float64 {
		shadowW := v * (1 - v) * (1 - v)
		highW := v * v * (1 - v)
		return v + 0.6*as*shadowW + 0.6*ah*highW
	}))

	if math.Abs(h) > 0.5 || math.Abs(s) > 0.5 {
		// midtones follow the dominant control a little
		g := 1 + 0.1*(s+h)/2
		out = adjust.Gamma(out, g)
	}
	return out
}

// whitesBlacks is a single power curve: out = in^g with g = 1 + (blacks - whites)/200.
func whitesBlacks(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	if r.Light.Whites == 0 && r.Light.Blacks == 0 {
		return img
	}
	g := f64.Clamp(1+(r.Light.Blacks-r.Light.Whites)/200, 0.5, 2)
	if g == 1 {
		return img
	}
	return adjust.Gamma(img, 1/g)
}

// fiveCurve returns the 5-point piecewise-linear reconstruction of c.
func fiveCurve(c recipe.Curve) recipe.Curve {
	ys := c.Sample5()
	out := make(recipe.Curve, len(recipe.SampleX))
	for i, x := range recipe.SampleX {
		out[i] = recipe.CurvePoint{X: x, Y: ys[i]}
	}
	return out
}

func toneCurve(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	if r.ToneCurve.IsLinear() {
		return img
	}
	return applyLUT(img, newLUT(fiveCurve(r.ToneCurve).At))
}

// rgbCurves applies the master curve to luminance and the channel curves through a 64³ cube.
func rgbCurves(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	c := r.RGBCurves
	out := img
	if !c.Master.IsLinear() {
		m := fiveCurve(c.Master)
		out = adjust.Apply(out, func(px color.RGBA) color.RGBA {
			rf, gf, bf := float64(px.R)/255, float64(px.G)/255, float64(px.B)/255
			y := luma(rf, gf, bf)
			d := m.At(y) - y
			return color.RGBA{to8(rf + d), to8(gf + d), to8(bf + d), px.A}
		})
	}
	if !c.ChannelsLinear() {
		rc, gc, bc := fiveCurve(c.Red), fiveCurve(c.Green), fiveCurve(c.Blue)
		cube := NewCube(64, func(r, g, b float64) (float64, float64, float64) {
			return rc.At(r), gc.At(g), bc.At(b)
		})
		out = cube.Apply(out)
	}
	return out
}

func luma(r, g, b float64) float64 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

func to8(v float64) uint8 {
	return uint8(f64.Clamp(math.Round(v*255), 0, 255))
}

func clampUnit(v float64) float64 {
	return f64.Clamp(v, -1, 1)
}
