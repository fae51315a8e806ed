package raw

import "math"

// WhiteBalance is an absolute color temperature in Kelvin and a green/magenta tint.
type WhiteBalance struct {
	Temperature float64
	Tint        float64
}

// DefaultAsShot is used when a file does not record its capture white balance.
var DefaultAsShot = WhiteBalance{Temperature: 5500}

// illuminant approximates the RGB color of a black body at kelvin, normalized to green.
func illuminant(kelvin float64) [3]float64 {
	t := math.Max(1000, math.Min(40000, kelvin)) / 100

	var r, g, b float64
	if t <= 66 {
		r = 255
		g = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}
	switch {
	case t >= 66:
		b = 255
	case t <= 19:
		b = 0
	default:
		b = 138.5177312231*math.Log(t-10) - 305.0447927307
	}

	r = math.Max(1, math.Min(255, r))
	g = math.Max(1, math.Min(255, g))
	b = math.Max(1, math.Min(255, b))
	return [3]float64{r / g, 1, b / g}
}

// Gains returns per-channel multipliers that re-balance an image captured at
// from so it renders as if balanced for to. Equal inputs return exactly 1.
func Gains(from, to WhiteBalance) [3]float64 {
	if from == to {
		return [3]float64{1, 1, 1}
	}
	a := illuminant(from.Temperature)
	b := illuminant(to.Temperature)
	// raising the temperature setting warms the image
	gains := [3]float64{a[0] / b[0], 1, a[2] / b[2]}

	// positive tint pushes toward magenta
	gains[1] = math.Exp(-(to.Tint - from.Tint) / 150 * 0.3)

	// keep mean luminance roughly unchanged
	norm := 0.2126*gains[0] + 0.7152*gains[1] + 0.0722*gains[2]
	for i := range gains {
		gains[i] /= norm
	}
	return gains
}
