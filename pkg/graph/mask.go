package graph

import (
	"math"
)

// MaskKind selects the mask variant.
type MaskKind string

const (
	LuminosityMask MaskKind = "luminosity"
	HueMask        MaskKind = "hue"
	RadialMask     MaskKind = "radial"
	LinearMask     MaskKind = "linear"
)

// LuminosityRange selects pixels whose luminance is within [Min, Max].
type LuminosityRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// HueRange selects pixels within Range degrees of Hue and at least MinSaturation saturated.
type HueRange struct {
	Hue           float64 `json:"hue"`
	Range         float64 `json:"range"`
	MinSaturation float64 `json:"minSaturation"`
}

// Radial selects a circle in normalized coordinates.
type Radial struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Radius  float64 `json:"radius"`
}

// Linear selects the half plane past Position along the direction given by Angle (degrees).
type Linear struct {
	Angle    float64 `json:"angle"`
	Position float64 `json:"position"`
	Falloff  float64 `json:"falloff"`
}

// Mask restricts where a node applies. Exactly one of the variant fields
// matching Kind is expected to be set.
type Mask struct {
	Kind       MaskKind         `json:"kind"`
	Luminosity *LuminosityRange `json:"luminosity,omitempty"`
	Hue        *HueRange        `json:"hue,omitempty"`
	Radial     *Radial          `json:"radial,omitempty"`
	Linear     *Linear          `json:"linear,omitempty"`
	Feather    float64          `json:"feather"`
	Invert     bool             `json:"invert"`
}

// Sample is a pixel: position normalized to [0,1] and color in [0,1].
type Sample struct {
	X, Y    float64
	R, G, B float64
}

// Luma returns Rec. 709 luminance.
func Luma(r, g, b float64) float64 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// Matches reports whether the sample is selected, honoring Invert.
func (m Mask) Matches(s Sample) bool {
	return m.inside(s) != m.Invert
}

func (m Mask) inside(s Sample) bool {
	switch m.Kind {
	case LuminosityMask:
		if m.Luminosity == nil {
			return true
		}
		l := Luma(s.R, s.G, s.B)
		return l >= m.Luminosity.Min && l <= m.Luminosity.Max
	case HueMask:
		if m.Hue == nil {
			return true
		}
		h, sat := hueSat(s.R, s.G, s.B)
		return sat >= m.Hue.MinSaturation && hueDistance(h, m.Hue.Hue) <= m.Hue.Range
	case RadialMask:
		if m.Radial == nil {
			return true
		}
		return math.Hypot(s.X-m.Radial.CenterX, s.Y-m.Radial.CenterY) <= m.Radial.Radius
	case LinearMask:
		if m.Linear == nil {
			return true
		}
		return m.Linear.project(s) >= m.Linear.Position
	}
	return true
}

// Coverage returns how strongly the node applies at the sample, in [0,1].
// Hue masks are not rendered and always report full coverage.
func (m Mask) Coverage(s Sample) float64 {
	c := m.coverage(s)
	if m.Invert {
		return 1 - c
	}
	return c
}

// Renders reports whether Coverage depends on the sample at all.
func (m Mask) Renders() bool {
	return m.Kind != HueMask
}

func (m Mask) coverage(s Sample) float64 {
	f := clamp01(m.Feather / 100)
	switch m.Kind {
	case LuminosityMask:
		if m.Luminosity == nil {
			return 1
		}
		l := Luma(s.R, s.G, s.B)
		w := 0.25 * f
		return ramp(l, m.Luminosity.Min-w, m.Luminosity.Min) * (1 - ramp(l, m.Luminosity.Max, m.Luminosity.Max+w))
	case RadialMask:
		if m.Radial == nil {
			return 1
		}
		d := math.Hypot(s.X-m.Radial.CenterX, s.Y-m.Radial.CenterY)
		r := m.Radial.Radius
		return 1 - ramp(d, r*(1-f), r)
	case LinearMask:
		if m.Linear == nil {
			return 1
		}
		w := math.Max(m.Linear.Falloff, 1e-6)
		return clamp01(0.5 + (m.Linear.project(s)-m.Linear.Position)/w)
	}
	return 1
}

func (l Linear) project(s Sample) float64 {
	a := l.Angle * math.Pi / 180
	return (s.X-0.5)*math.Cos(a) + (s.Y-0.5)*math.Sin(a) + 0.5
}

// ramp is 0 below lo, 1 above hi, and linear in between. A zero width ramp is a step at hi.
func ramp(v, lo, hi float64) float64 {
	if hi <= lo {
		if v >= hi {
			return 1
		}
		return 0
	}
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func hueDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// hueSat returns HSL hue in degrees and saturation in [0,1].
func hueSat(r, g, b float64) (float64, float64) {
	mx := math.Max(r, math.Max(g, b))
	mn := math.Min(r, math.Min(g, b))
	d := mx - mn
	if d <= 0 {
		return 0, 0
	}
	l := (mx + mn) / 2
	var s float64
	if l < 0.5 {
		s = d / (mx + mn)
	} else {
		s = d / (2 - mx - mn)
	}
	var h float64
	switch mx {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s
}
