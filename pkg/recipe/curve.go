package recipe

import (
	"math"
	"sort"
)

// CurvePoint is a control point in [0,1]x[0,1].
type CurvePoint struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Curve is an ordered set of control points, monotonic in X.
type Curve []CurvePoint

// SampleX are the positions a curve is reduced to before rendering.
var SampleX = [5]float64{0, 0.25, 0.5, 0.75, 1}

// LinearCurve returns the five point identity curve.
func LinearCurve() Curve {
	c := make(Curve, len(SampleX))
	for i, x := range SampleX {
		c[i] = CurvePoint{X: x, Y: x}
	}
	return c
}

// At evaluates the curve at x by linear interpolation between the two
// bracketing points. Outside the outermost points the nearest Y is used.
func (c Curve) At(x float64) float64 {
	if len(c) == 0 {
		return x
	}
	pts := c.sorted()
	if x <= pts[0].X {
		return pts[0].Y
	}
	last := pts[len(pts)-1]
	if x >= last.X {
		return last.Y
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].X >= x })
	lo, hi := pts[i-1], pts[i]
	if hi.X == lo.X {
		return hi.Y
	}
	t := (x - lo.X) / (hi.X - lo.X)
	return lo.Y + t*(hi.Y-lo.Y)
}

// Sample5 reduces the curve to its Y values at SampleX.
func (c Curve) Sample5() [5]float64 {
	var ys [5]float64
	for i, x := range SampleX {
		ys[i] = c.At(x)
	}
	return ys
}

// IsLinear reports whether the sampled curve is the identity.
func (c Curve) IsLinear() bool {
	ys := c.Sample5()
	for i, x := range SampleX {
		if math.Abs(ys[i]-x) > 1e-6 {
			return false
		}
	}
	return true
}

func (c Curve) sorted() Curve {
	if sort.SliceIsSorted(c, func(i, j int) bool { return c[i].X < c[j].X }) {
		return c
	}
	s := make(Curve, len(c))
	copy(s, c)
	sort.SliceStable(s, func(i, j int) bool { return s[i].X < s[j].X })
	return s
}
