package develop

import (
	"context"
	"image"
	"math"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/fcolor"
	"github.com/anthonynsimon/bild/parallel"
	"k8s.io/klog/v2"

	"github.com/tstromberg/framkalla/pkg/graph"
)

// RenderGraph applies each enabled adjustment node of g to base in
// topological order and composites its output over the running image.
func (p *Pipeline) RenderGraph(ctx context.Context, g *graph.Graph, base *image.RGBA) (*image.RGBA, error) {
	running := rebase(clone.AsRGBA(base))
	if g == nil {
		return running, nil
	}
	for _, n := range g.Order() {
		if n.Type.IsMarker() || !n.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := apply(ctx, running, n.Recipe, standardChain)
		if err != nil {
			return nil, err
		}
		running = composite(running, out, n)
		klog.V(1).Infof("composited node %q (%s, %s, opacity %.2f)", n.Name, n.Type, n.Blend, n.Opacity)
	}
	return running, nil
}

// composite combines a node's output fg over bg using its blend mode,
// opacity and mask.
func composite(bg, fg *image.RGBA, n graph.Node) *image.RGBA {
	opacity := math.Max(0, math.Min(1, n.Opacity))
	masked := n.Mask != nil && n.Mask.Renders()
	if opacity == 0 {
		return bg
	}
	if fg.Rect.Size() != bg.Rect.Size() {
		// geometry changed the frame: nothing to align against
		return fg
	}
	if (n.Blend == graph.Normal || n.Blend == "") && opacity == 1 && !masked {
		return fg
	}

	mixed := blendModes(bg, fg, n.Blend)
	cov := coverage(bg, n.Mask, opacity)
	layer := clone.AsRGBA(mixed)
	for i := 3; i < len(layer.Pix); i += 4 {
		layer.Pix[i] = cov.Pix[i/4]
	}
	return blend.Normal(bg, layer)
}

// blendModes returns fg blended onto bg at full strength.
func blendModes(bg, fg *image.RGBA, mode graph.BlendMode) *image.RGBA {
	switch mode {
	case graph.Multiply:
		return blend.Multiply(bg, fg)
	case graph.Screen:
		return blend.Screen(bg, fg)
	case graph.Overlay:
		return blend.Overlay(bg, fg)
	case graph.SoftLight:
		return blend.SoftLight(bg, fg)
	case graph.HardLight:
		// hard light is overlay with the layers swapped
		return blend.Overlay(fg, bg)
	case graph.ColorDodge:
		return blend.ColorDodge(bg, fg)
	case graph.ColorBurn:
		return blend.ColorBurn(bg, fg)
	case graph.Luminosity:
		return blend.Blend(bg, fg, nonSeparable(setLumFrom))
	case graph.Color:
		return blend.Blend(bg, fg, nonSeparable(colorOf))
	case graph.Saturation:
		return blend.Blend(bg, fg, nonSeparable(saturationOf))
	case graph.Hue:
		return blend.Blend(bg, fg, nonSeparable(hueOf))
	}
	return fg
}

// coverage renders per-pixel node strength, opacity times mask coverage,
// sampled against the image the node was applied to.
func coverage(bg *image.RGBA, m *graph.Mask, opacity float64) *image.Gray {
	w, h := bg.Rect.Dx(), bg.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				c := opacity
				if m != nil && m.Renders() {
					i := y*bg.Stride + x*4
					c *= m.Coverage(graph.Sample{
						X: (float64(x) + 0.5) / float64(w),
						Y: (float64(y) + 0.5) / float64(h),
						R: float64(bg.Pix[i]) / 255,
						G: float64(bg.Pix[i+1]) / 255,
						B: float64(bg.Pix[i+2]) / 255,
					})
				}
				out.Pix[y*out.Stride+x] = uint8(math.Round(c * 255))
			}
		}
	})
	return out
}

type rgb struct{ r, g, b float64 }

// nonSeparable wraps a W3C non-separable blend of source s over backdrop b.
func nonSeparable(fn func(s, b rgb) rgb) func(fcolor.RGBAF64, fcolor.RGBAF64) fcolor.RGBAF64 {
	return func(bg, fg fcolor.RGBAF64) fcolor.RGBAF64 {
		c := fn(rgb{fg.R, fg.G, fg.B}, rgb{bg.R, bg.G, bg.B})
		return fcolor.RGBAF64{R: c.r, G: c.g, B: c.b, A: bg.A}
	}
}

func lum(c rgb) float64 { return 0.30*c.r + 0.59*c.g + 0.11*c.b }

func sat(c rgb) float64 {
	return math.Max(c.r, math.Max(c.g, c.b)) - math.Min(c.r, math.Min(c.g, c.b))
}

func clipColor(c rgb) rgb {
	l := lum(c)
	n := math.Min(c.r, math.Min(c.g, c.b))
	x := math.Max(c.r, math.Max(c.g, c.b))
	if n < 0 {
		c = rgb{l + (c.r-l)*l/(l-n), l + (c.g-l)*l/(l-n), l + (c.b-l)*l/(l-n)}
	}
	if x > 1 {
		c = rgb{l + (c.r-l)*(1-l)/(x-l), l + (c.g-l)*(1-l)/(x-l), l + (c.b-l)*(1-l)/(x-l)}
	}
	return c
}

func setLum(c rgb, l float64) rgb {
	d := l - lum(c)
	return clipColor(rgb{c.r + d, c.g + d, c.b + d})
}

func setSat(c rgb, s float64) rgb {
	ch := []*float64{&c.r, &c.g, &c.b}
	// order channels min, mid, max
	if *ch[0] > *ch[1] {
		ch[0], ch[1] = ch[1], ch[0]
	}
	if *ch[1] > *ch[2] {
		ch[1], ch[2] = ch[2], ch[1]
	}
	if *ch[0] > *ch[1] {
		ch[0], ch[1] = ch[1], ch[0]
	}
	lo, mid, hi := *ch[0], *ch[1], *ch[2]
	if hi > lo {
		*ch[1] = (mid - lo) * s / (hi - lo)
		*ch[2] = s
	} else {
		*ch[1], *ch[2] = 0, 0
	}
	*ch[0] = 0
	return c
}

func setLumFrom(s, b rgb) rgb   { return setLum(b, lum(s)) }
func colorOf(s, b rgb) rgb      { return setLum(s, lum(b)) }
func saturationOf(s, b rgb) rgb { return setLum(setSat(b, sat(s)), lum(b)) }
func hueOf(s, b rgb) rgb        { return setLum(setSat(s, sat(b)), lum(b)) }
