package develop

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/math/f64"
	"github.com/anthonynsimon/bild/parallel"
	"github.com/anthonynsimon/bild/transform"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

type point struct{ x, y float64 }

// quad maps the unit square onto four corners by bilinear interpolation.
type quad [4]point // top-left, top-right, bottom-left, bottom-right

func (q quad) at(u, v float64) point {
	top := point{q[0].x + (q[1].x-q[0].x)*u, q[0].y + (q[1].y-q[0].y)*u}
	bot := point{q[2].x + (q[3].x-q[2].x)*u, q[2].y + (q[3].y-q[2].y)*u}
	return point{top.x + (bot.x-top.x)*v, top.y + (bot.y-top.y)*v}
}

// keystone returns the source quad for vertical and horizontal bias in -1..1.
// Positive vertical pulls the top edge in, undoing converging verticals.
func keystone(vert, horiz float64) quad {
	kt, kb := math.Max(0, 0.2*vert), math.Max(0, -0.2*vert)
	kl, kr := math.Max(0, 0.2*horiz), math.Max(0, -0.2*horiz)
	return quad{
		{kt, kl},
		{1 - kt, kr},
		{kb, 1 - kl},
		{1 - kb, 1 - kr},
	}
}

// sample reads img at (fx, fy) with bilinear filtering, clamping at the edges.
func sample(img *image.RGBA, fx, fy float64) [4]uint8 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	fx = f64.Clamp(fx-0.5, 0, float64(w-1))
	fy = f64.Clamp(fy-0.5, 0, float64(h-1))
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	tx, ty := fx-float64(x0), fy-float64(y0)

	var out [4]uint8
	for c := 0; c < 4; c++ {
		p00 := float64(img.Pix[y0*img.Stride+x0*4+c])
		p10 := float64(img.Pix[y0*img.Stride+x1*4+c])
		p01 := float64(img.Pix[y1*img.Stride+x0*4+c])
		p11 := float64(img.Pix[y1*img.Stride+x1*4+c])
		top := p00 + (p10-p00)*tx
		bot := p01 + (p11-p01)*tx
		out[c] = uint8(f64.Clamp(math.Round(top+(bot-top)*ty), 0, 255))
	}
	return out
}

// perspective applies the keystone quad, then fine rotation, then a uniform
// scale that also grows the frame enough to hide rotated corners.
func perspective(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	p := r.Lens.Perspective
	scale := p.Scale / 100
	if scale <= 0 {
		scale = 1
	}
	if p.Vertical == 0 && p.Horizontal == 0 && p.Rotate == 0 && scale == 1 {
		return img
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	fw, fh := float64(w), float64(h)
	q := keystone(clampUnit(p.Vertical/100), clampUnit(p.Horizontal/100))
	theta := p.Rotate * math.Pi / 180
	sin, cos := math.Sincos(-theta)
	fill := math.Abs(math.Cos(theta)) + math.Abs(math.Sin(theta))*math.Max(fw/fh, fh/fw)
	zoom := scale * fill
	cx, cy := fw/2, fh/2

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				dx := (float64(x) + 0.5 - cx) / zoom
				dy := (float64(y) + 0.5 - cy) / zoom
				u := (cx + dx*cos - dy*sin) / fw
				v := (cy + dx*sin + dy*cos) / fh
				s := q.at(u, v)
				px := sample(img, s.x*fw, s.y*fh)
				i := y*dst.Stride + x*4
				copy(dst.Pix[i:i+4], px[:])
			}
		}
	})
	return dst
}

func rotate(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	if r.Crop.Angle == 0 {
		return img
	}
	return transform.Rotate(img, r.Crop.Angle, nil)
}

// cropRect converts a normalized rectangle to pixels within a w x h frame.
func cropRect(n recipe.Rect, w, h int) image.Rectangle {
	x0 := int(math.Round(f64.Clamp(n.X, 0, 1) * float64(w)))
	y0 := int(math.Round(f64.Clamp(n.Y, 0, 1) * float64(h)))
	x1 := int(math.Round(f64.Clamp(n.X+n.W, 0, 1) * float64(w)))
	y1 := int(math.Round(f64.Clamp(n.Y+n.H, 0, 1) * float64(h)))
	return image.Rect(x0, y0, x1, y1)
}

func crop(img *image.RGBA, r *recipe.Recipe) *image.RGBA {
	c := r.Crop
	if !c.Enabled || c.Rect.IsFull() {
		return img
	}
	rect := cropRect(c.Rect, img.Rect.Dx(), img.Rect.Dy())
	if rect.Empty() {
		return nil
	}
	return transform.Crop(img, rect)
}
