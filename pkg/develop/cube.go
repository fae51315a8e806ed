package develop

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/parallel"
)

// Cube is a 3-D lookup table sampled on a regular size³ grid over [0,1]³.
type Cube struct {
	Size int
	// Data holds r,g,b triples, red varying fastest.
	Data []float32
}

// NewCube samples fn on a size³ grid.
func NewCube(size int, fn func(r, g, b float64) (float64, float64, float64)) *Cube {
	if size < 2 {
		size = 2
	}
	c := &Cube{Size: size, Data: make([]float32, size*size*size*3)}
	step := 1 / float64(size-1)
	parallel.Line(size, func(start, end int) {
		for b := start; b < end; b++ {
			for g := 0; g < size; g++ {
				for r := 0; r < size; r++ {
					or, og, ob := fn(float64(r)*step, float64(g)*step, float64(b)*step)
					i := c.index(r, g, b)
					c.Data[i], c.Data[i+1], c.Data[i+2] = float32(or), float32(og), float32(ob)
				}
			}
		}
	})
	return c
}

func (c *Cube) index(r, g, b int) int {
	return ((b*c.Size+g)*c.Size + r) * 3
}

// Lookup interpolates the cube trilinearly at (r, g, b).
func (c *Cube) Lookup(r, g, b float64) (float64, float64, float64) {
	n := float64(c.Size - 1)
	fr, ir := split(r*n, c.Size)
	fg, ig := split(g*n, c.Size)
	fb, ib := split(b*n, c.Size)

	var out [3]float64
	for k := 0; k < 3; k++ {
		c000 := float64(c.Data[c.index(ir, ig, ib)+k])
		c100 := float64(c.Data[c.index(ir+1, ig, ib)+k])
		c010 := float64(c.Data[c.index(ir, ig+1, ib)+k])
		c110 := float64(c.Data[c.index(ir+1, ig+1, ib)+k])
		c001 := float64(c.Data[c.index(ir, ig, ib+1)+k])
		c101 := float64(c.Data[c.index(ir+1, ig, ib+1)+k])
		c011 := float64(c.Data[c.index(ir, ig+1, ib+1)+k])
		c111 := float64(c.Data[c.index(ir+1, ig+1, ib+1)+k])

		c00 := c000 + (c100-c000)*fr
		c10 := c010 + (c110-c010)*fr
		c01 := c001 + (c101-c001)*fr
		c11 := c011 + (c111-c011)*fr
		c0 := c00 + (c10-c00)*fg
		c1 := c01 + (c11-c01)*fg
		out[k] = c0 + (c1-c0)*fb
	}
	return out[0], out[1], out[2]
}

// split returns the fractional part and the lower cell index of v, keeping
// the upper neighbor inside the grid.
func split(v float64, size int) (float64, int) {
	v = math.Max(0, math.Min(float64(size-1), v))
	i := int(v)
	if i >= size-1 {
		i = size - 2
	}
	return v - float64(i), i
}

// Apply maps every pixel of img through the cube.
func (c *Cube) Apply(img image.Image) *image.RGBA {
	return adjust.Apply(img, func(px color.RGBA) color.RGBA {
		r, g, b := c.Lookup(float64(px.R)/255, float64(px.G)/255, float64(px.B)/255)
		return color.RGBA{to8(r), to8(g), to8(b), px.A}
	})
}
