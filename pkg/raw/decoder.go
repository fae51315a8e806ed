// Package raw develops sensor data with decode-time exposure, shadow and white balance controls.
package raw

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/parallel"
	"k8s.io/klog/v2"
)

// Decoder holds the linearized sensor data for one asset plus the decode-time
// parameters. It is not safe for concurrent use; callers serialize access.
type Decoder struct {
	sensor  Sensor
	profile Profile
	asShot  WhiteBalance

	ev      float64
	shadows float64
	wb      WhiteBalance

	rect   image.Rectangle
	linear []float32
}

var (
	lutOnce  sync.Once
	toLinear [256]float32
	toSRGB   [65536]uint16
)

func buildLUTs() {
	for i := range toLinear {
		toLinear[i] = float32(srgbToLinear(float64(i) / 255))
	}
	for i := range toSRGB {
		toSRGB[i] = uint16(math.Round(linearToSRGB(float64(i)/65535) * 65535))
	}
}

func srgbToLinear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func linearToSRGB(v float64) float64 {
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

// NewDecoder returns a decoder for s. Sensor data is loaded on the first Decode.
func NewDecoder(s Sensor, p Profile) (*Decoder, error) {
	if s == nil {
		return nil, errors.New("nil sensor")
	}
	lutOnce.Do(buildLUTs)
	asShot := s.AsShot()
	if asShot.Temperature <= 0 {
		asShot = DefaultAsShot
	}
	return &Decoder{sensor: s, profile: p, asShot: asShot, wb: asShot}, nil
}

// SetExposure sets the exposure bias in stops.
func (d *Decoder) SetExposure(ev float64) { d.ev = ev }

// SetShadows sets the shadow recovery amount (0..100). Negative values are ignored:
// the decoder only lifts shadows.
func (d *Decoder) SetShadows(v float64) { d.shadows = math.Max(0, math.Min(100, v)) }

// SetWhiteBalance overrides the white balance.
func (d *Decoder) SetWhiteBalance(wb WhiteBalance) { d.wb = wb }

// ResetWhiteBalance restores the captured white balance.
func (d *Decoder) ResetWhiteBalance() { d.wb = d.asShot }

// WhiteBalance returns the white balance the next Decode will use.
func (d *Decoder) WhiteBalance() WhiteBalance { return d.wb }

// AsShot returns the captured white balance.
func (d *Decoder) AsShot() WhiteBalance { return d.asShot }

// Profile returns the camera profile in use.
func (d *Decoder) Profile() Profile { return d.profile }

// EstimatedBytes approximates the memory held by the decoder.
func (d *Decoder) EstimatedBytes() int64 {
	if d.linear == nil {
		w, h := d.rect.Dx(), d.rect.Dy()
		return int64(w * h * 3 * 4)
	}
	return int64(len(d.linear) * 4)
}

func (d *Decoder) load(ctx context.Context) error {
	if d.linear != nil {
		return nil
	}
	img, err := d.sensor.Load(ctx)
	if err != nil {
		return fmt.Errorf("load sensor: %w", err)
	}
	src := clone.AsRGBA(img)
	d.rect = src.Bounds()
	w, h := d.rect.Dx(), d.rect.Dy()
	if w == 0 || h == 0 {
		return fmt.Errorf("empty sensor image")
	}

	lin := make([]float32, w*h*3)
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				si := y*src.Stride + x*4
				di := (y*w + x) * 3
				lin[di] = toLinear[src.Pix[si]]
				lin[di+1] = toLinear[src.Pix[si+1]]
				lin[di+2] = toLinear[src.Pix[si+2]]
			}
		}
	})
	d.linear = lin
	klog.V(1).Infof("linearized %dx%d sensor image (%d bytes)", w, h, len(lin)*4)
	return nil
}

// Decode develops the sensor data with the current parameters into an 8-bit sRGB raster.
func (d *Decoder) Decode(ctx context.Context) (*image.RGBA, error) {
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := d.rect.Dx(), d.rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	gains := Gains(d.asShot, d.wb)
	mult := math.Exp2(d.ev)
	lift := d.shadows / 100 * 0.25
	p := d.profile
	plain := p.IsIdentity()

	klog.V(2).Infof("decode: ev=%.2f shadows=%.0f wb=%+v gains=%.3f profile=%s", d.ev, d.shadows, d.wb, gains, p.ID)

	parallel.Line(h, func(start, end int) {
		var c [3]float64
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				si := (y*w + x) * 3
				for i := range c {
					c[i] = float64(d.linear[si+i]) * gains[i] * mult
				}
				if lift > 0 {
					for i := range c {
						c[i] = liftShadow(c[i], lift)
					}
				}

				di := y*dst.Stride + x*4
				if plain {
					for i := range c {
						dst.Pix[di+i] = to8(encode(c[i]))
					}
				} else {
					e := p.develop(c)
					for i := range e {
						dst.Pix[di+i] = uint8(math.Round(clamp01(e[i]) * 255))
					}
				}
				dst.Pix[di+3] = 0xff
			}
		}
	})
	return dst, nil
}

// liftShadow raises dark linear values, leaving values above ~0.5 nearly untouched.
func liftShadow(v, lift float64) float64 {
	if v >= 1 {
		return v
	}
	k := 1 - math.Max(0, v)
	return v + lift*k*k*k*k*(1-k*0.5)
}

// encode maps a linear value to 16-bit sRGB.
func encode(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 65535
	}
	return toSRGB[int(v*65535+0.5)]
}

func to8(v uint16) uint8 {
	return uint8((uint32(v)*255 + 32767) / 65535)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// develop applies the profile to linear camera RGB and returns encoded sRGB.
func (p Profile) develop(c [3]float64) [3]float64 {
	m := p.Matrix
	var out [3]float64
	for i := range out {
		v := m[i][0]*c[0] + m[i][1]*c[1] + m[i][2]*c[2]
		out[i] = p.curve(float64(encode(p.Shoulder.apply(v))) / 65535)
	}
	if p.Look == nil {
		return out
	}

	l := p.Look
	luma := 0.2126*out[0] + 0.7152*out[1] + 0.0722*out[2]
	for i := range out {
		out[i] = luma + (out[i]-luma)*(1+l.Saturation)
		out[i] = (out[i]-0.5)*(1+l.Contrast) + 0.5
	}
	out[0] *= 1 + l.Warmth
	out[2] *= 1 - l.Warmth
	if l.ShadowTint != 0 {
		s := 1 - clamp01(luma)
		out[1] += l.ShadowTint * s * s * 0.1
	}
	return out
}
