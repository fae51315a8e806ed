// Package recipe describes the non-destructive set of adjustments applied to one asset.
package recipe

import (
	"reflect"
	"slices"
)

// Light holds the basic tonal adjustments. Exposure is in stops, everything else is -100..100.
type Light struct {
	Exposure   float64 `json:"exposure" yaml:"exposure"`
	Contrast   float64 `json:"contrast" yaml:"contrast"`
	Highlights float64 `json:"highlights" yaml:"highlights"`
	Shadows    float64 `json:"shadows" yaml:"shadows"`
	Whites     float64 `json:"whites" yaml:"whites"`
	Blacks     float64 `json:"blacks" yaml:"blacks"`
}

// WBPreset names a white balance preset.
type WBPreset string

const (
	AsShot      WBPreset = "as-shot"
	Auto        WBPreset = "auto"
	Daylight    WBPreset = "daylight"
	Cloudy      WBPreset = "cloudy"
	Shade       WBPreset = "shade"
	Tungsten    WBPreset = "tungsten"
	Fluorescent WBPreset = "fluorescent"
	Flash       WBPreset = "flash"
	Custom      WBPreset = "custom"
)

// NeutralTemperature is the Kelvin value treated as "no correction" for standard sources.
const NeutralTemperature = 6500.0

var presetKelvin = map[WBPreset][2]float64{
	Daylight:    {5500, 10},
	Cloudy:      {6500, 10},
	Shade:       {7500, 10},
	Tungsten:    {2850, 0},
	Fluorescent: {3800, 21},
	Flash:       {5500, 0},
}

// WhiteBalance is an absolute color temperature (2000-12000K) and tint (-150..150).
type WhiteBalance struct {
	Preset      WBPreset `json:"preset" yaml:"preset"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
	Tint        float64  `json:"tint" yaml:"tint"`
}

// IsDefault reports whether the white balance carries no edit.
func (wb WhiteBalance) IsDefault() bool {
	return wb == defaultWhiteBalance()
}

// Resolve returns the temperature and tint to use, given the captured baseline.
// Named presets win over Temperature and Tint. Under as-shot, a Temperature
// other than NeutralTemperature or a non-zero Tint overrides that component.
func (wb WhiteBalance) Resolve(asShotTemp, asShotTint float64) (float64, float64) {
	switch wb.Preset {
	case AsShot, "":
		t, tint := asShotTemp, asShotTint
		if wb.Temperature != 0 && wb.Temperature != NeutralTemperature {
			t = clamp(wb.Temperature, 2000, 12000)
		}
		if wb.Tint != 0 {
			tint = clamp(wb.Tint, -150, 150)
		}
		return t, tint
	case Auto:
		return asShotTemp, asShotTint
	case Custom:
		return clamp(wb.Temperature, 2000, 12000), clamp(wb.Tint, -150, 150)
	}
	if kt, ok := presetKelvin[wb.Preset]; ok {
		return kt[0], kt[1]
	}
	return asShotTemp, asShotTint
}

// Color holds global color adjustments (-100..100).
type Color struct {
	Vibrance   float64 `json:"vibrance" yaml:"vibrance"`
	Saturation float64 `json:"saturation" yaml:"saturation"`
}

// RGBCurves are the master and per-channel curves.
type RGBCurves struct {
	Master Curve `json:"master" yaml:"master"`
	Red    Curve `json:"red" yaml:"red"`
	Green  Curve `json:"green" yaml:"green"`
	Blue   Curve `json:"blue" yaml:"blue"`
}

// ChannelsLinear reports whether none of the per-channel curves deviate from linear.
func (c RGBCurves) ChannelsLinear() bool {
	return c.Red.IsLinear() && c.Green.IsLinear() && c.Blue.IsLinear()
}

// HSLBand is the hue shift, saturation, and luminance for a single hue band (-100..100).
type HSLBand struct {
	Hue        float64 `json:"hue" yaml:"hue"`
	Saturation float64 `json:"saturation" yaml:"saturation"`
	Luminance  float64 `json:"luminance" yaml:"luminance"`
}

// HSL holds the eight named hue bands.
type HSL struct {
	Red     HSLBand `json:"red" yaml:"red"`
	Orange  HSLBand `json:"orange" yaml:"orange"`
	Yellow  HSLBand `json:"yellow" yaml:"yellow"`
	Green   HSLBand `json:"green" yaml:"green"`
	Aqua    HSLBand `json:"aqua" yaml:"aqua"`
	Blue    HSLBand `json:"blue" yaml:"blue"`
	Purple  HSLBand `json:"purple" yaml:"purple"`
	Magenta HSLBand `json:"magenta" yaml:"magenta"`
}

// BandHues are the center hues, in degrees, of the bands returned by Bands.
var BandHues = [8]float64{0, 30, 60, 120, 180, 240, 270, 300}

// Bands returns the bands in hue order, red first.
func (h HSL) Bands() [8]HSLBand {
	return [8]HSLBand{h.Red, h.Orange, h.Yellow, h.Green, h.Aqua, h.Blue, h.Purple, h.Magenta}
}

// IsDefault reports whether every band is zero.
func (h HSL) IsDefault() bool {
	return h == HSL{}
}

// Vignette darkens (negative) or brightens (positive) the frame edges.
type Vignette struct {
	Amount   float64 `json:"amount" yaml:"amount"`
	Midpoint float64 `json:"midpoint" yaml:"midpoint"`
	Feather  float64 `json:"feather" yaml:"feather"`
}

// SplitToning tints highlights and shadows separately.
type SplitToning struct {
	HighlightHue        float64 `json:"highlightHue" yaml:"highlightHue"`
	HighlightSaturation float64 `json:"highlightSaturation" yaml:"highlightSaturation"`
	ShadowHue           float64 `json:"shadowHue" yaml:"shadowHue"`
	ShadowSaturation    float64 `json:"shadowSaturation" yaml:"shadowSaturation"`
	Balance             float64 `json:"balance" yaml:"balance"`
}

// Grain is synthetic film grain.
type Grain struct {
	Amount    float64 `json:"amount" yaml:"amount"`
	Size      float64 `json:"size" yaml:"size"`
	Roughness float64 `json:"roughness" yaml:"roughness"`
}

// Effects groups the finishing effects.
type Effects struct {
	Vignette       Vignette    `json:"vignette" yaml:"vignette"`
	SplitToning    SplitToning `json:"splitToning" yaml:"splitToning"`
	Sharpness      float64     `json:"sharpness" yaml:"sharpness"`
	NoiseReduction float64     `json:"noiseReduction" yaml:"noiseReduction"`
	Grain          Grain       `json:"grain" yaml:"grain"`
}

// Perspective is a keystone correction plus fine rotation (degrees) and scale (percent).
type Perspective struct {
	Vertical   float64 `json:"vertical" yaml:"vertical"`
	Horizontal float64 `json:"horizontal" yaml:"horizontal"`
	Rotate     float64 `json:"rotate" yaml:"rotate"`
	Scale      float64 `json:"scale" yaml:"scale"`
}

// Lens holds optical corrections.
type Lens struct {
	ChromaticAberration float64     `json:"chromaticAberration" yaml:"chromaticAberration"`
	Perspective         Perspective `json:"perspective" yaml:"perspective"`
}

// Calibration approximates per-primary camera calibration.
type Calibration struct {
	RedHue          float64 `json:"redHue" yaml:"redHue"`
	RedSaturation   float64 `json:"redSaturation" yaml:"redSaturation"`
	GreenHue        float64 `json:"greenHue" yaml:"greenHue"`
	GreenSaturation float64 `json:"greenSaturation" yaml:"greenSaturation"`
	BlueHue         float64 `json:"blueHue" yaml:"blueHue"`
	BlueSaturation  float64 `json:"blueSaturation" yaml:"blueSaturation"`
	ShadowTint      float64 `json:"shadowTint" yaml:"shadowTint"`
}

// Grading holds local contrast and calibration adjustments (-100..100).
type Grading struct {
	Clarity     float64     `json:"clarity" yaml:"clarity"`
	Dehaze      float64     `json:"dehaze" yaml:"dehaze"`
	Texture     float64     `json:"texture" yaml:"texture"`
	Calibration Calibration `json:"calibration" yaml:"calibration"`
}

// Rect is a normalized rectangle within [0,1].
type Rect struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// IsFull reports whether the rectangle covers the whole frame.
func (r Rect) IsFull() bool {
	return r.X <= 0 && r.Y <= 0 && r.X+r.W >= 1 && r.Y+r.H >= 1
}

// Crop is the composition: an optional crop rectangle and a free rotation in degrees.
type Crop struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Aspect  string  `json:"aspect" yaml:"aspect"`
	Rect    Rect    `json:"rect" yaml:"rect"`
	Angle   float64 `json:"angle" yaml:"angle"`
}

// Flag is a pick or reject marker.
type Flag string

const (
	Unflagged Flag = ""
	Pick      Flag = "pick"
	Reject    Flag = "reject"
)

// Metadata is organizational data. It never affects rendering.
type Metadata struct {
	Rating      int      `json:"rating" yaml:"rating"`
	Label       string   `json:"label,omitempty" yaml:"label,omitempty"`
	Flag        Flag     `json:"flag,omitempty" yaml:"flag,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Recipe is the full set of adjustments for one asset. Treat it as a value: the
// pipeline never retains or mutates a Recipe it is given.
type Recipe struct {
	Light        Light        `json:"light" yaml:"light"`
	ToneCurve    Curve        `json:"toneCurve" yaml:"toneCurve"`
	WhiteBalance WhiteBalance `json:"whiteBalance" yaml:"whiteBalance"`
	Color        Color        `json:"color" yaml:"color"`
	RGBCurves    RGBCurves    `json:"rgbCurves" yaml:"rgbCurves"`
	HSL          HSL          `json:"hsl" yaml:"hsl"`
	Effects      Effects      `json:"effects" yaml:"effects"`
	Lens         Lens         `json:"lens" yaml:"lens"`
	Grading      Grading      `json:"grading" yaml:"grading"`
	Crop         Crop         `json:"crop" yaml:"crop"`
	Metadata     Metadata     `json:"metadata" yaml:"metadata"`
}

func defaultWhiteBalance() WhiteBalance {
	return WhiteBalance{Preset: AsShot, Temperature: NeutralTemperature}
}

// New returns the identity recipe.
func New() Recipe {
	return Recipe{
		ToneCurve:    LinearCurve(),
		WhiteBalance: defaultWhiteBalance(),
		RGBCurves: RGBCurves{
			Master: LinearCurve(),
			Red:    LinearCurve(),
			Green:  LinearCurve(),
			Blue:   LinearCurve(),
		},
		Effects: Effects{
			Vignette: Vignette{Midpoint: 50, Feather: 50},
			Grain:    Grain{Size: 25, Roughness: 50},
		},
		Lens: Lens{
			Perspective: Perspective{Scale: 100},
		},
		Crop: Crop{
			Aspect: "original",
			Rect:   Rect{W: 1, H: 1},
		},
	}
}

// Clone returns a deep copy.
func (r Recipe) Clone() Recipe {
	c := r
	c.ToneCurve = slices.Clone(r.ToneCurve)
	c.RGBCurves.Master = slices.Clone(r.RGBCurves.Master)
	c.RGBCurves.Red = slices.Clone(r.RGBCurves.Red)
	c.RGBCurves.Green = slices.Clone(r.RGBCurves.Green)
	c.RGBCurves.Blue = slices.Clone(r.RGBCurves.Blue)
	c.Metadata.Tags = slices.Clone(r.Metadata.Tags)
	return c
}

// Equal reports structural equality, including metadata.
func (r Recipe) Equal(o Recipe) bool {
	return reflect.DeepEqual(r.normalized(), o.normalized())
}

// HasEdits reports whether any adjustment differs from its default.
// Metadata is ignored.
func (r Recipe) HasEdits() bool {
	a := r.normalized()
	a.Metadata = Metadata{}
	return !reflect.DeepEqual(a, New())
}

// WithoutExpensive returns a copy with the operators skipped by the fast tier zeroed.
func (r Recipe) WithoutExpensive() Recipe {
	c := r.Clone()
	c.Grading.Clarity = 0
	c.Grading.Dehaze = 0
	c.Grading.Texture = 0
	c.Effects.Grain.Amount = 0
	c.Effects.NoiseReduction = 0
	c.Effects.Vignette.Amount = 0
	c.HSL = HSL{}
	return c
}

// normalized replaces empty curves with their linear default so that a nil
// curve and an explicit identity curve compare equal.
func (r Recipe) normalized() Recipe {
	c := r
	for _, cv := range []*Curve{&c.ToneCurve, &c.RGBCurves.Master, &c.RGBCurves.Red, &c.RGBCurves.Green, &c.RGBCurves.Blue} {
		if len(*cv) == 0 {
			*cv = LinearCurve()
		}
	}
	if len(c.Metadata.Tags) == 0 {
		c.Metadata.Tags = nil
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
