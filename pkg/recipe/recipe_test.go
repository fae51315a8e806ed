package recipe

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleEdits each change exactly one adjustment field.
var singleEdits = map[string]func(*Recipe){
	"exposure":        func(r *Recipe) { r.Light.Exposure = 0.3 },
	"contrast":        func(r *Recipe) { r.Light.Contrast = 10 },
	"highlights":      func(r *Recipe) { r.Light.Highlights = -40 },
	"shadows":         func(r *Recipe) { r.Light.Shadows = 25 },
	"whites":          func(r *Recipe) { r.Light.Whites = 5 },
	"blacks":          func(r *Recipe) { r.Light.Blacks = -5 },
	"tone curve":      func(r *Recipe) { r.ToneCurve[2].Y = 0.6 },
	"wb preset":       func(r *Recipe) { r.WhiteBalance.Preset = Daylight },
	"wb temperature":  func(r *Recipe) { r.WhiteBalance.Temperature = 5000 },
	"wb tint":         func(r *Recipe) { r.WhiteBalance.Tint = 12 },
	"vibrance":        func(r *Recipe) { r.Color.Vibrance = 30 },
	"saturation":      func(r *Recipe) { r.Color.Saturation = -30 },
	"master curve":    func(r *Recipe) { r.RGBCurves.Master[1].Y = 0.2 },
	"red curve":       func(r *Recipe) { r.RGBCurves.Red[3].Y = 0.8 },
	"green curve":     func(r *Recipe) { r.RGBCurves.Green[3].Y = 0.8 },
	"blue curve":      func(r *Recipe) { r.RGBCurves.Blue[3].Y = 0.8 },
	"hsl":             func(r *Recipe) { r.HSL.Aqua.Luminance = 20 },
	"vignette":        func(r *Recipe) { r.Effects.Vignette.Amount = -30 },
	"vignette mid":    func(r *Recipe) { r.Effects.Vignette.Midpoint = 20 },
	"split toning":    func(r *Recipe) { r.Effects.SplitToning.HighlightSaturation = 40 },
	"sharpness":       func(r *Recipe) { r.Effects.Sharpness = 40 },
	"noise reduction": func(r *Recipe) { r.Effects.NoiseReduction = 40 },
	"grain":           func(r *Recipe) { r.Effects.Grain.Amount = 40 },
	"grain size":      func(r *Recipe) { r.Effects.Grain.Size = 60 },
	"ca":              func(r *Recipe) { r.Lens.ChromaticAberration = 50 },
	"keystone":        func(r *Recipe) { r.Lens.Perspective.Vertical = 10 },
	"perspective sc":  func(r *Recipe) { r.Lens.Perspective.Scale = 110 },
	"clarity":         func(r *Recipe) { r.Grading.Clarity = 10 },
	"dehaze":          func(r *Recipe) { r.Grading.Dehaze = 10 },
	"texture":         func(r *Recipe) { r.Grading.Texture = 10 },
	"calibration":     func(r *Recipe) { r.Grading.Calibration.ShadowTint = 10 },
	"crop enabled":    func(r *Recipe) { r.Crop.Enabled = true },
	"crop rect":       func(r *Recipe) { r.Crop.Rect.W = 0.5 },
	"crop angle":      func(r *Recipe) { r.Crop.Angle = 3 },
}

func TestNewHasNoEdits(t *testing.T) {
	assert.False(t, New().HasEdits())
	assert.True(t, New().Equal(New()))
}

func TestHasEditsSingleField(t *testing.T) {
	for name, edit := range singleEdits {
		t.Run(name, func(t *testing.T) {
			r := New()
			edit(&r)
			assert.True(t, r.HasEdits())
		})
	}
}

func TestHasEditsIgnoresMetadata(t *testing.T) {
	r := New()
	r.Metadata = Metadata{Rating: 5, Label: "red", Flag: Pick, Tags: []string{"bird"}, Title: "heron"}
	assert.False(t, r.HasEdits())
	assert.False(t, r.Equal(New()))
}

func TestCloneIsIndependent(t *testing.T) {
	r := New()
	c := r.Clone()
	c.ToneCurve[2].Y = 0.9
	assert.Equal(t, 0.5, r.ToneCurve[2].Y)
}

func TestWithoutExpensive(t *testing.T) {
	r := New()
	r.Grading.Clarity = 50
	r.Grading.Dehaze = 20
	r.Grading.Texture = 10
	r.Effects.Grain.Amount = 30
	r.Effects.NoiseReduction = 30
	r.Effects.Vignette.Amount = -40
	r.HSL.Red.Saturation = 40
	r.Light.Exposure = 1

	f := r.WithoutExpensive()
	want := New()
	want.Light.Exposure = 1
	assert.True(t, f.Equal(want))
	assert.Equal(t, 50.0, r.Grading.Clarity, "original must not be mutated")
}

func TestRoundTrip(t *testing.T) {
	r := New()
	for _, edit := range singleEdits {
		edit(&r)
	}
	r.ToneCurve = Curve{{0, 0.05}, {0.3, 0.25}, {1, 0.95}}
	r.Metadata.Tags = []string{"fav", "sf"}
	r.Metadata.Rating = 4

	bs, err := Encode(r)
	require.NoError(t, err)
	got, err := Decode(bs)
	require.NoError(t, err)
	assertRecipesNear(t, r, got)
}

func TestDecodeMissingFieldsDefault(t *testing.T) {
	got, err := Decode([]byte(`{"light": {"exposure": 1.5}, "bogus": 3}`))
	require.NoError(t, err)

	want := New()
	want.Light.Exposure = 1.5
	assert.True(t, got.Equal(want))
	assert.Equal(t, 50.0, got.Effects.Vignette.Feather)
	assert.Equal(t, 100.0, got.Lens.Perspective.Scale)
}

func TestDecodeEmptyObject(t *testing.T) {
	got, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.False(t, got.HasEdits())
}

func TestDecodeMistypedFieldIsTolerated(t *testing.T) {
	got, err := Decode([]byte(`{"light": {"exposure": "lots", "contrast": 20}}`))
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Light.Contrast)
	assert.Equal(t, 0.0, got.Light.Exposure)
}

func TestDecodeSyntaxError(t *testing.T) {
	_, err := Decode([]byte(`{"light":`))
	assert.Error(t, err)
}

func TestLegacyWhiteBalanceMigration(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want WhiteBalance
	}{
		{"both", `{"temperature": 20, "tint": -8}`, WhiteBalance{Preset: Custom, Temperature: 7000, Tint: -8}},
		{"temperature only", `{"temperature": -40}`, WhiteBalance{Preset: Custom, Temperature: 5500}},
		{"zero", `{"temperature": 0, "tint": 0}`, WhiteBalance{Preset: AsShot, Temperature: 6500}},
		{"current wins", `{"temperature": 20, "whiteBalance": {"preset": "custom", "temperature": 4000, "tint": 3}}`,
			WhiteBalance{Preset: Custom, Temperature: 4000, Tint: 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want.Preset, got.WhiteBalance.Preset)
			assert.InDelta(t, tc.want.Temperature, got.WhiteBalance.Temperature, 1e-3)
			assert.InDelta(t, tc.want.Tint, got.WhiteBalance.Tint, 1e-3)
		})
	}
}

func TestWhiteBalanceResolve(t *testing.T) {
	temp, tint := WhiteBalance{Preset: AsShot}.Resolve(5100, 4)
	assert.Equal(t, 5100.0, temp)
	assert.Equal(t, 4.0, tint)

	temp, _ = WhiteBalance{Preset: Tungsten}.Resolve(5100, 4)
	assert.Equal(t, 2850.0, temp)
	temp, _ = WhiteBalance{Preset: Tungsten, Temperature: 9000}.Resolve(5100, 4)
	assert.Equal(t, 2850.0, temp)

	temp, tint = WhiteBalance{Preset: AsShot, Temperature: NeutralTemperature}.Resolve(5100, 4)
	assert.Equal(t, 5100.0, temp)
	assert.Equal(t, 4.0, tint)

	temp, tint = WhiteBalance{Preset: AsShot, Temperature: 3000}.Resolve(5100, 4)
	assert.Equal(t, 3000.0, temp)
	assert.Equal(t, 4.0, tint)

	temp, tint = WhiteBalance{Preset: AsShot, Temperature: NeutralTemperature, Tint: -20}.Resolve(5100, 4)
	assert.Equal(t, 5100.0, temp)
	assert.Equal(t, -20.0, tint)

	temp, tint = WhiteBalance{Preset: Custom, Temperature: 90000, Tint: -400}.Resolve(5100, 4)
	assert.Equal(t, 12000.0, temp)
	assert.Equal(t, -150.0, tint)
}

func TestLoadSaveYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	r := New()
	r.Light.Exposure = -0.7
	r.HSL.Blue.Hue = 15
	r.Metadata.Tags = []string{"sea"}

	for _, name := range []string{"preset.yaml", "preset.json"} {
		p := filepath.Join(dir, name)
		require.NoError(t, Save(p, r))
		got, err := Load(p)
		require.NoError(t, err)
		assertRecipesNear(t, r, got)
	}
}

func TestLoadSidecarMissing(t *testing.T) {
	r, err := LoadSidecar(filepath.Join(t.TempDir(), "IMG_0001.jpg"))
	require.NoError(t, err)
	assert.False(t, r.HasEdits())
}

func assertRecipesNear(t *testing.T, want, got Recipe) {
	t.Helper()
	if got.Equal(want) {
		return
	}
	// fall back to a tolerant comparison of the encoded numbers
	wb, err := Encode(want)
	require.NoError(t, err)
	gb, err := Encode(got)
	require.NoError(t, err)
	wm, gm := flatten(t, wb), flatten(t, gb)
	require.Equal(t, len(wm), len(gm))
	for k, wv := range wm {
		gv, ok := gm[k]
		require.True(t, ok, "missing %s", k)
		assert.LessOrEqual(t, math.Abs(wv-gv), 1e-3, k)
	}
}
