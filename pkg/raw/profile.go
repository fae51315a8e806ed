package raw

import (
	"math"
	"strings"
)

// Shoulder compresses highlights above Knee toward WhitePoint.
type Shoulder struct {
	Knee       float64
	Softness   float64
	WhitePoint float64
}

// Look is an optional bias baked into a profile.
type Look struct {
	Saturation float64
	Contrast   float64
	Warmth     float64
	ShadowTint float64
}

// Profile is immutable per-camera reference data used while decoding.
type Profile struct {
	ID       string
	Matrix   [3][3]float64
	Curve    [][2]float64
	Shoulder Shoulder
	Look     *Look
}

var identity = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// Neutral renders sensor data without any look.
var Neutral = Profile{
	ID:       "neutral",
	Matrix:   identity,
	Shoulder: Shoulder{Knee: 1, WhitePoint: 1},
}

// Standard adds a gentle base curve and highlight shoulder.
var Standard = Profile{
	ID: "standard",
	Matrix: [3][3]float64{
		{1.08, -0.06, -0.02},
		{-0.03, 1.06, -0.03},
		{-0.01, -0.07, 1.08},
	},
	Curve:    [][2]float64{{0, 0}, {0.25, 0.22}, {0.5, 0.52}, {0.75, 0.79}, {1, 1}},
	Shoulder: Shoulder{Knee: 0.8, Softness: 0.5, WhitePoint: 1.2},
}

// Vivid is Standard with extra saturation and contrast.
var Vivid = Profile{
	ID:       "vivid",
	Matrix:   Standard.Matrix,
	Curve:    [][2]float64{{0, 0}, {0.25, 0.2}, {0.5, 0.52}, {0.75, 0.81}, {1, 1}},
	Shoulder: Standard.Shoulder,
	Look:     &Look{Saturation: 0.15, Contrast: 0.05, Warmth: 0.02},
}

var profiles = map[string]Profile{
	Neutral.ID:  Neutral,
	Standard.ID: Standard,
	Vivid.ID:    Vivid,
}

// cameraProfiles maps a lowercase make to a profile id.
var cameraProfiles = map[string]string{
	"canon":     Standard.ID,
	"nikon":     Standard.ID,
	"sony":      Standard.ID,
	"fujifilm":  Vivid.ID,
	"olympus":   Standard.ID,
	"panasonic": Standard.ID,
}

// ProfileByID returns a built-in profile.
func ProfileByID(id string) (Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}

// ProfileFor picks a profile for a camera, falling back to Neutral.
func ProfileFor(cameraMake, model string) Profile {
	m := strings.ToLower(strings.TrimSpace(cameraMake))
	for prefix, id := range cameraProfiles {
		if strings.HasPrefix(m, prefix) {
			return profiles[id]
		}
	}
	return Neutral
}

// IsIdentity reports whether the profile leaves linear data untouched.
func (p Profile) IsIdentity() bool {
	return p.Matrix == identity && len(p.Curve) == 0 && p.Shoulder.Knee >= 1 && p.Look == nil
}

// apply compresses v above the knee so that WhitePoint maps to 1.
func (s Shoulder) apply(v float64) float64 {
	if s.Knee >= 1 || v <= s.Knee {
		return v
	}
	span := math.Max(s.WhitePoint-s.Knee, 1e-6)
	x := (v - s.Knee) / span
	k := 1 + s.Softness*4
	y := (1 - math.Exp(-k*x)) / (1 - math.Exp(-k))
	return s.Knee + math.Min(1, y)*(1-s.Knee)
}

// curve evaluates the base curve on an encoded value.
func (p Profile) curve(v float64) float64 {
	if len(p.Curve) == 0 {
		return v
	}
	if v <= p.Curve[0][0] {
		return p.Curve[0][1]
	}
	for i := 1; i < len(p.Curve); i++ {
		lo, hi := p.Curve[i-1], p.Curve[i]
		if v <= hi[0] {
			t := (v - lo[0]) / (hi[0] - lo[0])
			return lo[1] + t*(hi[1]-lo[1])
		}
	}
	return p.Curve[len(p.Curve)-1][1]
}
