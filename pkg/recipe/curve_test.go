package recipe

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveSample5(t *testing.T) {
	tests := []struct {
		name  string
		curve Curve
		want  [5]float64
	}{
		{"linear", LinearCurve(), [5]float64{0, 0.25, 0.5, 0.75, 1}},
		{"empty", nil, [5]float64{0, 0.25, 0.5, 0.75, 1}},
		{"two point lift", Curve{{0, 0.2}, {1, 1}}, [5]float64{0.2, 0.4, 0.6, 0.8, 1}},
		{"clamps outside", Curve{{0.25, 0.1}, {0.75, 0.9}}, [5]float64{0.1, 0.1, 0.5, 0.9, 0.9}},
		{"unsorted", Curve{{1, 1}, {0, 0}, {0.5, 0.7}}, [5]float64{0, 0.35, 0.7, 0.85, 1}},
		{"single", Curve{{0.3, 0.4}}, [5]float64{0.4, 0.4, 0.4, 0.4, 0.4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.curve.Sample5()
			for i := range got {
				assert.InDelta(t, tc.want[i], got[i], 1e-9, "sample %d", i)
			}
		})
	}
}

func TestCurveIsLinear(t *testing.T) {
	assert.True(t, LinearCurve().IsLinear())
	assert.True(t, Curve{{0, 0}, {1, 1}}.IsLinear())
	assert.False(t, Curve{{0, 0}, {0.5, 0.6}, {1, 1}}.IsLinear())
}

func TestChannelsLinear(t *testing.T) {
	c := New().RGBCurves
	assert.True(t, c.ChannelsLinear())
	c.Green = Curve{{0, 0.1}, {1, 1}}
	assert.False(t, c.ChannelsLinear())
}

// flatten turns an encoded recipe into a map of numeric leaves keyed by path.
func flatten(t *testing.T, bs []byte) map[string]float64 {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(bs, &v))
	out := map[string]float64{}
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch x := v.(type) {
		case map[string]any:
			for k, c := range x {
				walk(prefix+"."+k, c)
			}
		case []any:
			for i, c := range x {
				walk(fmt.Sprintf("%s[%d]", prefix, i), c)
			}
		case float64:
			out[prefix] = x
		case bool:
			if x {
				out[prefix] = 1
			} else {
				out[prefix] = 0
			}
		}
	}
	walk("", v)
	return out
}
