package orientation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDeg(deg float64, acc Accuracy) Sample {
	return Sample{AzimuthRad: DegToRad(deg), Accuracy: acc}
}

func TestWrap360(t *testing.T) {
	cases := map[float64]float64{
		0:      0,
		360:    0,
		-90:    270,
		725:    5,
		-720.5: 359.5,
		359.9:  359.9,
	}
	for in, want := range cases {
		assert.InDelta(t, want, Wrap360(in), 1e-9, "Wrap360(%v)", in)
	}
	assert.Equal(t, 0.0, Wrap360(-1e-15))
}

func TestWrap180(t *testing.T) {
	assert.InDelta(t, -20, Wrap180(350-10), 1e-9)
	assert.InDelta(t, 20, Wrap180(10-350), 1e-9)
	assert.InDelta(t, 180, Wrap180(180), 1e-9)
	assert.InDelta(t, 180, Wrap180(-180), 1e-9)
	assert.InDelta(t, 0, Wrap180(720), 1e-9)
}

func TestHeadingEstimator_FirstSampleSeeds(t *testing.T) {
	h := NewHeadingEstimator(0.1)
	h.OnSample(sampleDeg(90, AccuracyHigh))
	assert.InDelta(t, 90, h.CurrentHeadingDeg(), 1e-9)
	assert.Equal(t, AccuracyHigh, h.LastAccuracy())
}

func TestHeadingEstimator_StaysInRange(t *testing.T) {
	h := NewHeadingEstimator(0.3)
	inputs := []float64{-3.5, -0.01, 0, 6.3, 12.6, -100, 3.14159, -3.14159, 1e-12, -1e-12}
	for i, rad := range inputs {
		h.OnSample(Sample{AzimuthRad: rad, Accuracy: AccuracyMedium})
		if i%2 == 0 {
			h.Zero()
		}
		h.AddOffset(float64(i*97) - 400)
		got := h.CurrentHeadingDeg()
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, 360.0)
		off := h.OffsetDeg()
		assert.GreaterOrEqual(t, off, 0.0)
		assert.Less(t, off, 360.0)
	}
}

func TestHeadingEstimator_ZeroThenSameAzimuth(t *testing.T) {
	h := NewHeadingEstimator(0.1)
	for i := 0; i < 50; i++ {
		h.OnSample(sampleDeg(137, AccuracyHigh))
	}
	h.Zero()
	h.OnSample(sampleDeg(137, AccuracyHigh))

	got := h.CurrentHeadingDeg()
	// Either side of the seam counts as zero.
	assert.InDelta(t, 0, math.Min(got, 360-got), 1e-6)
}

func TestHeadingEstimator_FilterCrossesSeam(t *testing.T) {
	h := NewHeadingEstimator(0.5)
	h.OnSample(sampleDeg(350, AccuracyHigh))
	h.OnSample(sampleDeg(10, AccuracyHigh))
	// Shortest arc from 350 towards 10 is +20, half of it lands on 0.
	got := h.CurrentHeadingDeg()
	assert.InDelta(t, 0, math.Min(got, 360-got), 1e-9)
}

func TestHeadingEstimator_Converges(t *testing.T) {
	h := NewHeadingEstimator(0.1)
	h.OnSample(sampleDeg(0, AccuracyHigh))
	for i := 0; i < 200; i++ {
		h.OnSample(sampleDeg(90, AccuracyHigh))
	}
	assert.InDelta(t, 90, h.CurrentHeadingDeg(), 1e-6)
}

func TestHeadingEstimator_AddOffset(t *testing.T) {
	h := NewHeadingEstimator(1)
	h.OnSample(sampleDeg(100, AccuracyHigh))
	h.AddOffset(30)
	assert.InDelta(t, 70, h.CurrentHeadingDeg(), 1e-9)
	h.OnSample(sampleDeg(100, AccuracyHigh))
	assert.InDelta(t, 70, h.CurrentHeadingDeg(), 1e-9)
	h.AddOffset(-100)
	h.OnSample(sampleDeg(100, AccuracyHigh))
	assert.InDelta(t, 170, h.CurrentHeadingDeg(), 1e-9)
	assert.InDelta(t, 290, h.OffsetDeg(), 1e-9)

	h.AddOffset(math.NaN())
	assert.InDelta(t, 290, h.OffsetDeg(), 1e-9)
}

func TestHeadingEstimator_ManualOverride(t *testing.T) {
	h := NewHeadingEstimator(1)
	h.OnSample(sampleDeg(45, AccuracyHigh))

	v := 200.0
	h.SetManualOverride(&v)
	got, ok := h.ManualOverride()
	require.True(t, ok)
	assert.Equal(t, 200.0, got)

	h.OnSample(sampleDeg(45, AccuracyHigh))
	assert.InDelta(t, 200, h.CurrentHeadingDeg(), 1e-9)

	// Override still goes through the offset.
	h.AddOffset(20)
	h.OnSample(sampleDeg(45, AccuracyHigh))
	assert.InDelta(t, 180, h.CurrentHeadingDeg(), 1e-9)

	h.SetManualOverride(nil)
	_, ok = h.ManualOverride()
	assert.False(t, ok)
	h.OnSample(sampleDeg(45, AccuracyHigh))
	assert.InDelta(t, 25, h.CurrentHeadingDeg(), 1e-9)
}

func TestHeadingEstimator_ManualOverrideWithoutStream(t *testing.T) {
	h := NewHeadingEstimator(0.1)

	v := 90.0
	h.SetManualOverride(&v)
	assert.InDelta(t, 90, h.CurrentHeadingDeg(), 1e-9)

	// A second override is filtered like any other input.
	w := 100.0
	h.SetManualOverride(&w)
	assert.InDelta(t, 91, h.CurrentHeadingDeg(), 1e-9)

	nan := math.NaN()
	h.SetManualOverride(&nan)
	got, ok := h.ManualOverride()
	require.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestHeadingEstimator_DropsNonFiniteAzimuth(t *testing.T) {
	h := NewHeadingEstimator(0.5)
	h.OnSample(sampleDeg(40, AccuracyHigh))

	h.OnSample(Sample{AzimuthRad: math.NaN(), Accuracy: AccuracyLow})
	assert.InDelta(t, 40, h.CurrentHeadingDeg(), 1e-9)
	assert.Equal(t, AccuracyLow, h.LastAccuracy())

	h.OnSample(Sample{AzimuthRad: math.Inf(-1), Accuracy: AccuracyLow})
	assert.Equal(t, 2, h.Dropped())

	for i := 0; i < 50; i++ {
		h.OnSample(sampleDeg(60, AccuracyHigh))
	}
	got := h.CurrentHeadingDeg()
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, 60, got, 1e-6)

	// Zero after a dropped sample still uses the last finite raw value.
	h.OnSample(Sample{AzimuthRad: math.NaN(), Accuracy: AccuracyHigh})
	h.Zero()
	h.OnSample(sampleDeg(60, AccuracyHigh))
	assert.InDelta(t, 0, h.CurrentHeadingDeg(), 1e-9)
}

func TestHeadingEstimator_AccuracyTransitions(t *testing.T) {
	h := NewHeadingEstimator(0.1)
	assert.Equal(t, AccuracyUnreliable, h.LastAccuracy())

	var transitions [][2]Accuracy
	h.OnAccuracyTransition(func(prev, next Accuracy) {
		transitions = append(transitions, [2]Accuracy{prev, next})
	})

	h.OnSample(sampleDeg(10, AccuracyHigh))
	h.OnSample(sampleDeg(12, AccuracyHigh))
	h.OnAccuracyChanged(AccuracyUnreliable)
	before := h.CurrentHeadingDeg()
	// Unreliable never blocks heading updates.
	h.OnSample(Sample{AzimuthRad: DegToRad(20), Accuracy: AccuracyUnreliable})

	assert.Equal(t, [][2]Accuracy{
		{AccuracyUnreliable, AccuracyHigh},
		{AccuracyHigh, AccuracyUnreliable},
	}, transitions)
	assert.Greater(t, h.CurrentHeadingDeg(), before)
}

func TestHeadingEstimator_Unavailable(t *testing.T) {
	h := NewHeadingEstimator(0.1)
	h.OnSample(sampleDeg(33, AccuracyHigh))
	h.MarkUnavailable()
	assert.Equal(t, AccuracyUnreliable, h.LastAccuracy())
	assert.InDelta(t, 33, h.CurrentHeadingDeg(), 1e-9)
}

func TestParseManualHeading(t *testing.T) {
	v, err := ParseManualHeading(" 87.5 ")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 87.5, *v)

	v, err = ParseManualHeading("none")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseManualHeading("")
	require.NoError(t, err)
	assert.Nil(t, v)

	for _, bad := range []string{"north", "12deg", "NaN", "Inf"} {
		_, err = ParseManualHeading(bad)
		assert.True(t, errors.Is(err, ErrInvalidHeading), "input %q", bad)
	}
}

func TestAccuracyJSON(t *testing.T) {
	var s Sample
	require.NoError(t, json.Unmarshal([]byte(`{"azimuth_rad":1.5,"accuracy":"medium"}`), &s))
	assert.Equal(t, AccuracyMedium, s.Accuracy)

	b, err := json.Marshal(Sample{AzimuthRad: 0.5, Accuracy: AccuracyLow})
	require.NoError(t, err)
	assert.JSONEq(t, `{"azimuth_rad":0.5,"accuracy":"LOW"}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"accuracy":"GREAT"}`), &s))
}
