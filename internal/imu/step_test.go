package imu

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = int64(time.Millisecond)

func vertical(mag float64, tNs int64) AccelSample {
	return AccelSample{Z: mag, TimestampNs: tNs}
}

func TestStepDetector_CountsQualifyingPeaks(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	tNs := int64(0)
	for i := 0; i < 10; i++ {
		tNs += 300 * ms
		assert.True(t, d.OnSample(vertical(13, tNs)), "peak %d", i)
		tNs += 100 * ms
		assert.False(t, d.OnSample(vertical(9, tNs)))
	}
	assert.Equal(t, 10, d.StepCount())
}

func TestStepDetector_FirstStepIgnoresCooldown(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	assert.True(t, d.OnSample(vertical(13, 10*ms)))
	assert.Equal(t, 1, d.StepCount())
}

func TestStepDetector_NoDropMeansOneStep(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	d.OnSample(vertical(13, 1000*ms))
	// Hovering between the thresholds never re-arms, whatever the spacing.
	d.OnSample(vertical(11, 1050*ms))
	d.OnSample(vertical(13, 1100*ms))
	d.OnSample(vertical(10, 1600*ms))
	d.OnSample(vertical(14, 2000*ms))
	assert.Equal(t, 1, d.StepCount())
}

func TestStepDetector_CooldownRejectsEarlyPeak(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	require.True(t, d.OnSample(vertical(13, 1000*ms)))
	// Re-armed, but still inside the 250ms refractory window.
	assert.False(t, d.OnSample(vertical(8, 1050*ms)))
	assert.False(t, d.OnSample(vertical(13, 1100*ms)))
	assert.Equal(t, 1, d.StepCount())
	// Exactly at the cooldown boundary is still too early.
	assert.False(t, d.OnSample(vertical(13, 1250*ms)))
	assert.True(t, d.OnSample(vertical(13, 1251*ms)))
	assert.Equal(t, 2, d.StepCount())
}

func TestStepDetector_RearmIndependentOfCooldown(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	require.True(t, d.OnSample(vertical(13, 1000*ms)))
	d.OnSample(vertical(9, 1010*ms))
	assert.True(t, d.State().Armed)
}

func TestStepDetector_ThresholdsAreStrict(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	assert.False(t, d.OnSample(vertical(DefaultHighThreshold, 0)))
	assert.True(t, d.OnSample(vertical(DefaultHighThreshold+0.01, 0)))
	d.OnSample(vertical(DefaultLowThreshold, 500*ms))
	assert.False(t, d.State().Armed)
}

func TestStepDetector_MonotonicUnderNoise(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	rng := rand.New(rand.NewSource(42))
	prev := 0
	tNs := int64(0)
	for i := 0; i < 5000; i++ {
		tNs += int64(rng.Intn(40)+1) * ms
		s := AccelSample{
			X:           rng.NormFloat64() * 2,
			Y:           rng.NormFloat64() * 2,
			Z:           9.8 + rng.NormFloat64()*3,
			TimestampNs: tNs,
		}
		fired := d.OnSample(s)
		count := d.StepCount()
		require.GreaterOrEqual(t, count, prev)
		if fired {
			require.Equal(t, prev+1, count)
		} else {
			require.Equal(t, prev, count)
		}
		prev = count
	}
}

func TestStepDetector_Reset(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	d.OnSample(vertical(13, 1000*ms))
	d.Reset()
	assert.Equal(t, StepState{Armed: true}, d.State())
	assert.True(t, d.OnSample(vertical(13, 1001*ms)))
}

func TestNewStepDetector_Defaults(t *testing.T) {
	d := NewStepDetector(StepConfig{})
	assert.Equal(t, DefaultStepConfig(), d.Config())

	d = NewStepDetector(StepConfig{HighThreshold: 8, LowThreshold: 9})
	cfg := d.Config()
	assert.Less(t, cfg.LowThreshold, cfg.HighThreshold)
}

func TestCountsToMS2(t *testing.T) {
	assert.InDelta(t, StandardGravity, CountsToMS2(16384, 0), 1e-9)
	assert.InDelta(t, -StandardGravity, CountsToMS2(-8192, 1), 1e-9)
	assert.InDelta(t, 13.0, AccelSample{X: 5, Y: 12}.Magnitude(), 1e-12)
}
