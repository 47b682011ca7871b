package imu

import (
	"math"
	"time"
)

type mockSource struct {
	start   time.Time
	cadence float64 // steps per second
}

// NewMockSource creates an acceleration source that swings around gravity
// with one peak per step at the given cadence.
func NewMockSource(cadenceHz float64) AccelSource {
	if cadenceHz <= 0 {
		cadenceHz = 1.8
	}
	return &mockSource{start: time.Now(), cadence: cadenceHz}
}

func (m *mockSource) NextAccel() (AccelSample, error) {
	now := time.Now()
	elapsed := now.Sub(m.start).Seconds()
	bounce := 4.0 * math.Sin(2*math.Pi*m.cadence*elapsed)

	return AccelSample{
		X:           0.3 * math.Cos(2*math.Pi*m.cadence*elapsed),
		Y:           0.2,
		Z:           StandardGravity + bounce,
		TimestampNs: now.UnixNano(),
	}, nil
}
