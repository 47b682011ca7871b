package imu

import "math"

// StandardGravity in m/s².
const StandardGravity = 9.80665

// AccelSample is a single triaxial accelerometer reading in m/s² with a
// monotonic timestamp in nanoseconds.
type AccelSample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	TimestampNs int64   `json:"timestamp_ns"`
}

// Magnitude returns the norm of the acceleration vector.
func (s AccelSample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// AccelSource is anything that can provide acceleration samples over time.
type AccelSource interface {
	NextAccel() (AccelSample, error)
}

// CountsToMS2 converts a raw 16-bit accelerometer count into m/s² for the
// given full-scale range code (0=±2g, 1=±4g, 2=±8g, 3=±16g).
func CountsToMS2(count int16, rangeCode byte) float64 {
	fullScaleG := []float64{2, 4, 8, 16}[rangeCode&0x03]
	return float64(count) / 32768.0 * fullScaleG * StandardGravity
}
