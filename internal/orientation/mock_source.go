// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start      time.Time
	headingDeg float64
}

// NewMockSource creates a mock orientation source that holds a walking
// heading with a small sway, like a phone carried in front of the body.
func NewMockSource(headingDeg float64) Source {
	return &mockSource{start: time.Now(), headingDeg: headingDeg}
}

func (m *mockSource) Next() (Sample, error) {
	elapsed := time.Since(m.start).Seconds()
	sway := 3 * math.Sin(elapsed*2*math.Pi/1.1)

	return Sample{
		AzimuthRad: DegToRad(m.headingDeg + sway),
		Accuracy:   AccuracyHigh,
	}, nil
}
