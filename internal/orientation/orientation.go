// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Accuracy is the reliability reported by a fused-orientation source.
type Accuracy int

const (
	AccuracyUnreliable Accuracy = iota
	AccuracyLow
	AccuracyMedium
	AccuracyHigh
)

var accuracyNames = map[Accuracy]string{
	AccuracyUnreliable: "UNRELIABLE",
	AccuracyLow:        "LOW",
	AccuracyMedium:     "MEDIUM",
	AccuracyHigh:       "HIGH",
}

func (a Accuracy) String() string {
	if s, ok := accuracyNames[a]; ok {
		return s
	}
	return fmt.Sprintf("Accuracy(%d)", int(a))
}

// ParseAccuracy accepts the names produced by String, case-insensitively.
func ParseAccuracy(s string) (Accuracy, error) {
	for a, name := range accuracyNames {
		if strings.EqualFold(s, name) {
			return a, nil
		}
	}
	return AccuracyUnreliable, fmt.Errorf("unknown accuracy %q", s)
}

func (a Accuracy) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Accuracy) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAccuracy(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sample is a single fused-orientation reading as delivered by the
// orientation source. Azimuth is in radians, any range.
type Sample struct {
	AzimuthRad float64  `json:"azimuth_rad"`
	Accuracy   Accuracy `json:"accuracy"`
}

// Source is anything that can provide orientation samples over time
// (mock source, NMEA compass, replay file...).
type Source interface {
	Next() (Sample, error)
}

// Wrap360 maps any angle in degrees into [0,360).
func Wrap360(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	// math.Mod(-1e-15, 360) + 360 rounds to exactly 360.
	if w >= 360 {
		w = 0
	}
	return w
}

// Wrap180 maps an angle difference in degrees into (-180,180].
func Wrap180(deg float64) float64 {
	w := Wrap360(deg)
	if w > 180 {
		w -= 360
	}
	return w
}

func RadToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

func DegToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
