// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
)

// DefaultAlpha is the smoothing constant of the heading low-pass filter.
// Higher is more responsive, lower is smoother.
const DefaultAlpha = 0.1

// ErrInvalidHeading is returned for operator-entered headings that are not numbers.
var ErrInvalidHeading = errors.New("invalid heading")

// HeadingEstimator turns fused-orientation samples into a smoothed heading
// in degrees [0,360), with a zero reference, a trim offset and an optional
// operator-entered override of the raw input.
//
// The offset is applied before the low-pass filter.
type HeadingEstimator struct {
	mu sync.Mutex

	alpha    float64
	filtered float64 // degrees, always in [0,360)
	seeded   bool
	lastRaw  float64
	haveRaw  bool
	offset   float64 // degrees, kept in [0,360)
	override *float64
	accuracy Accuracy
	dropped  int

	onTransition func(prev, next Accuracy)
}

// NewHeadingEstimator creates an estimator with the given smoothing constant.
// Values outside (0,1] fall back to DefaultAlpha.
func NewHeadingEstimator(alpha float64) *HeadingEstimator {
	if alpha <= 0 || alpha > 1 || math.IsNaN(alpha) {
		alpha = DefaultAlpha
	}
	// No sample seen yet: nothing vouches for the heading.
	return &HeadingEstimator{alpha: alpha, accuracy: AccuracyUnreliable}
}

// OnAccuracyTransition registers fn to be called whenever the reported
// accuracy changes. fn runs without the estimator lock held.
func (h *HeadingEstimator) OnAccuracyTransition(fn func(prev, next Accuracy)) {
	h.mu.Lock()
	h.onTransition = fn
	h.mu.Unlock()
}

// OnSample feeds one orientation sample through override, offset and filter.
// A non-finite azimuth is dropped; its accuracy is still recorded and the
// heading keeps its last value.
func (h *HeadingEstimator) OnSample(s Sample) {
	h.mu.Lock()
	if h.override != nil {
		h.applyRawLocked(*h.override)
	} else if math.IsNaN(s.AzimuthRad) || math.IsInf(s.AzimuthRad, 0) {
		h.dropped++
		log.Printf("orientation: dropping non-finite azimuth %v (%d dropped)", s.AzimuthRad, h.dropped)
	} else {
		h.applyRawLocked(Wrap360(RadToDeg(s.AzimuthRad)))
	}
	notify := h.setAccuracyLocked(s.Accuracy)
	h.mu.Unlock()
	notify()
}

func (h *HeadingEstimator) applyRawLocked(raw float64) {
	h.lastRaw = raw
	h.haveRaw = true

	adjusted := Wrap360(raw - h.offset)
	if !h.seeded {
		h.filtered = adjusted
		h.seeded = true
		return
	}
	// Filter along the shortest arc so 359 -> 1 does not sweep through 180.
	h.filtered = Wrap360(h.filtered + h.alpha*Wrap180(adjusted-h.filtered))
}

// Dropped reports how many non-finite samples have been discarded.
func (h *HeadingEstimator) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// OnAccuracyChanged records an accuracy report. It never touches the heading.
func (h *HeadingEstimator) OnAccuracyChanged(a Accuracy) {
	h.mu.Lock()
	notify := h.setAccuracyLocked(a)
	h.mu.Unlock()
	notify()
}

// MarkUnavailable is called when the host has no fused-orientation
// capability. The heading stays frozen at its last value.
func (h *HeadingEstimator) MarkUnavailable() {
	h.OnAccuracyChanged(AccuracyUnreliable)
}

func (h *HeadingEstimator) setAccuracyLocked(a Accuracy) func() {
	prev := h.accuracy
	h.accuracy = a
	fn := h.onTransition
	if prev == a || fn == nil {
		return func() {}
	}
	return func() { fn(prev, a) }
}

// CurrentHeadingDeg returns the filtered heading in [0,360).
func (h *HeadingEstimator) CurrentHeadingDeg() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filtered
}

// LastAccuracy returns the most recently reported accuracy.
func (h *HeadingEstimator) LastAccuracy() Accuracy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accuracy
}

// OffsetDeg returns the accumulated zero/trim offset in [0,360).
func (h *HeadingEstimator) OffsetDeg() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offset
}

// Zero makes the current raw heading the zero reference.
func (h *HeadingEstimator) Zero() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.haveRaw {
		h.offset = h.lastRaw
	}
	h.filtered = 0
}

// AddOffset accumulates a trim. The filtered heading moves with it at once.
func (h *HeadingEstimator) AddOffset(deltaDeg float64) {
	if math.IsNaN(deltaDeg) || math.IsInf(deltaDeg, 0) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offset = Wrap360(h.offset + deltaDeg)
	h.filtered = Wrap360(h.filtered - deltaDeg)
}

// SetManualOverride replaces the raw input with deg, once right away and
// then on every subsequent sample, so it holds even with no orientation
// stream. nil returns to trusting the compass. Non-finite values are ignored.
func (h *HeadingEstimator) SetManualOverride(deg *float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if deg == nil {
		h.override = nil
		return
	}
	if math.IsNaN(*deg) || math.IsInf(*deg, 0) {
		return
	}
	v := Wrap360(*deg)
	h.override = &v
	h.applyRawLocked(v)
}

// ManualOverride returns the override in effect, if any.
func (h *HeadingEstimator) ManualOverride() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.override == nil {
		return 0, false
	}
	return *h.override, true
}

// ParseManualHeading parses operator input for SetManualOverride.
// An empty string or "none" clears the override.
func ParseManualHeading(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHeading, s)
	}
	return &v, nil
}
