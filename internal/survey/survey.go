// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package survey captures static radio fingerprints: the operator stands
// on a surveyed point, takes one scan, and the rig steps on to the next
// point of the route. The route is walked end to end and back, turning the
// facing a quarter each time an end is reached.
package survey

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
	"github.com/relabs-tech/inertial_walker/internal/radio"
	"github.com/relabs-tech/inertial_walker/internal/timeutil"
)

// Fingerprint kinds.
const (
	KindScan = "scan"
	KindFlag = "flag"
)

var (
	ErrNoRoute      = errors.New("survey route is empty")
	ErrUnknownPoint = errors.New("unknown survey point")
	ErrNoReadings   = errors.New("scan saw no access points")
)

// Fingerprint is one saved scan at a known position, or a flag marker
// dropped between scans. Flags carry no position or readings.
type Fingerprint struct {
	ID          int64           `json:"id,omitempty"`
	Kind        string          `json:"kind"`
	Label       string          `json:"label"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
	Z           int             `json:"z"`
	HeadingDeg  float64         `json:"heading"`
	TimestampMs int64           `json:"timestamp_ms"`
	WifiData    []radio.Reading `json:"wifi_data"`
}

// Store keeps saved fingerprints.
type Store interface {
	SaveFingerprint(ctx context.Context, fp *Fingerprint) error
	ListFingerprints(ctx context.Context) ([]Fingerprint, error)
	// ClearFingerprints removes everything and reports how many were removed.
	ClearFingerprints(ctx context.Context) (int, error)
}

// Facing is the cardinal direction the operator faces while scanning.
type Facing int

const (
	North Facing = iota
	East
	South
	West
)

func (f Facing) String() string {
	return [...]string{"N", "E", "S", "W"}[f%4]
}

// Degrees is the compass heading recorded with a scan.
func (f Facing) Degrees() float64 {
	return float64(f%4) * 90
}

// Point is a position where the operator can scan.
type Point struct {
	Label  string  `json:"label"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      int     `json:"z"`
	Facing string  `json:"facing"`
}

// Survey walks a fixed route of points. It is safe for concurrent use.
type Survey struct {
	mu      sync.Mutex
	route   []anchor.Anchor
	z       int
	idx     int
	forward bool
	facing  Facing
	flags   int

	radio *radio.Bounded
	store Store
	clock timeutil.Clock
}

// New creates a survey over route (copied) at floor z. A nil clock means
// the wall clock.
func New(route []anchor.Anchor, z int, scanner *radio.Bounded, store Store, clock timeutil.Clock) *Survey {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Survey{
		route:   append([]anchor.Anchor(nil), route...),
		z:       z,
		forward: true,
		radio:   scanner,
		store:   store,
		clock:   clock,
	}
}

func (s *Survey) pointLocked() (Point, error) {
	if len(s.route) == 0 {
		return Point{}, ErrNoRoute
	}
	a := s.route[s.idx]
	return Point{Label: a.Label, X: a.X, Y: a.Y, Z: s.z, Facing: s.facing.String()}, nil
}

// Current returns the point the next scan will be saved at.
func (s *Survey) Current() (Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointLocked()
}

// Select moves the cursor to the point with the given label.
func (s *Survey) Select(label string) (Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.route {
		if a.Label == label {
			s.idx = i
			return s.pointLocked()
		}
	}
	return Point{}, fmt.Errorf("%w: %q", ErrUnknownPoint, label)
}

// advanceLocked steps to the neighbouring point, bouncing at either end
// and turning a quarter when it does.
func (s *Survey) advanceLocked() {
	n := len(s.route)
	if n < 2 {
		return
	}
	if s.forward {
		if s.idx < n-1 {
			s.idx++
			return
		}
		s.forward = false
		s.idx--
	} else {
		if s.idx > 0 {
			s.idx--
			return
		}
		s.forward = true
		s.idx++
	}
	s.facing = (s.facing + 1) % 4
}

// Capture scans once at the current point, saves the fingerprint and steps
// to the next point. An empty scan is refused and the cursor stays put.
func (s *Survey) Capture(ctx context.Context) (*Fingerprint, Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.pointLocked()
	if err != nil {
		return nil, Point{}, err
	}
	fp, err := s.scanLocked(ctx, p.Label, p.X, p.Y, p.Z)
	if err != nil {
		return nil, p, err
	}
	s.advanceLocked()
	next, _ := s.pointLocked()
	return fp, next, nil
}

// CaptureAt scans once at an ad hoc position off the route. The cursor
// does not move.
func (s *Survey) CaptureAt(ctx context.Context, label string, x, y float64, z int) (*Fingerprint, error) {
	if label == "" {
		return nil, errors.New("label is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanLocked(ctx, label, x, y, z)
}

func (s *Survey) scanLocked(ctx context.Context, label string, x, y float64, z int) (*Fingerprint, error) {
	readings := s.radio.Snapshot(ctx)
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	fp := &Fingerprint{
		Kind:        KindScan,
		Label:       label,
		X:           x,
		Y:           y,
		Z:           z,
		HeadingDeg:  s.facing.Degrees(),
		TimestampMs: s.clock.Now().UnixMilli(),
		WifiData:    readings,
	}
	if err := s.store.SaveFingerprint(ctx, fp); err != nil {
		return nil, fmt.Errorf("save fingerprint at %s: %w", label, err)
	}
	return fp, nil
}

// Flag saves a numbered marker. Numbering restarts with each process.
func (s *Survey) Flag(ctx context.Context) (*Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp := &Fingerprint{
		Kind:        KindFlag,
		Label:       fmt.Sprintf("flag%d", s.flags+1),
		TimestampMs: s.clock.Now().UnixMilli(),
		WifiData:    []radio.Reading{},
	}
	if err := s.store.SaveFingerprint(ctx, fp); err != nil {
		return nil, fmt.Errorf("save %s: %w", fp.Label, err)
	}
	s.flags++
	return fp, nil
}

// List returns every saved fingerprint in capture order.
func (s *Survey) List(ctx context.Context) ([]Fingerprint, error) {
	return s.store.ListFingerprints(ctx)
}

// Clear deletes every saved fingerprint.
func (s *Survey) Clear(ctx context.Context) (int, error) {
	return s.store.ClearFingerprints(ctx)
}
