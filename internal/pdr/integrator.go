// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pdr integrates detected steps into a 2-D position.
//
// Local frame: heading 0° walks along +Y, heading 90° walks along +X,
// the same frame the anchor table coordinates are surveyed in.
package pdr

import (
	"math"
	"sync"
)

// DefaultStepLength is the stride used when none is configured, in meters.
const DefaultStepLength = 0.75

// Position is a dead-reckoned location. Z is a floor index.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z int     `json:"z"`
}

// Integrator advances a position by a fixed stride on every step.
// There is no reconciliation with ground truth other than ResetTo.
type Integrator struct {
	mu         sync.Mutex
	stepLength float64
	pos        Position
}

// NewIntegrator creates an integrator at the origin.
func NewIntegrator(stepLength float64) *Integrator {
	if stepLength <= 0 || math.IsNaN(stepLength) {
		stepLength = DefaultStepLength
	}
	return &Integrator{stepLength: stepLength}
}

// StepLength returns the stride in meters.
func (p *Integrator) StepLength() float64 {
	return p.stepLength
}

// OnStep moves one stride along headingDeg.
func (p *Integrator) OnStep(headingDeg float64) {
	rad := headingDeg * math.Pi / 180.0
	dx := p.stepLength * math.Sin(rad)
	dy := p.stepLength * math.Cos(rad)

	p.mu.Lock()
	p.pos.X += dx
	p.pos.Y += dy
	p.mu.Unlock()
}

// Position returns the current position.
func (p *Integrator) Position() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// ResetTo places the integrator at an explicit coordinate.
func (p *Integrator) ResetTo(x, y float64, z int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = Position{X: x, Y: y, Z: z}
}
