// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package walk runs a supervised data-collection walk: it owns the heading
// estimator, step detector, position integrator and anchor table, samples
// them once per tick together with a radio snapshot, and emits a finished
// session record on stop.
package walk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
	"github.com/relabs-tech/inertial_walker/internal/imu"
	"github.com/relabs-tech/inertial_walker/internal/orientation"
	"github.com/relabs-tech/inertial_walker/internal/pdr"
	"github.com/relabs-tech/inertial_walker/internal/radio"
	"github.com/relabs-tech/inertial_walker/internal/timeutil"
)

// SessionIDLayout formats the wall-clock start time into a session id.
const SessionIDLayout = "20060102_150405"

const (
	DefaultTickInterval     = 1000 * time.Millisecond
	DefaultPhoneOrientation = "front_portrait"
	DefaultCollector        = "pdr_walker"
)

// Config is fixed for the lifetime of a Controller.
type Config struct {
	StepLength       float64
	Step             imu.StepConfig
	HeadingAlpha     float64
	TickInterval     time.Duration
	ScanTimeout      time.Duration
	Origin           pdr.Position
	Anchors          []anchor.Anchor
	Collector        string
	StartLabel       string
	EndLabel         string
	PhoneOrientation string
}

// DefaultConfig matches the corridor deployment the rig was built for.
func DefaultConfig() Config {
	return Config{
		StepLength:       pdr.DefaultStepLength,
		Step:             imu.DefaultStepConfig(),
		HeadingAlpha:     orientation.DefaultAlpha,
		TickInterval:     DefaultTickInterval,
		ScanTimeout:      radio.DefaultScanTimeout,
		Anchors:          anchor.DefaultCorridor(),
		Collector:        DefaultCollector,
		StartLabel:       "C4",
		EndLabel:         "C14",
		PhoneOrientation: DefaultPhoneOrientation,
	}
}

// Sink persists a finished session record.
type Sink interface {
	Save(ctx context.Context, rec *Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec *Record) error

func (f SinkFunc) Save(ctx context.Context, rec *Record) error { return f(ctx, rec) }

// Sensors lets the host register and release the underlying sensor streams
// around a walk.
type Sensors interface {
	Start() error
	Stop() error
}

// Options carries the collaborators of a Controller. Zero values get
// working defaults: real clock, no radio, no sensors hook, no sinks.
type Options struct {
	Clock   timeutil.Clock
	Scanner radio.Scanner
	Sensors Sensors
	Sinks   []Sink
	Logf    func(format string, v ...interface{})
}

// State of the walk state machine.
type State int

const (
	StateIdle State = iota
	StateWalking
)

func (s State) String() string {
	if s == StateWalking {
		return "WALKING"
	}
	return "IDLE"
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "WALKING":
		*s = StateWalking
	case "IDLE":
		*s = StateIdle
	default:
		return fmt.Errorf("unknown walk state %q", name)
	}
	return nil
}

// Status is a live snapshot for operator displays.
type Status struct {
	State          State                `json:"state"`
	SessionID      string               `json:"session_id"`
	Direction      anchor.Direction     `json:"direction"`
	ElapsedMs      int64                `json:"elapsed_ms"`
	StepCount      int                  `json:"step_count"`
	DistanceM      float64              `json:"distance_m"`
	HeadingDeg     float64              `json:"heading_deg"`
	HeadingOffset  float64              `json:"heading_offset"`
	ManualOverride *float64             `json:"manual_override"`
	Accuracy       orientation.Accuracy `json:"sensor_accuracy"`
	X              float64              `json:"x"`
	Y              float64              `json:"y"`
	Z              int                  `json:"z"`
	Samples        int                  `json:"samples"`
	AnchorsMarked  int                  `json:"anchors_marked"`
	NextAnchor     string               `json:"next_anchor"`
}

// Controller is the walk session state machine (IDLE -> WALKING -> IDLE).
type Controller struct {
	cfg     Config
	clock   timeutil.Clock
	scan    *radio.Bounded
	sensors Sensors
	sinks   []Sink
	logf    func(format string, v ...interface{})

	heading *orientation.HeadingEstimator
	steps   *imu.StepDetector
	pos     *pdr.Integrator
	anchors *anchor.Table

	// accelMu covers a whole accel sample, gate check through position
	// update, so Stop never resets under a step in flight.
	accelMu   sync.Mutex
	accepting bool

	// lifecycle serializes Start and Stop end to end, sinks included.
	lifecycle sync.Mutex
	// tickMu keeps ticks strictly sequential.
	tickMu sync.Mutex

	mu         sync.Mutex
	walking    bool
	gen        uint64
	direction  anchor.Direction
	sessionID  string
	lastID     string
	idSuffix   int
	startMs    int64
	samples    []SampleRecord
	events     Events
	cancelTick context.CancelFunc
	tickDone   chan struct{}
}

// NewController builds an idle controller. The first session walks forward.
func NewController(cfg Config, opts Options) *Controller {
	def := DefaultConfig()
	if cfg.StepLength <= 0 {
		cfg.StepLength = def.StepLength
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.PhoneOrientation == "" {
		cfg.PhoneOrientation = def.PhoneOrientation
	}
	if cfg.Collector == "" {
		cfg.Collector = def.Collector
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}

	scan := radio.NewBounded(opts.Scanner, cfg.ScanTimeout)
	scan.Logf = opts.Logf

	c := &Controller{
		cfg:     cfg,
		clock:   opts.Clock,
		scan:    scan,
		sensors: opts.Sensors,
		sinks:   opts.Sinks,
		logf:    opts.Logf,
		heading: orientation.NewHeadingEstimator(cfg.HeadingAlpha),
		steps:   imu.NewStepDetector(cfg.Step),
		pos:     pdr.NewIntegrator(cfg.StepLength),
		anchors: anchor.NewTable(cfg.Anchors),
	}
	c.pos.ResetTo(cfg.Origin.X, cfg.Origin.Y, cfg.Origin.Z)
	c.heading.OnAccuracyTransition(func(prev, next orientation.Accuracy) {
		if next == orientation.AccuracyUnreliable {
			c.logf("walk: heading degraded (%s -> %s)", prev, next)
			return
		}
		c.logf("walk: heading accuracy %s -> %s", prev, next)
	})
	return c
}

// Heading exposes the estimator for callers that only read it.
func (c *Controller) Heading() *orientation.HeadingEstimator { return c.heading }

// Start begins a new session. It fails with ErrAlreadyWalking, without
// touching any state, while a session is active.
func (c *Controller) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.walking {
		c.mu.Unlock()
		return ErrAlreadyWalking
	}

	now := c.clock.Now()
	c.steps.Reset()
	c.pos.ResetTo(c.cfg.Origin.X, c.cfg.Origin.Y, c.cfg.Origin.Z)
	c.anchors.Reset()

	c.sessionID = c.nextSessionIDLocked(now)
	c.startMs = now.UnixMilli()
	c.samples = make([]SampleRecord, 0, 64)
	c.events = Events{LifecycleEvent{
		Type:        EventStartWalk,
		TimestampMs: c.startMs,
		Details:     fmt.Sprintf("direction=%s", c.direction),
	}}
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancelTick = cancel
	c.tickDone = done
	c.walking = true
	c.setAccepting(true)
	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	sessionID, direction := c.sessionID, c.direction
	c.mu.Unlock()

	go c.tickLoop(ctx, gen, ticker, done)

	if c.sensors != nil {
		if err := c.sensors.Start(); err != nil {
			c.logf("walk: sensors unavailable, continuing degraded: %v", err)
		}
	}
	c.logf("walk: session %s started (%s)", sessionID, direction)
	return nil
}

func (c *Controller) nextSessionIDLocked(now time.Time) string {
	id := now.Format(SessionIDLayout)
	base := id
	if base == c.lastID {
		c.idSuffix++
		id = fmt.Sprintf("%s_%d", base, c.idSuffix+1)
	} else {
		c.idSuffix = 0
	}
	c.lastID = base
	return id
}

func (c *Controller) tickLoop(ctx context.Context, gen uint64, ticker timeutil.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			c.tick(ctx, gen, now)
		}
	}
}

// Tick samples the session at now. It reports whether a sample was
// appended; it is false while idle.
func (c *Controller) Tick(now time.Time) bool {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.tick(context.Background(), gen, now)
}

func (c *Controller) tick(ctx context.Context, gen uint64, now time.Time) bool {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	if !c.walking || c.gen != gen {
		c.mu.Unlock()
		return false
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	steps := c.steps.StepCount()
	pos := c.pos.Position()
	rec := SampleRecord{
		TimestampMs:      now.UnixMilli(),
		SessionID:        sessionID,
		StepCount:        steps,
		DistanceM:        float64(steps) * c.cfg.StepLength,
		HeadingDeg:       c.heading.CurrentHeadingDeg(),
		HeadingOffset:    c.heading.OffsetDeg(),
		SensorAccuracy:   c.heading.LastAccuracy(),
		X:                pos.X,
		Y:                pos.Y,
		Z:                pos.Z,
		PhoneOrientation: c.cfg.PhoneOrientation,
	}
	// The scan may be slow; it runs without holding the session lock.
	rec.WifiData = c.scan.Snapshot(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.walking || c.gen != gen {
		return false
	}
	c.samples = append(c.samples, rec)
	return true
}

// MarkAnchor confirms the walker is at the next anchor of the current
// direction and measures heading drift there. Drift is recorded only; the
// estimator and integrator are left untouched.
func (c *Controller) MarkAnchor() (AnchorEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.walking {
		return AnchorEvent{}, ErrNotWalking
	}
	a, ok := c.anchors.Current(c.direction)
	if !ok {
		return AnchorEvent{}, ErrAnchorsExhausted
	}

	measured := c.heading.CurrentHeadingDeg()
	pos := c.pos.Position()
	ev := AnchorEvent{
		Type:            EventAnchorMarker,
		Label:           a.Label,
		TimestampMs:     c.clock.Now().UnixMilli(),
		StepCount:       c.steps.StepCount(),
		HeadingMeasured: measured,
		X:               a.X,
		Y:               a.Y,
		PdrX:            pos.X,
		PdrY:            pos.Y,
	}
	if expected, ok := c.anchors.ExpectedHeading(a, c.direction); ok {
		drift := orientation.Wrap180(expected - measured)
		ev.HeadingExpected = &expected
		ev.HeadingError = &drift
		c.logf("walk: anchor %s measured=%.1f expected=%.1f error=%.1f", a.Label, measured, expected, drift)
	} else {
		c.logf("walk: anchor %s measured=%.1f (no expected heading)", a.Label, measured)
	}
	c.events = append(c.events, ev)
	c.anchors.Advance()
	return ev, nil
}

// Stop ends the active session and hands its record to the sinks. The
// controller is idle afterwards even when a sink fails; in that case the
// record is still returned and the error wraps ErrPersist.
func (c *Controller) Stop(ctx context.Context) (*Record, error) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if !c.walking {
		c.mu.Unlock()
		return nil, ErrNotWalking
	}
	c.walking = false
	c.setAccepting(false)
	cancel, done := c.cancelTick, c.tickDone
	c.cancelTick, c.tickDone = nil, nil

	now := c.clock.Now()
	steps := c.steps.StepCount()
	distance := float64(steps) * c.cfg.StepLength
	c.events = append(c.events, LifecycleEvent{
		Type:        EventStopWalk,
		TimestampMs: now.UnixMilli(),
		Details:     fmt.Sprintf("steps=%d distance_m=%.2f", steps, distance),
	})
	rec := &Record{
		SessionID:     c.sessionID,
		Direction:     c.direction,
		Collector:     c.cfg.Collector,
		StartLabel:    c.cfg.StartLabel,
		EndLabel:      c.cfg.EndLabel,
		StrideLengthM: c.cfg.StepLength,
		Samples:       c.samples,
		Events:        c.events,
	}
	if c.direction == anchor.Reverse {
		rec.StartLabel, rec.EndLabel = rec.EndLabel, rec.StartLabel
	}
	rec.Summary = summarize(c.startMs, now.UnixMilli(), steps, distance, rec.Samples, rec.Events)

	c.direction = c.direction.Flip()
	c.anchors.Reset()
	c.steps.Reset()
	c.pos.ResetTo(c.cfg.Origin.X, c.cfg.Origin.Y, c.cfg.Origin.Z)
	c.samples, c.events = nil, nil
	c.mu.Unlock()

	cancel()
	<-done

	if c.sensors != nil {
		if err := c.sensors.Stop(); err != nil {
			c.logf("walk: stopping sensors: %v", err)
		}
	}
	c.logf("walk: session %s stopped: %d samples, %d steps, %.2f m",
		rec.SessionID, len(rec.Samples), steps, distance)

	var errs []error
	for _, s := range c.sinks {
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrPersist, errors.Join(errs...))
		c.logf("walk: session %s: %v", rec.SessionID, err)
		return rec, err
	}
	return rec, nil
}

// Run drains both sensor streams on the calling goroutine until ctx ends,
// then forces a stop so no session outlives its host. A closed orientation
// stream marks the heading unavailable.
func (c *Controller) Run(ctx context.Context, orientations <-chan orientation.Sample, accels <-chan imu.AccelSample) error {
	for {
		select {
		case <-ctx.Done():
			if _, err := c.Stop(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrNotWalking) {
				return err
			}
			return nil
		case s, ok := <-orientations:
			if !ok {
				orientations = nil
				c.heading.MarkUnavailable()
				continue
			}
			c.OnOrientation(s)
		case a, ok := <-accels:
			if !ok {
				accels = nil
				continue
			}
			c.OnAccel(a)
		}
	}
}

// OnOrientation feeds the heading estimator. Orientation is tracked while
// idle too so the heading is settled when a walk starts.
func (c *Controller) OnOrientation(s orientation.Sample) {
	c.heading.OnSample(s)
}

// OnAccel feeds the step detector; each detected step advances the
// position along the current heading. Ignored while idle.
func (c *Controller) OnAccel(s imu.AccelSample) {
	c.accelMu.Lock()
	defer c.accelMu.Unlock()
	if !c.accepting {
		return
	}
	if c.steps.OnSample(s) {
		c.pos.OnStep(c.heading.CurrentHeadingDeg())
	}
}

// setAccepting waits for any accel sample in flight before flipping the gate.
func (c *Controller) setAccepting(v bool) {
	c.accelMu.Lock()
	c.accepting = v
	c.accelMu.Unlock()
}

// Zero makes the current compass heading the zero reference.
func (c *Controller) Zero() {
	c.heading.Zero()
	c.logf("walk: heading zeroed (offset %.1f)", c.heading.OffsetDeg())
}

// AddOffset trims the heading by deltaDeg.
func (c *Controller) AddOffset(deltaDeg float64) {
	c.heading.AddOffset(deltaDeg)
	c.logf("walk: heading offset now %.1f", c.heading.OffsetDeg())
}

// SetManualOverride switches between trusting the compass (nil) and an
// operator-entered heading.
func (c *Controller) SetManualOverride(deg *float64) {
	c.heading.SetManualOverride(deg)
	if deg == nil {
		c.logf("walk: manual heading cleared")
		return
	}
	c.logf("walk: manual heading %.1f", orientation.Wrap360(*deg))
}

// ResetPosition is the operator's explicit position correction.
func (c *Controller) ResetPosition(x, y float64, z int) {
	c.pos.ResetTo(x, y, z)
	c.logf("walk: position reset to (%.2f, %.2f, %d)", x, y, z)
}

// Status returns a live snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps := c.steps.StepCount()
	pos := c.pos.Position()
	st := Status{
		State:         StateIdle,
		Direction:     c.direction,
		StepCount:     steps,
		DistanceM:     float64(steps) * c.cfg.StepLength,
		HeadingDeg:    c.heading.CurrentHeadingDeg(),
		HeadingOffset: c.heading.OffsetDeg(),
		Accuracy:      c.heading.LastAccuracy(),
		X:             pos.X,
		Y:             pos.Y,
		Z:             pos.Z,
	}
	if v, ok := c.heading.ManualOverride(); ok {
		st.ManualOverride = &v
	}
	if next, ok := c.anchors.Current(c.direction); ok {
		st.NextAnchor = next.Label
	}
	if c.walking {
		st.State = StateWalking
		st.SessionID = c.sessionID
		st.ElapsedMs = c.clock.Now().UnixMilli() - c.startMs
		st.Samples = len(c.samples)
		st.AnchorsMarked = len(c.events.Anchors())
	}
	return st
}
