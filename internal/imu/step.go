package imu

import (
	"sync"
	"time"
)

// Defaults for the peak/valley step detector, in m/s² and nanoseconds.
const (
	DefaultHighThreshold = 12.0
	DefaultLowThreshold  = 9.5
	DefaultCooldown      = 250 * time.Millisecond
)

// StepConfig holds the fixed detector constants for a deployment.
type StepConfig struct {
	HighThreshold float64
	LowThreshold  float64
	Cooldown      time.Duration
}

// DefaultStepConfig returns the thresholds tuned for a phone held in front
// of the body.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		HighThreshold: DefaultHighThreshold,
		LowThreshold:  DefaultLowThreshold,
		Cooldown:      DefaultCooldown,
	}
}

// StepState is a snapshot of the detector state.
type StepState struct {
	Count      int   `json:"count"`
	Armed      bool  `json:"armed"`
	LastStepNs int64 `json:"last_step_ns"`
}

// StepDetector counts steps from acceleration magnitude using two
// thresholds and a refractory period. A step fires when the detector is
// armed, the magnitude exceeds the high threshold and the cooldown since
// the previous step has elapsed. Dropping below the low threshold re-arms
// it, independently of the cooldown.
type StepDetector struct {
	mu sync.Mutex

	cfg        StepConfig
	count      int
	armed      bool
	lastStepNs int64
	stepped    bool
}

// NewStepDetector creates an armed detector. Zero fields in cfg take the defaults.
func NewStepDetector(cfg StepConfig) *StepDetector {
	def := DefaultStepConfig()
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = def.HighThreshold
	}
	if cfg.LowThreshold <= 0 || cfg.LowThreshold >= cfg.HighThreshold {
		cfg.LowThreshold = def.LowThreshold
		if cfg.LowThreshold >= cfg.HighThreshold {
			cfg.LowThreshold = cfg.HighThreshold * 0.8
		}
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &StepDetector{cfg: cfg, armed: true}
}

// Config returns the constants the detector runs with.
func (d *StepDetector) Config() StepConfig {
	return d.cfg
}

// OnSample processes one acceleration sample and reports whether it
// produced a step.
func (d *StepDetector) OnSample(s AccelSample) bool {
	m := s.Magnitude()

	d.mu.Lock()
	defer d.mu.Unlock()

	if m < d.cfg.LowThreshold {
		d.armed = true
		return false
	}

	if !d.armed || m <= d.cfg.HighThreshold {
		return false
	}
	// The very first step has no previous step to cool down from.
	if d.stepped && s.TimestampNs-d.lastStepNs <= d.cfg.Cooldown.Nanoseconds() {
		return false
	}

	d.armed = false
	d.count++
	d.lastStepNs = s.TimestampNs
	d.stepped = true
	return true
}

// StepCount returns the number of steps since the last Reset.
func (d *StepDetector) StepCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// State returns a copy of the detector state.
func (d *StepDetector) State() StepState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return StepState{Count: d.count, Armed: d.armed, LastStepNs: d.lastStepNs}
}

// Reset zeroes the count and re-arms the detector.
func (d *StepDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count = 0
	d.armed = true
	d.lastStepNs = 0
	d.stepped = false
}
