package radio

import (
	"context"
	"sync"
	"time"

	"github.com/relabs-tech/inertial_walker/internal/timeutil"
)

// Cache is a Scanner fed by an external scan agent (for example the phone
// publishing its Wi-Fi results over MQTT). Scan returns the latest
// snapshot while it is younger than MaxAge, otherwise an empty one, so a
// stale fingerprint is never stamped onto a new location.
type Cache struct {
	mu       sync.RWMutex
	clock    timeutil.Clock
	maxAge   time.Duration
	readings []Reading
	at       time.Time
	have     bool
}

// NewCache creates a cache. A zero maxAge accepts snapshots of any age.
func NewCache(clock timeutil.Clock, maxAge time.Duration) *Cache {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Cache{clock: clock, maxAge: maxAge}
}

// Update stores a new snapshot stamped with the current time.
func (c *Cache) Update(readings []Reading) {
	cp := make([]Reading, len(readings))
	copy(cp, readings)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = cp
	c.at = c.clock.Now()
	c.have = true
}

// Scan implements Scanner.
func (c *Cache) Scan(context.Context) ([]Reading, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.have {
		return []Reading{}, nil
	}
	if c.maxAge > 0 && c.clock.Now().Sub(c.at) > c.maxAge {
		return []Reading{}, nil
	}
	out := make([]Reading, len(c.readings))
	copy(out, c.readings)
	return out, nil
}
