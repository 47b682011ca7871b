// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package anchor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Direction is the traversal direction of a walk along the corridor.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Reverse {
		return Forward
	}
	return Reverse
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "forward":
		*d = Forward
	case "reverse":
		*d = Reverse
	default:
		return fmt.Errorf("unknown direction %q", s)
	}
	return nil
}

// Anchor is a surveyed waypoint. Expected headings are optional; without
// one, drift cannot be measured at that anchor.
type Anchor struct {
	Label          string   `json:"label"`
	X              float64  `json:"x"`
	Y              float64  `json:"y"`
	ForwardHeading *float64 `json:"expected_heading_forward_deg,omitempty"`
	ReverseHeading *float64 `json:"expected_heading_reverse_deg,omitempty"`
}

// ExpectedHeading returns the heading a walker should show at this anchor
// when moving in direction d.
func (a Anchor) ExpectedHeading(d Direction) (float64, bool) {
	h := a.ForwardHeading
	if d == Reverse {
		h = a.ReverseHeading
	}
	if h == nil {
		return 0, false
	}
	return *h, true
}

// ParseAnchor parses "label,x,y[,forward_deg[,reverse_deg]]". Empty heading
// fields mean "not available".
func ParseAnchor(s string) (Anchor, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 || len(parts) > 5 {
		return Anchor{}, fmt.Errorf("anchor %q: want label,x,y[,forward[,reverse]]", s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	a := Anchor{Label: parts[0]}
	if a.Label == "" {
		return Anchor{}, fmt.Errorf("anchor %q: empty label", s)
	}
	var err error
	if a.X, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return Anchor{}, fmt.Errorf("anchor %q: invalid x: %w", s, err)
	}
	if a.Y, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return Anchor{}, fmt.Errorf("anchor %q: invalid y: %w", s, err)
	}
	if len(parts) > 3 && parts[3] != "" {
		v, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return Anchor{}, fmt.Errorf("anchor %q: invalid forward heading: %w", s, err)
		}
		a.ForwardHeading = &v
	}
	if len(parts) > 4 && parts[4] != "" {
		v, err := strconv.ParseFloat(parts[4], 64)
		if err != nil {
			return Anchor{}, fmt.Errorf("anchor %q: invalid reverse heading: %w", s, err)
		}
		a.ReverseHeading = &v
	}
	return a, nil
}

func headingPtr(v float64) *float64 { return &v }

// DefaultCorridor is the C-shaped first-floor hallway the rig was surveyed on.
func DefaultCorridor() []Anchor {
	return []Anchor{
		{Label: "C4", X: 1.0154, Y: 4.6353, ForwardHeading: headingPtr(132.7), ReverseHeading: headingPtr(308.2)},
		{Label: "C9", X: 16.3398, Y: 4.6369, ForwardHeading: headingPtr(132.7), ReverseHeading: headingPtr(56.8)},
		{Label: "C14", X: 27.0163, Y: 4.6369, ForwardHeading: headingPtr(323.6), ReverseHeading: headingPtr(56.8)},
	}
}

// Table holds the anchors in forward order plus the exact reverse, and a
// cursor into whichever order the walk uses. Advance is the only mutator
// of the cursor and it never wraps.
type Table struct {
	mu      sync.Mutex
	forward []Anchor
	reverse []Anchor
	cursor  int
}

// NewTable copies anchors (forward order) and precomputes the reverse order.
func NewTable(anchors []Anchor) *Table {
	fwd := make([]Anchor, len(anchors))
	copy(fwd, anchors)
	rev := make([]Anchor, len(anchors))
	for i, a := range fwd {
		rev[len(fwd)-1-i] = a
	}
	return &Table{forward: fwd, reverse: rev}
}

func (t *Table) order(d Direction) []Anchor {
	if d == Reverse {
		return t.reverse
	}
	return t.forward
}

// Current returns the anchor under the cursor for direction d, or false
// once every anchor has been passed.
func (t *Table) Current(d Direction) (Anchor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.order(d)
	if t.cursor >= len(list) {
		return Anchor{}, false
	}
	return list[t.cursor], true
}

// ExpectedHeading is a convenience for a.ExpectedHeading(d).
func (t *Table) ExpectedHeading(a Anchor, d Direction) (float64, bool) {
	return a.ExpectedHeading(d)
}

// Advance moves the cursor one anchor on. Past the end it does nothing.
func (t *Table) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cursor < len(t.forward) {
		t.cursor++
	}
}

// Reset puts the cursor back on the first anchor.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = 0
}

func (t *Table) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

func (t *Table) Len() int {
	return len(t.forward)
}

// Remaining lists the anchors still ahead in direction d.
func (t *Table) Remaining(d Direction) []Anchor {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.order(d)
	if t.cursor >= len(list) {
		return nil
	}
	out := make([]Anchor, len(list)-t.cursor)
	copy(out, list[t.cursor:])
	return out
}
