package walk

import (
	"encoding/json"
	"fmt"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
	"github.com/relabs-tech/inertial_walker/internal/orientation"
	"github.com/relabs-tech/inertial_walker/internal/radio"
)

// Event type tags as they appear in the "type" field of the events array.
const (
	EventAnchorMarker = "anchor_marker"
	EventStartWalk    = "start_walk"
	EventStopWalk     = "stop_walk"
)

// SampleRecord is one per-tick row of the walk log.
type SampleRecord struct {
	TimestampMs      int64                `json:"timestamp_ms"`
	SessionID        string               `json:"session_id"`
	StepCount        int                  `json:"step_count"`
	DistanceM        float64              `json:"distance_m"`
	HeadingDeg       float64              `json:"heading_deg"`
	HeadingOffset    float64              `json:"heading_offset"`
	SensorAccuracy   orientation.Accuracy `json:"sensor_accuracy"`
	X                float64              `json:"x"`
	Y                float64              `json:"y"`
	Z                int                  `json:"z"`
	PhoneOrientation string               `json:"phone_orientation"`
	WifiData         []radio.Reading      `json:"wifi_data"`
}

// Event is an entry of the session event log: an anchor confirmation or a
// lifecycle marker.
type Event interface {
	EventType() string
	Timestamp() int64
}

// AnchorEvent records the operator confirming that the walker stands on
// an anchor. HeadingExpected and HeadingError are nil when the anchor has
// no surveyed heading for the walk direction.
type AnchorEvent struct {
	Type            string   `json:"type"`
	Label           string   `json:"label"`
	TimestampMs     int64    `json:"timestamp_ms"`
	StepCount       int      `json:"step_count"`
	HeadingMeasured float64  `json:"heading_measured"`
	HeadingExpected *float64 `json:"heading_expected"`
	HeadingError    *float64 `json:"heading_error"`
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
	PdrX            float64  `json:"pdr_x"`
	PdrY            float64  `json:"pdr_y"`
}

func (e AnchorEvent) EventType() string { return EventAnchorMarker }
func (e AnchorEvent) Timestamp() int64  { return e.TimestampMs }

// LifecycleEvent marks the start or stop of a walk.
type LifecycleEvent struct {
	Type        string `json:"type"`
	TimestampMs int64  `json:"timestamp_ms"`
	Details     string `json:"details"`
}

func (e LifecycleEvent) EventType() string { return e.Type }
func (e LifecycleEvent) Timestamp() int64  { return e.TimestampMs }

// Events is the heterogeneous event log. It decodes each element by its
// "type" field.
type Events []Event

func (es *Events) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Events, 0, len(raw))
	for i, r := range raw {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		switch head.Type {
		case EventAnchorMarker:
			var e AnchorEvent
			if err := json.Unmarshal(r, &e); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			out = append(out, e)
		case EventStartWalk, EventStopWalk:
			var e LifecycleEvent
			if err := json.Unmarshal(r, &e); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			out = append(out, e)
		default:
			return fmt.Errorf("event %d: unknown type %q", i, head.Type)
		}
	}
	*es = out
	return nil
}

// Anchors returns only the anchor confirmations, in log order.
func (es Events) Anchors() []AnchorEvent {
	var out []AnchorEvent
	for _, e := range es {
		if a, ok := e.(AnchorEvent); ok {
			out = append(out, a)
		}
	}
	return out
}

// Record is the finished-session document handed to sinks on stop.
type Record struct {
	SessionID     string           `json:"session_id"`
	Direction     anchor.Direction `json:"direction"`
	Collector     string           `json:"collector"`
	StartLabel    string           `json:"start_label"`
	EndLabel      string           `json:"end_label"`
	StrideLengthM float64          `json:"stride_length_m"`
	Samples       []SampleRecord   `json:"samples"`
	Events        Events           `json:"events"`
	Summary       Summary          `json:"summary"`
}
