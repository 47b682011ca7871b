package walk

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
	"github.com/relabs-tech/inertial_walker/internal/orientation"
	"github.com/relabs-tech/inertial_walker/internal/radio"
)

func f64(v float64) *float64 { return &v }

func sampleRecord() *Record {
	rec := &Record{
		SessionID:     "20260303_100000",
		Direction:     anchor.Reverse,
		Collector:     "pdr_walker",
		StartLabel:    "C14",
		EndLabel:      "C4",
		StrideLengthM: 0.75,
		Samples: []SampleRecord{{
			TimestampMs:      1772532001000,
			SessionID:        "20260303_100000",
			StepCount:        2,
			DistanceM:        1.5,
			HeadingDeg:       56.8,
			HeadingOffset:    3,
			SensorAccuracy:   orientation.AccuracyMedium,
			X:                1.2,
			Y:                0.8,
			PhoneOrientation: DefaultPhoneOrientation,
			WifiData:         []radio.Reading{{SSID: "eduroam", BSSID: "00:1a:2b:3c:4d:5e", RSSI: -47}},
		}},
		Events: Events{
			LifecycleEvent{Type: EventStartWalk, TimestampMs: 1772532000000, Details: "direction=reverse"},
			AnchorEvent{
				Type: EventAnchorMarker, Label: "C14", TimestampMs: 1772532001500, StepCount: 2,
				HeadingMeasured: 60, HeadingExpected: f64(56.8), HeadingError: f64(-3.2),
				X: 27.0163, Y: 4.6369, PdrX: 1.2, PdrY: 0.8,
			},
			AnchorEvent{Type: EventAnchorMarker, Label: "C9", HeadingMeasured: 10},
			LifecycleEvent{Type: EventStopWalk, TimestampMs: 1772532002000, Details: "steps=2 distance_m=1.50"},
		},
	}
	rec.Summary = summarize(1772532000000, 1772532002000, 2, 1.5, rec.Samples, rec.Events)
	return rec
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestRecordJSON_FieldNames(t *testing.T) {
	b, err := json.Marshal(sampleRecord())
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &top))
	assert.Equal(t, []string{
		"collector", "direction", "end_label", "events", "samples",
		"session_id", "start_label", "stride_length_m", "summary",
	}, keys(top))
	assert.JSONEq(t, `"reverse"`, string(top["direction"]))

	var samples []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(top["samples"], &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, []string{
		"distance_m", "heading_deg", "heading_offset", "phone_orientation",
		"sensor_accuracy", "session_id", "step_count", "timestamp_ms",
		"wifi_data", "x", "y", "z",
	}, keys(samples[0]))
	assert.JSONEq(t, `"MEDIUM"`, string(samples[0]["sensor_accuracy"]))
	assert.JSONEq(t, `[{"ssid":"eduroam","bssid":"00:1a:2b:3c:4d:5e","rssi":-47}]`, string(samples[0]["wifi_data"]))

	var events []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(top["events"], &events))
	require.Len(t, events, 4)
	assert.Equal(t, []string{"details", "timestamp_ms", "type"}, keys(events[0]))
	assert.Equal(t, []string{
		"heading_error", "heading_expected", "heading_measured", "label",
		"pdr_x", "pdr_y", "step_count", "timestamp_ms", "type", "x", "y",
	}, keys(events[1]))
	assert.JSONEq(t, `"anchor_marker"`, string(events[1]["type"]))
	assert.JSONEq(t, `null`, string(events[2]["heading_error"]))
}

func TestRecordJSON_DecodesEvents(t *testing.T) {
	want := sampleRecord()
	b, err := json.MarshalIndent(want, "", "    ")
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(b, &got))
	if diff := cmp.Diff(*want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, got.Events.Anchors(), 2)
}

func TestEvents_UnknownType(t *testing.T) {
	var es Events
	err := json.Unmarshal([]byte(`[{"type":"teleport"}]`), &es)
	assert.ErrorContains(t, err, "teleport")
}

func TestSummarize(t *testing.T) {
	samples := []SampleRecord{{HeadingDeg: 350}, {HeadingDeg: 10}}
	events := Events{
		AnchorEvent{HeadingError: f64(-4)},
		AnchorEvent{HeadingError: f64(8)},
		AnchorEvent{},
	}
	s := summarize(1000, 31000, 40, 30, samples, events)

	assert.Equal(t, int64(30000), s.DurationMs)
	assert.Equal(t, 40, s.StepCount)
	assert.Equal(t, 2, s.SampleCount)
	assert.Equal(t, 3, s.AnchorsMarked)
	require.NotNil(t, s.MeanHeadingDeg)
	assert.InDelta(t, 0, orientation.Wrap180(*s.MeanHeadingDeg), 1e-9, "circular mean across north")
	require.NotNil(t, s.MeanAbsErrorDeg)
	assert.InDelta(t, 6, *s.MeanAbsErrorDeg, 1e-9)
	require.NotNil(t, s.AbsErrorStdDevDeg)
	assert.InDelta(t, 2.8284271247, *s.AbsErrorStdDevDeg, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	s := summarize(0, 0, 0, 0, nil, nil)
	assert.Nil(t, s.MeanHeadingDeg)
	assert.Nil(t, s.MeanAbsErrorDeg)
	assert.Nil(t, s.AbsErrorStdDevDeg)

	one := summarize(0, 0, 0, 0, nil, Events{AnchorEvent{HeadingError: f64(-3)}})
	require.NotNil(t, one.AbsErrorStdDevDeg)
	assert.Equal(t, 3.0, *one.MeanAbsErrorDeg)
	assert.Equal(t, 0.0, *one.AbsErrorStdDevDeg)
}
