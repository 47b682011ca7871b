package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/relabs-tech/inertial_walker/internal/walk"
)

var csvHeader = []string{"timestamp", "event_type", "heading", "offset", "accuracy", "step_count", "wifi_count", "details"}

// CSVDir writes a flat per-session log to <Dir>/walk_<session_id>_log.csv:
// one "scan" row per sample and one row per event, in time order.
type CSVDir struct {
	Dir string
}

// NewCSVDir creates a CSV sink rooted at dir.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{Dir: dir}
}

// Path returns the file a session's log is written to.
func (c *CSVDir) Path(sessionID string) string {
	return filepath.Join(c.Dir, "walk_"+sessionID+"_log.csv")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

type csvRow struct {
	ts     int64
	fields []string
}

func sessionRows(rec *walk.Record) []csvRow {
	rows := make([]csvRow, 0, len(rec.Samples)+len(rec.Events))
	for _, s := range rec.Samples {
		rows = append(rows, csvRow{ts: s.TimestampMs, fields: []string{
			strconv.FormatInt(s.TimestampMs, 10), "scan",
			formatFloat(s.HeadingDeg), formatFloat(s.HeadingOffset), s.SensorAccuracy.String(),
			strconv.Itoa(s.StepCount), strconv.Itoa(len(s.WifiData)), "",
		}})
	}
	for _, ev := range rec.Events {
		row := csvRow{ts: ev.Timestamp()}
		switch e := ev.(type) {
		case walk.AnchorEvent:
			details := fmt.Sprintf("%s:exp=%s:meas=%s:err=%s", e.Label,
				formatOptional(e.HeadingExpected), formatFloat(e.HeadingMeasured), formatOptional(e.HeadingError))
			row.fields = []string{
				strconv.FormatInt(e.TimestampMs, 10), "anchor",
				formatFloat(e.HeadingMeasured), "", "", strconv.Itoa(e.StepCount), "", details,
			}
		case walk.LifecycleEvent:
			row.fields = []string{strconv.FormatInt(e.TimestampMs, 10), e.Type, "", "", "", "", "", e.Details}
		default:
			row.fields = []string{strconv.FormatInt(ev.Timestamp(), 10), ev.EventType(), "", "", "", "", "", ""}
		}
		rows = append(rows, row)
	}
	// Stable: a sample and an event at the same instant keep sample first.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ts < rows[j].ts })
	return rows
}

// Save implements walk.Sink.
func (c *CSVDir) Save(ctx context.Context, rec *walk.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.SessionID == "" || strings.ContainsAny(rec.SessionID, `/\`) {
		return fmt.Errorf("invalid session id %q", rec.SessionID)
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range sessionRows(rec) {
		if err := w.Write(row.fields); err != nil {
			return fmt.Errorf("encode session %s log: %w", rec.SessionID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode session %s log: %w", rec.SessionID, err)
	}
	return writeAtomic(c.Path(rec.SessionID), buf.Bytes())
}
