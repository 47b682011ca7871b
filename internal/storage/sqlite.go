package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/inertial_walker/internal/walk"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store archives finished sessions in SQLite. The full record is kept as
// JSON next to flattened samples, radio readings and events so the
// fingerprint tooling can query them directly.
type Store struct {
	db *sql.DB
}

// SessionRow is the archive's index entry for one session.
type SessionRow struct {
	ID            string
	SessionID     string
	Direction     string
	Collector     string
	StepCount     int
	DistanceM     float64
	AnchorsMarked int
	Samples       int
}

// OpenStore opens (creating if needed) the archive at path and brings its
// schema up to date.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateUp applies pending migrations. The migrate instance is not closed
// because that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("archive schema version %d is dirty", v)
	}
	return v, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("storage: [migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Save implements walk.Sink. Every session gets its own row id, so saving
// the same record twice archives two copies.
func (s *Store) Save(ctx context.Context, rec *walk.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	rowID := uuid.New().String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO walk_sessions (
			id, session_id, direction, collector, start_label, end_label,
			stride_length_m, duration_ms, step_count, distance_m,
			anchors_marked, mean_heading_deg, record_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowID, rec.SessionID, rec.Direction.String(), rec.Collector, rec.StartLabel, rec.EndLabel,
		rec.StrideLengthM, rec.Summary.DurationMs, rec.Summary.StepCount, rec.Summary.DistanceM,
		rec.Summary.AnchorsMarked, nullFloat(rec.Summary.MeanHeadingDeg), string(raw),
	); err != nil {
		return fmt.Errorf("insert session %s: %w", rec.SessionID, err)
	}

	for i, smp := range rec.Samples {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO walk_samples (
				session_row_id, seq, timestamp_ms, step_count, distance_m,
				heading_deg, heading_offset, sensor_accuracy, x, y, z
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rowID, i, smp.TimestampMs, smp.StepCount, smp.DistanceM,
			smp.HeadingDeg, smp.HeadingOffset, smp.SensorAccuracy.String(), smp.X, smp.Y, smp.Z,
		)
		if err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
		sampleID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sample %d id: %w", i, err)
		}
		for _, r := range smp.WifiData {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO wifi_readings (sample_id, ssid, bssid, rssi) VALUES (?, ?, ?, ?)`,
				sampleID, r.SSID, r.BSSID, r.RSSI,
			); err != nil {
				return fmt.Errorf("insert reading for sample %d: %w", i, err)
			}
		}
	}

	for i, ev := range rec.Events {
		var (
			label                      sql.NullString
			measured, expected, errDeg sql.NullFloat64
			details                    sql.NullString
		)
		switch e := ev.(type) {
		case walk.AnchorEvent:
			label = sql.NullString{String: e.Label, Valid: true}
			measured = sql.NullFloat64{Float64: e.HeadingMeasured, Valid: true}
			expected = nullFloat(e.HeadingExpected)
			errDeg = nullFloat(e.HeadingError)
		case walk.LifecycleEvent:
			details = sql.NullString{String: e.Details, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO walk_events (
				session_row_id, seq, type, timestamp_ms, label,
				heading_measured, heading_expected, heading_error, details
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rowID, i, ev.EventType(), ev.Timestamp(), label, measured, expected, errDeg, details,
		); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", rec.SessionID, err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// ListSessions returns the archive index, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.session_id, s.direction, s.collector, s.step_count,
		       s.distance_m, s.anchors_marked,
		       (SELECT COUNT(*) FROM walk_samples w WHERE w.session_row_id = s.id)
		FROM walk_sessions s
		ORDER BY s.rowid`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Direction, &r.Collector, &r.StepCount,
			&r.DistanceM, &r.AnchorsMarked, &r.Samples); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRecord returns the most recently archived record with the given
// session id.
func (s *Store) LoadRecord(ctx context.Context, sessionID string) (*walk.Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_json FROM walk_sessions WHERE session_id = ? ORDER BY rowid DESC LIMIT 1`,
		sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var rec walk.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// ReadingsForBSSID counts how often an access point was seen across all
// archived samples.
func (s *Store) ReadingsForBSSID(ctx context.Context, bssid string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wifi_readings WHERE bssid = ?`, bssid,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings for %s: %w", bssid, err)
	}
	return n, nil
}
