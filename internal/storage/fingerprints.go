package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/relabs-tech/inertial_walker/internal/radio"
	"github.com/relabs-tech/inertial_walker/internal/survey"
)

// SaveFingerprint implements survey.Store. fp.ID is set to the new row id.
func (s *Store) SaveFingerprint(ctx context.Context, fp *survey.Fingerprint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fingerprint tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO fingerprints (kind, label, x, y, z, heading_deg, timestamp_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fp.Kind, fp.Label, fp.X, fp.Y, fp.Z, fp.HeadingDeg, fp.TimestampMs,
	)
	if err != nil {
		return fmt.Errorf("insert fingerprint %s: %w", fp.Label, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("fingerprint %s id: %w", fp.Label, err)
	}
	for i, r := range fp.WifiData {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fingerprint_readings (fingerprint_id, seq, ssid, bssid, rssi) VALUES (?, ?, ?, ?, ?)`,
			id, i, r.SSID, r.BSSID, r.RSSI,
		); err != nil {
			return fmt.Errorf("insert reading for fingerprint %s: %w", fp.Label, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fingerprint %s: %w", fp.Label, err)
	}
	fp.ID = id
	return nil
}

// ListFingerprints implements survey.Store, oldest first.
func (s *Store) ListFingerprints(ctx context.Context) ([]survey.Fingerprint, error) {
	out, err := s.queryFingerprints(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]int, len(out))
	for i := range out {
		byID[out[i].ID] = i
	}

	// The archive has a single connection, so readings are fetched only
	// after the fingerprint rows are closed.
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint_id, ssid, bssid, rssi FROM fingerprint_readings ORDER BY fingerprint_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprint readings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int64
			r  radio.Reading
		)
		if err := rows.Scan(&id, &r.SSID, &r.BSSID, &r.RSSI); err != nil {
			return nil, fmt.Errorf("scan fingerprint reading: %w", err)
		}
		if i, ok := byID[id]; ok {
			out[i].WifiData = append(out[i].WifiData, r)
		}
	}
	return out, rows.Err()
}

func (s *Store) queryFingerprints(ctx context.Context) ([]survey.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, label, x, y, z, heading_deg, timestamp_ms
		FROM fingerprints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	out := []survey.Fingerprint{}
	for rows.Next() {
		fp := survey.Fingerprint{WifiData: []radio.Reading{}}
		if err := rows.Scan(&fp.ID, &fp.Kind, &fp.Label, &fp.X, &fp.Y, &fp.Z,
			&fp.HeadingDeg, &fp.TimestampMs); err != nil {
			return nil, fmt.Errorf("scan fingerprint row: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// ClearFingerprints implements survey.Store. Walk sessions are untouched.
func (s *Store) ClearFingerprints(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin clear tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprint_readings`); err != nil {
		return 0, fmt.Errorf("clear fingerprint readings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM fingerprints`)
	if err != nil {
		return 0, fmt.Errorf("clear fingerprints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit clear: %w", err)
	}
	return int(n), nil
}

// FingerprintFile keeps every fingerprint in one indented JSON array, for
// rigs running without the SQLite archive.
type FingerprintFile struct {
	Path string

	mu sync.Mutex
}

// NewFingerprintFile stores fingerprints at path.
func NewFingerprintFile(path string) *FingerprintFile {
	return &FingerprintFile{Path: path}
}

func (f *FingerprintFile) readLocked() ([]survey.Fingerprint, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return []survey.Fingerprint{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []survey.Fingerprint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return out, nil
}

// SaveFingerprint implements survey.Store. The whole array is rewritten.
func (f *FingerprintFile) SaveFingerprint(ctx context.Context, fp *survey.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readLocked()
	if err != nil {
		return err
	}
	var last int64
	for _, e := range all {
		if e.ID > last {
			last = e.ID
		}
	}
	saved := *fp
	saved.ID = last + 1
	all = append(all, saved)

	data, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return fmt.Errorf("encode fingerprints: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create fingerprint dir: %w", err)
	}
	if err := writeAtomic(f.Path, data); err != nil {
		return err
	}
	fp.ID = saved.ID
	return nil
}

// ListFingerprints implements survey.Store.
func (f *FingerprintFile) ListFingerprints(ctx context.Context) ([]survey.Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

// ClearFingerprints implements survey.Store by deleting the file. An
// unreadable file is deleted too and counts as zero.
func (f *FingerprintFile) ClearFingerprints(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, _ := f.readLocked()
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	return len(all), nil
}
