// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package storage persists finished walk sessions and survey fingerprints:
// one JSON document and one CSV log per session on disk, and an SQLite
// archive for querying across sessions.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relabs-tech/inertial_walker/internal/walk"
)

// ErrNotFound is returned when a requested session is not stored.
var ErrNotFound = errors.New("session not found")

// JSONDir writes each record to <Dir>/walk_<session_id>.json.
type JSONDir struct {
	Dir string
}

// NewJSONDir creates a JSON sink rooted at dir.
func NewJSONDir(dir string) *JSONDir {
	return &JSONDir{Dir: dir}
}

// Path returns the file a session is written to.
func (j *JSONDir) Path(sessionID string) string {
	return filepath.Join(j.Dir, "walk_"+sessionID+".json")
}

// Save implements walk.Sink.
func (j *JSONDir) Save(ctx context.Context, rec *walk.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.SessionID == "" || strings.ContainsAny(rec.SessionID, `/\`) {
		return fmt.Errorf("invalid session id %q", rec.SessionID)
	}
	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}

	return writeAtomic(j.Path(rec.SessionID), data)
}

// writeAtomic writes data under a temporary name next to final and renames
// it into place so readers never see a partial file.
func writeAtomic(final string, data []byte) error {
	dir := filepath.Dir(final)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", final, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", final, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("rename to %s: %w", final, err)
	}
	return nil
}

// Load reads a previously saved session.
func (j *JSONDir) Load(sessionID string) (*walk.Record, error) {
	data, err := os.ReadFile(j.Path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec walk.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &rec, nil
}
