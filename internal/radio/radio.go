// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package radio acquires Wi-Fi fingerprint snapshots for the walk log.
//
// A snapshot is an ordered list of access points with their signal
// strength. Scanning is best effort: every failure mode (no hardware, no
// permission, slow driver) degrades to an empty snapshot.
package radio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Reading is one access point seen in a scan.
type Reading struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
	RSSI  int    `json:"rssi"`
}

// Scanner returns the access points currently visible.
type Scanner interface {
	Scan(ctx context.Context) ([]Reading, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context) ([]Reading, error)

func (f ScannerFunc) Scan(ctx context.Context) ([]Reading, error) { return f(ctx) }

// None is a scanner for rigs without a radio; it always returns an empty snapshot.
var None Scanner = ScannerFunc(func(context.Context) ([]Reading, error) { return nil, nil })

// DefaultScanTimeout bounds a single scan so it always finishes inside one
// walk tick.
const DefaultScanTimeout = 800 * time.Millisecond

// Bounded wraps a Scanner so that a scan never takes longer than Timeout
// and never fails: errors and timeouts yield an empty snapshot and a log
// line.
type Bounded struct {
	Scanner Scanner
	Timeout time.Duration
	Logf    func(format string, v ...interface{})
}

// NewBounded wraps s with the given timeout (DefaultScanTimeout when zero).
func NewBounded(s Scanner, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Bounded{Scanner: s, Timeout: timeout, Logf: log.Printf}
}

// Snapshot runs one scan. The result is never nil-vs-empty ambiguous to
// JSON consumers: an empty snapshot is a non-nil empty slice.
func (b *Bounded) Snapshot(ctx context.Context) []Reading {
	if b.Scanner == nil {
		return []Reading{}
	}
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	type result struct {
		readings []Reading
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("scanner panic: %v", r)}
			}
		}()
		readings, err := b.Scanner.Scan(ctx)
		done <- result{readings: readings, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			b.logf("radio: scan failed, using empty snapshot: %v", res.err)
			return []Reading{}
		}
		out := make([]Reading, len(res.readings))
		copy(out, res.readings)
		return out
	case <-ctx.Done():
		b.logf("radio: scan did not finish within %s, using empty snapshot", b.Timeout)
		return []Reading{}
	}
}

func (b *Bounded) logf(format string, v ...interface{}) {
	if b.Logf != nil {
		b.Logf(format, v...)
	}
}

// DecodeSnapshot accepts either a bare JSON array of readings or an object
// carrying them under "wifi_data", the two shapes scan agents publish.
func DecodeSnapshot(payload []byte) ([]Reading, error) {
	var list []Reading
	if err := json.Unmarshal(payload, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		WifiData []Reading `json:"wifi_data"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, fmt.Errorf("decode radio snapshot: %w", err)
	}
	return wrapped.WifiData, nil
}
