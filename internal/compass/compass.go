// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package compass turns NMEA 0183 heading sentences from a serial compass
// (or a GNSS receiver with dual antennas) into orientation samples.
package compass

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/inertial_walker/internal/orientation"
)

// ParseSentence converts one NMEA line into an orientation sample.
// ok is false for well-formed sentences that carry no heading.
//
// HDT (true heading) is reported as HIGH accuracy. HDG is corrected for
// deviation and variation and reported as MEDIUM; HDM (uncorrected
// magnetic) is reported as LOW.
func ParseSentence(line string) (sample orientation.Sample, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return orientation.Sample{}, false, nil
	}
	s, err := nmea.Parse(line)
	if err != nil {
		return orientation.Sample{}, false, fmt.Errorf("parse nmea: %w", err)
	}

	switch s.DataType() {
	case nmea.TypeHDT:
		m := s.(nmea.HDT)
		return sampleFromDeg(m.Heading, orientation.AccuracyHigh), true, nil
	case nmea.TypeHDG:
		m := s.(nmea.HDG)
		deg := m.Heading + signed(m.Deviation, m.DeviationDirection) + signed(m.Variation, m.VariationDirection)
		return sampleFromDeg(deg, orientation.AccuracyMedium), true, nil
	case nmea.TypeHDM:
		m := s.(nmea.HDM)
		return sampleFromDeg(m.Heading, orientation.AccuracyLow), true, nil
	default:
		return orientation.Sample{}, false, nil
	}
}

// signed applies the NMEA convention: easterly corrections add, westerly subtract.
func signed(v float64, dir string) float64 {
	if strings.EqualFold(dir, "W") {
		return -v
	}
	return v
}

func sampleFromDeg(deg float64, acc orientation.Accuracy) orientation.Sample {
	return orientation.Sample{
		AzimuthRad: orientation.DegToRad(orientation.Wrap360(deg)),
		Accuracy:   acc,
	}
}

// Reader is an orientation.Source over a stream of NMEA lines. Lines that
// are not heading sentences, or fail their checksum, are skipped.
type Reader struct {
	r       *bufio.Reader
	skipped int
}

// NewReader wraps r, typically an open serial port.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next blocks until the next heading sentence arrives.
func (c *Reader) Next() (orientation.Sample, error) {
	for {
		line, err := c.r.ReadString('\n')
		if line != "" {
			sample, ok, perr := ParseSentence(line)
			if perr != nil {
				// Partial sentences are common right after the port opens.
				c.skipped++
			} else if ok {
				return sample, nil
			}
		}
		if err != nil {
			return orientation.Sample{}, err
		}
	}
}

// Skipped reports how many malformed lines have been dropped.
func (c *Reader) Skipped() int {
	return c.skipped
}
