// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors talks to the rig's MPU9250 over SPI and exposes it as an
// acceleration stream for step detection.
package sensors

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_walker/internal/imu"
)

var accelRangeG = []int{2, 4, 8, 16}

// AccelReader reads acceleration from one MPU9250 and converts it to m/s².
type AccelReader struct {
	dev       *mpu9250.MPU9250
	rangeCode byte
	now       func() time.Time
}

// NewAccelReader initializes the MPU9250 on spiDev with chip select csPin.
// rangeCode selects ±2/4/8/16 g (0..3).
func NewAccelReader(spiDev, csPin string, rangeCode byte) (*AccelReader, error) {
	if int(rangeCode) >= len(accelRangeG) {
		return nil, fmt.Errorf("accel range code %d out of range 0..3", rangeCode)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("initialization: %w", err)
	}

	if err := dev.SetAccelRange(rangeCode); err != nil {
		return nil, fmt.Errorf("set accel range: %w", err)
	}
	log.Printf("imu: accelerometer range set to %d (±%dg)", rangeCode, accelRangeG[rangeCode])

	if err := dev.Calibrate(); err != nil {
		log.Printf("imu: calibration failed, continuing uncalibrated: %v", err)
	} else {
		log.Printf("imu: calibration complete")
	}

	return &AccelReader{dev: dev, rangeCode: rangeCode, now: time.Now}, nil
}

// NextAccel implements imu.AccelSource.
func (r *AccelReader) NextAccel() (imu.AccelSample, error) {
	ax, err := r.dev.GetAccelerationX()
	if err != nil {
		return imu.AccelSample{}, fmt.Errorf("accel X: %w", err)
	}
	ay, err := r.dev.GetAccelerationY()
	if err != nil {
		return imu.AccelSample{}, fmt.Errorf("accel Y: %w", err)
	}
	az, err := r.dev.GetAccelerationZ()
	if err != nil {
		return imu.AccelSample{}, fmt.Errorf("accel Z: %w", err)
	}
	return SampleFromCounts(ax, ay, az, r.rangeCode, r.now()), nil
}

// SampleFromCounts converts raw accelerometer counts read at t into a sample.
func SampleFromCounts(ax, ay, az int16, rangeCode byte, t time.Time) imu.AccelSample {
	return imu.AccelSample{
		X:           imu.CountsToMS2(ax, rangeCode),
		Y:           imu.CountsToMS2(ay, rangeCode),
		Z:           imu.CountsToMS2(az, rangeCode),
		TimestampNs: t.UnixNano(),
	}
}
