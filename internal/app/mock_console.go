// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/inertial_walker/internal/imu"
	"github.com/relabs-tech/inertial_walker/internal/orientation"
	"github.com/relabs-tech/inertial_walker/internal/walk"
)

// mockWalkDuration is how long the offline demo walk lasts.
const mockWalkDuration = 10 * time.Second

// RunMockConsole walks the corridor in-process with mock sensors, printing
// the status every tick and the session summary at the end. No broker or
// hardware is needed.
func RunMockConsole() error {
	return runMockWalk(context.Background(), os.Stdout, mockWalkDuration)
}

func runMockWalk(ctx context.Context, w io.Writer, d time.Duration) error {
	ctrl := walk.NewController(walk.DefaultConfig(), walk.Options{
		Sinks: []walk.Sink{walk.SinkFunc(func(_ context.Context, rec *walk.Record) error {
			printSession(w, rec)
			return nil
		})},
	})

	heading := orientation.NewMockSource(mockHeadingDeg)
	accel := imu.NewMockSource(1.8)

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	if err := ctrl.Start(); err != nil {
		return err
	}

	sensorTicker := time.NewTicker(20 * time.Millisecond)
	defer sensorTicker.Stop()
	statusTicker := time.NewTicker(time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			_, err := ctrl.Stop(context.WithoutCancel(ctx))
			return err
		case <-statusTicker.C:
			printStatus(w, ctrl.Status())
		case <-sensorTicker.C:
			if s, err := heading.Next(); err == nil {
				ctrl.OnOrientation(s)
			}
			a, err := accel.NextAccel()
			if err != nil {
				log.Printf("mock console: accel error: %v", err)
				continue
			}
			ctrl.OnAccel(a)
		}
	}
}
