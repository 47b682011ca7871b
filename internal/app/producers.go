// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/inertial_walker/internal/compass"
	"github.com/relabs-tech/inertial_walker/internal/config"
	"github.com/relabs-tech/inertial_walker/internal/imu"
	"github.com/relabs-tech/inertial_walker/internal/orientation"
	"github.com/relabs-tech/inertial_walker/internal/radio"
	"github.com/relabs-tech/inertial_walker/internal/sensors"
)

// mockHeadingDeg is the corridor direction the mock walker faces.
const mockHeadingDeg = 132.7

// pump publishes next() to topic on every tick until ctx is done. Read
// errors are logged and the tick skipped.
func pump(ctx context.Context, client mqtt.Client, topic string, every time.Duration, next func() (interface{}, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		v, err := next()
		if err != nil {
			log.Printf("producer: %s read error: %v", topic, err)
			continue
		}
		if err := publishJSON(client, topic, false, v); err != nil {
			log.Printf("producer: %v", err)
		}
	}
}

// mockRadioSnapshot fakes three access points whose signal breathes slowly
// so consecutive samples differ.
func mockRadioSnapshot(t time.Time) []radio.Reading {
	phase := float64(t.UnixMilli()%20000) / 20000 * 2 * math.Pi
	return []radio.Reading{
		{SSID: "lab-ap-1", BSSID: "aa:bb:cc:00:00:01", RSSI: -48 + int(math.Round(4*math.Sin(phase)))},
		{SSID: "lab-ap-2", BSSID: "aa:bb:cc:00:00:02", RSSI: -67 + int(math.Round(4*math.Cos(phase)))},
		{SSID: "guest", BSSID: "aa:bb:cc:00:00:03", RSSI: -81},
	}
}

// RunMockProducer publishes synthetic orientation, acceleration and radio
// streams so the walker can be exercised without hardware.
func RunMockProducer() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sampleEvery := time.Duration(cfg.IMUSampleInterval) * time.Millisecond
	heading := orientation.NewMockSource(mockHeadingDeg)
	accel := imu.NewMockSource(1.8)

	go pump(ctx, client, cfg.TopicOrientation, 100*time.Millisecond, func() (interface{}, error) {
		return heading.Next()
	})
	go pump(ctx, client, cfg.TopicRadio, time.Duration(cfg.TickIntervalMS)*time.Millisecond, func() (interface{}, error) {
		return mockRadioSnapshot(time.Now()), nil
	})
	log.Printf("mock producer: heading %.1f°, accel every %s", mockHeadingDeg, sampleEvery)
	pump(ctx, client, cfg.TopicAccel, sampleEvery, func() (interface{}, error) {
		return accel.NextAccel()
	})
	return nil
}

// RunAccelProducer samples the MPU9250 accelerometer and publishes it for
// step detection.
func RunAccelProducer() error {
	cfg := config.Get()

	reader, err := sensors.NewAccelReader(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange)
	if err != nil {
		return fmt.Errorf("accelerometer init: %w", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("accel producer: publishing to %s every %dms", cfg.TopicAccel, cfg.IMUSampleInterval)
	pump(ctx, client, cfg.TopicAccel, time.Duration(cfg.IMUSampleInterval)*time.Millisecond, func() (interface{}, error) {
		return reader.NextAccel()
	})
	return nil
}

// RunCompassProducer reads heading sentences from an NMEA compass on the
// serial port and publishes them as orientation samples.
func RunCompassProducer() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.CompassSerialPort,
		BaudRate:              uint(cfg.CompassBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open %s: %w", serialOpts.PortName, err)
	}
	defer port.Close()
	log.Printf("compass: serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	reader := compass.NewReader(port)
	published := 0
	for {
		s, err := reader.Next()
		if err != nil {
			log.Printf("compass: read error after %d samples (%d lines skipped): %v", published, reader.Skipped(), err)
			return err
		}
		if err := publishJSON(client, cfg.TopicOrientation, false, s); err != nil {
			log.Printf("compass: %v", err)
			continue
		}
		published++
	}
}
