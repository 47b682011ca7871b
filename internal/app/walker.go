// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
	"github.com/relabs-tech/inertial_walker/internal/config"
	"github.com/relabs-tech/inertial_walker/internal/imu"
	"github.com/relabs-tech/inertial_walker/internal/orientation"
	"github.com/relabs-tech/inertial_walker/internal/pdr"
	"github.com/relabs-tech/inertial_walker/internal/radio"
	"github.com/relabs-tech/inertial_walker/internal/storage"
	"github.com/relabs-tech/inertial_walker/internal/survey"
	"github.com/relabs-tech/inertial_walker/internal/walk"
)

// sensor streams are bursty; drop rather than block the MQTT router.
const streamBuffer = 256

// walkConfig maps the file configuration onto the controller's.
func walkConfig(cfg *config.Config) walk.Config {
	return walk.Config{
		StepLength: cfg.StepLengthM,
		Step: imu.StepConfig{
			HighThreshold: cfg.StepHighThreshold,
			LowThreshold:  cfg.StepLowThreshold,
			Cooldown:      time.Duration(cfg.StepCooldownMS) * time.Millisecond,
		},
		HeadingAlpha:     cfg.HeadingAlpha,
		TickInterval:     time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		ScanTimeout:      time.Duration(cfg.ScanTimeoutMS) * time.Millisecond,
		Origin:           pdr.Position{X: cfg.OriginX, Y: cfg.OriginY, Z: cfg.OriginZ},
		Anchors:          cfg.Anchors,
		Collector:        cfg.Collector,
		StartLabel:       cfg.StartLabel,
		EndLabel:         cfg.EndLabel,
		PhoneOrientation: cfg.PhoneOrientation,
	}
}

// radioScanner picks the radio fingerprint source named by RADIO_SOURCE.
// The MQTT source needs the client to feed its cache.
func radioScanner(cfg *config.Config, client mqtt.Client) (radio.Scanner, error) {
	switch cfg.RadioSource {
	case config.RadioSourceIW:
		log.Printf("walker: scanning radio with iw on %s", cfg.RadioIface)
		return radio.NewIWScanner(cfg.RadioIface), nil
	case config.RadioSourceMQTT:
		cache := radio.NewCache(nil, time.Duration(cfg.RadioMaxAgeMS)*time.Millisecond)
		err := subscribe(client, cfg.TopicRadio, func(payload []byte) {
			readings, err := radio.DecodeSnapshot(payload)
			if err != nil {
				log.Printf("walker: radio decode error: %v", err)
				return
			}
			cache.Update(readings)
		})
		if err != nil {
			return nil, err
		}
		return cache, nil
	default:
		log.Println("walker: radio fingerprinting disabled")
		return radio.None, nil
	}
}

// surveyRoute is where static fingerprints are taken: the configured survey
// points, or the walk anchors when none are set.
func surveyRoute(cfg *config.Config) []anchor.Anchor {
	if len(cfg.SurveyPoints) > 0 {
		return cfg.SurveyPoints
	}
	return cfg.Anchors
}

// RunWalker runs the walk controller: sensor streams from MQTT, operator
// control and the fingerprint survey over HTTP, finished walks to JSON and
// CSV files, SQLite and MQTT.
func RunWalker() error {
	log.Println("starting inertial-walker")

	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWalker)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	scanner, err := radioScanner(cfg, client)
	if err != nil {
		return err
	}

	sinks := []walk.Sink{storage.NewJSONDir(cfg.OutputDir)}
	if cfg.CSVLog {
		sinks = append(sinks, storage.NewCSVDir(cfg.OutputDir))
	}
	var fingerprints survey.Store = storage.NewFingerprintFile(filepath.Join(cfg.OutputDir, "fingerprints.json"))
	if cfg.DBPath != "" {
		store, err := storage.OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
		fingerprints = store
		log.Printf("walker: archiving sessions and fingerprints to %s", cfg.DBPath)
	}
	sinks = append(sinks, &mqttSink{client: client, topic: cfg.TopicSession})

	ctrl := walk.NewController(walkConfig(cfg), walk.Options{
		Scanner: scanner,
		Sinks:   sinks,
	})

	orientations := make(chan orientation.Sample, streamBuffer)
	accels := make(chan imu.AccelSample, streamBuffer)

	if err := subscribe(client, cfg.TopicOrientation, func(payload []byte) {
		var s orientation.Sample
		if err := json.Unmarshal(payload, &s); err != nil {
			log.Printf("walker: orientation decode error: %v", err)
			return
		}
		select {
		case orientations <- s:
		default:
			log.Println("walker: orientation stream backed up, dropping sample")
		}
	}); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicAccel, func(payload []byte) {
		var s imu.AccelSample
		if err := json.Unmarshal(payload, &s); err != nil {
			log.Printf("walker: accel decode error: %v", err)
			return
		}
		select {
		case accels <- s:
		default:
			log.Println("walker: accel stream backed up, dropping sample")
		}
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	api := newWalkAPI(ctrl)
	api.survey = survey.New(surveyRoute(cfg), cfg.OriginZ,
		radio.NewBounded(scanner, time.Duration(cfg.ScanTimeoutMS)*time.Millisecond), fingerprints, nil)
	srv := &http.Server{Addr: addr, Handler: api.routes()}
	go func() {
		log.Printf("walker: control API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("walker: http server error: %v", err)
			stop()
		}
	}()

	go publishStatus(ctx, client, cfg.TopicStatus, ctrl, time.Second)

	runErr := ctrl.Run(ctx, orientations, accels)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("walker: http shutdown error: %v", err)
	}
	log.Println("walker stopped")
	return runErr
}

// publishStatus mirrors the controller status to MQTT for the display and
// console until ctx is done.
func publishStatus(ctx context.Context, client mqtt.Client, topic string, ctrl *walk.Controller, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := publishJSON(client, topic, true, ctrl.Status()); err != nil {
				log.Printf("walker: status publish error: %v", err)
			}
		}
	}
}
