// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/inertial_walker/internal/app"
	"github.com/relabs-tech/inertial_walker/internal/config"
)

func main() {
	configPath := flag.String("config", "./inertial_walker.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting inertial-walker accelerometer producer (MPU9250 → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunAccelProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
