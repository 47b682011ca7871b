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

	log.Println("starting inertial-walker mock producer (synthetic sensors → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMockProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
