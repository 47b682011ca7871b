package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
)

// Radio sources accepted by RADIO_SOURCE.
const (
	RadioSourceMQTT = "mqtt"
	RadioSourceIW   = "iw"
	RadioSourceNone = "none"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDWalker   string
	MQTTClientIDProducer string
	MQTTClientIDDisplay  string
	MQTTClientIDConsole  string

	// Topics
	TopicOrientation string
	TopicAccel       string
	TopicRadio       string
	TopicStatus      string
	TopicSession     string

	// Step detection and dead reckoning
	StepLengthM       float64
	StepHighThreshold float64 // m/s²
	StepLowThreshold  float64 // m/s²
	StepCooldownMS    int
	HeadingAlpha      float64

	// Walk session
	TickIntervalMS   int
	ScanTimeoutMS    int
	RadioSource      string // "mqtt", "iw" or "none"
	RadioIface       string
	RadioMaxAgeMS    int
	Collector        string
	StartLabel       string
	EndLabel         string
	PhoneOrientation string
	OriginX          float64
	OriginY          float64
	OriginZ          int
	Anchors          []anchor.Anchor

	// Static fingerprint survey; empty means survey at the anchors
	SurveyPoints []anchor.Anchor

	// Output
	OutputDir     string
	DBPath        string // empty disables the SQLite archive
	CSVLog        bool
	WebServerPort int

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange     byte
	IMUSampleInterval int // milliseconds

	// Compass
	CompassSerialPort string
	CompassBaudRate   int

	// Display
	DisplayUpdateInterval int // milliseconds

	anchorsFromFile bool
}

// Default returns the configuration of the corridor rig; Load starts from it.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDWalker:   "inertial-walker",
		MQTTClientIDProducer: "inertial-walker-producer",
		MQTTClientIDDisplay:  "inertial-walker-display",
		MQTTClientIDConsole:  "inertial-walker-console",

		TopicOrientation: "walker/orientation",
		TopicAccel:       "walker/accel",
		TopicRadio:       "walker/radio",
		TopicStatus:      "walker/status",
		TopicSession:     "walker/session",

		StepLengthM:       0.75,
		StepHighThreshold: 12.0,
		StepLowThreshold:  9.5,
		StepCooldownMS:    250,
		HeadingAlpha:      0.1,

		TickIntervalMS:   1000,
		ScanTimeoutMS:    800,
		RadioSource:      RadioSourceNone,
		RadioIface:       "wlan0",
		RadioMaxAgeMS:    3000,
		Collector:        "pdr_walker",
		StartLabel:       "C4",
		EndLabel:         "C14",
		PhoneOrientation: "front_portrait",
		Anchors:          anchor.DefaultCorridor(),

		OutputDir:     "walks",
		CSVLog:        true,
		WebServerPort: 8080,

		IMUSPIDevice:      "/dev/spidev0.0",
		IMUCSPin:          "GPIO8",
		IMUSampleInterval: 20,

		CompassSerialPort: "/dev/serial0",
		CompassBaudRate:   4800,

		DisplayUpdateInterval: 500,
	}
}

// Package-level singleton: InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default. Blank lines and lines
// starting with # are ignored; unknown keys are an error.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_WALKER":
		c.MQTTClientIDWalker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_ORIENTATION":
		c.TopicOrientation = value
	case "TOPIC_ACCEL":
		c.TopicAccel = value
	case "TOPIC_RADIO":
		c.TopicRadio = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_SESSION":
		c.TopicSession = value

	// Step detection and dead reckoning
	case "STEP_LENGTH_M":
		c.StepLengthM, err = parseFloat(key, value)
	case "STEP_HIGH_THRESHOLD":
		c.StepHighThreshold, err = parseFloat(key, value)
	case "STEP_LOW_THRESHOLD":
		c.StepLowThreshold, err = parseFloat(key, value)
	case "STEP_COOLDOWN_MS":
		c.StepCooldownMS, err = parseInt(key, value)
	case "HEADING_ALPHA":
		c.HeadingAlpha, err = parseFloat(key, value)

	// Walk session
	case "TICK_INTERVAL_MS":
		c.TickIntervalMS, err = parseInt(key, value)
	case "SCAN_TIMEOUT_MS":
		c.ScanTimeoutMS, err = parseInt(key, value)
	case "RADIO_SOURCE":
		c.RadioSource = strings.ToLower(value)
	case "RADIO_IFACE":
		c.RadioIface = value
	case "RADIO_MAX_AGE_MS":
		c.RadioMaxAgeMS, err = parseInt(key, value)
	case "COLLECTOR":
		c.Collector = value
	case "START_LABEL":
		c.StartLabel = value
	case "END_LABEL":
		c.EndLabel = value
	case "PHONE_ORIENTATION":
		c.PhoneOrientation = value
	case "ORIGIN_X":
		c.OriginX, err = parseFloat(key, value)
	case "ORIGIN_Y":
		c.OriginY, err = parseFloat(key, value)
	case "ORIGIN_Z":
		c.OriginZ, err = parseInt(key, value)
	case "ANCHOR":
		// The first ANCHOR line replaces the built-in corridor; later ones append.
		a, perr := anchor.ParseAnchor(value)
		if perr != nil {
			return perr
		}
		if !c.anchorsFromFile {
			c.Anchors = nil
			c.anchorsFromFile = true
		}
		c.Anchors = append(c.Anchors, a)

	case "SURVEY_POINT":
		p, perr := anchor.ParseAnchor(value)
		if perr != nil {
			return perr
		}
		c.SurveyPoints = append(c.SurveyPoints, p)

	// Output
	case "OUTPUT_DIR":
		c.OutputDir = value
	case "DB_PATH":
		c.DBPath = value
	case "CSV_LOG":
		c.CSVLog, err = parseBool(key, value)
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, perr := parseInt(key, value)
		if perr != nil {
			return perr
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseInt(key, value)

	// Compass
	case "COMPASS_SERIAL_PORT":
		c.CompassSerialPort = value
	case "COMPASS_BAUD_RATE":
		c.CompassBaudRate, err = parseInt(key, value)

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks required fields and cross-field constraints.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.StepLengthM <= 0 {
		return fmt.Errorf("STEP_LENGTH_M must be positive, got %v", c.StepLengthM)
	}
	if c.StepLowThreshold <= 0 || c.StepLowThreshold >= c.StepHighThreshold {
		return fmt.Errorf("STEP_LOW_THRESHOLD (%v) must be positive and below STEP_HIGH_THRESHOLD (%v)",
			c.StepLowThreshold, c.StepHighThreshold)
	}
	if c.StepCooldownMS <= 0 {
		return fmt.Errorf("STEP_COOLDOWN_MS must be positive, got %d", c.StepCooldownMS)
	}
	if c.HeadingAlpha <= 0 || c.HeadingAlpha > 1 {
		return fmt.Errorf("HEADING_ALPHA must be in (0,1], got %v", c.HeadingAlpha)
	}
	if c.TickIntervalMS <= 0 {
		return fmt.Errorf("TICK_INTERVAL_MS must be positive, got %d", c.TickIntervalMS)
	}
	if c.ScanTimeoutMS <= 0 || c.ScanTimeoutMS >= c.TickIntervalMS {
		return fmt.Errorf("SCAN_TIMEOUT_MS (%d) must be positive and shorter than TICK_INTERVAL_MS (%d)",
			c.ScanTimeoutMS, c.TickIntervalMS)
	}
	switch c.RadioSource {
	case RadioSourceMQTT, RadioSourceIW, RadioSourceNone:
	default:
		return fmt.Errorf("RADIO_SOURCE must be mqtt, iw or none, got %q", c.RadioSource)
	}
	seen := make(map[string]bool, len(c.Anchors))
	for _, a := range c.Anchors {
		if seen[a.Label] {
			return fmt.Errorf("duplicate ANCHOR label %q", a.Label)
		}
		seen[a.Label] = true
	}
	seen = make(map[string]bool, len(c.SurveyPoints))
	for _, p := range c.SurveyPoints {
		if seen[p.Label] {
			return fmt.Errorf("duplicate SURVEY_POINT label %q", p.Label)
		}
		seen[p.Label] = true
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be positive, got %d", c.IMUSampleInterval)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls are no-ops.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
