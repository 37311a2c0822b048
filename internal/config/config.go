// Package config loads the gate daemon configuration from an optional YAML
// file, applies GATE_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/homekit-gate/internal/gpio"
	"github.com/sweeney/homekit-gate/internal/homekit"
	"github.com/sweeney/homekit-gate/internal/model"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GATE_"

// Driver kinds.
const (
	DriverGPIO = "gpio"
	DriverMQTT = "mqtt"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete daemon configuration.
type Config struct {
	Accessory AccessoryConfig `yaml:"accessory" envPrefix:"ACCESSORY_"`
	HomeKit   HomeKitConfig   `yaml:"homekit" envPrefix:"HOMEKIT_"`
	Driver    DriverConfig    `yaml:"driver" envPrefix:"DRIVER_"`
	Door      DoorConfig      `yaml:"door" envPrefix:"DOOR_"`
	MQTT      MQTTConfig      `yaml:"mqtt" envPrefix:"MQTT_"`
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Network   NetworkConfig   `yaml:"network" envPrefix:"NETWORK_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
}

// AccessoryConfig is the identity shown to controllers.
type AccessoryConfig struct {
	Name         string `yaml:"name" env:"NAME"`
	Manufacturer string `yaml:"manufacturer" env:"MANUFACTURER"`
	SerialNumber string `yaml:"serial_number" env:"SERIAL_NUMBER"`
	Model        string `yaml:"model" env:"MODEL"`
	Firmware     string `yaml:"firmware" env:"FIRMWARE"`
}

// HomeKitConfig configures the HAP server.
type HomeKitConfig struct {
	Pin        string `yaml:"pin" env:"PIN"`
	Addr       string `yaml:"addr" env:"ADDR"`
	StorageDir string `yaml:"storage_dir" env:"STORAGE_DIR"`
}

// DriverConfig selects and wires the actuation driver.
type DriverConfig struct {
	Kind string    `yaml:"kind" env:"KIND"`
	Chip string    `yaml:"chip" env:"CHIP"`
	Pins PinConfig `yaml:"pins" envPrefix:"PIN_"`
}

// PinConfig holds BCM line offsets. -1 disables an optional input.
type PinConfig struct {
	OpenRelay   int `yaml:"open_relay" env:"OPEN_RELAY"`
	CloseRelay  int `yaml:"close_relay" env:"CLOSE_RELAY"`
	OpenLimit   int `yaml:"open_limit" env:"OPEN_LIMIT"`
	ClosedLimit int `yaml:"closed_limit" env:"CLOSED_LIMIT"`
	Obstruction int `yaml:"obstruction" env:"OBSTRUCTION"`
	Fault       int `yaml:"fault" env:"FAULT"`
	LockRelay   int `yaml:"lock_relay" env:"LOCK_RELAY"`
	LockSensor  int `yaml:"lock_sensor" env:"LOCK_SENSOR"`
}

// DoorConfig holds motion timing.
type DoorConfig struct {
	Poll        time.Duration `yaml:"poll" env:"POLL"`
	Debounce    time.Duration `yaml:"debounce" env:"DEBOUNCE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	LockTimeout time.Duration `yaml:"lock_timeout" env:"LOCK_TIMEOUT"`
}

// MQTTConfig configures the event publisher and the remote driver.
type MQTTConfig struct {
	Broker     string        `yaml:"broker" env:"BROKER"`
	ClientID   string        `yaml:"client_id" env:"CLIENT_ID"`
	Username   string        `yaml:"username" env:"USERNAME"`
	Password   string        `yaml:"password" env:"PASSWORD"`
	Backlog    int           `yaml:"backlog" env:"BACKLOG"`
	StaleAfter time.Duration `yaml:"stale_after" env:"STALE_AFTER"`
	// Travel is how long the remote controller's reports are read as the
	// gate still moving after a command.
	Travel time.Duration `yaml:"travel" env:"TRAVEL"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// NetworkConfig configures the network bootstrap. An empty SSID skips it.
type NetworkConfig struct {
	SSID       string        `yaml:"ssid" env:"SSID"`
	Passphrase string        `yaml:"passphrase" env:"PASSPHRASE"`
	Interface  string        `yaml:"interface" env:"INTERFACE"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns a Config with the reference hardware defaults.
func Default() *Config {
	id := model.DefaultIdentity
	pins := gpio.DefaultPins
	return &Config{
		Accessory: AccessoryConfig{
			Name:         id.Name,
			Manufacturer: id.Manufacturer,
			SerialNumber: id.SerialNumber,
			Model:        id.Model,
			Firmware:     id.Firmware,
		},
		HomeKit: HomeKitConfig{
			Pin:        "001-02-003",
			StorageDir: "./db",
		},
		Driver: DriverConfig{
			Kind: DriverGPIO,
			Chip: "gpiochip0",
			Pins: PinConfig{
				OpenRelay:   pins.OpenRelay,
				CloseRelay:  pins.CloseRelay,
				OpenLimit:   pins.OpenLimit,
				ClosedLimit: pins.ClosedLimit,
				Obstruction: pins.Obstruction,
				Fault:       pins.Fault,
				LockRelay:   pins.LockRelay,
				LockSensor:  pins.LockSensor,
			},
		},
		Door: DoorConfig{
			Poll:        100 * time.Millisecond,
			Debounce:    50 * time.Millisecond,
			Timeout:     30 * time.Second,
			LockTimeout: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			ClientID:   "homekit-gate",
			Backlog:    1000,
			StaleAfter: time.Minute,
			Travel:     25 * time.Second,
		},
		HTTP: HTTPConfig{Addr: ":80"},
		Network: NetworkConfig{
			Interface: "wlan0",
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides from environ (nil means the process environment)
// and validates the result.
func Load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks for invalid configuration values.
func (c *Config) Validate() error {
	var errs []string

	if _, err := homekit.NormalizePin(c.HomeKit.Pin); err != nil {
		errs = append(errs, "homekit.pin must be 8 digits, as 00102003 or 001-02-003")
	}
	if c.HomeKit.StorageDir == "" {
		errs = append(errs, "homekit.storage_dir is required")
	}
	if c.Accessory.Name == "" {
		errs = append(errs, "accessory.name is required")
	}
	for name, v := range map[string]string{
		"name":          c.Accessory.Name,
		"manufacturer":  c.Accessory.Manufacturer,
		"serial_number": c.Accessory.SerialNumber,
		"model":         c.Accessory.Model,
		"firmware":      c.Accessory.Firmware,
	} {
		if len(v) > model.MaxStringLen {
			errs = append(errs, fmt.Sprintf("accessory.%s longer than %d bytes", name, model.MaxStringLen))
		}
	}

	switch c.Driver.Kind {
	case DriverGPIO:
		if c.Driver.Chip == "" {
			errs = append(errs, "driver.chip is required for the gpio driver")
		}
		p := c.Driver.Pins
		for name, v := range map[string]int{
			"open_relay":   p.OpenRelay,
			"close_relay":  p.CloseRelay,
			"open_limit":   p.OpenLimit,
			"closed_limit": p.ClosedLimit,
		} {
			if v < 0 {
				errs = append(errs, "driver.pins."+name+" is required")
			}
		}
	case DriverMQTT:
		if c.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required for the mqtt driver")
		}
		if c.MQTT.Travel < 0 {
			errs = append(errs, "mqtt.travel must not be negative")
		} else if c.Door.Timeout > 0 && c.MQTT.Travel >= c.Door.Timeout {
			errs = append(errs, "mqtt.travel must be shorter than door.timeout")
		}
	default:
		errs = append(errs, fmt.Sprintf("driver.kind must be %q or %q", DriverGPIO, DriverMQTT))
	}

	if c.Door.Poll <= 0 {
		errs = append(errs, "door.poll must be positive")
	}
	if c.Door.Debounce < 0 {
		errs = append(errs, "door.debounce must not be negative")
	}
	if c.Door.Timeout < 0 {
		errs = append(errs, "door.timeout must not be negative")
	}
	if c.Door.LockTimeout < 0 {
		errs = append(errs, "door.lock_timeout must not be negative")
	}
	if c.MQTT.Backlog < 1 {
		errs = append(errs, "mqtt.backlog must be at least 1")
	}
	if c.Network.SSID != "" && c.Network.Timeout <= 0 {
		errs = append(errs, "network.timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, "logging.format must be text, json or logfmt")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Identity returns the accessory identity.
func (c *Config) Identity() model.Identity {
	return model.Identity{
		Name:         c.Accessory.Name,
		Manufacturer: c.Accessory.Manufacturer,
		SerialNumber: c.Accessory.SerialNumber,
		Model:        c.Accessory.Model,
		Firmware:     c.Accessory.Firmware,
	}
}

// GPIOPins returns the driver pin assignment.
func (c *Config) GPIOPins() gpio.Pins {
	p := c.Driver.Pins
	return gpio.Pins{
		OpenRelay:   p.OpenRelay,
		CloseRelay:  p.CloseRelay,
		OpenLimit:   p.OpenLimit,
		ClosedLimit: p.ClosedLimit,
		Obstruction: p.Obstruction,
		Fault:       p.Fault,
		LockRelay:   p.LockRelay,
		LockSensor:  p.LockSensor,
	}
}
