// Package config loads the sculpture configuration.
//
// Values come from the embedded defaults, then an optional YAML file, then a
// handful of environment overrides for the settings that change per
// installation (serial ports, broker, dashboard address, log level).
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-sculpture/pkg/animation"
	"github.com/teslashibe/go-sculpture/pkg/bridge"
	"github.com/teslashibe/go-sculpture/pkg/hostlink"
	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/presence"
	"github.com/teslashibe/go-sculpture/pkg/sculpture"
	"github.com/teslashibe/go-sculpture/pkg/web"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Environment overrides.
const (
	EnvHostPort   = "SCULPTURE_HOST_PORT"
	EnvBridgePort = "SCULPTURE_BRIDGE_PORT"
	EnvMQTTBroker = "SCULPTURE_MQTT_BROKER"
	EnvLogLevel   = "SCULPTURE_LOG_LEVEL"
	EnvWebAddr    = "SCULPTURE_WEB_ADDR"
)

var (
	// ErrUnknownState is returned for a profile keyed by something other
	// than a movement state name.
	ErrUnknownState = errors.New("config: unknown movement state")

	// ErrUnknownKind is returned for an unsupported hostlink.kind. It also
	// matches hostlink.ErrUnknownKind.
	ErrUnknownKind = errors.New("config: unknown host link kind")

	// ErrInvalid covers loop, web and telemetry settings that cannot work.
	ErrInvalid = errors.New("config: invalid setting")
)

// Config is the full runtime configuration.
type Config struct {
	Servo     animation.Calibration        `yaml:"servo"`
	Actuators []animation.ActuatorConfig   `yaml:"actuators"`
	Profiles  map[string]animation.Profile `yaml:"profiles"`
	Animation Animation                    `yaml:"animation"`
	Presence  Presence                     `yaml:"presence"`
	Bridge    bridge.Config                `yaml:"bridge"`
	Hostlink  hostlink.Config              `yaml:"hostlink"`
	Loop      sculpture.Config             `yaml:"loop"`
	Web       web.Config                   `yaml:"web"`
	Telemetry Telemetry                    `yaml:"telemetry"`
	Log       Log                          `yaml:"log"`
}

// Animation holds engine switches.
type Animation struct {
	// ShapeExcursion lets profile amplitude and center angle shape the
	// swing instead of sweeping the full leaf range.
	ShapeExcursion bool `yaml:"shape_excursion"`
}

// Presence holds detector tuning.
type Presence struct {
	presence.Thresholds `yaml:",inline"`
	SamplingInterval    time.Duration `yaml:"sampling_interval"`
}

// Telemetry configures the sensor recorder. An empty Dir keeps statistics
// in memory only.
type Telemetry struct {
	Dir    string `yaml:"dir"`
	Window int    `yaml:"window"`
}

// Log holds logging settings.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := parse(defaultsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = parse(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, Default())
}

func parse(data []byte, base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = &Config{}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from SCULPTURE_* variables.
func (c *Config) ApplyEnv() {
	c.Hostlink.Port = envOr(EnvHostPort, c.Hostlink.Port)
	c.Bridge.Port = envOr(EnvBridgePort, c.Bridge.Port)
	c.Hostlink.MQTT.Broker = envOr(EnvMQTTBroker, c.Hostlink.MQTT.Broker)
	c.Log.Level = envOr(EnvLogLevel, c.Log.Level)
	c.Web.Addr = envOr(EnvWebAddr, c.Web.Addr)
}

// envOr returns the variable if set, def otherwise.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ProfileTable converts the name-keyed profiles.
func (c *Config) ProfileTable() (animation.ProfileTable, error) {
	table := make(animation.ProfileTable, len(c.Profiles))
	for name, p := range c.Profiles {
		s, ok := movement.Parse(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownState, name)
		}
		table[s] = p
	}
	return table, nil
}

// PresenceConfig returns the detector configuration.
func (c *Config) PresenceConfig() presence.Config {
	return presence.Config{
		Thresholds:       c.Presence.Thresholds,
		SamplingInterval: c.Presence.SamplingInterval,
	}
}

// EngineOptions returns the animation options implied by the config.
func (c *Config) EngineOptions() []animation.Option {
	return []animation.Option{animation.WithShapedExcursions(c.Animation.ShapeExcursion)}
}

// Validate checks every invariant the control loop relies on.
func (c *Config) Validate() error {
	profiles, err := c.ProfileTable()
	if err != nil {
		return err
	}
	if err := animation.Validate(c.Actuators, profiles, c.Servo); err != nil {
		return err
	}
	if err := c.PresenceConfig().Validate(); err != nil {
		return err
	}

	switch c.Hostlink.Kind {
	case hostlink.KindSerial:
		if c.Hostlink.Port == "" {
			return fmt.Errorf("%w: hostlink serial port is empty", ErrInvalid)
		}
	case hostlink.KindWebSocket:
		if c.Hostlink.URL == "" {
			return fmt.Errorf("%w: hostlink websocket url is empty", ErrInvalid)
		}
	case hostlink.KindMQTT:
		if c.Hostlink.MQTT.Broker == "" {
			return fmt.Errorf("%w: hostlink mqtt broker is empty", ErrInvalid)
		}
	case hostlink.KindStdio, hostlink.KindNone, "":
	default:
		return fmt.Errorf("%w %q: %w", ErrUnknownKind, c.Hostlink.Kind, hostlink.ErrUnknownKind)
	}

	if c.Loop.TickInterval < 0 {
		return fmt.Errorf("%w: loop tick interval %v", ErrInvalid, c.Loop.TickInterval)
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		return fmt.Errorf("%w: web enabled without an address", ErrInvalid)
	}
	if c.Telemetry.Window <= 0 {
		return fmt.Errorf("%w: telemetry window %d", ErrInvalid, c.Telemetry.Window)
	}
	return nil
}
