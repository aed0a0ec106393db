package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-sculpture/pkg/animation"
	"github.com/teslashibe/go-sculpture/pkg/hostlink"
	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/presence"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Servo != animation.DefaultCalibration() {
		t.Errorf("servo = %+v", cfg.Servo)
	}
	if len(cfg.Actuators) != 1 || cfg.Actuators[0].MinAngle != 45 || cfg.Actuators[0].BaselineSpeed != 0.01 {
		t.Errorf("actuators = %+v", cfg.Actuators)
	}
	if got := cfg.PresenceConfig(); got != presence.DefaultConfig() {
		t.Errorf("presence = %+v", got)
	}
	if cfg.Loop.TickInterval != 20*time.Millisecond || cfg.Bridge.EchoTimeout != 30*time.Millisecond {
		t.Errorf("durations: loop %v, echo %v", cfg.Loop.TickInterval, cfg.Bridge.EchoTimeout)
	}

	table, err := cfg.ProfileTable()
	if err != nil {
		t.Fatalf("ProfileTable: %v", err)
	}
	for _, s := range movement.All {
		if table[s] != animation.DefaultProfiles()[s] {
			t.Errorf("profile %s = %+v, want %+v", s, table[s], animation.DefaultProfiles()[s])
		}
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
actuators:
  - {channel: 2, min_angle: 30, max_angle: 150, baseline_speed: 0.02, phase_offset: 1.5}
  - {channel: 3, min_angle: 30, max_angle: 150, baseline_speed: 0.02, phase_offset: 0}
profiles:
  listening: {amplitude: 5, center_angle: 30, speed_factor: 0.25}
hostlink:
  kind: mqtt
  mqtt:
    broker: tcp://broker:1883
animation:
  shape_excursion: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Actuators) != 2 || cfg.Actuators[0].Channel != 2 {
		t.Errorf("actuators replaced wholesale, got %+v", cfg.Actuators)
	}
	if cfg.Profiles["listening"].SpeedFactor != 0.25 || cfg.Profiles["idle"].SpeedFactor != 1.0 {
		t.Errorf("profiles not merged: %+v", cfg.Profiles)
	}
	if cfg.Hostlink.MQTT.Prefix != "sculpture" || cfg.Hostlink.MQTT.QoS != 1 {
		t.Errorf("mqtt defaults lost: %+v", cfg.Hostlink.MQTT)
	}
	if !cfg.Animation.ShapeExcursion || len(cfg.EngineOptions()) != 1 {
		t.Error("shape_excursion not applied")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"inverted range", func(c *Config) { c.Actuators[0].MinAngle, c.Actuators[0].MaxAngle = 135, 45 }, animation.ErrInvalidRange},
		{"zero speed", func(c *Config) { c.Actuators[0].BaselineSpeed = 0 }, animation.ErrInvalidSpeed},
		{"wrap unsafe", func(c *Config) { c.Actuators[0].BaselineSpeed = 4 }, animation.ErrWrapUnsafe},
		{"duplicate channel", func(c *Config) { c.Actuators = append(c.Actuators, c.Actuators[0]) }, animation.ErrDuplicateChannel},
		{"no actuators", func(c *Config) { c.Actuators = nil }, animation.ErrNoActuators},
		{"missing profile", func(c *Config) { delete(c.Profiles, "reacting-neutral") }, animation.ErrMissingProfile},
		{"unknown profile", func(c *Config) { c.Profiles["dancing"] = animation.Profile{SpeedFactor: 1} }, ErrUnknownState},
		{"bad servo", func(c *Config) { c.Servo.PulseMax = c.Servo.PulseMin }, animation.ErrInvalidCalibration},
		{"inverted thresholds", func(c *Config) { c.Presence.ApproachCm = 5 }, presence.ErrInvalidThresholds},
		{"NaN phase offset", func(c *Config) { c.Actuators[0].PhaseOffset = math.NaN() }, animation.ErrInvalidPhase},
		{"NaN baseline speed", func(c *Config) { c.Actuators[0].BaselineSpeed = math.NaN() }, animation.ErrInvalidSpeed},
		{"infinite max angle", func(c *Config) { c.Actuators[0].MaxAngle = math.Inf(1) }, animation.ErrInvalidRange},
		{"NaN speed factor", func(c *Config) { setProfile(c, "idle", func(p *animation.Profile) { p.SpeedFactor = math.NaN() }) }, animation.ErrInvalidSpeed},
		{"infinite amplitude", func(c *Config) { setProfile(c, "idle", func(p *animation.Profile) { p.Amplitude = math.Inf(1) }) }, animation.ErrInvalidRange},
		{"NaN center angle", func(c *Config) { setProfile(c, "idle", func(p *animation.Profile) { p.CenterAngle = math.NaN() }) }, animation.ErrInvalidRange},
		{"infinite approach", func(c *Config) { c.Presence.ApproachCm = math.Inf(1) }, presence.ErrInvalidThresholds},
		{"NaN interaction", func(c *Config) { c.Presence.InteractionCm = math.NaN() }, presence.ErrInvalidThresholds},
		{"zero sampling", func(c *Config) { c.Presence.SamplingInterval = 0 }, presence.ErrInvalidInterval},
		{"unknown transport", func(c *Config) { c.Hostlink.Kind = "carrier-pigeon" }, hostlink.ErrUnknownKind},
		{"unknown transport (config sentinel)", func(c *Config) { c.Hostlink.Kind = "smoke" }, ErrUnknownKind},
		{"serial without port", func(c *Config) { c.Hostlink.Port = "" }, ErrInvalid},
		{"websocket without url", func(c *Config) { c.Hostlink.Kind = hostlink.KindWebSocket }, ErrInvalid},
		{"mqtt without broker", func(c *Config) { c.Hostlink.Kind = hostlink.KindMQTT }, ErrInvalid},
		{"negative tick", func(c *Config) { c.Loop.TickInterval = -time.Millisecond }, ErrInvalid},
		{"web without addr", func(c *Config) { c.Web.Addr = "" }, ErrInvalid},
		{"zero window", func(c *Config) { c.Telemetry.Window = 0 }, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func setProfile(c *Config, name string, mutate func(*animation.Profile)) {
	p := c.Profiles[name]
	mutate(&p)
	c.Profiles[name] = p
}

// YAML spells non-finite floats as .nan and .inf.
func TestParseRejectsNonFinite(t *testing.T) {
	docs := map[string]string{
		"phase offset": "actuators:\n  - {channel: 0, min_angle: 45, max_angle: 135, baseline_speed: 0.01, phase_offset: .nan}\n",
		"approach":     "presence:\n  approach_threshold_cm: .inf\n",
	}
	for name, doc := range docs {
		cfg, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("%s: Parse: %v", name, err)
		}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: non-finite value accepted", name)
		}
	}
}

func TestFreeRunningLoopIsValid(t *testing.T) {
	cfg := Default()
	cfg.Loop.TickInterval = 0
	cfg.Hostlink.Kind = hostlink.KindNone
	cfg.Web.Enabled = false
	cfg.Web.Addr = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv(EnvHostPort, "/dev/ttyHOST")
	t.Setenv(EnvBridgePort, "/dev/ttyMCU")
	t.Setenv(EnvMQTTBroker, "tcp://env:1883")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvWebAddr, "127.0.0.1:9000")

	path := filepath.Join(t.TempDir(), "sculpture.yaml")
	if err := os.WriteFile(path, []byte("hostlink:\n  port: /dev/ttyFILE\nweb:\n  addr: \":7000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hostlink.Port != "/dev/ttyHOST" || cfg.Bridge.Port != "/dev/ttyMCU" {
		t.Errorf("ports = %q, %q", cfg.Hostlink.Port, cfg.Bridge.Port)
	}
	if cfg.Hostlink.MQTT.Broker != "tcp://env:1883" || cfg.Log.Level != "debug" || cfg.Web.Addr != "127.0.0.1:9000" {
		t.Errorf("env not applied: %+v %+v %+v", cfg.Hostlink.MQTT, cfg.Log, cfg.Web)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("presence:\n  approach_threshold_cm: 5\n"), 0o644)
	if _, err := Load(path); !errors.Is(err, presence.ErrInvalidThresholds) {
		t.Errorf("Load() = %v, want ErrInvalidThresholds", err)
	}

	os.WriteFile(path, []byte("actuators: [oops"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should fail")
	}
}
