// Package animation turns the current movement state into servo pulse
// widths for every leaf of the sculpture.
//
// Each leaf owns a phase accumulator. Every tick the phase is advanced by the
// leaf's baseline speed scaled by the active profile's speed factor, and the
// sine of the phase is mapped into the leaf's safe angular range. Speeds are
// in radians per tick, so the loop rate directly sets how fast the leaves
// sway.
package animation

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-sculpture/pkg/movement"
)

const twoPi = 2 * math.Pi

// ActuatorConfig is the immutable description of one leaf servo.
type ActuatorConfig struct {
	// Channel is the output index on the servo driver.
	Channel int `json:"channel" yaml:"channel"`

	// MinAngle and MaxAngle bound the leaf's safe travel in degrees.
	MinAngle float64 `json:"min_angle" yaml:"min_angle"`
	MaxAngle float64 `json:"max_angle" yaml:"max_angle"`

	// BaselineSpeed is the phase advance per tick at speed factor 1.0.
	BaselineSpeed float64 `json:"baseline_speed" yaml:"baseline_speed"`

	// PhaseOffset is the initial phase in radians, in [0, 2π).
	PhaseOffset float64 `json:"phase_offset" yaml:"phase_offset"`
}

// Validate checks the actuator against the servo calibration.
func (a ActuatorConfig) Validate(cal Calibration) error {
	if a.Channel < 0 {
		return fmt.Errorf("%w: channel %d", ErrInvalidChannel, a.Channel)
	}
	if !finite(a.MinAngle, a.MaxAngle) || !(a.MinAngle < a.MaxAngle) {
		return fmt.Errorf("%w: channel %d has min %.1f >= max %.1f", ErrInvalidRange, a.Channel, a.MinAngle, a.MaxAngle)
	}
	if a.MinAngle < 0 || a.MaxAngle > cal.MaxAngle {
		return fmt.Errorf("%w: channel %d range [%.1f, %.1f] outside [0, %.1f]", ErrInvalidRange, a.Channel, a.MinAngle, a.MaxAngle, cal.MaxAngle)
	}
	if !finite(a.BaselineSpeed) || !(a.BaselineSpeed > 0) {
		return fmt.Errorf("%w: channel %d baseline speed %v", ErrInvalidSpeed, a.Channel, a.BaselineSpeed)
	}
	if !finite(a.PhaseOffset) || a.PhaseOffset < 0 || a.PhaseOffset >= twoPi {
		return fmt.Errorf("%w: channel %d phase offset %v", ErrInvalidPhase, a.Channel, a.PhaseOffset)
	}
	return nil
}

// Profile is a named set of motion parameters.
//
// Only SpeedFactor shapes the motion by default. Amplitude and CenterAngle
// take effect when the engine runs with shaped excursions enabled.
type Profile struct {
	Amplitude   float64 `json:"amplitude" yaml:"amplitude"`
	CenterAngle float64 `json:"center_angle" yaml:"center_angle"`
	SpeedFactor float64 `json:"speed_factor" yaml:"speed_factor"`
}

// ProfileTable maps each movement state to its profile.
type ProfileTable map[movement.State]Profile

// DefaultProfiles returns the stock behaviour set.
func DefaultProfiles() ProfileTable {
	return ProfileTable{
		movement.Idle:             {Amplitude: 25, CenterAngle: 90, SpeedFactor: 1.0},
		movement.Listen:           {Amplitude: 3, CenterAngle: 20, SpeedFactor: 0.5},
		movement.ReactingPositive: {Amplitude: 40, CenterAngle: 90, SpeedFactor: 2.0},
		movement.ReactingNegative: {Amplitude: 8, CenterAngle: 60, SpeedFactor: 0.4},
		movement.ReactingNeutral:  {Amplitude: 15, CenterAngle: 90, SpeedFactor: 1.0},
	}
}

// Lookup returns the profile for s. A state missing from the table falls
// back to the Idle profile, and to the stock Idle profile if the table has
// no Idle entry either.
func (t ProfileTable) Lookup(s movement.State) Profile {
	if p, ok := t[s]; ok {
		return p
	}
	if p, ok := t[movement.Idle]; ok {
		return p
	}
	return DefaultProfiles()[movement.Idle]
}

// MaxSpeedFactor returns the largest speed factor in the table.
func (t ProfileTable) MaxSpeedFactor() float64 {
	var m float64
	for _, p := range t {
		if p.SpeedFactor > m {
			m = p.SpeedFactor
		}
	}
	return m
}

// Validate requires a profile for every movement state with finite values
// and a non-negative speed factor.
func (t ProfileTable) Validate() error {
	for _, s := range movement.All {
		p, ok := t[s]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingProfile, s)
		}
		if !finite(p.SpeedFactor) || p.SpeedFactor < 0 {
			return fmt.Errorf("%w: profile %s speed factor %v", ErrInvalidSpeed, s, p.SpeedFactor)
		}
		if !finite(p.Amplitude, p.CenterAngle) || p.Amplitude < 0 {
			return fmt.Errorf("%w: profile %s amplitude %v center %v", ErrInvalidRange, s, p.Amplitude, p.CenterAngle)
		}
	}
	return nil
}

// Calibration describes the servo pulse encoding shared by all leaves.
type Calibration struct {
	PulseMin    int     `json:"pulse_min" yaml:"pulse_min"`
	PulseMax    int     `json:"pulse_max" yaml:"pulse_max"`
	MaxAngle    float64 `json:"max_angle" yaml:"max_angle"`
	FrequencyHz float64 `json:"frequency_hz" yaml:"frequency_hz"`
}

// DefaultCalibration matches the 270° servos on a 50Hz PCA9685.
func DefaultCalibration() Calibration {
	return Calibration{
		PulseMin:    500,
		PulseMax:    2500,
		MaxAngle:    270,
		FrequencyHz: 50,
	}
}

// Validate checks the calibration is usable for angle mapping.
func (c Calibration) Validate() error {
	if c.PulseMin <= 0 || c.PulseMin >= c.PulseMax {
		return fmt.Errorf("%w: pulse range [%d, %d]", ErrInvalidCalibration, c.PulseMin, c.PulseMax)
	}
	if !finite(c.MaxAngle) || !(c.MaxAngle > 0) {
		return fmt.Errorf("%w: servo max angle %v", ErrInvalidCalibration, c.MaxAngle)
	}
	if !finite(c.FrequencyHz) || !(c.FrequencyHz > 0) {
		return fmt.Errorf("%w: frequency %v", ErrInvalidCalibration, c.FrequencyHz)
	}
	return nil
}

// PulseWidth converts an angle in degrees to an integer microsecond pulse,
// clamped into [PulseMin, PulseMax].
func (c Calibration) PulseWidth(angle float64) int {
	us := mapRange(angle, 0, c.MaxAngle, float64(c.PulseMin), float64(c.PulseMax))
	return clampInt(int(math.Round(us)), c.PulseMin, c.PulseMax)
}

// Output is what the engine produced for one leaf during a tick.
type Output struct {
	Channel    int     `json:"channel"`
	Angle      float64 `json:"angle"`
	PulseWidth int     `json:"pulse_width_us"`
	Phase      float64 `json:"phase"`
}
