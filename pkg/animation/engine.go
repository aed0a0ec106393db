package animation

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/teslashibe/go-sculpture/pkg/movement"
)

// PulseWriter is the actuator driver: it sets a servo pulse width in
// microseconds on a driver channel.
type PulseWriter interface {
	WritePulse(channel, microseconds int) error
}

// Actuator pairs a leaf's immutable configuration with its running phase.
type Actuator struct {
	Config ActuatorConfig
	phase  float64
}

// Phase returns the leaf's current phase in [0, 2π).
func (a *Actuator) Phase() float64 {
	return a.phase
}

// Option configures an Engine.
type Option func(*Engine)

// WithShapedExcursions makes profiles reshape the sway as well as its speed:
// the angle becomes CenterAngle ± Amplitude, clamped to the leaf's range.
func WithShapedExcursions(enabled bool) Option {
	return func(e *Engine) {
		e.shaped = enabled
	}
}

// WithLogger sets the logger used for driver write failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine advances every leaf's phase and writes the resulting pulses.
// It is not safe for concurrent use; the control loop owns it.
type Engine struct {
	actuators []*Actuator
	profiles  ProfileTable
	cal       Calibration
	out       PulseWriter
	shaped    bool
	logger    *slog.Logger

	ticks       uint64
	writeErrors uint64
}

// NewEngine validates the configuration and returns an engine with every
// phase set to its configured offset.
func NewEngine(configs []ActuatorConfig, profiles ProfileTable, cal Calibration, out PulseWriter, opts ...Option) (*Engine, error) {
	if err := Validate(configs, profiles, cal); err != nil {
		return nil, err
	}

	e := &Engine{
		profiles: profiles,
		cal:      cal,
		out:      out,
		logger:   slog.Default(),
	}
	for _, c := range configs {
		e.actuators = append(e.actuators, &Actuator{Config: c, phase: c.PhaseOffset})
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Validate checks a full animation configuration.
func Validate(configs []ActuatorConfig, profiles ProfileTable, cal Calibration) error {
	if err := cal.Validate(); err != nil {
		return err
	}
	if err := profiles.Validate(); err != nil {
		return err
	}
	if len(configs) == 0 {
		return ErrNoActuators
	}

	seen := make(map[int]bool, len(configs))
	maxFactor := profiles.MaxSpeedFactor()
	for _, c := range configs {
		if err := c.Validate(cal); err != nil {
			return err
		}
		if seen[c.Channel] {
			return fmt.Errorf("%w: %d", ErrDuplicateChannel, c.Channel)
		}
		seen[c.Channel] = true

		if c.BaselineSpeed*maxFactor >= twoPi {
			return fmt.Errorf("%w: channel %d step %.3f rad", ErrWrapUnsafe, c.Channel, c.BaselineSpeed*maxFactor)
		}
	}
	return nil
}

// Tick runs one animation step for every leaf using the profile selected by
// state and returns what was written.
func (e *Engine) Tick(state movement.State) []Output {
	profile := e.profiles.Lookup(state)
	outputs := make([]Output, 0, len(e.actuators))

	for _, a := range e.actuators {
		angle := e.angle(a, profile)
		pw := e.cal.PulseWidth(angle)

		if e.out != nil {
			if err := e.out.WritePulse(a.Config.Channel, pw); err != nil {
				e.writeErrors++
				if e.writeErrors%100 == 1 {
					e.logger.Warn("servo write failed",
						"channel", a.Config.Channel, "error", err, "total_errors", e.writeErrors)
				}
			}
		}

		outputs = append(outputs, Output{
			Channel:    a.Config.Channel,
			Angle:      angle,
			PulseWidth: pw,
			Phase:      a.phase,
		})

		a.phase = wrapPhase(a.phase + a.Config.BaselineSpeed*profile.SpeedFactor)
	}

	e.ticks++
	return outputs
}

// angle maps the leaf's phase to degrees.
func (e *Engine) angle(a *Actuator, p Profile) float64 {
	s := math.Sin(a.phase)
	if e.shaped {
		return clamp(p.CenterAngle+p.Amplitude*s, a.Config.MinAngle, a.Config.MaxAngle)
	}
	return mapRange(s, -1, 1, a.Config.MinAngle, a.Config.MaxAngle)
}

// Phases returns a copy of every leaf's current phase.
func (e *Engine) Phases() []float64 {
	phases := make([]float64, len(e.actuators))
	for i, a := range e.actuators {
		phases[i] = a.phase
	}
	return phases
}

// Profiles returns the profile table in use.
func (e *Engine) Profiles() ProfileTable {
	return e.profiles
}

// Ticks returns the number of completed ticks.
func (e *Engine) Ticks() uint64 {
	return e.ticks
}

// WriteErrors returns how many driver writes have failed.
func (e *Engine) WriteErrors() uint64 {
	return e.writeErrors
}
