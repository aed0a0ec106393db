package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/sensor"
)

// Config holds the detector tuning.
type Config struct {
	Thresholds       Thresholds
	SamplingInterval time.Duration
}

// DefaultConfig samples twice a second with the default thresholds.
func DefaultConfig() Config {
	return Config{
		Thresholds:       DefaultThresholds(),
		SamplingInterval: 500 * time.Millisecond,
	}
}

// Validate checks thresholds and interval.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.SamplingInterval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, c.SamplingInterval)
	}
	return nil
}

// Detector owns the presence state. It is called every tick and only
// measures once the sampling interval has elapsed.
type Detector struct {
	approach    sensor.Ranger
	interaction sensor.Ranger
	cfg         Config
	logger      *slog.Logger

	state      State
	lastSample time.Time
	sampled    bool
	last       Transition

	samples   uint64
	rangeErrs uint64
}

// NewDetector validates cfg and returns a detector in NoUser.
func NewDetector(approach, interaction sensor.Ranger, cfg Config, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		approach:    approach,
		interaction: interaction,
		cfg:         cfg,
		logger:      logger,
		state:       NoUser,
	}, nil
}

// State returns the current presence classification.
func (d *Detector) State() State {
	return d.state
}

// Last returns the most recent sample, fired or not.
func (d *Detector) Last() Transition {
	return d.last
}

// Samples returns how many samples have been taken.
func (d *Detector) Samples() uint64 {
	return d.samples
}

// Due reports whether a sample would be taken at now.
func (d *Detector) Due(now time.Time) bool {
	return !d.sampled || now.Sub(d.lastSample) >= d.cfg.SamplingInterval
}

// Sample measures both channels if the interval has elapsed, advances the
// state machine and applies the movement side effect to reg. The boolean
// reports whether a measurement was taken this call.
func (d *Detector) Sample(ctx context.Context, now time.Time, reg *movement.Register) (Transition, bool) {
	if !d.Due(now) {
		return Transition{}, false
	}
	d.lastSample = now
	d.sampled = true
	d.samples++

	approach := d.measure(ctx, "approach", d.approach)
	interaction := d.measure(ctx, "interaction", d.interaction)

	tr := Next(d.state, approach, interaction, d.cfg.Thresholds)
	tr.At = now
	d.last = tr

	if !tr.Fired() {
		return tr, true
	}

	d.state = tr.To
	if tr.SetsMovement && reg != nil {
		reg.Set(tr.Movement, movement.SourcePresence)
	}

	d.logger.Info("presence transition",
		"event", tr.Event.Name(),
		"from", tr.From.String(),
		"to", tr.To.String(),
		"approach_cm", approach,
		"interaction_cm", interaction)

	return tr, true
}

// measure reads one ranger. Errors are folded into NoObject by the ranger;
// here they are only counted and logged sparingly.
func (d *Detector) measure(ctx context.Context, name string, r sensor.Ranger) float64 {
	if r == nil {
		return sensor.NoObject
	}
	cm, err := r.MeasureRange(ctx)
	if err != nil {
		d.rangeErrs++
		if d.rangeErrs%50 == 1 {
			d.logger.Warn("range measurement failed", "sensor", name, "error", err, "total_errors", d.rangeErrs)
		}
		return sensor.NoObject
	}
	return cm
}
