// Package sensor turns ultrasonic echo timings into distances.
//
// A ranger that hears no echo within the hardware timeout reports a zero
// duration. That is "nothing in range", never "something at 0cm", so it is
// converted to NoObject, which is farther than any threshold.
package sensor

import (
	"context"
	"math"
	"time"
)

// SpeedOfSound is in centimetres per microsecond at room temperature.
const SpeedOfSound = 0.0343

// NoObject is the distance reported when no echo came back.
var NoObject = math.Inf(1)

// IsNoObject reports whether cm is the no-echo sentinel.
func IsNoObject(cm float64) bool {
	return math.IsInf(cm, 1)
}

// Ranger measures the distance to the nearest object in centimetres.
// MeasureRange blocks until the measurement completes or times out.
type Ranger interface {
	MeasureRange(ctx context.Context) (float64, error)
}

// RangerFunc adapts a function to Ranger.
type RangerFunc func(ctx context.Context) (float64, error)

// MeasureRange calls f.
func (f RangerFunc) MeasureRange(ctx context.Context) (float64, error) {
	return f(ctx)
}

// EchoTimer triggers one ultrasonic ping and returns the echo pulse length.
// A zero duration means the echo never arrived.
type EchoTimer interface {
	Echo(ctx context.Context) (time.Duration, error)
}

// DistanceFromEcho converts a round-trip echo time to centimetres.
func DistanceFromEcho(d time.Duration) float64 {
	us := float64(d) / float64(time.Microsecond)
	return us * SpeedOfSound / 2
}

// EchoFromDistance is the inverse of DistanceFromEcho, used by simulators.
func EchoFromDistance(cm float64) time.Duration {
	if IsNoObject(cm) || cm <= 0 {
		return 0
	}
	us := cm * 2 / SpeedOfSound
	return time.Duration(math.Round(us)) * time.Microsecond
}

// Ultrasonic is a Ranger backed by an echo timer.
type Ultrasonic struct {
	name string
	echo EchoTimer
}

// NewUltrasonic wraps an echo timer. name labels the sensor in logs and
// metrics ("approach", "interaction").
func NewUltrasonic(name string, echo EchoTimer) *Ultrasonic {
	return &Ultrasonic{name: name, echo: echo}
}

// Name returns the sensor label.
func (u *Ultrasonic) Name() string {
	return u.name
}

// MeasureRange pings once. Timeouts and transport errors both come back as
// NoObject; the error is returned alongside for logging only.
func (u *Ultrasonic) MeasureRange(ctx context.Context) (float64, error) {
	d, err := u.echo.Echo(ctx)
	if err != nil {
		return NoObject, err
	}
	if d <= 0 {
		return NoObject, nil
	}
	return DistanceFromEcho(d), nil
}
