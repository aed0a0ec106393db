// Package sim provides bench stand-ins for the sculpture's hardware: a
// visitor walking past the sensors, scripted rangers, a recording servo
// driver and a scripted analysis host.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-sculpture/pkg/sensor"
)

// MaxRange is the farthest an HC-SR04 reliably reports. Anything beyond it
// reads as no echo.
const MaxRange = 400.0

// Waypoint fixes the visitor's distance from each sensor at an offset into
// the visit. Between waypoints the distance is interpolated linearly.
type Waypoint struct {
	At          time.Duration
	Approach    float64
	Interaction float64
}

// Visitor replays a path of waypoints against a clock.
type Visitor struct {
	path  []Waypoint
	start time.Time
	now   func() time.Time
}

// NewVisitor starts a visit at start. now supplies the current time; pass
// nil for the wall clock.
func NewVisitor(path []Waypoint, start time.Time, now func() time.Time) *Visitor {
	if now == nil {
		now = time.Now
	}
	return &Visitor{path: path, start: start, now: now}
}

// DefaultVisit walks in from the far end of the room, stops in front of the
// sculpture, leans in to touch it twice and then leaves.
func DefaultVisit() []Waypoint {
	far := sensor.NoObject
	return []Waypoint{
		{At: 0, Approach: far, Interaction: far},
		{At: 2 * time.Second, Approach: 250, Interaction: far},
		{At: 5 * time.Second, Approach: 25, Interaction: 120},
		{At: 8 * time.Second, Approach: 22, Interaction: 60},
		{At: 10 * time.Second, Approach: 12, Interaction: 8},
		{At: 13 * time.Second, Approach: 12, Interaction: 8},
		{At: 14 * time.Second, Approach: 20, Interaction: 40},
		{At: 17 * time.Second, Approach: 20, Interaction: 40},
		{At: 18 * time.Second, Approach: 10, Interaction: 6},
		{At: 21 * time.Second, Approach: 10, Interaction: 6},
		{At: 23 * time.Second, Approach: 90, Interaction: far},
		{At: 26 * time.Second, Approach: far, Interaction: far},
	}
}

// Duration is the offset of the last waypoint.
func (v *Visitor) Duration() time.Duration {
	if len(v.path) == 0 {
		return 0
	}
	return v.path[len(v.path)-1].At
}

// DistancesAt returns both sensor readings at offset t into the visit.
func (v *Visitor) DistancesAt(t time.Duration) (approach, interaction float64) {
	if len(v.path) == 0 {
		return sensor.NoObject, sensor.NoObject
	}
	if t <= v.path[0].At {
		return inRange(v.path[0].Approach), inRange(v.path[0].Interaction)
	}
	for i := 1; i < len(v.path); i++ {
		a, b := v.path[i-1], v.path[i]
		if t > b.At {
			continue
		}
		f := float64(t-a.At) / float64(b.At-a.At)
		return inRange(lerp(a.Approach, b.Approach, f)), inRange(lerp(a.Interaction, b.Interaction, f))
	}
	last := v.path[len(v.path)-1]
	return inRange(last.Approach), inRange(last.Interaction)
}

// Approach returns a ranger for the approach sensor.
func (v *Visitor) Approach() sensor.Ranger {
	return sensor.RangerFunc(func(context.Context) (float64, error) {
		a, _ := v.DistancesAt(v.now().Sub(v.start))
		return a, nil
	})
}

// Interaction returns a ranger for the interaction sensor.
func (v *Visitor) Interaction() sensor.Ranger {
	return sensor.RangerFunc(func(context.Context) (float64, error) {
		_, i := v.DistancesAt(v.now().Sub(v.start))
		return i, nil
	})
}

// lerp jumps rather than interpolates when either end is out of range, so a
// visitor appears at a waypoint instead of sliding in from infinity.
func lerp(a, b, f float64) float64 {
	if sensor.IsNoObject(a) || sensor.IsNoObject(b) {
		if f < 1 {
			return a
		}
		return b
	}
	return a + (b-a)*f
}

func inRange(cm float64) float64 {
	if cm > MaxRange || cm <= 0 {
		return sensor.NoObject
	}
	return cm
}

// Script is a ranger that returns a fixed sequence of readings, repeating the
// last one once exhausted.
type Script struct {
	mu     sync.Mutex
	values []float64
	errs   map[int]error
	next   int
}

// NewScript returns a ranger reporting values in order.
func NewScript(values ...float64) *Script {
	return &Script{values: values}
}

// FailAt makes the n-th reading (zero-based) fail with err.
func (s *Script) FailAt(n int, err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[int]error)
	}
	s.errs[n] = err
	return s
}

// MeasureRange implements sensor.Ranger.
func (s *Script) MeasureRange(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	s.next++
	if err, ok := s.errs[n]; ok {
		return sensor.NoObject, err
	}
	if len(s.values) == 0 {
		return sensor.NoObject, nil
	}
	if n >= len(s.values) {
		n = len(s.values) - 1
	}
	return s.values[n], nil
}

// Set replaces the remaining readings with a single repeating value.
func (s *Script) Set(cm float64) {
	s.mu.Lock()
	s.values = []float64{cm}
	s.next = 0
	s.errs = nil
	s.mu.Unlock()
}

// Reads returns how many readings have been taken.
func (s *Script) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
