// Package presence classifies whether a visitor is absent, approaching or
// interacting with the sculpture, using two ultrasonic distance channels.
//
// The classification is a three-state machine. Every transition emits a
// named event and some transitions also move the movement register:
//
//	NoUser      --approach <= A-->     Approaching  user_approach_start     (Listen)
//	Approaching --interaction <= I-->  Interacting  user_interaction_start
//	Approaching --approach > A-->      NoUser       user_approach_end       (Idle)
//	Interacting --interaction > I-->   Approaching  user_interaction_end
//
// Every other combination holds the state and emits nothing.
package presence

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/protocol"
)

// ErrInvalidThresholds is returned when the interaction range is not
// strictly inside the approach range.
var ErrInvalidThresholds = errors.New("presence: thresholds must satisfy approach > interaction > 0")

// ErrInvalidInterval is returned for a non-positive sampling interval.
var ErrInvalidInterval = errors.New("presence: sampling interval must be positive")

// State is the presence classification.
type State int

const (
	NoUser State = iota
	Approaching
	Interacting
)

// String returns the state name used in logs and dashboards.
func (s State) String() string {
	switch s {
	case NoUser:
		return "no_user"
	case Approaching:
		return "approaching"
	case Interacting:
		return "interacting"
	default:
		return fmt.Sprintf("presence(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is what a transition announces to the host.
type Event int

const (
	EventNone Event = iota
	EventApproachStart
	EventApproachEnd
	EventInteractionStart
	EventInteractionEnd
)

// Name returns the wire name of the event, or "" for EventNone.
func (e Event) Name() string {
	switch e {
	case EventApproachStart:
		return protocol.EventApproachStart
	case EventApproachEnd:
		return protocol.EventApproachEnd
	case EventInteractionStart:
		return protocol.EventInteractionStart
	case EventInteractionEnd:
		return protocol.EventInteractionEnd
	default:
		return ""
	}
}

// Line returns the host link line for the event.
func (e Event) Line() string {
	if e == EventNone {
		return ""
	}
	return protocol.FormatEvent(e.Name())
}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e == EventNone {
		return "none"
	}
	return e.Name()
}

// Thresholds are the two trigger distances in centimetres. Both comparisons
// are inclusive: a reading equal to the threshold counts as inside.
type Thresholds struct {
	ApproachCm    float64 `json:"approach_cm" yaml:"approach_threshold_cm"`
	InteractionCm float64 `json:"interaction_cm" yaml:"interaction_threshold_cm"`
}

// DefaultThresholds returns the gallery defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{ApproachCm: 30, InteractionCm: 10}
}

// Validate enforces approach > interaction > 0 with both finite. An infinite
// approach threshold would count a missing echo as a visitor.
func (t Thresholds) Validate() error {
	if math.IsInf(t.ApproachCm, 0) || math.IsInf(t.InteractionCm, 0) ||
		!(t.InteractionCm > 0) || !(t.ApproachCm > t.InteractionCm) {
		return fmt.Errorf("%w (approach=%v, interaction=%v)", ErrInvalidThresholds, t.ApproachCm, t.InteractionCm)
	}
	return nil
}

// Transition is the outcome of evaluating one sample.
type Transition struct {
	From  State
	To    State
	Event Event

	// Movement is written to the register when SetsMovement is true.
	Movement     movement.State
	SetsMovement bool

	// Readings that produced the transition, in centimetres.
	Approach    float64
	Interaction float64
	At          time.Time
}

// Fired reports whether the sample changed state.
func (t Transition) Fired() bool {
	return t.Event != EventNone
}
