// Package movement holds the movement state that selects the sculpture's
// active animation profile.
//
// The state is written by two parties (presence transitions and host
// commands) and read once per tick by the animation engine. Writes are
// last-writer-wins; the control loop is the only goroutine that touches a
// Register, so no locking is involved.
package movement

import "fmt"

// State is the movement behaviour the leaves are currently expressing.
type State int

const (
	// Idle is the resting behaviour when nobody is around. It is the zero
	// value so a fresh Register starts idle.
	Idle State = iota

	// Listen is entered when a visitor approaches.
	Listen

	// ReactingPositive is commanded by the host after a positive exchange.
	ReactingPositive

	// ReactingNegative is commanded by the host after a negative exchange.
	ReactingNegative

	// ReactingNeutral is commanded by the host after a neutral exchange.
	ReactingNeutral
)

// All lists every movement state in declaration order.
var All = []State{Idle, Listen, ReactingPositive, ReactingNegative, ReactingNeutral}

// String returns the profile name used in config files and logs.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listen:
		return "listening"
	case ReactingPositive:
		return "reacting-positive"
	case ReactingNegative:
		return "reacting-negative"
	case ReactingNeutral:
		return "reacting-neutral"
	default:
		return fmt.Sprintf("movement(%d)", int(s))
	}
}

// Valid reports whether s is one of the five named states.
func (s State) Valid() bool {
	return s >= Idle && s <= ReactingNeutral
}

// Parse resolves a profile name (as printed by String) to a State.
func Parse(name string) (State, bool) {
	for _, s := range All {
		if s.String() == name {
			return s, true
		}
	}
	return Idle, false
}

// MarshalText implements encoding.TextMarshaler so states render by name in
// JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, ok := Parse(string(text))
	if !ok {
		return fmt.Errorf("movement: unknown state %q", string(text))
	}
	*s = v
	return nil
}
