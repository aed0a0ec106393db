package sculpture

import (
	"time"

	"github.com/teslashibe/go-sculpture/pkg/animation"
	"github.com/teslashibe/go-sculpture/pkg/command"
	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/presence"
	"github.com/teslashibe/go-sculpture/pkg/protocol"
	"github.com/teslashibe/go-sculpture/pkg/sensor"
)

// Snapshot is an immutable view of the controller after one tick. It is
// safe to hand to other goroutines.
type Snapshot struct {
	Tick     uint64         `json:"tick"`
	At       time.Time      `json:"at"`
	Presence presence.State `json:"presence"`
	Movement movement.State `json:"movement"`
	Source   string         `json:"movement_source"`

	// Latest readings in centimetres; nil when nothing was in range.
	ApproachCm    *float64 `json:"approach_cm"`
	InteractionCm *float64 `json:"interaction_cm"`
	Sampled       bool     `json:"sampled"`

	Outputs []animation.Output `json:"outputs"`
	Session *Session           `json:"session,omitempty"`

	CommandsAccepted uint64        `json:"commands_accepted"`
	CommandsIgnored  uint64        `json:"commands_ignored"`
	WriteErrors      uint64        `json:"write_errors"`
	TickDuration     time.Duration `json:"tick_duration_ns"`
}

// Session is one visitor's stay, from approach start to approach end.
type Session struct {
	ID           string    `json:"id"`
	Started      time.Time `json:"started"`
	Ended        time.Time `json:"ended"`
	Interactions int       `json:"interactions"`
}

// Duration is how long the visitor stayed, or has stayed so far at now.
func (s Session) Duration(now time.Time) time.Duration {
	if !s.Ended.IsZero() {
		return s.Ended.Sub(s.Started)
	}
	return now.Sub(s.Started)
}

// Event is a presence transition together with the session it belongs to
// and the movement state in force after it.
type Event struct {
	Transition presence.Transition
	Session    Session
	Movement   movement.State
}

// Data converts the event for the wire.
func (e Event) Data() protocol.EventData {
	return protocol.EventData{
		Name:      e.Transition.Event.Name(),
		Line:      e.Transition.Event.Line(),
		From:      e.Transition.From.String(),
		To:        e.Transition.To.String(),
		Movement:  e.Movement.String(),
		SessionID: e.Session.ID,
	}
}

// Observer receives controller activity. Callbacks run on the control loop
// goroutine and must not block.
type Observer interface {
	OnTransition(ev Event)
	OnCommand(res command.Result)
	OnTick(snap Snapshot)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Transition func(Event)
	Command    func(command.Result)
	Tick       func(Snapshot)
}

func (o ObserverFuncs) OnTransition(ev Event) {
	if o.Transition != nil {
		o.Transition(ev)
	}
}

func (o ObserverFuncs) OnCommand(res command.Result) {
	if o.Command != nil {
		o.Command(res)
	}
}

func (o ObserverFuncs) OnTick(snap Snapshot) {
	if o.Tick != nil {
		o.Tick(snap)
	}
}

// distance turns a reading into a JSON-friendly pointer.
func distance(cm float64) *float64 {
	if sensor.IsNoObject(cm) {
		return nil
	}
	return &cm
}
