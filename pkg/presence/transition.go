package presence

import "github.com/teslashibe/go-sculpture/pkg/movement"

// Next evaluates the transition table for one pair of readings.
// It is pure: the same inputs always give the same transition.
func Next(s State, approach, interaction float64, th Thresholds) Transition {
	tr := Transition{From: s, To: s, Approach: approach, Interaction: interaction}

	switch s {
	case NoUser:
		if approach <= th.ApproachCm {
			tr.To = Approaching
			tr.Event = EventApproachStart
			tr.Movement, tr.SetsMovement = movement.Listen, true
		}

	case Approaching:
		if interaction <= th.InteractionCm {
			tr.To = Interacting
			tr.Event = EventInteractionStart
		} else if approach > th.ApproachCm {
			tr.To = NoUser
			tr.Event = EventApproachEnd
			tr.Movement, tr.SetsMovement = movement.Idle, true
		}

	case Interacting:
		if interaction > th.InteractionCm {
			tr.To = Approaching
			tr.Event = EventInteractionEnd
		}
	}

	return tr
}
