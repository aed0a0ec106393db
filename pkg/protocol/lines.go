// Package protocol defines the text vocabulary spoken with the analysis host
// and the JSON envelope used to mirror it to dashboard clients.
//
// Host link lines are ASCII and newline-terminated:
//
//	sculpture -> host   event:user_approach_start
//	host -> sculpture   set_state:REACTING_POSITIVE
//
// Matching is exact and case-sensitive. Unknown lines are not errors; the
// caller drops them.
package protocol

import (
	"strings"

	"github.com/teslashibe/go-sculpture/pkg/movement"
)

const (
	// EventPrefix starts every outbound event line.
	EventPrefix = "event:"

	// CommandPrefix starts every inbound state command.
	CommandPrefix = "set_state:"
)

// Event names emitted on presence transitions.
const (
	EventApproachStart    = "user_approach_start"
	EventApproachEnd      = "user_approach_end"
	EventInteractionStart = "user_interaction_start"
	EventInteractionEnd   = "user_interaction_end"
)

// commandStates is the full inbound vocabulary. Listen is deliberately absent:
// only presence can put the sculpture into listening.
var commandStates = map[string]movement.State{
	CommandPrefix + "IDLE":              movement.Idle,
	CommandPrefix + "REACTING_POSITIVE": movement.ReactingPositive,
	CommandPrefix + "REACTING_NEGATIVE": movement.ReactingNegative,
	CommandPrefix + "REACTING_NEUTRAL":  movement.ReactingNeutral,
}

// FormatEvent returns the wire line for an event name, without the newline.
func FormatEvent(name string) string {
	return EventPrefix + name
}

// ParseEvent extracts the event name from an event line.
func ParseEvent(line string) (string, bool) {
	name, ok := strings.CutPrefix(line, EventPrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// ParseCommand maps a command line to the movement state it requests.
// Only the exact strings of the vocabulary are recognised.
func ParseCommand(line string) (movement.State, bool) {
	s, ok := commandStates[line]
	return s, ok
}

// FormatCommand returns the command line that requests s. Listen has no
// command and reports false.
func FormatCommand(s movement.State) (string, bool) {
	for line, st := range commandStates {
		if st == s {
			return line, true
		}
	}
	return "", false
}

// Commands lists the recognised command lines.
func Commands() []string {
	return []string{
		CommandPrefix + "IDLE",
		CommandPrefix + "REACTING_POSITIVE",
		CommandPrefix + "REACTING_NEGATIVE",
		CommandPrefix + "REACTING_NEUTRAL",
	}
}

// SentimentThreshold is the compound-score band treated as neutral.
const SentimentThreshold = 0.05

// CommandForSentiment maps a compound sentiment score in [-1, 1] to the
// command the analysis host sends after an exchange.
func CommandForSentiment(score float64) string {
	switch {
	case score >= SentimentThreshold:
		return CommandPrefix + "REACTING_POSITIVE"
	case score <= -SentimentThreshold:
		return CommandPrefix + "REACTING_NEGATIVE"
	default:
		return CommandPrefix + "REACTING_NEUTRAL"
	}
}

// TrimLine strips the line terminator (\n or \r\n) a transport left on line.
func TrimLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}
