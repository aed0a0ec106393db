// Package command applies host commands to the movement register.
//
// The interpreter never blocks: each Poll drains whatever complete lines
// are already queued on its sources, applies the recognised ones in arrival
// order and silently drops the rest. A recognised command always wins over
// the state presence set earlier, including Listen and Idle.
package command

import (
	"log/slog"

	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/protocol"
)

// MaxLinesPerPoll bounds how many lines one source may deliver in one tick
// so a flooding host cannot stall the animation.
const MaxLinesPerPoll = 64

// LineSource yields complete inbound lines without blocking.
type LineSource interface {
	// TryReadLine returns the next pending line, or false if none is queued.
	TryReadLine() (string, bool)
}

// Result describes one line taken from a source.
type Result struct {
	Source   string
	Line     string
	Accepted bool
	State    movement.State
}

type namedSource struct {
	name string
	src  LineSource
}

// Interpreter drains line sources into a movement register.
type Interpreter struct {
	sources []namedSource
	logger  *slog.Logger

	accepted uint64
	ignored  uint64
}

// NewInterpreter returns an interpreter with no sources.
func NewInterpreter(logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{logger: logger}
}

// AddSource registers a line source. Sources are drained in the order they
// were added.
func (i *Interpreter) AddSource(name string, src LineSource) {
	if src == nil {
		return
	}
	i.sources = append(i.sources, namedSource{name: name, src: src})
}

// Poll drains every source and applies recognised commands to reg.
func (i *Interpreter) Poll(reg *movement.Register) []Result {
	var results []Result

	for _, ns := range i.sources {
		for n := 0; n < MaxLinesPerPoll; n++ {
			line, ok := ns.src.TryReadLine()
			if !ok {
				break
			}
			results = append(results, i.apply(ns.name, protocol.TrimLine(line), reg))
		}
	}
	return results
}

func (i *Interpreter) apply(source, line string, reg *movement.Register) Result {
	r := Result{Source: source, Line: line}

	state, ok := protocol.ParseCommand(line)
	if !ok {
		i.ignored++
		i.logger.Debug("ignoring host line", "source", source, "line", line)
		return r
	}

	r.Accepted = true
	r.State = state
	i.accepted++
	if reg != nil {
		reg.Set(state, movement.SourceCommand)
	}
	i.logger.Info("host command applied", "source", source, "movement", state.String())
	return r
}

// Accepted returns the number of commands applied.
func (i *Interpreter) Accepted() uint64 {
	return i.accepted
}

// Ignored returns the number of lines dropped.
func (i *Interpreter) Ignored() uint64 {
	return i.ignored
}
