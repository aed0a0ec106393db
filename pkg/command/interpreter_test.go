package command

import (
	"testing"

	"github.com/teslashibe/go-sculpture/internal/log"
	"github.com/teslashibe/go-sculpture/pkg/movement"
)

// queue is a LineSource backed by a slice.
type queue struct {
	lines []string
	reads int
}

func (q *queue) TryReadLine() (string, bool) {
	q.reads++
	if len(q.lines) == 0 {
		return "", false
	}
	line := q.lines[0]
	q.lines = q.lines[1:]
	return line, true
}

func TestPoll_OverridesPresenceState(t *testing.T) {
	reg := movement.NewRegister()
	q := &queue{lines: []string{"set_state:REACTING_POSITIVE"}}

	in := NewInterpreter(log.Discard())
	in.AddSource("host", q)

	results := in.Poll(reg)
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("results: %+v", results)
	}
	if reg.State() != movement.ReactingPositive {
		t.Errorf("movement: got %v, want reacting-positive", reg.State())
	}
	if reg.LastSource() != movement.SourceCommand {
		t.Errorf("source: got %v", reg.LastSource())
	}
}

func TestPoll_OverridesListen(t *testing.T) {
	reg := movement.NewRegister()
	reg.Set(movement.Listen, movement.SourcePresence)

	in := NewInterpreter(log.Discard())
	in.AddSource("host", &queue{lines: []string{"set_state:IDLE"}})
	in.Poll(reg)

	if reg.State() != movement.Idle {
		t.Errorf("got %v, want idle", reg.State())
	}
}

func TestPoll_UnknownLinesIgnored(t *testing.T) {
	reg := movement.NewRegister()
	reg.Set(movement.ReactingNeutral, movement.SourceCommand)
	writes := reg.Writes()

	in := NewInterpreter(log.Discard())
	in.AddSource("host", &queue{lines: []string{"set_state:FOO", "hello", "", "set_state:LISTEN"}})

	results := in.Poll(reg)
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for _, r := range results {
		if r.Accepted {
			t.Errorf("line %q should be ignored", r.Line)
		}
	}
	if reg.State() != movement.ReactingNeutral || reg.Writes() != writes {
		t.Errorf("register changed: %v (%d writes)", reg.State(), reg.Writes())
	}
	if in.Ignored() != 4 || in.Accepted() != 0 {
		t.Errorf("counters: accepted=%d ignored=%d", in.Accepted(), in.Ignored())
	}
}

func TestPoll_LastWriterWinsInArrivalOrder(t *testing.T) {
	reg := movement.NewRegister()
	host := &queue{lines: []string{"set_state:REACTING_NEGATIVE", "set_state:REACTING_NEUTRAL"}}
	dash := &queue{lines: []string{"set_state:REACTING_POSITIVE"}}

	in := NewInterpreter(log.Discard())
	in.AddSource("host", host)
	in.AddSource("dashboard", dash)
	results := in.Poll(reg)

	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[2].Source != "dashboard" {
		t.Errorf("dashboard should drain after host, got %q last", results[2].Source)
	}
	if reg.State() != movement.ReactingPositive {
		t.Errorf("got %v, want reacting-positive", reg.State())
	}
}

func TestPoll_StripsLineTerminators(t *testing.T) {
	reg := movement.NewRegister()
	in := NewInterpreter(log.Discard())
	in.AddSource("host", &queue{lines: []string{"set_state:REACTING_NEGATIVE\r\n"}})
	in.Poll(reg)

	if reg.State() != movement.ReactingNegative {
		t.Errorf("got %v", reg.State())
	}
}

func TestPoll_BoundedPerSource(t *testing.T) {
	q := &queue{}
	for i := 0; i < MaxLinesPerPoll+10; i++ {
		q.lines = append(q.lines, "noise")
	}

	in := NewInterpreter(log.Discard())
	in.AddSource("host", q)

	if got := len(in.Poll(nil)); got != MaxLinesPerPoll {
		t.Errorf("first poll took %d lines, want %d", got, MaxLinesPerPoll)
	}
	if got := len(in.Poll(nil)); got != 10 {
		t.Errorf("second poll took %d lines, want 10", got)
	}
}

func TestPoll_EmptySourceNoResults(t *testing.T) {
	in := NewInterpreter(log.Discard())
	in.AddSource("host", &queue{})
	in.AddSource("nil", nil)

	if results := in.Poll(movement.NewRegister()); len(results) != 0 {
		t.Errorf("got %d results", len(results))
	}
}
