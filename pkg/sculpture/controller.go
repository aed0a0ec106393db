// Package sculpture runs the interaction and animation loop.
//
// One goroutine owns all core state. Each tick applies host commands, then
// samples presence, then animates every leaf with whatever movement state
// resulted, so a change made earlier in a tick is visible to the later
// steps of the same tick.
package sculpture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-sculpture/pkg/animation"
	"github.com/teslashibe/go-sculpture/pkg/command"
	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/presence"
)

// ErrMissingPart is returned by New when a required component is nil.
var ErrMissingPart = errors.New("sculpture: interpreter, detector and engine are required")

// MaxEvents is how many recent transitions the controller keeps.
const MaxEvents = 100

// EventWriter receives outbound event lines.
type EventWriter interface {
	WriteLine(line string) error
}

// Config controls the loop timing.
type Config struct {
	// TickInterval is the animation period. Zero runs the loop as fast as
	// it can go.
	TickInterval time.Duration `yaml:"tick_interval"`

	// HeartbeatTicks logs a status line every N ticks; zero disables it.
	HeartbeatTicks int `yaml:"heartbeat_ticks"`
}

// DefaultConfig returns a 50Hz loop with a heartbeat every five seconds.
func DefaultConfig() Config {
	return Config{TickInterval: 20 * time.Millisecond, HeartbeatTicks: 250}
}

// Parts are the components the controller drives.
type Parts struct {
	Interpreter *command.Interpreter
	Detector    *presence.Detector
	Engine      *animation.Engine
	Register    *movement.Register
	Host        EventWriter
	Logger      *slog.Logger
}

// Controller sequences the interpreter, detector and engine.
type Controller struct {
	cfg       Config
	interp    *command.Interpreter
	detector  *presence.Detector
	engine    *animation.Engine
	reg       *movement.Register
	host      EventWriter
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time

	ticks     uint64
	session   *Session
	hostErrs  uint64
	lastStart time.Time

	mu     sync.RWMutex
	snap   Snapshot
	events []Event
}

// New wires the parts together. A nil Register gets a fresh one; a nil Host
// discards events.
func New(cfg Config, p Parts) (*Controller, error) {
	if p.Interpreter == nil || p.Detector == nil || p.Engine == nil {
		return nil, ErrMissingPart
	}
	if p.Register == nil {
		p.Register = movement.NewRegister()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		interp:   p.Interpreter,
		detector: p.Detector,
		engine:   p.Engine,
		reg:      p.Register,
		host:     p.Host,
		logger:   p.Logger,
		now:      time.Now,
	}, nil
}

// Observe adds an observer. Call it before Run.
func (c *Controller) Observe(o Observer) {
	if o != nil {
		c.observers = append(c.observers, o)
	}
}

// Register returns the movement register. Only the loop goroutine may
// write to it.
func (c *Controller) Register() *movement.Register {
	return c.reg
}

// Tick runs one control cycle at now and returns the resulting snapshot.
// It must only be called from the loop goroutine.
func (c *Controller) Tick(ctx context.Context, now time.Time) Snapshot {
	started := time.Now()

	for _, res := range c.interp.Poll(c.reg) {
		for _, o := range c.observers {
			o.OnCommand(res)
		}
	}

	tr, sampled := c.detector.Sample(ctx, now, c.reg)
	if sampled && tr.Fired() {
		c.transition(tr, now)
	}

	outputs := c.engine.Tick(c.reg.State())
	c.ticks++

	last := c.detector.Last()
	snap := Snapshot{
		Tick:             c.ticks,
		At:               now,
		Presence:         c.detector.State(),
		Movement:         c.reg.State(),
		Source:           c.reg.LastSource().String(),
		ApproachCm:       distance(last.Approach),
		InteractionCm:    distance(last.Interaction),
		Sampled:          sampled,
		Outputs:          outputs,
		CommandsAccepted: c.interp.Accepted(),
		CommandsIgnored:  c.interp.Ignored(),
		WriteErrors:      c.engine.WriteErrors(),
		TickDuration:     time.Since(started),
	}
	if c.session != nil {
		s := *c.session
		snap.Session = &s
	}
	if c.detector.Samples() == 0 {
		snap.ApproachCm, snap.InteractionCm = nil, nil
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	for _, o := range c.observers {
		o.OnTick(snap)
	}

	if n := c.cfg.HeartbeatTicks; n > 0 && c.ticks%uint64(n) == 0 {
		c.heartbeat(snap)
	}
	return snap
}

// transition announces a presence change to the host and tracks sessions.
func (c *Controller) transition(tr presence.Transition, now time.Time) {
	switch tr.Event {
	case presence.EventApproachStart:
		c.session = &Session{ID: uuid.NewString(), Started: now}
	case presence.EventInteractionStart:
		if c.session != nil {
			c.session.Interactions++
		}
	}

	ev := Event{Transition: tr, Movement: c.reg.State()}
	if c.session != nil {
		if tr.Event == presence.EventApproachEnd {
			c.session.Ended = now
		}
		ev.Session = *c.session
	}
	if tr.Event == presence.EventApproachEnd {
		if c.session != nil {
			c.logger.Info("visit ended",
				"session", c.session.ID,
				"duration", c.session.Duration(now).String(),
				"interactions", c.session.Interactions)
		}
		c.session = nil
	}

	if c.host != nil {
		if err := c.host.WriteLine(tr.Event.Line()); err != nil {
			c.hostErrs++
			c.logger.Warn("host event write failed", "event", tr.Event.Name(), "error", err, "total_errors", c.hostErrs)
		}
	}

	c.mu.Lock()
	c.events = append(c.events, ev)
	if len(c.events) > MaxEvents {
		c.events = c.events[len(c.events)-MaxEvents:]
	}
	c.mu.Unlock()

	for _, o := range c.observers {
		o.OnTransition(ev)
	}
}

func (c *Controller) heartbeat(s Snapshot) {
	attrs := []any{
		"ticks", s.Tick,
		"presence", s.Presence.String(),
		"movement", s.Movement.String(),
		"commands", s.CommandsAccepted,
		"write_errors", s.WriteErrors,
	}
	if !c.lastStart.IsZero() && s.Tick > 0 {
		attrs = append(attrs, "uptime", time.Since(c.lastStart).Round(time.Second).String())
	}
	c.logger.Info("heartbeat", attrs...)
}

// Run ticks until ctx is cancelled. The leaves are left where the last tick
// put them.
func (c *Controller) Run(ctx context.Context) error {
	c.lastStart = time.Now()
	c.logger.Info("control loop started", "interval", c.cfg.TickInterval.String())
	defer func() {
		c.logger.Info("control loop stopped", "ticks", c.ticks)
	}()

	if c.cfg.TickInterval <= 0 {
		for ctx.Err() == nil {
			c.Tick(ctx, c.now())
		}
		return nil
	}

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.Tick(ctx, c.now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick(ctx, c.now())
		}
	}
}

// Snapshot returns the state after the most recent tick.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Events returns up to n of the most recent transitions, oldest first.
// n <= 0 returns all retained events.
func (c *Controller) Events(n int) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.events
	if n > 0 && len(src) > n {
		src = src[len(src)-n:]
	}
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Profiles returns the engine's profile table.
func (c *Controller) Profiles() animation.ProfileTable {
	return c.engine.Profiles()
}
