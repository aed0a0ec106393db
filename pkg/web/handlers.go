package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-sculpture/pkg/command"
	"github.com/teslashibe/go-sculpture/pkg/hub"
	"github.com/teslashibe/go-sculpture/pkg/protocol"
	"github.com/teslashibe/go-sculpture/pkg/sculpture"
)

const defaultEventLimit = 50

// handleStatus returns the latest controller snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.deps.Status.Snapshot())
}

// handleEvents returns recent transitions, oldest first.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultEventLimit)
	events := s.deps.Status.Events(limit)

	out := make([]protocol.EventData, len(events))
	for i, ev := range events {
		out[i] = ev.Data()
	}
	return c.JSON(out)
}

// handleProfiles returns the motion profile table keyed by state name.
func (s *Server) handleProfiles(c *fiber.Ctx) error {
	return c.JSON(s.deps.Status.Profiles())
}

// handleTelemetry returns rolling sensor statistics.
func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	if s.deps.Telemetry == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "telemetry not enabled",
		})
	}
	return c.JSON(s.deps.Telemetry.Summary())
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse reports whether the command is part of the vocabulary.
// Accepted commands take effect on the next tick.
type CommandResponse struct {
	Command  string `json:"command"`
	Accepted bool   `json:"accepted"`
	Movement string `json:"movement,omitempty"`
}

// handleCommand queues a command line for the control loop. Lines outside
// the vocabulary are still queued, so they are counted the same way as
// unknown host lines, but the response says they will be ignored.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	if s.deps.Commands == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "command injection not configured",
		})
	}

	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	line := protocol.TrimLine(strings.TrimSpace(req.Command))
	if line == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "command is required",
		})
	}

	if !s.deps.Commands.Push(line) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "command queue full",
		})
	}

	resp := CommandResponse{Command: line}
	if st, ok := protocol.ParseCommand(line); ok {
		resp.Accepted = true
		resp.Movement = st.String()
	}
	s.logger.Debug("dashboard command", "line", line, "accepted", resp.Accepted)
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// handleStatusWS streams snapshots, starting with the current one.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial [][]byte
	if msg, err := protocol.NewMessage(protocol.TypeStatus, s.deps.Status.Snapshot()); err == nil {
		if b, err := msg.Bytes(); err == nil {
			initial = append(initial, b)
		}
	}
	hub.NewClient(s.statusHub, c).Serve(initial...)
}

// handleEventsWS streams transitions and applied commands.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.eventHub, c).Serve()
}

// OnTransition mirrors a transition to event subscribers.
func (s *Server) OnTransition(ev sculpture.Event) {
	msg, err := protocol.NewEventMessage(ev.Data())
	if err != nil {
		s.logger.Warn("encode event", "error", err)
		return
	}
	s.eventHub.Publish(msg)
}

// OnCommand mirrors applied commands to event subscribers.
func (s *Server) OnCommand(res command.Result) {
	if !res.Accepted {
		return
	}
	msg, err := protocol.NewCommandMessage(protocol.CommandData{
		Line:     res.Line,
		Source:   res.Source,
		Movement: res.State.String(),
	})
	if err != nil {
		s.logger.Warn("encode command", "error", err)
		return
	}
	s.eventHub.Publish(msg)
}

// OnTick pushes a status frame every StatusEvery ticks. Nothing is encoded
// while nobody is watching.
func (s *Server) OnTick(snap sculpture.Snapshot) {
	n := s.ticks.Add(1)
	if n%uint64(s.cfg.StatusEvery) != 0 || s.statusHub.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewMessage(protocol.TypeStatus, snap)
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		return
	}
	s.statusHub.Publish(msg)
}
