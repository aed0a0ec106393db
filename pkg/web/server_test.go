package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-sculpture/internal/log"
	"github.com/teslashibe/go-sculpture/pkg/animation"
	"github.com/teslashibe/go-sculpture/pkg/command"
	"github.com/teslashibe/go-sculpture/pkg/hostlink"
	"github.com/teslashibe/go-sculpture/pkg/hub"
	"github.com/teslashibe/go-sculpture/pkg/metrics"
	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/presence"
	"github.com/teslashibe/go-sculpture/pkg/protocol"
	"github.com/teslashibe/go-sculpture/pkg/sculpture"
	"github.com/teslashibe/go-sculpture/pkg/telemetry"
)

type fakeStatus struct {
	snap   sculpture.Snapshot
	events []sculpture.Event
}

func (f *fakeStatus) Snapshot() sculpture.Snapshot { return f.snap }

func (f *fakeStatus) Events(n int) []sculpture.Event {
	if n > 0 && len(f.events) > n {
		return f.events[len(f.events)-n:]
	}
	return f.events
}

func (f *fakeStatus) Profiles() animation.ProfileTable { return animation.DefaultProfiles() }

type fakeTelemetry struct{}

func (fakeTelemetry) Summary() telemetry.Summary {
	return telemetry.Summary{Samples: 7, Approach: telemetry.Stats{Count: 7, Mean: 42}}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Status == nil {
		deps.Status = &fakeStatus{
			snap:   sculpture.Snapshot{Tick: 9, Presence: presence.Approaching, Movement: movement.Listen},
			events: []sculpture.Event{
				{Transition: presence.Transition{Event: presence.EventApproachStart, From: presence.NoUser, To: presence.Approaching}, Movement: movement.Listen},
				{Transition: presence.Transition{Event: presence.EventInteractionStart, From: presence.Approaching, To: presence.Interacting}, Movement: movement.Listen},
			},
		}
	}
	deps.Logger = log.Discard()
	return NewServer(Config{Addr: ":0"}, deps)
}

func do(t *testing.T, s *Server, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, Deps{})
	code, body := do(t, s, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, `"presence":"approaching"`) || !strings.Contains(body, `"movement":"listening"`) {
		t.Errorf("body = %s", body)
	}
}

func TestEvents(t *testing.T) {
	s := newTestServer(t, Deps{})
	code, body := do(t, s, http.MethodGet, "/api/events?limit=1", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var events []protocol.EventData
	if err := json.Unmarshal([]byte(body), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].Line != "event:user_interaction_start" || events[0].To != "interacting" {
		t.Errorf("events = %+v", events)
	}
}

func TestProfiles(t *testing.T) {
	s := newTestServer(t, Deps{})
	_, body := do(t, s, http.MethodGet, "/api/profiles", "")
	var table map[string]animation.Profile
	if err := json.Unmarshal([]byte(body), &table); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if table["listening"].SpeedFactor != 0.5 || len(table) != len(movement.All) {
		t.Errorf("profiles = %+v", table)
	}
}

func TestTelemetry(t *testing.T) {
	s := newTestServer(t, Deps{})
	if code, _ := do(t, s, http.MethodGet, "/api/telemetry", ""); code != http.StatusNotFound {
		t.Errorf("without telemetry: %d, want 404", code)
	}

	s = newTestServer(t, Deps{Telemetry: fakeTelemetry{}})
	code, body := do(t, s, http.MethodGet, "/api/telemetry", "")
	if code != http.StatusOK || !strings.Contains(body, `"mean_cm":42`) {
		t.Errorf("telemetry = %d %s", code, body)
	}
}

func TestCommandAccepted(t *testing.T) {
	q := hostlink.NewQueue(4)
	s := newTestServer(t, Deps{Commands: q})

	code, body := do(t, s, http.MethodPost, "/api/command", `{"command":"set_state:REACTING_POSITIVE"}`)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d %s", code, body)
	}
	var resp CommandResponse
	json.Unmarshal([]byte(body), &resp)
	if !resp.Accepted || resp.Movement != "reacting-positive" {
		t.Errorf("resp = %+v", resp)
	}
	if line, ok := q.TryReadLine(); !ok || line != "set_state:REACTING_POSITIVE" {
		t.Errorf("queued %q, %v", line, ok)
	}
}

// An unknown command is queued like any host line and ignored by the loop.
func TestCommandUnknownReportsNotAccepted(t *testing.T) {
	q := hostlink.NewQueue(4)
	s := newTestServer(t, Deps{Commands: q})

	code, body := do(t, s, http.MethodPost, "/api/command", `{"command":"set_state:LISTEN"}`)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d", code)
	}
	var resp CommandResponse
	json.Unmarshal([]byte(body), &resp)
	if resp.Accepted {
		t.Errorf("LISTEN must not be accepted: %+v", resp)
	}

	reg := movement.NewRegister()
	in := command.NewInterpreter(log.Discard())
	in.AddSource("dashboard", q)
	in.Poll(reg)
	if reg.State() != movement.Idle || in.Ignored() != 1 {
		t.Errorf("state=%v ignored=%d", reg.State(), in.Ignored())
	}
}

func TestCommandErrors(t *testing.T) {
	s := newTestServer(t, Deps{})
	if code, _ := do(t, s, http.MethodPost, "/api/command", `{"command":"set_state:IDLE"}`); code != http.StatusServiceUnavailable {
		t.Errorf("no sink: %d, want 503", code)
	}

	q := hostlink.NewQueue(1)
	s = newTestServer(t, Deps{Commands: q})
	if code, _ := do(t, s, http.MethodPost, "/api/command", `{"command":""}`); code != http.StatusBadRequest {
		t.Errorf("empty command: %d, want 400", code)
	}
	if code, _ := do(t, s, http.MethodPost, "/api/command", `not json`); code != http.StatusBadRequest {
		t.Errorf("bad body: %d, want 400", code)
	}
	do(t, s, http.MethodPost, "/api/command", `{"command":"set_state:IDLE"}`)
	if code, _ := do(t, s, http.MethodPost, "/api/command", `{"command":"set_state:IDLE"}`); code != http.StatusServiceUnavailable {
		t.Errorf("full queue: %d, want 503", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	c := metrics.New()
	c.OnTick(sculpture.Snapshot{})
	s := newTestServer(t, Deps{Metrics: metrics.Handler(metrics.Registry(c))})

	code, body := do(t, s, http.MethodGet, "/metrics", "")
	if code != http.StatusOK || !strings.Contains(body, "sculpture_ticks_total 1") {
		t.Errorf("metrics = %d\n%s", code, body)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, Deps{})
	if code, _ := do(t, s, http.MethodGet, "/ws/status", ""); code != http.StatusUpgradeRequired {
		t.Errorf("plain GET /ws/status = %d, want 426", code)
	}
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, Deps{})
	code, body := do(t, s, http.MethodGet, "/", "")
	if code != http.StatusOK || !strings.Contains(body, "/ws/status") {
		t.Errorf("index = %d", code)
	}
}

type recordingConn struct {
	mu     sync.Mutex
	frames []string
	closed chan struct{}
	once   sync.Once
}

func (r *recordingConn) SetReadLimit(int64) {}
func (r *recordingConn) SetReadDeadline(time.Time) error { return nil }
func (r *recordingConn) SetWriteDeadline(time.Time) error { return nil }
func (r *recordingConn) SetPongHandler(func(string) error) {}
func (r *recordingConn) ReadMessage() (int, []byte, error) { <-r.closed; return 0, nil, io.EOF }
func (r *recordingConn) Close() error { r.once.Do(func() { close(r.closed) }); return nil }
func (r *recordingConn) WriteMessage(t int, data []byte) error {
	if t != websocket.TextMessage {
		return nil
	}
	r.mu.Lock()
	r.frames = append(r.frames, string(data))
	r.mu.Unlock()
	return nil
}

func (r *recordingConn) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func TestObserverMirrorsToEventHub(t *testing.T) {
	s := newTestServer(t, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.EventHub().Run(ctx)

	conn := &recordingConn{closed: make(chan struct{})}
	go hub.NewClient(s.EventHub(), conn).Serve()
	deadline := time.Now().Add(2 * time.Second)
	for s.EventHub().ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	s.OnCommand(command.Result{Source: "host", Line: "set_state:IDLE", Accepted: false})
	s.OnCommand(command.Result{Source: "host", Line: "set_state:REACTING_NEUTRAL", Accepted: true, State: movement.ReactingNeutral})
	s.OnTransition(sculpture.Event{
		Transition: presence.Transition{Event: presence.EventApproachEnd, From: presence.Approaching, To: presence.NoUser},
		Session:    sculpture.Session{ID: "s-1"},
	})

	for len(conn.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	frames := conn.all()
	if len(frames) != 2 {
		t.Fatalf("frames = %v", frames)
	}
	if !strings.Contains(frames[0], `"type":"command"`) || !strings.Contains(frames[0], "REACTING_NEUTRAL") {
		t.Errorf("command frame = %s", frames[0])
	}
	if !strings.Contains(frames[1], `"line":"event:user_approach_end"`) || !strings.Contains(frames[1], `"session_id":"s-1"`) {
		t.Errorf("event frame = %s", frames[1])
	}
}
