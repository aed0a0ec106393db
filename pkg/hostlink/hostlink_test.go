package hostlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// pipeRWC joins the read end of one pipe with the write end of another.
type pipeRWC struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (p *pipeRWC) Close() error {
	for _, c := range p.closers {
		c.Close()
	}
	return nil
}

func waitLine(t *testing.T, l Link) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if line, ok := l.TryReadLine(); ok {
			return line
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for line")
	return ""
}

func TestStreamReadsLines(t *testing.T) {
	hostR, hostW := io.Pipe()
	s := NewStream(&pipeRWC{Reader: hostR, Writer: io.Discard, closers: []io.Closer{hostR}}, nil)
	defer s.Close()

	go func() {
		io.WriteString(hostW, "set_state:IDLE\r\nset_state:REACTING_NEGATIVE\n\n")
	}()

	if got := waitLine(t, s); got != "set_state:IDLE" {
		t.Errorf("first line = %q", got)
	}
	if got := waitLine(t, s); got != "set_state:REACTING_NEGATIVE" {
		t.Errorf("second line = %q", got)
	}
	if _, ok := s.TryReadLine(); ok {
		t.Error("empty line should not be queued")
	}
}

func TestStreamWriteLine(t *testing.T) {
	outR, outW := io.Pipe()
	s := NewStream(&pipeRWC{Reader: strings.NewReader(""), Writer: outW, closers: []io.Closer{outW}}, nil)

	got := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(outR).ReadString('\n')
		got <- line
	}()

	if err := s.WriteLine("event:user_approach_start"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	select {
	case line := <-got:
		if line != "event:user_approach_start\n" {
			t.Errorf("wrote %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	s.Close()
	if err := s.WriteLine("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close = %v, want ErrClosed", err)
	}
}

func TestStreamDoneOnEOF(t *testing.T) {
	s := NewStream(&pipeRWC{Reader: strings.NewReader("a\n"), Writer: io.Discard}, nil)
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop at EOF")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil at EOF", err)
	}
	if line, ok := s.TryReadLine(); !ok || line != "a" {
		t.Errorf("TryReadLine = %q, %v", line, ok)
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2)
	if !q.Push("a") || !q.Push("b") {
		t.Fatal("push into empty queue failed")
	}
	if q.Push("c") {
		t.Error("push into full queue should fail")
	}
	if q.q.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", q.q.dropped.Load())
	}

	line, _ := q.TryReadLine()
	if line != "a" {
		t.Errorf("FIFO order broken: got %q", line)
	}
}

func TestQueueSentIsBounded(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < MaxSent+10; i++ {
		q.WriteLine(fmt.Sprintf("event:%d", i))
	}

	sent := q.Sent()
	if len(sent) != MaxSent {
		t.Fatalf("retained %d lines, want %d", len(sent), MaxSent)
	}
	if sent[0] != "event:10" || sent[MaxSent-1] != fmt.Sprintf("event:%d", MaxSent+9) {
		t.Errorf("window = %q .. %q", sent[0], sent[MaxSent-1])
	}
}

func TestQueueSent(t *testing.T) {
	q := NewQueue(4)
	q.WriteLine("event:user_interaction_start")
	q.WriteLine("event:user_interaction_end")

	sent := q.Sent()
	if len(sent) != 2 || sent[1] != "event:user_interaction_end" {
		t.Errorf("Sent() = %v", sent)
	}

	q.Close()
	if q.Push("x") {
		t.Error("push after close should fail")
	}
	if err := q.WriteLine("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close = %v", err)
	}
}

func TestPushTextSplitsFrames(t *testing.T) {
	q := newLineQueue(8)
	q.pushText("set_state:IDLE\r\n\nset_state:REACTING_POSITIVE")

	var got []string
	for {
		line, ok := q.TryReadLine()
		if !ok {
			break
		}
		got = append(got, line)
	}
	if len(got) != 2 || got[0] != "set_state:IDLE" || got[1] != "set_state:REACTING_POSITIVE" {
		t.Errorf("got %v", got)
	}
}

func TestMQTTTopics(t *testing.T) {
	tests := []struct {
		prefix  string
		command string
		event   string
	}{
		{"", "sculpture/command", "sculpture/event"},
		{"lab/leaf", "lab/leaf/command", "lab/leaf/event"},
		{"lab/", "lab/command", "lab/event"},
	}
	for _, tt := range tests {
		cfg := MQTTConfig{Prefix: tt.prefix}
		if got := cfg.CommandTopic(); got != tt.command {
			t.Errorf("CommandTopic(%q) = %q, want %q", tt.prefix, got, tt.command)
		}
		if got := cfg.EventTopic(); got != tt.event {
			t.Errorf("EventTopic(%q) = %q, want %q", tt.prefix, got, tt.event)
		}
	}
}

func TestDialMQTTRequiresBroker(t *testing.T) {
	if _, err := DialMQTT(MQTTConfig{}, nil); err == nil {
		t.Error("expected error without broker")
	}
}

func TestOpenKinds(t *testing.T) {
	l, err := Open(context.Background(), Config{Kind: KindNone}, nil)
	if err != nil {
		t.Fatalf("Open(none): %v", err)
	}
	if _, ok := l.(*Queue); !ok {
		t.Errorf("Open(none) = %T, want *Queue", l)
	}

	_, err = Open(context.Background(), Config{Kind: "carrier-pigeon"}, nil)
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Open(unknown) = %v, want ErrUnknownKind", err)
	}
}

func TestWebSocketLink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	fromSculpture := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("set_state:REACTING_POSITIVE\nset_state:IDLE\n"))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fromSculpture <- string(data)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, err := DialWebSocket(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer ws.Close()

	if got := waitLine(t, ws); got != "set_state:REACTING_POSITIVE" {
		t.Errorf("first line = %q", got)
	}
	if got := waitLine(t, ws); got != "set_state:IDLE" {
		t.Errorf("second line = %q", got)
	}

	if err := ws.WriteLine("event:user_approach_end"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	select {
	case got := <-fromSculpture:
		if got != "event:user_approach_end\n" {
			t.Errorf("server received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the event")
	}
}
