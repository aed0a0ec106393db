package hostlink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 2 * time.Second

// WebSocket is a Link to an analysis host reachable over a websocket.
// Each inbound text frame may carry one or more newline-separated lines;
// each outbound line is sent as its own frame.
type WebSocket struct {
	conn   *websocket.Conn
	q      *lineQueue
	logger *slog.Logger

	wmu    sync.Mutex
	closed atomic.Bool
	done   chan struct{}
}

// DialWebSocket connects to url.
func DialWebSocket(ctx context.Context, url string, logger *slog.Logger) (*WebSocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("hostlink: dial %s: %w", url, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("host link connected", "url", url)

	ws := &WebSocket{
		conn:   conn,
		q:      newLineQueue(DefaultQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go ws.readLoop()
	return ws, nil
}

func (w *WebSocket) readLoop() {
	defer close(w.done)
	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			if !w.closed.Load() {
				w.logger.Error("host link read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		w.q.pushText(string(data))
	}
}

// TryReadLine implements Link.
func (w *WebSocket) TryReadLine() (string, bool) {
	return w.q.TryReadLine()
}

// WriteLine implements Link.
func (w *WebSocket) WriteLine(line string) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(line+"\n")); err != nil {
		return fmt.Errorf("hostlink: websocket write: %w", err)
	}
	return nil
}

// Close sends a close frame and tears down the connection.
func (w *WebSocket) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.wmu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
	w.wmu.Unlock()
	return w.conn.Close()
}

// Done is closed when the reader stops.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}
