package hostlink

import (
	"sync"
	"sync/atomic"
)

// MaxSent is how many written lines a Queue remembers.
const MaxSent = 256

// Queue is an in-process Link. Lines pushed with Push are read back by the
// control loop; the most recent MaxSent lines written by the loop are kept
// for inspection. The
// dashboard uses it to inject commands, tests use it as a fake host.
type Queue struct {
	q      *lineQueue
	closed atomic.Bool

	mu   sync.Mutex
	sent []string
}

// NewQueue returns a queue buffering up to size inbound lines.
func NewQueue(size int) *Queue {
	return &Queue{q: newLineQueue(size)}
}

// Push queues an inbound line. It reports false if the queue is full or
// closed.
func (q *Queue) Push(line string) bool {
	if q.closed.Load() {
		return false
	}
	return q.q.push(line)
}

// TryReadLine implements Link.
func (q *Queue) TryReadLine() (string, bool) {
	return q.q.TryReadLine()
}

// WriteLine implements Link.
func (q *Queue) WriteLine(line string) error {
	if q.closed.Load() {
		return ErrClosed
	}
	q.mu.Lock()
	q.sent = append(q.sent, line)
	if len(q.sent) > MaxSent {
		q.sent = q.sent[len(q.sent)-MaxSent:]
	}
	q.mu.Unlock()
	return nil
}

// Sent returns a copy of the retained written lines, oldest first.
func (q *Queue) Sent() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.sent))
	copy(out, q.sent)
	return out
}

// Close implements Link.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}
