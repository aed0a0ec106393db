package sim

import (
	"sync"
	"time"
)

// PulseCall records a WritePulse invocation for verification.
type PulseCall struct {
	Channel      int
	Microseconds int
	Time         time.Time
}

// Recorder implements animation.PulseWriter by remembering every write.
type Recorder struct {
	// WriteFunc, if set, decides the error returned for a write. The call is
	// recorded either way.
	WriteFunc func(channel, microseconds int) error

	mu    sync.Mutex
	calls []PulseCall
	last  map[int]int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{last: make(map[int]int)}
}

// WritePulse records the call.
func (r *Recorder) WritePulse(channel, microseconds int) error {
	r.mu.Lock()
	r.calls = append(r.calls, PulseCall{Channel: channel, Microseconds: microseconds, Time: time.Now()})
	r.last[channel] = microseconds
	fn := r.WriteFunc
	r.mu.Unlock()

	if fn != nil {
		return fn(channel, microseconds)
	}
	return nil
}

// Calls returns a copy of all recorded writes.
func (r *Recorder) Calls() []PulseCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PulseCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent pulse written to channel.
func (r *Recorder) Last(channel int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	us, ok := r.last[channel]
	return us, ok
}

// Channel returns every pulse written to one channel, in order.
func (r *Recorder) Channel(channel int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, c := range r.calls {
		if c.Channel == channel {
			out = append(out, c.Microseconds)
		}
	}
	return out
}

// Reset clears recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.last = make(map[int]int)
	r.mu.Unlock()
}
