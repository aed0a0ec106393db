package sim

import (
	"sync"

	"github.com/teslashibe/go-sculpture/pkg/hostlink"
	"github.com/teslashibe/go-sculpture/pkg/protocol"
)

// Host plays the analysis host. Each time the visitor stops interacting it
// "analyses" the exchange by taking the next sentiment score and answers
// with the matching set_state command. Sentiment scores cycle.
type Host struct {
	*hostlink.Queue

	mu        sync.Mutex
	sentiment []float64
	next      int
	events    []string
}

// NewHost returns a host that replies with the given sentiment scores.
func NewHost(sentiment ...float64) *Host {
	return &Host{Queue: hostlink.NewQueue(hostlink.DefaultQueueSize), sentiment: sentiment}
}

// WriteLine receives an event from the sculpture.
func (h *Host) WriteLine(line string) error {
	if err := h.Queue.WriteLine(line); err != nil {
		return err
	}
	name, ok := protocol.ParseEvent(line)
	if !ok {
		return nil
	}

	h.mu.Lock()
	h.events = append(h.events, name)
	var reply string
	if name == protocol.EventInteractionEnd && len(h.sentiment) > 0 {
		reply = protocol.CommandForSentiment(h.sentiment[h.next%len(h.sentiment)])
		h.next++
	}
	h.mu.Unlock()

	if reply != "" {
		h.Push(reply)
	}
	return nil
}

// Events returns the event names received so far.
func (h *Host) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}
