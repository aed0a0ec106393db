// Package hostlink carries newline-delimited text between the sculpture and
// the analysis host.
//
// Every transport runs one reader goroutine that splits inbound data into
// lines and queues them; the control loop picks them up with the
// non-blocking TryReadLine. Writes are synchronous and serialised per link.
package hostlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Sentinel errors.
var (
	ErrClosed      = errors.New("hostlink: link closed")
	ErrUnknownKind = errors.New("hostlink: unknown transport kind")
)

// DefaultQueueSize is the number of inbound lines buffered per link.
const DefaultQueueSize = 128

// Link is a bidirectional line transport.
type Link interface {
	// TryReadLine returns the next queued inbound line without blocking.
	TryReadLine() (string, bool)

	// WriteLine sends one line; the newline is appended by the link.
	WriteLine(line string) error

	// Close releases the transport.
	Close() error
}

// Transport kinds accepted by Open.
const (
	KindSerial    = "serial"
	KindWebSocket = "websocket"
	KindMQTT      = "mqtt"
	KindStdio     = "stdio"
	KindNone      = "none"
)

// Config selects and configures a transport.
type Config struct {
	Kind string     `yaml:"kind"`
	Port string     `yaml:"port"`
	Baud int        `yaml:"baud"`
	URL  string     `yaml:"url"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// Open builds the link described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Link, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("transport", cfg.Kind)

	switch cfg.Kind {
	case KindSerial:
		s, err := OpenSerial(cfg.Port, cfg.Baud, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindWebSocket:
		ws, err := DialWebSocket(ctx, cfg.URL, logger)
		if err != nil {
			return nil, err
		}
		return ws, nil
	case KindMQTT:
		m, err := DialMQTT(cfg.MQTT, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindStdio:
		return NewStream(stdio{}, logger), nil
	case KindNone, "":
		return NewQueue(DefaultQueueSize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// lineQueue is a bounded FIFO of inbound lines. Pushing onto a full queue
// drops the line rather than stalling the reader.
type lineQueue struct {
	ch      chan string
	dropped atomic.Uint64
}

func newLineQueue(size int) *lineQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &lineQueue{ch: make(chan string, size)}
}

func (q *lineQueue) push(line string) bool {
	select {
	case q.ch <- line:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// pushText splits a chunk that may hold several lines and queues the
// non-empty ones.
func (q *lineQueue) pushText(text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			q.push(line)
		}
	}
}

func (q *lineQueue) TryReadLine() (string, bool) {
	select {
	case line := <-q.ch:
		return line, true
	default:
		return "", false
	}
}

// stdio is the process's stdin/stdout as a ReadWriteCloser.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }
