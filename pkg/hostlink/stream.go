package hostlink

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

// DefaultBaud matches the microcontroller's Serial.begin(9600).
const DefaultBaud = 9600

// Stream is a Link over any byte stream: a serial port, a pipe, stdio.
type Stream struct {
	rwc    io.ReadWriteCloser
	q      *lineQueue
	logger *slog.Logger

	wmu    sync.Mutex
	closed atomic.Bool
	done   chan struct{}
	err    error
}

// NewStream starts reading lines from rwc.
func NewStream(rwc io.ReadWriteCloser, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stream{
		rwc:    rwc,
		q:      newLineQueue(DefaultQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// OpenSerial opens a serial port and wraps it as a Stream.
func OpenSerial(portName string, baud int, logger *slog.Logger) (*Stream, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("hostlink: open serial %s: %w", portName, err)
	}
	// Drop whatever the host sent before we were listening.
	_ = port.ResetInputBuffer()

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("host link open", "port", portName, "baud", baud)
	return NewStream(port, logger), nil
}

func (s *Stream) readLoop() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.rwc)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			if !s.q.push(trimCR(line)) {
				s.logger.Warn("host link queue full, dropping line")
			}
		}
	}
	s.err = scanner.Err()
	if s.err != nil && !s.closed.Load() {
		s.logger.Error("host link read failed", "error", s.err)
	}
}

// TryReadLine implements Link.
func (s *Stream) TryReadLine() (string, bool) {
	return s.q.TryReadLine()
}

// WriteLine implements Link.
func (s *Stream) WriteLine(line string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := io.WriteString(s.rwc, line+"\n"); err != nil {
		return fmt.Errorf("hostlink: write: %w", err)
	}
	return nil
}

// Close implements Link.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rwc.Close()
}

// Done is closed when the reader stops.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the reader's terminal error once Done is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

func trimCR(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
