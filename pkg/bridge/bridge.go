// Package bridge talks to the microcontroller that owns the servo driver and
// the ultrasonic sensors.
//
// The wire format is newline-delimited ASCII:
//
//	host → MCU   freq:<hz>
//	host → MCU   pwm:<channel>:<microseconds>
//	host → MCU   ping:<sensor>:<seq>
//	MCU → host   echo:<sensor>:<seq>:<microseconds>   (0 = no echo)
//
// The MCU copies seq from the ping into its echo. An echo whose seq does not
// match the ping currently waiting on that sensor is dropped.
//
// A Bridge is an animation.PulseWriter, and Sensor returns a
// sensor.EchoTimer for each named ultrasonic ranger.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-sculpture/pkg/sensor"
)

// ErrClosed is returned once the bridge has been closed or its port died.
var ErrClosed = errors.New("bridge: closed")

// DefaultEchoTimeout bounds how long a ping waits for its echo. An HC-SR04
// gives up at roughly 38ms; anything past 30ms is beyond five metres.
const DefaultEchoTimeout = 30 * time.Millisecond

// Config describes the serial connection to the microcontroller.
type Config struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	EchoTimeout time.Duration `yaml:"echo_timeout"`
}

// DefaultConfig returns the wiring used on the bench rig.
func DefaultConfig() Config {
	return Config{
		Port:        "/dev/ttyUSB0",
		Baud:        115200,
		EchoTimeout: DefaultEchoTimeout,
	}
}

// Bridge is a line-protocol client for the microcontroller.
type Bridge struct {
	rwc         io.ReadWriteCloser
	echoTimeout time.Duration
	logger      *slog.Logger

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]pendingPing
	seq     atomic.Uint32

	closed atomic.Bool
	done   chan struct{}

	pulses   atomic.Uint64
	timeouts atomic.Uint64
}

type pendingPing struct {
	seq   uint32
	reply chan int
}

// Open connects to the microcontroller over a serial port.
func Open(cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultConfig().Baud
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("bridge: open %s: %w", cfg.Port, err)
	}
	port.ResetInputBuffer()

	b := New(port, cfg.EchoTimeout, logger)
	b.logger.Info("bridge open", "port", cfg.Port, "baud", cfg.Baud)
	return b, nil
}

// New runs the bridge protocol over rwc.
func New(rwc io.ReadWriteCloser, echoTimeout time.Duration, logger *slog.Logger) *Bridge {
	if echoTimeout <= 0 {
		echoTimeout = DefaultEchoTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		rwc:         rwc,
		echoTimeout: echoTimeout,
		logger:      logger,
		pending:     make(map[string]pendingPing),
		done:        make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// WritePulse sets a servo pulse width. It does not wait for the MCU.
func (b *Bridge) WritePulse(channel, microseconds int) error {
	if err := b.send(fmt.Sprintf("pwm:%d:%d", channel, microseconds)); err != nil {
		return err
	}
	b.pulses.Add(1)
	return nil
}

// SetFrequency sets the servo driver's PWM frequency.
func (b *Bridge) SetFrequency(hz float64) error {
	if !(hz > 0) {
		return fmt.Errorf("bridge: pwm frequency %v", hz)
	}
	return b.send("freq:" + strconv.FormatFloat(hz, 'f', -1, 64))
}

// Ping triggers the named sensor and waits for its echo. An echo that does
// not arrive within the echo timeout resolves to zero.
func (b *Bridge) Ping(ctx context.Context, name string) (time.Duration, error) {
	p := pendingPing{seq: b.seq.Add(1), reply: make(chan int, 1)}

	b.mu.Lock()
	b.pending[name] = p
	b.mu.Unlock()
	defer b.clearPending(name, p.seq)

	if err := b.send(fmt.Sprintf("ping:%s:%d", name, p.seq)); err != nil {
		return 0, err
	}

	timer := time.NewTimer(b.echoTimeout)
	defer timer.Stop()

	select {
	case us := <-p.reply:
		return time.Duration(us) * time.Microsecond, nil
	case <-timer.C:
		b.timeouts.Add(1)
		return 0, nil
	case <-b.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Sensor returns an EchoTimer for one named ranger on the MCU.
func (b *Bridge) Sensor(name string) sensor.EchoTimer {
	return echoTimer{b: b, name: name}
}

// Close shuts the port. Pending pings return ErrClosed.
func (b *Bridge) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.rwc.Close()
}

// Pulses returns the number of pulse commands sent.
func (b *Bridge) Pulses() uint64 { return b.pulses.Load() }

// Timeouts returns the number of pings that never got an echo.
func (b *Bridge) Timeouts() uint64 { return b.timeouts.Load() }

func (b *Bridge) send(line string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if _, err := io.WriteString(b.rwc, line+"\n"); err != nil {
		return fmt.Errorf("bridge: write %q: %w", line, err)
	}
	return nil
}

func (b *Bridge) clearPending(name string, seq uint32) {
	b.mu.Lock()
	if b.pending[name].seq == seq {
		delete(b.pending, name)
	}
	b.mu.Unlock()
}

func (b *Bridge) readLoop() {
	defer close(b.done)

	scanner := bufio.NewScanner(b.rwc)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		e, ok := parseEcho(line)
		if !ok {
			b.logger.Debug("bridge: unrecognised line", "line", line)
			continue
		}

		b.mu.Lock()
		p, waiting := b.pending[e.sensor]
		waiting = waiting && p.seq == e.seq
		if waiting {
			delete(b.pending, e.sensor)
		}
		b.mu.Unlock()

		if !waiting {
			b.logger.Debug("bridge: late echo", "sensor", e.sensor, "seq", e.seq, "us", e.us)
			continue
		}
		p.reply <- e.us
	}
	if err := scanner.Err(); err != nil && !b.closed.Load() {
		b.logger.Error("bridge read failed", "error", err)
	}
}

type echo struct {
	sensor string
	seq    uint32
	us     int
}

// parseEcho splits "echo:<sensor>:<seq>:<us>". Negative durations are
// rejected.
func parseEcho(line string) (echo, bool) {
	rest, ok := strings.CutPrefix(line, "echo:")
	if !ok {
		return echo{}, false
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 || parts[0] == "" {
		return echo{}, false
	}
	seq, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return echo{}, false
	}
	us, err := strconv.Atoi(parts[2])
	if err != nil || us < 0 {
		return echo{}, false
	}
	return echo{sensor: parts[0], seq: uint32(seq), us: us}, true
}

type echoTimer struct {
	b    *Bridge
	name string
}

func (e echoTimer) Echo(ctx context.Context) (time.Duration, error) {
	return e.b.Ping(ctx, e.name)
}
