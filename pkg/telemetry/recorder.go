// Package telemetry records presence samples and visitor sessions to CSV
// and keeps rolling distance statistics for the dashboard.
package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/teslashibe/go-sculpture/pkg/command"
	"github.com/teslashibe/go-sculpture/pkg/presence"
	"github.com/teslashibe/go-sculpture/pkg/sculpture"
)

// DefaultWindow is the number of samples kept for rolling statistics; at
// the default 500ms sampling interval that is one minute.
const DefaultWindow = 120

// SampleRecord is one presence sample.
type SampleRecord struct {
	Time          string `csv:"time"`
	Tick          uint64 `csv:"tick"`
	Presence      string `csv:"presence"`
	Movement      string `csv:"movement"`
	ApproachCm    string `csv:"approach_cm"`
	InteractionCm string `csv:"interaction_cm"`
}

// SessionRecord is one completed visit.
type SessionRecord struct {
	ID           string  `csv:"session_id"`
	Started      string  `csv:"started"`
	Ended        string  `csv:"ended"`
	DurationSec  float64 `csv:"duration_s"`
	Interactions int     `csv:"interactions"`
}

// Summary is what the dashboard shows.
type Summary struct {
	Samples     uint64 `json:"samples"`
	Sessions    uint64 `json:"sessions"`
	Approach    Stats  `json:"approach"`
	Interaction Stats  `json:"interaction"`
}

// Recorder implements sculpture.Observer. With an empty directory it keeps
// statistics only and writes no files.
type Recorder struct {
	dir    string
	logger *slog.Logger

	samplesFile  *os.File
	sessionsFile *os.File

	samplesHeaderWritten  bool
	sessionsHeaderWritten bool
	writeErrs             uint64

	mu          sync.Mutex
	approach    *Window
	interaction *Window
	samples     uint64
	sessions    uint64
}

// New creates the recorder and, if dir is set, samples.csv and sessions.csv
// inside it.
func New(dir string, window int, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		dir:         dir,
		logger:      logger,
		approach:    NewWindow(window),
		interaction: NewWindow(window),
	}
	if dir == "" {
		return r, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "samples.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating samples.csv: %w", err)
	}
	r.samplesFile = f

	f, err = os.Create(filepath.Join(dir, "sessions.csv"))
	if err != nil {
		r.samplesFile.Close()
		return nil, fmt.Errorf("creating sessions.csv: %w", err)
	}
	r.sessionsFile = f

	logger.Info("telemetry recording", "dir", dir)
	return r, nil
}

// WriteSample appends one sample to samples.csv.
func (r *Recorder) WriteSample(rec SampleRecord) error {
	if r.samplesFile == nil {
		return nil
	}
	records := []SampleRecord{rec}

	if !r.samplesHeaderWritten {
		if err := gocsv.Marshal(records, r.samplesFile); err != nil {
			return fmt.Errorf("writing sample: %w", err)
		}
		r.samplesHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, r.samplesFile); err != nil {
		return fmt.Errorf("writing sample: %w", err)
	}
	return nil
}

// WriteSession appends one visit to sessions.csv.
func (r *Recorder) WriteSession(rec SessionRecord) error {
	if r.sessionsFile == nil {
		return nil
	}
	records := []SessionRecord{rec}

	if !r.sessionsHeaderWritten {
		if err := gocsv.Marshal(records, r.sessionsFile); err != nil {
			return fmt.Errorf("writing session: %w", err)
		}
		r.sessionsHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, r.sessionsFile); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// OnTick records sampled ticks.
func (r *Recorder) OnTick(s sculpture.Snapshot) {
	if !s.Sampled {
		return
	}

	r.mu.Lock()
	r.samples++
	if s.ApproachCm != nil {
		r.approach.Add(*s.ApproachCm)
	}
	if s.InteractionCm != nil {
		r.interaction.Add(*s.InteractionCm)
	}
	r.mu.Unlock()

	r.check(r.WriteSample(SampleRecord{
		Time:          s.At.UTC().Format(time.RFC3339Nano),
		Tick:          s.Tick,
		Presence:      s.Presence.String(),
		Movement:      s.Movement.String(),
		ApproachCm:    formatCm(s.ApproachCm),
		InteractionCm: formatCm(s.InteractionCm),
	}))
}

// OnTransition records a completed visit when the visitor leaves.
func (r *Recorder) OnTransition(ev sculpture.Event) {
	if ev.Transition.Event != presence.EventApproachEnd || ev.Session.ID == "" {
		return
	}

	r.mu.Lock()
	r.sessions++
	r.mu.Unlock()

	s := ev.Session
	r.check(r.WriteSession(SessionRecord{
		ID:           s.ID,
		Started:      s.Started.UTC().Format(time.RFC3339Nano),
		Ended:        s.Ended.UTC().Format(time.RFC3339Nano),
		DurationSec:  s.Duration(s.Ended).Seconds(),
		Interactions: s.Interactions,
	}))
}

// OnCommand is a no-op; commands are counted by metrics.
func (r *Recorder) OnCommand(command.Result) {}

// Summary returns rolling statistics. Safe for concurrent use.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		Samples:     r.samples,
		Sessions:    r.sessions,
		Approach:    r.approach.Stats(),
		Interaction: r.interaction.Stats(),
	}
}

// Close flushes and closes the CSV files.
func (r *Recorder) Close() error {
	var firstErr error
	for _, f := range []*os.File{r.samplesFile, r.sessionsFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Recorder) check(err error) {
	if err == nil {
		return
	}
	r.writeErrs++
	if r.writeErrs%100 == 1 {
		r.logger.Warn("telemetry write failed", "error", err, "total_errors", r.writeErrs)
	}
}

func formatCm(cm *float64) string {
	if cm == nil {
		return ""
	}
	return strconv.FormatFloat(*cm, 'f', 2, 64)
}
