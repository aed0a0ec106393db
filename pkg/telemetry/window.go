package telemetry

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the readings currently in a window.
type Stats struct {
	Count  int     `json:"count" csv:"count"`
	Mean   float64 `json:"mean_cm" csv:"mean_cm"`
	StdDev float64 `json:"stddev_cm" csv:"stddev_cm"`
	Min    float64 `json:"min_cm" csv:"min_cm"`
	Max    float64 `json:"max_cm" csv:"max_cm"`
}

// Window keeps the last N in-range distance readings. Not safe for
// concurrent use.
type Window struct {
	buf  []float64
	next int
	full bool
}

// NewWindow returns a window holding up to size readings.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{buf: make([]float64, size)}
}

// Add records a reading, evicting the oldest once full.
func (w *Window) Add(cm float64) {
	w.buf[w.next] = cm
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

// Len returns the number of readings held.
func (w *Window) Len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// Values returns the held readings, oldest first.
func (w *Window) Values() []float64 {
	if !w.full {
		return append([]float64(nil), w.buf[:w.next]...)
	}
	out := make([]float64, 0, len(w.buf))
	out = append(out, w.buf[w.next:]...)
	return append(out, w.buf[:w.next]...)
}

// Stats computes mean, sample standard deviation and extremes.
func (w *Window) Stats() Stats {
	vals := w.Values()
	if len(vals) == 0 {
		return Stats{}
	}
	s := Stats{
		Count: len(vals),
		Min:   floats.Min(vals),
		Max:   floats.Max(vals),
	}
	if len(vals) == 1 {
		s.Mean = vals[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	return s
}
