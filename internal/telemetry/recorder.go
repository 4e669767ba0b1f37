package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/mini-factory/internal/engine"
)

// Recorder feeds tick timings and periodic snapshots to the metrics
// registry and the CSV output. It is driven from the engine goroutine.
type Recorder struct {
	Metrics *Metrics
	CSV     *CSVWriter
	window  Window

	mu   sync.Mutex
	last WindowStats
}

// NewRecorder creates a recorder. csv may be nil.
func NewRecorder(m *Metrics, csv *CSVWriter) *Recorder {
	return &Recorder{Metrics: m, CSV: csv}
}

// TimeTick runs fn and records how long it took.
func (r *Recorder) TimeTick(fn func()) {
	start := time.Now()
	fn()
	d := time.Since(start)
	r.window.Observe(d)
	r.Metrics.ObserveTick(d)
}

// Flush closes the current window against st.
func (r *Recorder) Flush(st engine.SimStats) WindowStats {
	r.Metrics.Observe(st)
	ws := r.window.Close(st)
	r.mu.Lock()
	r.last = ws
	r.mu.Unlock()
	if err := r.CSV.Write(ws); err != nil {
		slog.Error("telemetry write failed", "error", err)
	}
	slog.Debug("telemetry window", "window", ws)
	return ws
}

// Last returns the most recently flushed window.
func (r *Recorder) Last() WindowStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
