package telemetry

import (
	"log/slog"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-factory/internal/engine"
)

// WindowStats summarizes one reporting window.
type WindowStats struct {
	Tick          uint64  `csv:"tick"`
	SimTime       string  `csv:"sim_time"`
	Ticks         int     `csv:"ticks"`
	Units         int     `csv:"units"`
	Working       int     `csv:"working"`
	Blocked       int     `csv:"blocked"`
	FluidStored   int     `csv:"fluid_stored"`
	EnergyStored  int     `csv:"energy_stored"`
	GridConsumed  uint64  `csv:"grid_consumed"`
	FramesSent    uint64  `csv:"frames_sent"`
	FramesDropped uint64  `csv:"frames_dropped"`
	ProgressMean  float64 `csv:"progress_mean"`
	ProgressP10   float64 `csv:"progress_p10"`
	ProgressP50   float64 `csv:"progress_p50"`
	ProgressP90   float64 `csv:"progress_p90"`
	TickMeanUS    float64 `csv:"tick_mean_us"`
	TickStdUS     float64 `csv:"tick_std_us"`
	TickMaxUS     float64 `csv:"tick_max_us"`
}

// LogValue renders the window as a compact log group.
func (w WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("tick", w.Tick),
		slog.Int("units", w.Units),
		slog.Int("working", w.Working),
		slog.Int("blocked", w.Blocked),
		slog.Float64("progress_p50", w.ProgressP50),
		slog.Float64("tick_mean_us", w.TickMeanUS),
	)
}

// Quantile returns the p-quantile of sorted values, 0 when empty.
func Quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Window accumulates per-tick timings between reports.
type Window struct {
	durations []float64 // microseconds
}

// Observe adds one tick duration.
func (w *Window) Observe(d time.Duration) {
	w.durations = append(w.durations, float64(d)/float64(time.Microsecond))
}

// Len returns the number of ticks observed since the last Close.
func (w *Window) Len() int { return len(w.durations) }

// Close summarizes the window against a statistics snapshot and resets it.
func (w *Window) Close(st engine.SimStats) WindowStats {
	ws := WindowStats{
		Tick:          st.Tick,
		SimTime:       engine.SimTime(st.Tick),
		Ticks:         len(w.durations),
		Units:         st.Units,
		Working:       st.Working,
		Blocked:       st.Blocked,
		FluidStored:   st.FluidStored,
		EnergyStored:  st.EnergyStored,
		GridConsumed:  st.GridConsumed,
		FramesSent:    st.FramesSent,
		FramesDropped: st.FramesDropped,
		ProgressMean:  st.MeanProgress,
	}

	progress := slices.Clone(st.ProgressSample)
	slices.Sort(progress)
	ws.ProgressP10 = Quantile(progress, 0.10)
	ws.ProgressP50 = Quantile(progress, 0.50)
	ws.ProgressP90 = Quantile(progress, 0.90)

	if len(w.durations) > 0 {
		ws.TickMeanUS, ws.TickStdUS = stat.MeanStdDev(w.durations, nil)
		ws.TickMaxUS = slices.Max(w.durations)
		if len(w.durations) == 1 {
			ws.TickStdUS = 0
		}
	}
	w.durations = w.durations[:0]
	return ws
}
