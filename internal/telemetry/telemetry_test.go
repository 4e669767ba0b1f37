package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/machines"
)

func sampleStats() engine.SimStats {
	return engine.SimStats{
		Tick:           engine.TicksPerHour * 3,
		Units:          3,
		UnitsByKind:    map[machines.Kind]int{machines.KindBottler: 2, machines.KindRaintank: 1},
		Working:        1,
		Blocked:        2,
		Conditions:     map[errorlogic.Code]int{errorlogic.NoRecipe: 1, errorlogic.NotRaining: 1},
		FluidStored:    1500,
		EnergyStored:   400,
		GridConsumed:   900,
		FramesSent:     12,
		MeanProgress:   0.5,
		ProgressSample: []float64{0.9, 0.1, 0.5},
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposeSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Observe(sampleStats())
	m.ObserveTick(2 * time.Millisecond)
	m.RecordSave(nil)
	m.RecordSave(errors.New("disk full"))

	body := scrape(t, m)
	for _, want := range []string{
		`factory_units{kind="bottler"} 2`,
		`factory_units{kind="fabricator"} 0`,
		`factory_unit_conditions{code="no_recipe"} 1`,
		`factory_fluid_stored_mb 1500`,
		`factory_ticks_total 1`,
		`factory_saves_total{result="ok"} 1`,
		`factory_saves_total{result="error"} 1`,
		`factory_tick 3000`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.Observe(sampleStats())
	assert.Contains(t, scrape(t, b), `factory_fluid_stored_mb 0`)
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 0.5, 0},
		{"single", []float64{0.3}, 0.9, 0.3},
		{"median", []float64{0.1, 0.5, 0.9}, 0.5, 0.5},
		{"upper", []float64{0.1, 0.5, 0.9}, 1, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Quantile(tt.sorted, tt.p), 1e-9)
		})
	}
}

func TestWindowClose(t *testing.T) {
	var w Window
	w.Observe(10 * time.Microsecond)
	w.Observe(30 * time.Microsecond)

	st := sampleStats()
	ws := w.Close(st)
	assert.Equal(t, 2, ws.Ticks)
	assert.InDelta(t, 20, ws.TickMeanUS, 1e-9)
	assert.InDelta(t, 30, ws.TickMaxUS, 1e-9)
	assert.Greater(t, ws.TickStdUS, 0.0)
	assert.InDelta(t, 0.5, ws.ProgressP50, 1e-9)
	assert.Equal(t, "Day 1, 9:00", ws.SimTime)
	assert.Equal(t, []float64{0.9, 0.1, 0.5}, st.ProgressSample, "sample left unsorted")
	assert.Zero(t, w.Len(), "window resets")

	w.Observe(5 * time.Microsecond)
	single := w.Close(st)
	assert.Zero(t, single.TickStdUS)
}

func TestCSVWriterHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ticks.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(WindowStats{Tick: 1000, Units: 2}))
	require.NoError(t, w.Write(WindowStats{Tick: 2000, Units: 3}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "tick,sim_time"))

	var rows []WindowStats
	require.NoError(t, gocsv.UnmarshalBytes(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(2000), rows[1].Tick)
	assert.Equal(t, 3, rows[1].Units)
}

func TestCSVWriterDisabled(t *testing.T) {
	w, err := NewCSVWriter("")
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.NoError(t, w.Write(WindowStats{}))
	assert.Empty(t, w.Path())
	assert.NoError(t, w.Close())
}

func TestRecorderFlush(t *testing.T) {
	r := NewRecorder(NewMetrics(), nil)
	ran := false
	r.TimeTick(func() { ran = true })
	assert.True(t, ran)

	ws := r.Flush(sampleStats())
	assert.Equal(t, 1, ws.Ticks)
	assert.Equal(t, ws, r.Last())
	assert.Contains(t, scrape(t, r.Metrics), `factory_units_working 1`)
}
