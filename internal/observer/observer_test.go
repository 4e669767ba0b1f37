package observer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-factory/internal/api"
	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/items/itemstest"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/observer"
	"github.com/talgya/mini-factory/internal/recipes"
	"github.com/talgya/mini-factory/internal/worldctx"
)

const adminKey = "observer-key"

func factory(t *testing.T) (*api.Server, *httptest.Server) {
	t.Helper()
	grid := energy.NewGrid(100, true)
	env := &machines.Env{
		Recipes: recipes.NewService(itemstest.Catalog()),
		World:   worldctx.Fixed{Sky: true, Raining: true, Climate: worldctx.Biome{Name: "forest", Rainfall: 0.8}},
		Energy:  grid,
		Config:  machines.DefaultConfig(),
	}
	s := &api.Server{
		Sim:      engine.NewSimulation(env, grid, deltasync.NewHub(16)),
		Eng:      engine.NewEngine(),
		AdminKey: adminKey,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestObserve(t *testing.T) {
	s, ts := factory(t)
	_, err := s.Sim.Place(machines.KindBottler, worldctx.Pos{})
	require.NoError(t, err)
	_, err = s.Sim.Place(machines.KindRaintank, worldctx.Pos{X: 1})
	require.NoError(t, err)

	o := observer.NewObserver(ts.URL)
	ctx := context.Background()
	require.True(t, o.Ping(ctx))

	snap, err := o.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mini-factory", snap.Status.Name)
	assert.Equal(t, 2, snap.Status.Units)
	require.Len(t, snap.Units, 2)
	assert.Equal(t, machines.KindBottler, snap.Units[0].Kind)

	blocked, err := o.Blocked(ctx)
	require.NoError(t, err)
	for _, u := range blocked {
		assert.NotEmpty(t, u.Errors)
	}
}

func TestObserveUnreachable(t *testing.T) {
	_, ts := factory(t)
	url := ts.URL
	ts.Close()

	o := observer.NewObserver(url)
	assert.False(t, o.Ping(context.Background()))
	_, err := o.Observe(context.Background())
	assert.ErrorContains(t, err, "status")
}

func TestWaitReady(t *testing.T) {
	_, ts := factory(t)
	require.NoError(t, observer.NewObserver(ts.URL).WaitReady(context.Background(), time.Second))

	url := ts.URL
	ts.Close()
	err := observer.NewObserver(url).WaitReady(context.Background(), 150*time.Millisecond)
	assert.ErrorContains(t, err, "not ready")
}

func TestActor(t *testing.T) {
	s, ts := factory(t)
	bot, err := s.Sim.Place(machines.KindBottler, worldctx.Pos{})
	require.NoError(t, err)
	ctx := context.Background()

	a := observer.NewActor(ts.URL, adminKey)
	require.NoError(t, a.SetSpeed(ctx, 4))
	assert.Equal(t, 4.0, s.Eng.Speed())

	require.NoError(t, a.SetDisabled(ctx, bot.ID().String(), true))
	require.NoError(t, s.Sim.WithUnit(bot.ID(), func(u machines.Unit) error {
		assert.True(t, u.(machines.Switchable).Disabled())
		return nil
	}))

	err = a.Save(ctx)
	assert.ErrorContains(t, err, "503", "no database attached")

	wrong := observer.NewActor(ts.URL, "nope")
	assert.ErrorContains(t, wrong.SetSpeed(ctx, 1), "401")
	assert.Error(t, a.SetSpeed(ctx, 5000))
}

func TestStreamFeedsMirror(t *testing.T) {
	s, ts := factory(t)
	tank, err := s.Sim.Place(machines.KindRaintank, worldctx.Pos{})
	require.NoError(t, err)
	id := tank.ID().String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m := observer.NewMirror()
	var (
		mu     sync.Mutex
		events []string
	)
	done := make(chan error, 1)
	go func() {
		done <- observer.NewObserver(ts.URL).Stream(ctx, func(event string, f deltasync.Frame) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			m.Apply(f)
		})
	}()

	// The catch-up full frame arrives after the subscription is registered.
	require.Eventually(t, func() bool { return m.Kind(id) != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, string(machines.KindRaintank), m.Kind(id))

	s.Sim.Hub().Publish(deltasync.Frame{Unit: id, Kind: m.Kind(id), Tick: 40,
		Updates: []deltasync.Update{{Channel: 999, Value: 7}}})
	require.Eventually(t, func() bool {
		v, ok := m.Value(id, 999)
		return ok && v == 7
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"full", "delta"}, events)
}

func TestStreamParsesEvents(t *testing.T) {
	body := ": heartbeat\n\n" +
		"event: full\ndata: {\"unit\":\"a\",\"kind\":\"bottler\",\"tick\":3,\"full\":true,\"updates\":[{\"ch\":0,\"v\":5}]}\n\n" +
		"event: delta\ndata: {\"unit\":\"a\",\"kind\":\"bottler\",\n" +
		"data: \"tick\":4,\"updates\":[{\"ch\":0,\"v\":6}]}\n\n"
	ts := httptest.NewServer(httpHandler(body))
	defer ts.Close()

	m := observer.NewMirror()
	var seen []string
	err := observer.NewObserver(ts.URL).Stream(context.Background(), func(event string, f deltasync.Frame) {
		seen = append(seen, event)
		m.Apply(f)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"full", "delta"}, seen)

	v, ok := m.Value("a", 0)
	require.True(t, ok)
	assert.Equal(t, 6, v)
	assert.Equal(t, 2, m.Frames())
}

func TestStreamRejectsBadFrame(t *testing.T) {
	ts := httptest.NewServer(httpHandler("event: delta\ndata: {oops\n\n"))
	defer ts.Close()

	err := observer.NewObserver(ts.URL).Stream(context.Background(), func(string, deltasync.Frame) {})
	assert.ErrorContains(t, err, "decode delta frame")
}

func TestMirror(t *testing.T) {
	m := observer.NewMirror()
	m.Apply(deltasync.Frame{Unit: "b", Kind: "raintank", Tick: 10, Full: true,
		Updates: []deltasync.Update{{Channel: 0, Value: 1}, {Channel: 1, Value: 2}}})

	// Stale deltas are dropped.
	m.Apply(deltasync.Frame{Unit: "b", Tick: 5, Updates: []deltasync.Update{{Channel: 0, Value: 9}}})
	v, _ := m.Value("b", 0)
	assert.Equal(t, 1, v)

	// A full frame replaces the shadow, so channels it omits are gone.
	m.Apply(deltasync.Frame{Unit: "b", Kind: "raintank", Tick: 20, Full: true,
		Updates: []deltasync.Update{{Channel: 0, Value: 3}}})
	_, ok := m.Value("b", 1)
	assert.False(t, ok)

	// A delta for a unit placed after connecting starts a shadow.
	m.Apply(deltasync.Frame{Unit: "a", Kind: "bottler", Tick: 21, Updates: []deltasync.Update{{Channel: 4, Value: 4}}})
	assert.Equal(t, []string{"a", "b"}, m.Units())

	m.Forget("a")
	assert.Equal(t, []string{"b"}, m.Units())
	assert.Empty(t, m.Kind("a"))
}

func TestTriage(t *testing.T) {
	unit := func(kind machines.Kind, codes ...errorlogic.Code) machines.Status {
		return machines.Status{Kind: kind, Errors: codes}
	}

	tests := []struct {
		name     string
		units    []machines.Status
		level    string
		dominant errorlogic.Code
	}{
		{"empty", nil, "HEALTHY", ""},
		{"all working", []machines.Status{unit(machines.KindBottler), unit(machines.KindRaintank)}, "HEALTHY", ""},
		{"disabled only", []machines.Status{unit(machines.KindBottler, errorlogic.Disabled), unit(machines.KindRaintank)}, "HEALTHY", errorlogic.Disabled},
		{"one blocked", []machines.Status{
			unit(machines.KindBottler, errorlogic.NoRecipe), unit(machines.KindRaintank), unit(machines.KindWorktable),
		}, "WATCH", errorlogic.NoRecipe},
		{"most blocked", []machines.Status{
			unit(machines.KindBottler, errorlogic.NoPower), unit(machines.KindFabricator, errorlogic.NoPower, errorlogic.TooCold),
			unit(machines.KindRaintank),
		}, "WARNING", errorlogic.NoPower},
		{"all blocked", []machines.Status{
			unit(machines.KindRaintank, errorlogic.NotRaining), unit(machines.KindRaintank, errorlogic.NoSky),
		}, "CRITICAL", errorlogic.NoSky},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := observer.Triage(&observer.Snapshot{Units: tt.units})
			assert.Equal(t, tt.level, h.Level)
			assert.Equal(t, tt.dominant, h.Dominant)
		})
	}

	h := observer.Triage(&observer.Snapshot{Units: []machines.Status{
		unit(machines.KindRaintank, errorlogic.NotRaining), unit(machines.KindBottler),
	}})
	assert.Equal(t, 0.5, h.BlockedRatio)
	assert.Equal(t, 1, h.BlockedKinds[machines.KindRaintank])
}

type httpHandler string

func (b httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = strings.NewReader(string(b)).WriteTo(w)
}
