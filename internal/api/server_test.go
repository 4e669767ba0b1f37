package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/items/itemstest"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/persistence"
	"github.com/talgya/mini-factory/internal/recipes"
	"github.com/talgya/mini-factory/internal/telemetry"
	"github.com/talgya/mini-factory/internal/worldctx"
)

const adminKey = "test-key"

func testServer(t *testing.T) *Server {
	t.Helper()
	svc := recipes.NewService(itemstest.Catalog())
	require.NoError(t, svc.Crafting.AddShapeless("oak_planks", items.NewStack(itemstest.OakPlanks, 4),
		items.Ingredient{Stack: items.NewStack(itemstest.OakLog, 1)}))

	grid := energy.NewGrid(100, true)
	env := &machines.Env{
		Recipes: svc,
		World:   worldctx.Fixed{Sky: true, Raining: true, Climate: worldctx.Biome{Name: "forest", Rainfall: 0.8}},
		Energy:  grid,
		Config:  machines.DefaultConfig(),
	}
	return &Server{
		Sim:       engine.NewSimulation(env, grid, deltasync.NewHub(16)),
		Eng:       engine.NewEngine(),
		Telemetry: telemetry.NewRecorder(telemetry.NewMetrics(), nil),
		AdminKey:  adminKey,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func mustParse(t *testing.T, id string) uuid.UUID {
	t.Helper()
	u, err := uuid.Parse(id)
	require.NoError(t, err)
	return u
}

func place(t *testing.T, h http.Handler, kind machines.Kind) machines.Status {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/place", `{"kind":"`+string(kind)+`","pos":{"x":1,"y":64}}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return decode[machines.Status](t, rec)
}

func TestStatusAndUnits(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	place(t, h, machines.KindBottler)
	place(t, h, machines.KindRaintank)

	status := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/v1/status", "", false))
	assert.Equal(t, "mini-factory", status["name"])
	assert.EqualValues(t, 2, status["units"])
	assert.Equal(t, "Day 1, 6:00", status["sim_time"])

	all := decode[[]machines.Status](t, do(t, h, http.MethodGet, "/api/v1/units", "", false))
	assert.Len(t, all, 2)
	tanks := decode[[]machines.Status](t, do(t, h, http.MethodGet, "/api/v1/units?kind=raintank", "", false))
	require.Len(t, tanks, 1)
	assert.Equal(t, machines.KindRaintank, tanks[0].Kind)
}

func TestUnitDetail(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	st := place(t, h, machines.KindBottler)

	got := decode[machines.Status](t, do(t, h, http.MethodGet, "/api/v1/unit/"+st.ID, "", false))
	assert.Equal(t, st.ID, got.ID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/unit/not-a-uuid", "", false).Code)
	assert.Equal(t, http.StatusNotFound,
		do(t, h, http.MethodGet, "/api/v1/unit/00000000-0000-0000-0000-000000000001", "", false).Code)
}

func TestAdminAuth(t *testing.T) {
	s := testServer(t)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":2}`, false).Code)

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":2}`, false).Code)
}

func TestSpeed(t *testing.T) {
	s := testServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":4}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, s.Eng.Speed())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":-1}`, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/speed", `{`, true).Code)
	assert.Equal(t, map[string]float64{"speed": 4}, decode[map[string]float64](t, do(t, h, http.MethodGet, "/api/v1/speed", "", false)))
}

func TestPlaceRejectsUnknownKind(t *testing.T) {
	h := testServer(t).Handler()
	rec := do(t, h, http.MethodPost, "/api/v1/place", `{"kind":"furnace"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkAndRemove(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	eng := place(t, h, machines.KindEngineElectric)
	bot := place(t, h, machines.KindBottler)
	tank := place(t, h, machines.KindRaintank)

	rec := do(t, h, http.MethodPost, "/api/v1/link", `{"from":"`+eng.ID+`","to":"`+bot.ID+`"}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	links := decode[[]engine.Link](t, do(t, h, http.MethodGet, "/api/v1/links", "", false))
	require.Len(t, links, 1)
	assert.Equal(t, bot.ID, links[0].To.String())

	rec = do(t, h, http.MethodPost, "/api/v1/link", `{"from":"`+eng.ID+`","to":"`+tank.ID+`"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "raintank takes no energy")

	rec = do(t, h, http.MethodPost, "/api/v1/unit/"+bot.ID+"/remove", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.Sim.Links())
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/v1/unit/"+bot.ID+"/remove", "", true).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/unit/"+tank.ID+"/explode", "{}", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnlink(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	eng := place(t, h, machines.KindEngineElectric)
	bot := place(t, h, machines.KindBottler)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/link", `{"from":"`+eng.ID+`","to":"`+bot.ID+`"}`, true).Code)

	rec := do(t, h, http.MethodPost, "/api/v1/unlink", `{"from":"`+eng.ID+`"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.Sim.Links())
}

func TestInsertItemAndFluid(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	bot := place(t, h, machines.KindBottler)
	path := "/api/v1/unit/" + bot.ID

	rec := do(t, h, http.MethodPost, path+"/insert", `{"slot":0,"item":"can","size":3}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		Stack *items.Stack `json:"stack"`
	}](t, rec)
	assert.Equal(t, items.NewStack(itemstest.Can, 3), res.Stack)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"slot rejects item", `{"slot":0,"item":"stick"}`, http.StatusConflict},
		{"unknown item", `{"slot":0,"item":"diamond"}`, http.StatusBadRequest},
		{"slot out of range", `{"slot":9,"item":"can"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, h, http.MethodPost, path+"/insert", tt.body, true).Code)
		})
	}

	rec = do(t, h, http.MethodPost, path+"/fluid", `{"fluid":"water","amount":2000}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fill := decode[struct {
		Filled int `json:"filled"`
	}](t, rec)
	assert.Equal(t, 2000, fill.Filled)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, path+"/fluid", `{"fluid":"lava","amount":100}`, true).Code,
		"tank already holds water")
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, path+"/fluid", `{"fluid":"oil","amount":1}`, true).Code)

	st, ok := s.Sim.Status(mustParse(t, bot.ID))
	require.True(t, ok)
	require.Len(t, st.Tanks, 1)
	assert.Equal(t, 2000, st.Tanks[0].Amount)
}

func TestDisable(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	bot := place(t, h, machines.KindBottler)
	tank := place(t, h, machines.KindRaintank)

	rec := do(t, h, http.MethodPost, "/api/v1/unit/"+bot.ID+"/disable", `{"disabled":true}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, s.Sim.WithUnit(mustParse(t, bot.ID), func(u machines.Unit) error {
		assert.True(t, u.(machines.Switchable).Disabled())
		return nil
	}))

	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/api/v1/unit/"+tank.ID+"/disable", `{"disabled":true}`, true).Code)
}

func TestCraft(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	wt := place(t, h, machines.KindWorktable)
	path := "/api/v1/unit/" + wt.ID

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, path+"/insert", `{"slot":0,"item":"oak_log","size":2}`, true).Code)

	rec := do(t, h, http.MethodPost, path+"/craft", `{"grid":["oak_log"]}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		Crafted *items.Stack `json:"crafted"`
	}](t, rec)
	assert.Equal(t, items.NewStack(itemstest.OakPlanks, 4), res.Crafted)

	rec = do(t, h, http.MethodPost, path+"/craft", `{"memory":0}`, true)
	require.Equal(t, http.StatusOK, rec.Code, "remembered layout crafts the last log")

	rec = do(t, h, http.MethodPost, path+"/craft", `{}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code, "stock is empty")

	bot := place(t, h, machines.KindBottler)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/unit/"+bot.ID+"/craft", `{}`, true).Code)
}

func TestRecipesListing(t *testing.T) {
	h := testServer(t).Handler()
	body := decode[map[string]json.RawMessage](t, do(t, h, http.MethodGet, "/api/v1/recipes", "", false))

	var counts map[string]int
	require.NoError(t, json.Unmarshal(body["counts"], &counts))
	assert.Equal(t, 1, counts["crafting"])

	var crafting []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body["crafting"], &crafting))
	require.Len(t, crafting, 1)
	assert.Equal(t, "oak_planks", crafting[0].ID)
}

func TestStatsAndMetrics(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	place(t, h, machines.KindRaintank)
	for tick := uint64(1); tick <= 5; tick++ {
		s.Telemetry.TimeTick(func() { s.Sim.TickUnits(tick) })
	}
	s.Telemetry.Flush(s.Sim.Stats())

	stats := decode[engine.SimStats](t, do(t, h, http.MethodGet, "/api/v1/stats", "", false))
	assert.Equal(t, 1, stats.Units)

	window := decode[telemetry.WindowStats](t, do(t, h, http.MethodGet, "/api/v1/stats/window", "", false))
	assert.Equal(t, 5, window.Ticks)

	rec := do(t, h, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `factory_units{kind="raintank"} 1`)
}

func TestSnapshot(t *testing.T) {
	s := testServer(t)
	h := s.Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/snapshot", "", true).Code)

	db, err := persistence.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s.DB = db
	place(t, h, machines.KindRaintank)

	rec := do(t, h, http.MethodPost, "/api/v1/snapshot", "", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, db.HasWorldState())
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/v1/snapshot", "", false).Code)
}

func TestCORS(t *testing.T) {
	s := testServer(t)
	s.Origins = []string{"https://factory.example"}
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://factory.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://factory.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPublicRateLimit(t *testing.T) {
	s := testServer(t)
	s.RateLimit = 2
	h := s.Handler()
	for range 2 {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/status", "", false).Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/status", "", false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestStreamSendsFullFramesThenDeltas(t *testing.T) {
	s := testServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	place(t, s.Handler(), machines.KindRaintank)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewScanner(resp.Body)
	next := func() (string, deltasync.Frame) {
		var event string
		for events.Scan() {
			line := events.Text()
			if name, ok := strings.CutPrefix(line, "event: "); ok {
				event = name
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var f deltasync.Frame
				require.NoError(t, json.Unmarshal([]byte(data), &f))
				return event, f
			}
		}
		t.Fatal("stream ended early")
		return "", deltasync.Frame{}
	}

	event, f := next()
	assert.Equal(t, "full", event)
	assert.True(t, f.Full)
	assert.Equal(t, string(machines.KindRaintank), f.Kind)

	// Wait for the subscription, then push a change through the hub.
	require.Eventually(t, func() bool { return s.Sim.Hub().Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	s.Sim.Hub().Publish(deltasync.Frame{Unit: f.Unit, Kind: f.Kind, Tick: 9, Updates: []deltasync.Update{{Channel: 0, Value: 1}}})

	event, f = next()
	assert.Equal(t, "delta", event)
	assert.Equal(t, uint64(9), f.Tick)
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")
	assert.Equal(t, 60, rl.RetryAfter("10.0.0.1"))

	now = now.Add(15 * time.Second)
	assert.Equal(t, 45, rl.RetryAfter("10.0.0.1"))
	now = now.Add(45 * time.Second)
	assert.Zero(t, rl.RetryAfter("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"), "bucket refilled")

	now = now.Add(5 * time.Minute)
	rl.Allow("10.0.0.3")
	assert.Len(t, rl.visitors, 1, "idle visitors swept")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
