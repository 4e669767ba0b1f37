// Package api provides the HTTP API for observing and steering the factory.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/fluids"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/persistence"
	"github.com/talgya/mini-factory/internal/recipes"
	"github.com/talgya/mini-factory/internal/telemetry"
	"github.com/talgya/mini-factory/internal/worldctx"
)

const maxSSEConns = 8

// Server serves the factory state over HTTP.
type Server struct {
	Sim       *engine.Simulation
	Eng       *engine.Engine
	DB        *persistence.DB     // nil disables /snapshot
	Telemetry *telemetry.Recorder // nil disables /metrics and /stats/window
	Port      int
	AdminKey  string   // Bearer token for POST endpoints. Empty = POST disabled.
	RateLimit int      // Requests per minute per client on GET endpoints. 0 = unlimited.
	Origins   []string // Extra CORS origins.

	// Active SSE connection count (atomic).
	sseConns int32

	httpServer *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	var limiter *RateLimiter
	if s.RateLimit > 0 {
		limiter = NewRateLimiter(s.RateLimit, time.Minute)
	}
	public := func(h http.HandlerFunc) http.HandlerFunc { return RateLimitMiddleware(limiter, h) }

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", public(s.handleStatus))
	mux.HandleFunc("/api/v1/units", public(s.handleUnits))
	mux.HandleFunc("/api/v1/links", public(s.handleLinks))
	mux.HandleFunc("/api/v1/recipes", public(s.handleRecipes))
	mux.HandleFunc("/api/v1/stats", public(s.handleStats))
	mux.HandleFunc("/api/v1/stats/window", public(s.handleStatsWindow))

	// Unit detail (GET) and unit actions (POST, admin).
	mux.HandleFunc("/api/v1/unit/", s.adminOnly(s.handleUnitRoutes))

	// SSE delta stream.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/place", s.adminOnly(s.handlePlace))
	mux.HandleFunc("/api/v1/link", s.adminOnly(s.handleLink))
	mux.HandleFunc("/api/v1/unlink", s.adminOnly(s.handleUnlink))

	if s.Telemetry != nil {
		mux.Handle("/metrics", s.Telemetry.Metrics.Handler())
	}

	return corsMiddleware(s.Origins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "rate_limit", s.RateLimit)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for open ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS (comma-separated) extends the configured list.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		origins = append(origins, strings.Split(env, ",")...)
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no FACTORY_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	st := s.Sim.Stats()
	status := map[string]any{
		"name":      "mini-factory",
		"tick":      tick,
		"sim_time":  engine.SimTime(tick),
		"speed":     s.Eng.Speed(),
		"running":   s.Eng.Running(),
		"units":     st.Units,
		"working":   st.Working,
		"blocked":   st.Blocked,
		"observers": st.Observers,
	}
	writeJSON(w, status)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	kind := machines.Kind(r.URL.Query().Get("kind"))
	blockedOnly := r.URL.Query().Get("blocked") == "true"

	statuses := s.Sim.Statuses()
	out := make([]machines.Status, 0, len(statuses))
	for _, st := range statuses {
		if kind != "" && st.Kind != kind {
			continue
		}
		if blockedOnly && len(st.Errors) == 0 {
			continue
		}
		out = append(out, st)
	}
	writeJSON(w, out)
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Links())
}

func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	svc := s.Sim.Env().Recipes

	type craftingSummary struct {
		ID     string       `json:"id"`
		Output *items.Stack `json:"output"`
	}
	type fabricatorSummary struct {
		ID     string           `json:"id"`
		Plan   *items.Stack     `json:"plan,omitempty"`
		Molten items.FluidStack `json:"molten"`
		Output *items.Stack     `json:"output"`
	}
	type smeltingSummary struct {
		Resource     *items.Stack     `json:"resource"`
		Product      items.FluidStack `json:"product"`
		MeltingPoint int              `json:"melting_point"`
	}

	crafting := make([]craftingSummary, 0, svc.Crafting.Len())
	for _, rec := range svc.Crafting.Recipes() {
		crafting = append(crafting, craftingSummary{ID: rec.Key(), Output: rec.Output()})
	}
	fabricator := make([]fabricatorSummary, 0, svc.Fabricator.Len())
	for _, rec := range svc.Fabricator.All() {
		fabricator = append(fabricator, fabricatorSummary{
			ID: rec.Key(), Plan: rec.Plan, Molten: rec.Molten, Output: rec.Output(),
		})
	}
	smelting := make([]smeltingSummary, 0, svc.Smelting.Len())
	for _, rec := range svc.Smelting.All() {
		smelting = append(smelting, smeltingSummary{rec.Resource, rec.Product, rec.MeltingPoint})
	}

	writeJSON(w, map[string]any{
		"counts":     svc.Counts(),
		"bottler":    svc.Bottler.All(),
		"crafting":   crafting,
		"fabricator": fabricator,
		"smelting":   smelting,
		"fluids":     svc.Catalog.Fluids(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

func (s *Server) handleStatsWindow(w http.ResponseWriter, r *http.Request) {
	if s.Telemetry == nil {
		http.Error(w, "telemetry not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.Telemetry.Last())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	err := s.DB.SaveWorldState(s.Sim)
	if s.Telemetry != nil {
		s.Telemetry.Metrics.RecordSave(err)
	}
	if err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"units":   s.Sim.Len(),
		"message": "snapshot saved",
	})
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Kind machines.Kind `json:"kind"`
		Pos  worldctx.Pos  `json:"pos"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := s.Sim.Place(req.Kind, req.Pos)
	if errors.Is(err, machines.ErrUnknownKind) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSONStatus(w, http.StatusCreated, u.Status())
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req engine.Link
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Sim.Link(req.From, req.To); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, s.Sim.Links())
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		From uuid.UUID `json:"from"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.Sim.Unlink(req.From)
	writeJSON(w, s.Sim.Links())
}

// handleUnitRoutes dispatches GET /api/v1/unit/:id and
// POST /api/v1/unit/:id/{remove,insert,fluid,disable,craft}.
func (s *Server) handleUnitRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/unit/")
	idStr, action, _ := strings.Cut(path, "/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid unit id", http.StatusBadRequest)
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st, ok := s.Sim.Status(id)
		if !ok {
			http.Error(w, "unit not found", http.StatusNotFound)
			return
		}
		writeJSON(w, st)
		return
	}

	if !requirePost(w, r) {
		return
	}
	switch action {
	case "remove":
		if err := s.Sim.Remove(id); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, map[string]string{"removed": id.String()})
	case "insert":
		s.handleInsertItem(w, r, id)
	case "fluid":
		s.handleInsertFluid(w, r, id)
	case "disable":
		s.handleDisable(w, r, id)
	case "craft":
		s.handleCraft(w, r, id)
	default:
		http.Error(w, "unknown unit action (use: remove, insert, fluid, disable, craft)", http.StatusNotFound)
	}
}

var (
	errNoInventory  = errors.New("unit has no inventory")
	errNoTanks      = errors.New("unit has no tanks")
	errNotSwitch    = errors.New("unit cannot be disabled")
	errNotWorktable = errors.New("unit is not a worktable")
	errRejected     = errors.New("rejected")
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnitNotFound):
		return http.StatusNotFound
	case errors.Is(err, items.ErrUnknownItem), errors.Is(err, items.ErrUnknownFluid),
		errors.Is(err, inventory.ErrSlotRange), errors.Is(err, inventory.ErrStackSize),
		errors.Is(err, errNoInventory), errors.Is(err, errNoTanks),
		errors.Is(err, errNotSwitch), errors.Is(err, errNotWorktable),
		errors.Is(err, engine.ErrNotLinkable):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrSlotRejects), errors.Is(err, errRejected),
		errors.Is(err, machines.ErrCannotCraft):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleInsertItem(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req struct {
		Slot   int          `json:"slot"`
		Item   items.ItemID `json:"item"`
		Size   int          `json:"size"`
		Damage int          `json:"damage"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Size <= 0 {
		req.Size = 1
	}

	var result *items.Stack
	err := s.Sim.WithUnit(id, func(u machines.Unit) error {
		h, ok := u.(machines.HasInventory)
		if !ok {
			return errNoInventory
		}
		if s.Sim.Env().Catalog().Def(req.Item) == nil {
			return fmt.Errorf("%q: %w", req.Item, items.ErrUnknownItem)
		}
		inv := h.Inventory()
		stack := &items.Stack{Item: req.Item, Size: req.Size, Damage: req.Damage}
		if req.Slot < 0 || req.Slot >= inv.Size() {
			return fmt.Errorf("slot %d: %w", req.Slot, inventory.ErrSlotRange)
		}
		if !inv.Accepts(req.Slot, stack) {
			return fmt.Errorf("%s[%d] %s: %w", inv.Name(), req.Slot, stack, inventory.ErrSlotRejects)
		}
		if !inv.TryAddStack(stack, req.Slot, 1, true, true) {
			return fmt.Errorf("%s[%d] full: %w", inv.Name(), req.Slot, errRejected)
		}
		result = inv.Get(req.Slot).Copy()
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{"slot": req.Slot, "stack": result})
}

func (s *Server) handleInsertFluid(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req struct {
		Tank   *int          `json:"tank"`
		Fluid  items.FluidID `json:"fluid"`
		Amount int           `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var filled int
	var tanks []fluids.TankState
	err := s.Sim.WithUnit(id, func(u machines.Unit) error {
		h, ok := u.(machines.HasTanks)
		if !ok {
			return errNoTanks
		}
		if !s.Sim.Env().Catalog().IsFluidRegistered(req.Fluid) {
			return fmt.Errorf("%q: %w", req.Fluid, items.ErrUnknownFluid)
		}
		sel := fluids.AnyTank
		if req.Tank != nil {
			sel = *req.Tank
		}
		filled = h.Tanks().Fill(sel, items.FluidStack{Fluid: req.Fluid, Amount: req.Amount}, false)
		if filled == 0 && req.Amount > 0 {
			return fmt.Errorf("no tank accepts %d %s: %w", req.Amount, req.Fluid, errRejected)
		}
		tanks = h.Tanks().Snapshot()
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{"filled": filled, "tanks": tanks})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req struct {
		Disabled bool `json:"disabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.Sim.WithUnit(id, func(u machines.Unit) error {
		sw, ok := u.(machines.Switchable)
		if !ok {
			return errNotSwitch
		}
		sw.SetDisabled(req.Disabled)
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	slog.Info("unit switched", "unit", id, "disabled", req.Disabled)
	writeJSON(w, map[string]any{"unit": id, "disabled": req.Disabled})
}

// handleCraft lays out a template (grid of item ids) or a remembered
// layout (memory index), then crafts once from the worktable's stock.
func (s *Server) handleCraft(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req struct {
		Grid   []items.ItemID `json:"grid"`
		Memory *int           `json:"memory"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Grid) > recipes.GridSize {
		http.Error(w, fmt.Sprintf("grid holds at most %d cells", recipes.GridSize), http.StatusBadRequest)
		return
	}

	tick := s.Sim.CurrentTick()
	var crafted *items.Stack
	err := s.Sim.WithUnit(id, func(u machines.Unit) error {
		wt, ok := u.(*machines.Worktable)
		if !ok {
			return errNotWorktable
		}
		switch {
		case req.Memory != nil:
			if !wt.ChooseRecipe(*req.Memory) {
				return fmt.Errorf("memory slot %d empty: %w", *req.Memory, errRejected)
			}
		case len(req.Grid) > 0:
			var g recipes.Grid
			for i, item := range req.Grid {
				if item == "" {
					continue
				}
				if s.Sim.Env().Catalog().Def(item) == nil {
					return fmt.Errorf("%q: %w", item, items.ErrUnknownItem)
				}
				g[i] = items.NewStack(item, 1)
			}
			wt.SetRecipe(g)
		}
		out, err := wt.Craft(tick)
		if err != nil {
			return err
		}
		crafted = out
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{"crafted": crafted})
}

// handleStream provides an SSE endpoint for unit delta frames. A new
// observer first receives a full frame per unit, then live deltas.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	hub := s.Sim.Hub()
	if hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}

	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before the catch-up so no delta falls between the two.
	subID, ch := hub.Subscribe()
	defer hub.Unsubscribe(subID)

	for _, f := range s.Sim.FullFrames() {
		writeSSEFrame(w, f)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	// Stream loop with heartbeat.
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return
			}
			writeSSEFrame(w, f)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEFrame writes a single frame in SSE format. Full frames use the
// "full" event name so clients can reset their shadow.
func writeSSEFrame(w http.ResponseWriter, f deltasync.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	event := "delta"
	if f.Full {
		event = "full"
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
