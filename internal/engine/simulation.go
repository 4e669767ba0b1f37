// Simulation ties together the unit population and runs it each tick.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/worldctx"
)

var (
	ErrUnitNotFound  = errors.New("unit not found")
	ErrDuplicateUnit = errors.New("unit already present")
	ErrNotLinkable   = errors.New("units cannot be linked")
)

// linkable is implemented by units that push energy to a receiver.
type linkable interface {
	SetReceiver(r machines.EnergyReceiver)
}

// Link is one energy connection from a source unit to a receiver.
type Link struct {
	From uuid.UUID `json:"from"`
	To   uuid.UUID `json:"to"`
}

// Simulation holds the unit population and wires systems together. One
// goroutine ticks it; HTTP handlers read snapshots under the read lock.
type Simulation struct {
	mu sync.RWMutex

	env   *machines.Env
	grid  *energy.Grid
	hub   *deltasync.Hub
	units []machines.Unit
	index map[uuid.UUID]machines.Unit
	links map[uuid.UUID]uuid.UUID // source → receiver

	senders  map[uuid.UUID]*deltasync.Sender
	lastTick uint64
	stats    SimStats
}

// SimStats tracks aggregate statistics.
type SimStats struct {
	Tick           uint64                  `json:"tick"`
	Units          int                     `json:"units"`
	UnitsByKind    map[machines.Kind]int   `json:"units_by_kind"`
	Working        int                     `json:"working"`
	Blocked        int                     `json:"blocked"`
	Conditions     map[errorlogic.Code]int `json:"conditions"`
	FluidStored    int                     `json:"fluid_stored"`
	EnergyStored   int                     `json:"energy_stored"`
	GridConsumed   uint64                  `json:"grid_consumed"`
	FramesSent     uint64                  `json:"frames_sent"`
	FramesDropped  uint64                  `json:"frames_dropped"`
	Observers      int                     `json:"observers"`
	MeanProgress   float64                 `json:"mean_progress"`
	ProgressSample []float64               `json:"-"`
}

// NewSimulation creates an empty simulation. grid may be nil when the
// energy provider is external; hub may be nil when nobody observes.
func NewSimulation(env *machines.Env, grid *energy.Grid, hub *deltasync.Hub) *Simulation {
	return &Simulation{
		env:     env,
		grid:    grid,
		hub:     hub,
		index:   make(map[uuid.UUID]machines.Unit),
		links:   make(map[uuid.UUID]uuid.UUID),
		senders: make(map[uuid.UUID]*deltasync.Sender),
	}
}

// Env returns the environment units are built with.
func (s *Simulation) Env() *machines.Env { return s.env }

// Hub returns the observer hub, or nil.
func (s *Simulation) Hub() *deltasync.Hub { return s.hub }

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// SetTick sets the tick a restored world resumes from.
func (s *Simulation) SetTick(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = tick
}

// Place builds a new unit, decides its placement-time properties and adds it.
func (s *Simulation) Place(kind machines.Kind, pos worldctx.Pos) (machines.Unit, error) {
	u, err := machines.New(kind, uuid.New(), pos, s.env)
	if err != nil {
		return nil, err
	}
	u.Validate()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.add(u); err != nil {
		return nil, err
	}
	slog.Info("unit placed", "unit", u.ID(), "kind", kind, "pos", pos)
	return u, nil
}

// Add inserts an already built unit, typically one restored from storage.
func (s *Simulation) Add(u machines.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(u)
}

func (s *Simulation) add(u machines.Unit) error {
	if _, ok := s.index[u.ID()]; ok {
		return fmt.Errorf("%s: %w", u.ID(), ErrDuplicateUnit)
	}
	s.units = append(s.units, u)
	s.index[u.ID()] = u
	s.senders[u.ID()] = deltasync.NewSender()
	return nil
}

// Remove takes a unit out of the world along with its links.
func (s *Simulation) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrUnitNotFound)
	}
	for from, to := range s.links {
		if from == id || to == id {
			s.unlink(from)
		}
	}
	s.units = slices.DeleteFunc(s.units, func(u machines.Unit) bool { return u.ID() == id })
	delete(s.index, id)
	delete(s.senders, id)
	slog.Info("unit removed", "unit", id)
	return nil
}

// Link routes the energy a source unit produces into a receiver.
func (s *Simulation) Link(from, to uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.index[from]
	if !ok {
		return fmt.Errorf("link source %s: %w", from, ErrUnitNotFound)
	}
	dst, ok := s.index[to]
	if !ok {
		return fmt.Errorf("link target %s: %w", to, ErrUnitNotFound)
	}
	pusher, ok := src.(linkable)
	if !ok {
		return fmt.Errorf("%s does not produce energy: %w", src.Kind(), ErrNotLinkable)
	}
	recv, ok := dst.(machines.EnergyReceiver)
	if !ok || from == to {
		return fmt.Errorf("%s does not accept energy: %w", dst.Kind(), ErrNotLinkable)
	}
	pusher.SetReceiver(recv)
	s.links[from] = to
	return nil
}

// Unlink removes the energy link leaving a source unit.
func (s *Simulation) Unlink(from uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlink(from)
}

func (s *Simulation) unlink(from uuid.UUID) {
	if u, ok := s.index[from].(linkable); ok {
		u.SetReceiver(nil)
	}
	delete(s.links, from)
}

// Links returns every energy link, ordered by source.
func (s *Simulation) Links() []Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Link, 0, len(s.links))
	for from, to := range s.links {
		out = append(out, Link{From: from, To: to})
	}
	slices.SortFunc(out, func(a, b Link) int { return slices.Compare(a.From[:], b.From[:]) })
	return out
}

// TickUnits runs every tick: the grid refills, then every unit updates in
// placement order.
func (s *Simulation) TickUnits(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = tick
	if s.grid != nil {
		s.grid.Tick()
	}
	for _, u := range s.units {
		u.Tick(tick)
	}
}

// Sync runs every sync interval: each unit's changed channels are
// published to observers as one frame.
func (s *Simulation) Sync(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub == nil {
		return
	}
	var frames []deltasync.Frame
	for _, u := range s.units {
		updates, err := s.senders[u.ID()].Delta(u)
		if err != nil {
			slog.Error("sync channels collide", "unit", u.ID(), "kind", u.Kind(), "error", err)
			continue
		}
		if len(updates) == 0 {
			continue
		}
		frames = append(frames, deltasync.Frame{Unit: u.ID().String(), Kind: string(u.Kind()), Tick: tick, Updates: updates})
	}
	// Senders have already recorded these values, so an observer that
	// misses one is resynced from full frames rather than left to drift.
	s.hub.Broadcast(frames, s.fullFrames)
	s.stats.FramesSent += uint64(len(frames))
}

// FullFrames returns every unit's complete channel state, for an observer
// that just connected.
func (s *Simulation) FullFrames() []deltasync.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullFrames()
}

func (s *Simulation) fullFrames() []deltasync.Frame {
	frames := make([]deltasync.Frame, 0, len(s.units))
	for _, u := range s.units {
		updates, err := deltasync.Full(u)
		if err != nil {
			continue
		}
		frames = append(frames, deltasync.Frame{
			Unit: u.ID().String(), Kind: string(u.Kind()), Tick: s.lastTick, Full: true, Updates: updates,
		})
	}
	return frames
}

// Statuses returns a snapshot of every unit in placement order.
func (s *Simulation) Statuses() []machines.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]machines.Status, len(s.units))
	for i, u := range s.units {
		out[i] = u.Status()
	}
	return out
}

// Status returns one unit's snapshot.
func (s *Simulation) Status(id uuid.UUID) (machines.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.index[id]
	if !ok {
		return machines.Status{}, false
	}
	return u.Status(), true
}

// WithUnit runs fn on one unit under the write lock, for changes made
// from outside the tick loop.
func (s *Simulation) WithUnit(id uuid.UUID, fn func(machines.Unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnitNotFound)
	}
	return fn(u)
}

// Freeze runs fn with the whole population stopped, so a save sees one
// consistent tick.
func (s *Simulation) Freeze(fn func(tick uint64, units []machines.Unit, links []Link) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := make([]Link, 0, len(s.links))
	for from, to := range s.links {
		links = append(links, Link{From: from, To: to})
	}
	return fn(s.lastTick, slices.Clone(s.units), links)
}

// Len returns the number of units.
func (s *Simulation) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

// Stats recomputes and returns aggregate statistics.
func (s *Simulation) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateStats()
	return s.stats
}

func (s *Simulation) updateStats() {
	st := SimStats{
		Tick:        s.lastTick,
		Units:       len(s.units),
		UnitsByKind: make(map[machines.Kind]int),
		Conditions:  make(map[errorlogic.Code]int),
		FramesSent:  s.stats.FramesSent,
	}
	for _, u := range s.units {
		st.UnitsByKind[u.Kind()]++
		codes := u.Errors().Active()
		for _, c := range codes {
			st.Conditions[c]++
		}
		status := u.Status()
		switch {
		case len(codes) > 0:
			st.Blocked++
		case status.ProgressTotal > 0:
			st.Working++
		}
		if status.ProgressTotal > 0 {
			st.ProgressSample = append(st.ProgressSample, float64(status.Progress)/float64(status.ProgressTotal))
		}
		for _, t := range status.Tanks {
			st.FluidStored += t.Amount
		}
		st.EnergyStored += status.Energy
	}
	if len(st.ProgressSample) > 0 {
		st.MeanProgress = stat.Mean(st.ProgressSample, nil)
	}
	if s.grid != nil {
		st.GridConsumed = s.grid.Consumed()
	}
	if s.hub != nil {
		st.FramesDropped = s.hub.Dropped()
		st.Observers = s.hub.Subscribers()
	}
	s.stats = st
}

// Report logs the periodic summary.
func (s *Simulation) Report(tick uint64) {
	st := s.Stats()
	slog.Info("daily report",
		"tick", tick,
		"time", SimTime(tick),
		"units", st.Units,
		"working", st.Working,
		"blocked", st.Blocked,
		"fluid_stored", humanize.Comma(int64(st.FluidStored))+" mB",
		"energy_stored", humanize.Comma(int64(st.EnergyStored)),
		"grid_consumed", humanize.Comma(int64(st.GridConsumed))+" EU",
		"frames_sent", humanize.Comma(int64(st.FramesSent)),
		"observers", st.Observers,
	)
	for code, n := range st.Conditions {
		slog.Info("condition", "code", code, "units", n)
	}
}
