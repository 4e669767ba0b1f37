package observer

import (
	"slices"
	"sync"

	"github.com/talgya/mini-factory/internal/deltasync"
)

// MirroredUnit is the observer's copy of one unit's channels.
type MirroredUnit struct {
	Kind   string
	Tick   uint64
	Shadow *deltasync.Shadow
}

// Mirror keeps a shadow per unit from stream frames. A full frame replaces
// the unit's shadow; a delta is applied on top of it.
type Mirror struct {
	mu     sync.RWMutex
	units  map[string]*MirroredUnit
	frames int
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{units: make(map[string]*MirroredUnit)}
}

// Apply folds one frame into the mirror. Frames older than the unit's
// last applied tick are ignored.
func (m *Mirror) Apply(f deltasync.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[f.Unit]
	switch {
	case f.Full || !ok:
		u = &MirroredUnit{Kind: f.Kind, Shadow: deltasync.NewShadow()}
		m.units[f.Unit] = u
	case f.Tick < u.Tick:
		return
	}
	deltasync.Apply(u.Shadow, f.Updates)
	u.Tick = f.Tick
	m.frames++
}

// Value returns the last received value of a unit's channel.
func (m *Mirror) Value(unit string, channel int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[unit]
	if !ok {
		return 0, false
	}
	return u.Shadow.Value(channel)
}

// Kind returns the kind a unit was announced with.
func (m *Mirror) Kind(unit string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.units[unit]; ok {
		return u.Kind
	}
	return ""
}

// Forget drops a unit, e.g. after it was removed from the world.
func (m *Mirror) Forget(unit string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.units, unit)
}

// Units returns the mirrored unit IDs in sorted order.
func (m *Mirror) Units() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.units))
	for id := range m.units {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Frames returns how many frames have been applied.
func (m *Mirror) Frames() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frames
}
