package fluids

import (
	"errors"
	"fmt"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/items"
)

// ChannelsPerTank is how many sync channels each tank claims: capacity,
// fluid index and amount, in that order. Capacity comes first so an
// observer never clamps an amount against a stale capacity.
const ChannelsPerTank = 3

// AnyTank selects the first tank able to serve a request.
const AnyTank = -1

var ErrTankState = errors.New("invalid tank state")

// TankState is the persisted content of one tank.
type TankState struct {
	Fluid  items.FluidID `json:"fluid,omitempty"`
	Amount int           `json:"amount"`
}

// Manager groups a unit's tanks under one fill/drain, sync and persistence
// surface. Tanks keep their order, which fixes their channel offsets.
type Manager struct {
	tanks   []*Tank
	catalog *items.Catalog
}

// NewManager creates a manager over the given tanks.
func NewManager(catalog *items.Catalog, tanks ...*Tank) *Manager {
	return &Manager{tanks: tanks, catalog: catalog}
}

// Len returns the number of tanks.
func (m *Manager) Len() int { return len(m.tanks) }

// Tank returns the tank at index i, or nil.
func (m *Manager) Tank(i int) *Tank {
	if i < 0 || i >= len(m.tanks) {
		return nil
	}
	return m.tanks[i]
}

// Catalog returns the catalog used to index fluids.
func (m *Manager) Catalog() *items.Catalog { return m.catalog }

// Fill offers res to the selected tank, or to the first tank that accepts
// any of it when sel is AnyTank.
func (m *Manager) Fill(sel int, res items.FluidStack, simulate bool) int {
	if sel != AnyTank {
		t := m.Tank(sel)
		if t == nil {
			return 0
		}
		return t.Fill(res, simulate)
	}
	for _, t := range m.tanks {
		if t.Fill(res, true) > 0 {
			return t.Fill(res, simulate)
		}
	}
	return 0
}

// Drain removes up to maxAmount from the selected tank, or from the first
// non-empty tank when sel is AnyTank.
func (m *Manager) Drain(sel, maxAmount int, simulate bool) items.FluidStack {
	if sel != AnyTank {
		t := m.Tank(sel)
		if t == nil {
			return items.FluidStack{}
		}
		return t.Drain(maxAmount, simulate)
	}
	for _, t := range m.tanks {
		if !t.IsEmpty() {
			return t.Drain(maxAmount, simulate)
		}
	}
	return items.FluidStack{}
}

// DrainFluid removes up to want.Amount of want.Fluid. Tanks holding a
// different fluid are never drained.
func (m *Manager) DrainFluid(sel int, want items.FluidStack, simulate bool) items.FluidStack {
	if want.IsEmpty() {
		return items.FluidStack{}
	}
	if sel != AnyTank {
		t := m.Tank(sel)
		if t == nil || t.fluid != want.Fluid {
			return items.FluidStack{}
		}
		return t.Drain(want.Amount, simulate)
	}
	for _, t := range m.tanks {
		if t.fluid == want.Fluid {
			return t.Drain(want.Amount, simulate)
		}
	}
	return items.FluidStack{}
}

// CanFill reports whether some tank would accept the fluid.
func (m *Manager) CanFill(fluid items.FluidID) bool {
	return m.Fill(AnyTank, items.FluidStack{Fluid: fluid, Amount: 1}, true) > 0
}

// MaxChannelID returns the highest channel the tanks use, -1 with no tanks.
// A composing unit numbers its own fields from MaxChannelID()+1.
func (m *Manager) MaxChannelID() int {
	return ChannelsPerTank*len(m.tanks) - 1
}

// WriteSync implements deltasync.Source.
func (m *Manager) WriteSync(w *deltasync.Writer) {
	for i, t := range m.tanks {
		base := i * ChannelsPerTank
		w.Put(base, t.capacity)
		w.Put(base+1, m.catalog.FluidIndex(t.fluid))
		w.Put(base+2, t.amount)
	}
}

// ApplySync implements deltasync.Sink for observer-side copies.
func (m *Manager) ApplySync(channel, value int) bool {
	if channel < 0 || channel > m.MaxChannelID() {
		return false
	}
	t := m.tanks[channel/ChannelsPerTank]
	switch channel % ChannelsPerTank {
	case 0:
		t.setCapacity(value)
	case 1:
		t.setFluid(m.catalog.FluidAt(value))
	case 2:
		t.setAmount(value)
	}
	return true
}

// Snapshot returns the tanks' content in manager order.
func (m *Manager) Snapshot() []TankState {
	out := make([]TankState, len(m.tanks))
	for i, t := range m.tanks {
		out[i] = TankState{Fluid: t.fluid, Amount: t.amount}
	}
	return out
}

// Restore loads tank content saved by Snapshot. Every state is checked
// before any tank is changed.
func (m *Manager) Restore(states []TankState) error {
	if len(states) > len(m.tanks) {
		return fmt.Errorf("restore %d tanks into %d: %w", len(states), len(m.tanks), ErrTankState)
	}
	for i, s := range states {
		t := m.tanks[i]
		switch {
		case s.Amount < 0 || s.Amount > t.capacity:
			return fmt.Errorf("tank %d: amount %d outside [0, %d]: %w", i, s.Amount, t.capacity, ErrTankState)
		case s.Amount > 0 && s.Fluid == "":
			return fmt.Errorf("tank %d: amount %d without fluid: %w", i, s.Amount, ErrTankState)
		case s.Amount > 0 && !m.catalog.IsFluidRegistered(s.Fluid):
			return fmt.Errorf("tank %d: %s: %w", i, s.Fluid, items.ErrUnknownFluid)
		case s.Amount > 0 && !t.Accepts(s.Fluid):
			return fmt.Errorf("tank %d: filter rejects %s: %w", i, s.Fluid, ErrTankState)
		}
	}
	for i, t := range m.tanks {
		t.Empty()
		if i < len(states) && states[i].Amount > 0 {
			t.fluid = states[i].Fluid
			t.amount = states[i].Amount
		}
	}
	return nil
}
