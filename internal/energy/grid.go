package energy

import (
	"sync"

	"github.com/talgya/mini-factory/internal/items"
)

// Grid is the built-in energy network: a shared supply that refills every
// tick and is drawn down by connected adapters in connection order.
type Grid struct {
	mu       sync.Mutex
	enabled  bool
	perTick  int
	supply   int
	draw     int
	consumed uint64
}

// NewGrid creates a grid supplying perTick EU each tick. A disabled grid
// reports itself unavailable, as if no network were installed.
func NewGrid(perTick int, enabled bool) *Grid {
	return &Grid{perTick: perTick, enabled: enabled, supply: perTick}
}

func (g *Grid) Name() string    { return "grid" }
func (g *Grid) Available() bool { return g.enabled }

// NewAdapter connects a sink with the given buffer capacity. Sinks pull at
// most their own capacity per tick.
func (g *Grid) NewAdapter(capacity int) Adapter {
	return &GridAdapter{grid: g, capacity: capacity}
}

// Tick refills the supply. The simulation calls it once per tick before
// units update.
func (g *Grid) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.supply = g.perTick
	g.draw = 0
}

// Consumed returns the total EU drawn since creation.
func (g *Grid) Consumed() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consumed
}

// LastDraw returns the EU drawn during the current tick.
func (g *Grid) LastDraw() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.draw
}

func (g *Grid) take(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	got := max(0, min(n, g.supply))
	g.supply -= got
	g.draw += got
	g.consumed += uint64(got)
	return got
}

// GridAdapter is a sink's buffer on the built-in grid.
type GridAdapter struct {
	grid     *Grid
	stored   int
	capacity int
}

func (a *GridAdapter) CanUseEnergy(amount int) bool { return a.stored >= amount }

func (a *GridAdapter) UseEnergy(amount int) bool {
	if a.stored < amount {
		return false
	}
	a.stored -= amount
	return true
}

func (a *GridAdapter) Discharge(battery *items.Stack, maxAmount int) int {
	if battery == nil {
		return 0
	}
	charge := items.Charge(battery)
	n := max(0, min(charge, maxAmount, a.capacity-a.stored))
	if n == 0 {
		return 0
	}
	items.SetCharge(battery, charge-n)
	a.stored += n
	return n
}

func (a *GridAdapter) EnergyStored() int { return a.stored }
func (a *GridAdapter) Capacity() int     { return a.capacity }

func (a *GridAdapter) SetCapacity(capacity int) {
	a.capacity = max(0, capacity)
	a.stored = min(a.stored, a.capacity)
}

func (a *GridAdapter) SetEnergyStored(amount int) {
	a.stored = max(0, min(amount, a.capacity))
}

func (a *GridAdapter) Update() {
	if space := a.capacity - a.stored; space > 0 {
		a.stored += a.grid.take(space)
	}
}
