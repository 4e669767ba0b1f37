// Package fluids provides capacity-bounded fluid tanks and the tank manager
// that groups a unit's tanks under one sync and persistence surface.
package fluids

import (
	"slices"

	"github.com/talgya/mini-factory/internal/items"
)

// Tank holds at most capacity units of a single fluid. It holds no fluid
// kind exactly when it is empty.
type Tank struct {
	capacity int
	fluid    items.FluidID
	amount   int
	filter   []items.FluidID
}

// NewTank creates an empty tank accepting any fluid.
func NewTank(capacity int) *Tank {
	return &Tank{capacity: capacity}
}

// NewFilteredTank creates an empty tank that only accepts the listed fluids.
func NewFilteredTank(capacity int, allowed ...items.FluidID) *Tank {
	return &Tank{capacity: capacity, filter: allowed}
}

// Fluid returns the tank content.
func (t *Tank) Fluid() items.FluidStack {
	return items.FluidStack{Fluid: t.fluid, Amount: t.amount}
}

func (t *Tank) Amount() int   { return t.amount }
func (t *Tank) Capacity() int { return t.capacity }
func (t *Tank) Space() int    { return t.capacity - t.amount }
func (t *Tank) IsEmpty() bool { return t.amount == 0 }

// Accepts reports whether the tank's filter allows the fluid.
func (t *Tank) Accepts(fluid items.FluidID) bool {
	if fluid == "" {
		return false
	}
	return len(t.filter) == 0 || slices.Contains(t.filter, fluid)
}

// Fill adds up to res.Amount of res.Fluid and returns how much was (or,
// when simulating, would be) accepted.
func (t *Tank) Fill(res items.FluidStack, simulate bool) int {
	if res.IsEmpty() || !t.Accepts(res.Fluid) {
		return 0
	}
	if t.fluid != "" && t.fluid != res.Fluid {
		return 0
	}
	n := min(res.Amount, t.Space())
	if n <= 0 || simulate {
		return max(n, 0)
	}
	t.fluid = res.Fluid
	t.amount += n
	return n
}

// Drain removes up to maxAmount and returns what was (or would be) removed.
func (t *Tank) Drain(maxAmount int, simulate bool) items.FluidStack {
	n := min(maxAmount, t.amount)
	if n <= 0 {
		return items.FluidStack{}
	}
	out := items.FluidStack{Fluid: t.fluid, Amount: n}
	if simulate {
		return out
	}
	t.amount -= n
	if t.amount == 0 {
		t.fluid = ""
	}
	return out
}

// Empty discards the tank's content.
func (t *Tank) Empty() {
	t.fluid = ""
	t.amount = 0
}

func (t *Tank) setFluid(fluid items.FluidID) {
	t.fluid = fluid
	if fluid == "" {
		t.amount = 0
	}
}

func (t *Tank) setAmount(amount int) {
	t.amount = max(0, min(amount, t.capacity))
	if t.amount == 0 {
		t.fluid = ""
	}
}

func (t *Tank) setCapacity(capacity int) {
	t.capacity = max(0, capacity)
	t.setAmount(t.amount)
}
