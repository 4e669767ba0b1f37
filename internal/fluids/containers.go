package fluids

import (
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
)

// FillContainers fills one empty container from inSlot with fluid from the
// tanks and moves it to outSlot. It reports whether a container was (or,
// with doFill false, could be) filled.
func FillContainers(m *Manager, inv *inventory.Inventory, inSlot, outSlot int, fluid items.FluidID, doFill bool) bool {
	empty := inv.Get(inSlot)
	if empty == nil || fluid == "" {
		return false
	}
	held := m.DrainFluid(AnyTank, items.FluidStack{Fluid: fluid, Amount: 1 << 30}, true)
	filled := m.catalog.FilledContainer(held, empty)
	if filled == nil {
		return false
	}
	needed, _ := m.catalog.FluidInContainer(filled)
	if !inv.TryAddStack(filled, outSlot, 1, true, false) {
		return false
	}
	if !doFill {
		return true
	}
	m.DrainFluid(AnyTank, needed, false)
	inv.Decr(inSlot, 1)
	inv.TryAddStack(filled, outSlot, 1, true, true)
	return true
}

// DrainContainers empties one filled container from slot into the tanks.
// The emptied container replaces the filled one; a stack of several filled
// containers is only drained when the container is consumed, since the
// empty one would have nowhere to go.
func DrainContainers(m *Manager, inv *inventory.Inventory, slot int) bool {
	filled := inv.Get(slot)
	content, ok := m.catalog.FluidInContainer(filled)
	if !ok {
		return false
	}
	if m.Fill(AnyTank, content, true) != content.Amount {
		return false
	}

	leftover := m.catalog.EmptyContainer(filled)
	if leftover != nil && filled.Size > 1 {
		return false
	}

	m.Fill(AnyTank, content, false)
	if leftover != nil {
		_ = inv.Place(slot, leftover)
	} else {
		inv.Decr(slot, 1)
	}
	return true
}
