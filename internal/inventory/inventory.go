// Package inventory provides fixed-size slot inventories with per-slot
// insertion and extraction rules.
package inventory

import (
	"errors"
	"fmt"

	"github.com/talgya/mini-factory/internal/items"
)

// Side is the face of a unit an automation request comes from.
type Side uint8

const (
	SideUnknown Side = iota
	SideDown
	SideUp
	SideNorth
	SideSouth
	SideWest
	SideEast
)

var (
	ErrSlotRange    = errors.New("slot out of range")
	ErrSlotRejects  = errors.New("slot does not accept stack")
	ErrNotExtracted = errors.New("slot does not allow extraction")
	ErrStackSize    = errors.New("stack size out of range")
)

// Rules decides what may enter and leave each slot. Nil funcs allow everything.
type Rules struct {
	Accepts    func(slot int, s *items.Stack) bool
	CanExtract func(slot int, s *items.Stack, side Side) bool
}

// Inventory is an ordered, fixed-length sequence of optional stacks.
type Inventory struct {
	name    string
	slots   []*items.Stack
	rules   Rules
	catalog *items.Catalog
}

// New creates an empty inventory. The catalog supplies stack limits.
func New(name string, size int, catalog *items.Catalog, rules Rules) *Inventory {
	return &Inventory{
		name:    name,
		slots:   make([]*items.Stack, size),
		rules:   rules,
		catalog: catalog,
	}
}

// Name returns the inventory's persistence name.
func (inv *Inventory) Name() string { return inv.name }

// Size returns the number of slots.
func (inv *Inventory) Size() int { return len(inv.slots) }

// Get returns the stack in a slot; nil for empty or out of range. The
// returned stack is owned by the inventory and must not be mutated.
func (inv *Inventory) Get(slot int) *items.Stack {
	if slot < 0 || slot >= len(inv.slots) {
		return nil
	}
	return inv.slots[slot]
}

// Accepts reports whether the slot would take the stack from outside.
func (inv *Inventory) Accepts(slot int, s *items.Stack) bool {
	if slot < 0 || slot >= len(inv.slots) {
		return false
	}
	if inv.rules.Accepts == nil {
		return true
	}
	return inv.rules.Accepts(slot, s)
}

// CanExtract reports whether the slot's content may be pulled from the given side.
func (inv *Inventory) CanExtract(slot int, side Side) bool {
	s := inv.Get(slot)
	if s == nil {
		return false
	}
	if inv.rules.CanExtract == nil {
		return true
	}
	return inv.rules.CanExtract(slot, s, side)
}

// Set stores a stack arriving from outside the unit. The slot's accept
// rule is checked; clearing a slot (nil) is always allowed.
func (inv *Inventory) Set(slot int, s *items.Stack) error {
	return inv.mutate(slot, s, true)
}

// Place stores a stack written by the owning unit itself (crafted output,
// emptied container). Only range and stack-size limits are checked.
func (inv *Inventory) Place(slot int, s *items.Stack) error {
	return inv.mutate(slot, s, false)
}

// mutate is the only code path that writes to slots.
func (inv *Inventory) mutate(slot int, s *items.Stack, external bool) error {
	if slot < 0 || slot >= len(inv.slots) {
		return fmt.Errorf("%s[%d]: %w", inv.name, slot, ErrSlotRange)
	}
	if items.Empty(s) {
		inv.slots[slot] = nil
		return nil
	}
	if s.Size > inv.catalog.MaxStackSize(s.Item) {
		return fmt.Errorf("%s[%d] %s: %w", inv.name, slot, s, ErrStackSize)
	}
	if external && !inv.Accepts(slot, s) {
		return fmt.Errorf("%s[%d] %s: %w", inv.name, slot, s, ErrSlotRejects)
	}
	inv.slots[slot] = s.Copy()
	return nil
}

// Extract removes up to n items from a slot on behalf of an outside
// requester, honouring the extraction rule.
func (inv *Inventory) Extract(slot, n int, side Side) (*items.Stack, error) {
	if !inv.CanExtract(slot, side) {
		return nil, fmt.Errorf("%s[%d]: %w", inv.name, slot, ErrNotExtracted)
	}
	return inv.Decr(slot, n), nil
}

// Decr removes up to n items from a slot and returns them.
func (inv *Inventory) Decr(slot, n int) *items.Stack {
	s := inv.Get(slot)
	if s == nil || n <= 0 {
		return nil
	}
	if n >= s.Size {
		taken := s.Copy()
		_ = inv.mutate(slot, nil, false)
		return taken
	}
	rest := s.Split(s.Size - n)
	_ = inv.mutate(slot, rest, false)
	return s.Split(n)
}

// Grow adds n to the size of a non-empty slot, up to the stack limit.
// It returns how many items were added.
func (inv *Inventory) Grow(slot, n int) int {
	s := inv.Get(slot)
	if s == nil || n <= 0 {
		return 0
	}
	room := inv.catalog.MaxStackSize(s.Item) - s.Size
	add := min(room, n)
	if add <= 0 {
		return 0
	}
	grown := s.Split(s.Size + add)
	_ = inv.mutate(slot, grown, false)
	return add
}

// Stacks returns copies of the stacks in [start, start+count).
func (inv *Inventory) Stacks(start, count int) []*items.Stack {
	out := make([]*items.Stack, 0, count)
	for i := start; i < start+count && i < len(inv.slots); i++ {
		out = append(out, inv.slots[i].Copy())
	}
	return out
}

// Snapshot returns copies of every slot for persistence.
func (inv *Inventory) Snapshot() []*items.Stack {
	return inv.Stacks(0, len(inv.slots))
}

// Restore replaces the inventory's content from a snapshot. Extra entries
// are ignored and missing entries clear their slots.
func (inv *Inventory) Restore(stacks []*items.Stack) error {
	for i := range inv.slots {
		var s *items.Stack
		if i < len(stacks) {
			s = stacks[i]
		}
		if err := inv.mutate(i, s, false); err != nil {
			return err
		}
	}
	return nil
}

// Clear empties every slot.
func (inv *Inventory) Clear() {
	for i := range inv.slots {
		_ = inv.mutate(i, nil, false)
	}
}
