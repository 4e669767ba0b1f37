package inventory

import "github.com/talgya/mini-factory/internal/items"

// addStack places as much of stack as fits into [start, start+count),
// topping up identical stacks before using empty slots. It returns how
// many items fit; with doAdd false nothing is changed.
func (inv *Inventory) addStack(stack *items.Stack, start, count int, doAdd bool) int {
	if items.Empty(stack) {
		return 0
	}
	end := min(start+count, inv.Size())
	limit := inv.catalog.MaxStackSize(stack.Item)
	added := 0

	for i := start; i < end && added < stack.Size; i++ {
		s := inv.Get(i)
		if s == nil || !items.IsIdenticalItem(s, stack) {
			continue
		}
		room := limit - s.Size
		if room <= 0 {
			continue
		}
		n := min(stack.Size-added, room)
		if doAdd {
			inv.Grow(i, n)
		}
		added += n
	}

	for i := start; i < end && added < stack.Size; i++ {
		if inv.Get(i) != nil {
			continue
		}
		n := min(stack.Size-added, limit)
		if doAdd {
			_ = inv.Place(i, stack.Split(n))
		}
		added += n
	}
	return added
}

// TryAddStack adds stack to the slots [start, start+count). With all set,
// the whole stack must fit, otherwise any progress counts. It reports
// whether the addition succeeded; with doAdd false the inventory is only
// inspected.
func (inv *Inventory) TryAddStack(stack *items.Stack, start, count int, all, doAdd bool) bool {
	fits := inv.addStack(stack, start, count, false)
	ok := fits > 0
	if all {
		ok = fits == stack.Size
	}
	if ok && doAdd {
		inv.addStack(stack, start, count, true)
	}
	return ok
}

// TryAddAnywhere is TryAddStack over the whole inventory with all set.
func (inv *Inventory) TryAddAnywhere(stack *items.Stack, doAdd bool) bool {
	return inv.TryAddStack(stack, 0, inv.Size(), true, doAdd)
}

// RemoveSets takes count copies of set out of the slots [start,
// start+n), matching by crafting equivalence. The returned slice is
// aligned with set and holds the stacks actually taken for one copy. It
// returns nil, leaving the inventory untouched, when not enough is stocked.
func (inv *Inventory) RemoveSets(count int, set []*items.Stack, start, n int, oreDict, craftingTools bool) []*items.Stack {
	stock := inv.Stacks(start, n)
	if inv.catalog.ContainsSets(set, stock, oreDict, craftingTools) < count {
		return nil
	}

	removed := make([]*items.Stack, len(set))
	for i, want := range set {
		if want == nil {
			continue
		}
		removed[i] = inv.removeEquivalent(want, want.Size*count, start, n, oreDict, craftingTools)
		if removed[i] != nil {
			removed[i].Size = want.Size
		}
	}
	return removed
}

// removeEquivalent takes amount items equivalent to want, preferring
// exact crafting equivalents over ore-dictionary ones.
func (inv *Inventory) removeEquivalent(want *items.Stack, amount, start, n int, oreDict, craftingTools bool) *items.Stack {
	end := min(start+n, inv.Size())
	var taken *items.Stack
	passes := []bool{false}
	if oreDict {
		passes = append(passes, true)
	}
	for _, ore := range passes {
		for i := start; i < end && amount > 0; i++ {
			s := inv.Get(i)
			if s == nil || !inv.catalog.IsCraftingEquivalent(want, s, ore, craftingTools) {
				continue
			}
			if taken != nil && !items.IsIdenticalItem(taken, s) {
				continue
			}
			got := inv.Decr(i, amount)
			if got == nil {
				continue
			}
			amount -= got.Size
			if taken == nil {
				taken = got
			} else {
				taken.Size += got.Size
			}
		}
	}
	return taken
}
