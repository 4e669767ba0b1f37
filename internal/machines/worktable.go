package machines

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/recipes"
	"github.com/talgya/mini-factory/internal/worldctx"
)

const (
	// WorktableResultSlot is the result cell of the crafting inventory.
	WorktableResultSlot = recipes.GridSize
	// WorktableInventorySize is the number of stock slots.
	WorktableInventorySize = 18

	worktableCheckInterval = 20
)

// Worktable crafts from its stock inventory using the layout in its
// crafting grid. The grid holds a template only; ingredients are taken
// from stock by crafting equivalence. Crafted layouts are remembered.
type Worktable struct {
	Base
	craft   *inventory.Inventory
	inv     *inventory.Inventory
	memory  *recipes.Memory
	current *recipes.MemorizedRecipe
	dropped int

	syncedCanCraft bool
}

// NewWorktable creates an empty worktable.
func NewWorktable(id uuid.UUID, pos worldctx.Pos, env *Env) *Worktable {
	cat := env.Catalog()
	return &Worktable{
		Base:   newBase(KindWorktable, id, pos, env),
		craft:  inventory.New("crafting", recipes.GridSize+1, cat, inventory.Rules{}),
		inv:    inventory.New("items", WorktableInventorySize, cat, inventory.Rules{}),
		memory: recipes.NewMemory(),
	}
}

func (w *Worktable) Inventory() *inventory.Inventory { return w.inv }
func (w *Worktable) Memory() *recipes.Memory         { return w.memory }

// Dropped returns how many returned container items found no room.
func (w *Worktable) Dropped() int { return w.dropped }

// Grid returns the current template layout.
func (w *Worktable) Grid() recipes.Grid {
	var g recipes.Grid
	for i := range recipes.GridSize {
		g[i] = w.craft.Get(i).Copy()
	}
	return g
}

// Result returns what the template crafts, or nil.
func (w *Worktable) Result() *items.Stack { return w.craft.Get(WorktableResultSlot).Copy() }

// SetRecipe lays out a template. Each cell holds a single item.
func (w *Worktable) SetRecipe(g recipes.Grid) {
	for i, s := range g {
		_ = w.craft.Place(i, s.Split(1))
	}
	w.updateCraftResult()
}

// ChooseRecipe loads a remembered layout into the grid. An index of
// recipes.MemoryCapacity or more clears the grid instead.
func (w *Worktable) ChooseRecipe(index int) bool {
	if index >= recipes.MemoryCapacity {
		w.craft.Clear()
		w.current = nil
		return true
	}
	g, ok := w.memory.Layout(index)
	if !ok {
		return false
	}
	w.SetRecipe(g)
	return true
}

func (w *Worktable) updateCraftResult() {
	g := w.Grid()
	out := w.env.Recipes.Crafting.FindMatching(g)
	if out == nil {
		w.current = nil
	} else {
		w.current = &recipes.MemorizedRecipe{Grid: g, Output: out}
	}
	_ = w.craft.Place(WorktableResultSlot, out)
}

// CanCraft reports whether stock covers the template.
func (w *Worktable) CanCraft() bool {
	if w.current == nil {
		return false
	}
	stock := w.inv.Stacks(0, w.inv.Size())
	return recipes.CanCraft(w.env.Recipes.Crafting, w.current.Grid, w.current.Output, stock)
}

// Craft takes one set of ingredients out of stock and returns the result.
// Container items left by the ingredients go back into stock.
func (w *Worktable) Craft(tick uint64) (*items.Stack, error) {
	if w.current == nil {
		return nil, fmt.Errorf("worktable %s: no recipe: %w", w.id, ErrCannotCraft)
	}
	if !w.CanCraft() {
		return nil, fmt.Errorf("worktable %s: %s: missing ingredients: %w", w.id, w.current.Output, ErrCannotCraft)
	}
	removed := w.inv.RemoveSets(1, w.current.Grid.Stacks(), 0, w.inv.Size(), true, true)
	if removed == nil {
		return nil, fmt.Errorf("worktable %s: %s: missing ingredients: %w", w.id, w.current.Output, ErrCannotCraft)
	}

	out := w.env.Recipes.Crafting.FindMatching(recipes.GridOf(removed...))
	if out == nil {
		out = w.current.Output.Copy()
	}
	w.returnContainers(removed)
	w.memory.Memorize(w.current.Grid, w.current.Output, tick)
	w.updateCraftResult()
	return out, nil
}

func (w *Worktable) returnContainers(used []*items.Stack) {
	cat := w.env.Catalog()
	for _, s := range used {
		if s == nil {
			continue
		}
		var back *items.Stack
		if d := cat.Def(s.Item); d != nil && d.ContainerItem != "" {
			back = items.NewStack(d.ContainerItem, 1)
		} else if s.Size > 1 {
			back = s.Split(s.Size - 1)
		}
		if back == nil || w.inv.TryAddAnywhere(back, true) {
			continue
		}
		w.dropped += back.Size
		slog.Warn("worktable stock full, container item dropped", "unit", w.id, "item", back)
	}
}

// ToggleLock pins or unpins a remembered layout.
func (w *Worktable) ToggleLock(index int) bool { return w.memory.ToggleLock(index) }

// Validate prunes remembered layouts that no longer craft.
func (w *Worktable) Validate() {
	if n := w.memory.Validate(w.env.Recipes.Crafting); n > 0 {
		slog.Info("worktable pruned recipe memory", "unit", w.id, "dropped", n)
	}
	w.updateCraftResult()
}

func (w *Worktable) Tick(uint64) {
	w.step()
	if !w.updateOnInterval(worktableCheckInterval) {
		return
	}
	if w.errors.SetCondition(w.current == nil, errorlogic.NoRecipe) {
		w.errors.SetCondition(false, errorlogic.NoResource)
		return
	}
	w.errors.SetCondition(!w.CanCraft(), errorlogic.NoResource)
}

func (w *Worktable) WriteSync(wr *deltasync.Writer) {
	wr.Put(0, w.errors.Mask())
	wr.Put(1, w.memory.Len())
	wr.PutBool(2, w.CanCraft())
}

// ApplySync mirrors what an observer can see. The remembered layout
// count is informational and only the craftable flag is kept.
func (w *Worktable) ApplySync(channel, value int) bool {
	switch channel {
	case 0:
		w.errors.SetMask(value)
	case 1:
	case 2:
		w.syncedCanCraft = value != 0
	default:
		return false
	}
	return true
}

func (w *Worktable) Status() Status {
	s := w.status()
	if w.current != nil {
		s.Recipe = w.current.Output.String()
	}
	s.Slots = map[string][]*items.Stack{
		w.craft.Name(): w.craft.Snapshot(),
		w.inv.Name():   w.inv.Snapshot(),
	}
	return s
}

// WorktableState is the worktable's persisted state.
type WorktableState struct {
	Crafting []*items.Stack            `json:"crafting"`
	Slots    []*items.Stack            `json:"slots"`
	Memory   []recipes.MemorizedRecipe `json:"memory"`
}

func (w *Worktable) NewState() any { return &WorktableState{} }

func (w *Worktable) SaveState() any {
	return &WorktableState{
		Crafting: w.craft.Snapshot(),
		Slots:    w.inv.Snapshot(),
		Memory:   w.memory.Entries(),
	}
}

func (w *Worktable) LoadState(state any) error {
	s, err := stateAs[WorktableState](state)
	if err != nil {
		return err
	}
	if err := w.craft.Restore(s.Crafting); err != nil {
		return err
	}
	if err := w.inv.Restore(s.Slots); err != nil {
		return err
	}
	if err := w.memory.Restore(s.Memory); err != nil {
		return err
	}
	// The recipe book may have changed since the save.
	w.Validate()
	return nil
}
