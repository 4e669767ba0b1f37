package recipes

import (
	"fmt"

	"github.com/talgya/mini-factory/internal/items"
)

// DefaultBottlerCycles is the work requirement of discovered fill recipes.
const DefaultBottlerCycles = 5

// BottlerRecipe fills one empty container with fluid.
type BottlerRecipe struct {
	Cycles  int              `json:"cycles" yaml:"cycles"`
	Input   items.FluidStack `json:"input" yaml:"input"`
	Can     *items.Stack     `json:"can" yaml:"can"`
	Bottled *items.Stack     `json:"bottled" yaml:"bottled"`
}

// Key identifies the recipe by fluid and container.
func (r *BottlerRecipe) Key() string {
	return bottlerKey(r.Input.Fluid, r.Can)
}

func bottlerKey(fluid items.FluidID, can *items.Stack) string {
	return fmt.Sprintf("%s|%s:%d", fluid, can.Item, can.Damage)
}

// Matches reports whether the held fluid covers the recipe and the held
// item is the recipe's container.
func (r *BottlerRecipe) Matches(held items.FluidStack, empty *items.Stack) bool {
	return held.ContainsFluid(r.Input) && items.IsItemEqual(r.Can, empty)
}

// BottlerRegistry resolves fill recipes. Pairs the catalog knows how to
// fill but nobody registered are synthesized on first use and cached.
type BottlerRegistry struct {
	*Registry[*BottlerRecipe]
	catalog *items.Catalog
}

// NewBottlerRegistry creates an empty registry over the catalog.
func NewBottlerRegistry(catalog *items.Catalog) *BottlerRegistry {
	return &BottlerRegistry{Registry: NewRegistry[*BottlerRecipe](), catalog: catalog}
}

// Add registers a fill recipe.
func (b *BottlerRegistry) Add(cycles int, input items.FluidStack, can, bottled *items.Stack) error {
	switch {
	case cycles <= 0:
		return fmt.Errorf("bottler: cycles %d: %w", cycles, ErrInvalidRecipe)
	case input.IsEmpty():
		return fmt.Errorf("bottler: no input fluid: %w", ErrInvalidRecipe)
	case items.Empty(can) || items.Empty(bottled):
		return fmt.Errorf("bottler: container and product required: %w", ErrInvalidRecipe)
	}
	rec := &BottlerRecipe{Cycles: cycles, Input: input, Can: can.Split(1), Bottled: bottled.Copy()}
	if !b.Register(rec) {
		return fmt.Errorf("bottler %s: %w", rec.Key(), ErrDuplicateRecipe)
	}
	return nil
}

// Find resolves the recipe for the held fluid and empty container,
// discovering one through the catalog's container registry when none is
// registered. At most one recipe is ever stored per (fluid, container).
func (b *BottlerRegistry) Find(held items.FluidStack, empty *items.Stack) (*BottlerRecipe, bool) {
	if held.IsEmpty() || items.Empty(empty) || !b.catalog.IsEmptyContainer(empty) {
		return nil, false
	}
	if rec, ok := b.Registry.Find(func(r *BottlerRecipe) bool { return r.Matches(held, empty) }); ok {
		return rec, true
	}

	filled := b.catalog.FilledContainer(held, empty)
	if filled == nil {
		return nil, false
	}
	input, _ := b.catalog.FluidInContainer(filled)
	rec, _ := b.LoadOrStore(&BottlerRecipe{
		Cycles:  DefaultBottlerCycles,
		Input:   input,
		Can:     empty.Split(1),
		Bottled: filled,
	})
	// A registered recipe for the same pair may need more fluid than held.
	if !rec.Matches(held, empty) {
		return nil, false
	}
	return rec, true
}

// IsInput reports whether the fluid can be bottled at all.
func (b *BottlerRegistry) IsInput(fluid items.FluidID) bool {
	return b.catalog.IsFluidRegistered(fluid)
}
