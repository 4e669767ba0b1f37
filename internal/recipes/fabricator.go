package recipes

import (
	"fmt"

	"github.com/talgya/mini-factory/internal/items"
)

// FabricatorRecipe casts molten material through a grid pattern, optionally
// guided by a plan item.
type FabricatorRecipe struct {
	Plan    *items.Stack
	Molten  items.FluidStack
	Pattern *ShapedRecipe
}

func (r *FabricatorRecipe) Key() string          { return r.Pattern.Key() }
func (r *FabricatorRecipe) Output() *items.Stack { return r.Pattern.Output() }

// Matches checks plan, molten and grid. Molten must be present and hold
// at least the recipe's fluid.
func (r *FabricatorRecipe) Matches(cat *items.Catalog, plan *items.Stack, molten items.FluidStack, g Grid) bool {
	if r.Plan != nil && !cat.IsCraftingEquivalent(r.Plan, plan, false, false) {
		return false
	}
	if !molten.ContainsFluid(r.Molten) {
		return false
	}
	return r.Pattern.Matches(cat, g)
}

// FabricatorRegistry holds casting recipes.
type FabricatorRegistry struct {
	*Registry[*FabricatorRecipe]
	catalog *items.Catalog
}

// NewFabricatorRegistry creates an empty registry.
func NewFabricatorRegistry(catalog *items.Catalog) *FabricatorRegistry {
	return &FabricatorRegistry{Registry: NewRegistry[*FabricatorRecipe](), catalog: catalog}
}

// Add builds a shaped pattern and registers it with its plan and molten cost.
func (f *FabricatorRegistry) Add(id string, plan *items.Stack, molten items.FluidStack, output *items.Stack, rows []string, keys map[rune]items.Ingredient) error {
	if molten.IsEmpty() {
		return fmt.Errorf("fabricator %s: no molten input: %w", id, ErrInvalidRecipe)
	}
	pattern, err := NewShaped(id, output, rows, keys, NoMirror())
	if err != nil {
		return fmt.Errorf("fabricator: %w", err)
	}
	rec := &FabricatorRecipe{Plan: plan.Copy(), Molten: molten, Pattern: pattern}
	if !f.Register(rec) {
		return fmt.Errorf("fabricator %s: %w", id, ErrDuplicateRecipe)
	}
	return nil
}

// Find resolves the recipe for the plan slot, the molten tank and the grid.
func (f *FabricatorRegistry) Find(plan *items.Stack, molten items.FluidStack, g Grid) (*FabricatorRecipe, bool) {
	return f.Registry.Find(func(r *FabricatorRecipe) bool {
		return r.Matches(f.catalog, plan, molten, g)
	})
}

// IsPlan reports whether some recipe uses the stack as its plan.
func (f *FabricatorRegistry) IsPlan(s *items.Stack) bool {
	if s == nil {
		return false
	}
	_, ok := f.Registry.Find(func(r *FabricatorRecipe) bool {
		return r.Plan != nil && items.IsIdenticalItem(r.Plan, s)
	})
	return ok
}

// SmeltingRecipe melts a resource into molten product once the fabricator
// is at least MeltingPoint hot.
type SmeltingRecipe struct {
	Resource     *items.Stack     `yaml:"resource"`
	Product      items.FluidStack `yaml:"product"`
	MeltingPoint int              `yaml:"melting_point"`
}

func (r *SmeltingRecipe) Key() string {
	return fmt.Sprintf("%s:%d", r.Resource.Item, r.Resource.Damage)
}

// SmeltingRegistry holds fabricator smelting recipes.
type SmeltingRegistry struct {
	*Registry[*SmeltingRecipe]
	catalog *items.Catalog
}

// NewSmeltingRegistry creates an empty registry.
func NewSmeltingRegistry(catalog *items.Catalog) *SmeltingRegistry {
	return &SmeltingRegistry{Registry: NewRegistry[*SmeltingRecipe](), catalog: catalog}
}

// Add registers a smelting recipe.
func (s *SmeltingRegistry) Add(resource *items.Stack, product items.FluidStack, meltingPoint int) error {
	switch {
	case items.Empty(resource):
		return fmt.Errorf("smelting: no resource: %w", ErrInvalidRecipe)
	case product.IsEmpty():
		return fmt.Errorf("smelting %s: no product: %w", resource.Item, ErrInvalidRecipe)
	case meltingPoint <= 0:
		return fmt.Errorf("smelting %s: melting point %d: %w", resource.Item, meltingPoint, ErrInvalidRecipe)
	}
	rec := &SmeltingRecipe{Resource: resource.Split(1), Product: product, MeltingPoint: meltingPoint}
	if !s.Register(rec) {
		return fmt.Errorf("smelting %s: %w", rec.Key(), ErrDuplicateRecipe)
	}
	return nil
}

// FindByResource returns the recipe melting the given stack.
func (s *SmeltingRegistry) FindByResource(res *items.Stack) (*SmeltingRecipe, bool) {
	if items.Empty(res) {
		return nil, false
	}
	return s.Find(func(r *SmeltingRecipe) bool {
		return s.catalog.IsCraftingEquivalent(r.Resource, res, false, false)
	})
}

// FindByProduct returns a recipe producing the given fluid.
func (s *SmeltingRegistry) FindByProduct(product items.FluidStack) (*SmeltingRecipe, bool) {
	if product.IsEmpty() {
		return nil, false
	}
	return s.Find(func(r *SmeltingRecipe) bool {
		return r.Product.Fluid == product.Fluid
	})
}
