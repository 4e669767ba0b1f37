package config

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/recipes"
)

// RecipesConfig declares the recipe set registered at startup.
type RecipesConfig struct {
	Bottler    []BottlerRecipeConfig    `yaml:"bottler" validate:"dive"`
	Crafting   []CraftingRecipeConfig   `yaml:"crafting" validate:"dive"`
	Fabricator []FabricatorRecipeConfig `yaml:"fabricator" validate:"dive"`
	Smelting   []SmeltingRecipeConfig   `yaml:"smelting" validate:"dive"`
}

// BottlerRecipeConfig is an explicit container fill. Fills the container
// registry already knows are discovered without one.
type BottlerRecipeConfig struct {
	Cycles  int              `yaml:"cycles" validate:"gt=0"`
	Input   items.FluidStack `yaml:"input"`
	Can     items.ItemID     `yaml:"can" validate:"required"`
	Bottled *items.Stack     `yaml:"bottled" validate:"required"`
}

// IngredientConfig is one grid cell: a concrete item or an ore name.
type IngredientConfig struct {
	Item   items.ItemID `yaml:"item"`
	Damage *int         `yaml:"damage"` // nil matches damage 0; -1 matches any
	Ore    string       `yaml:"ore"`
}

// CraftingRecipeConfig is a shaped recipe when Rows is set, otherwise a
// shapeless one over Ingredients.
type CraftingRecipeConfig struct {
	ID          string                      `yaml:"id" validate:"required"`
	Output      *items.Stack                `yaml:"output" validate:"required"`
	Rows        []string                    `yaml:"rows" validate:"max=3"`
	Keys        map[string]IngredientConfig `yaml:"keys"`
	Ingredients []IngredientConfig          `yaml:"ingredients" validate:"max=9"`
	NoMirror    bool                        `yaml:"no_mirror"`
	PreserveTag bool                        `yaml:"preserve_tag"`
}

// FabricatorRecipeConfig is a cast pattern with its plan and molten cost.
type FabricatorRecipeConfig struct {
	ID     string                      `yaml:"id" validate:"required"`
	Plan   items.ItemID                `yaml:"plan"`
	Molten items.FluidStack            `yaml:"molten"`
	Output *items.Stack                `yaml:"output" validate:"required"`
	Rows   []string                    `yaml:"rows" validate:"required,max=3"`
	Keys   map[string]IngredientConfig `yaml:"keys"`
}

// SmeltingRecipeConfig melts one item into the fabricator's molten tank.
type SmeltingRecipeConfig struct {
	Resource     items.ItemID     `yaml:"resource" validate:"required"`
	Product      items.FluidStack `yaml:"product"`
	MeltingPoint int              `yaml:"melting_point" validate:"gt=0"`
}

func (i IngredientConfig) ingredient() items.Ingredient {
	if i.Ore != "" {
		return items.Ingredient{Ore: i.Ore}
	}
	if i.Item == "" {
		return items.Ingredient{}
	}
	s := items.NewStack(i.Item, 1)
	if i.Damage != nil {
		s.Damage = *i.Damage
	}
	return items.Ingredient{Stack: s}
}

func keyMap(id string, keys map[string]IngredientConfig) (map[rune]items.Ingredient, error) {
	out := make(map[rune]items.Ingredient, len(keys))
	for k, ing := range keys {
		r, size := utf8.DecodeRuneInString(k)
		if size != len(k) || r == ' ' {
			return nil, fmt.Errorf("recipe %s: key %q must be one non-space character: %w", id, k, recipes.ErrInvalidRecipe)
		}
		out[r] = ing.ingredient()
	}
	return out, nil
}

// output normalizes a configured output; a missing size means one.
func output(s *items.Stack) *items.Stack {
	if s == nil {
		return nil
	}
	c := s.Copy()
	if c.Size == 0 {
		c.Size = 1
	}
	return c
}

// checkReferences rejects recipes naming items or fluids the catalog
// does not know.
func (rc *RecipesConfig) checkReferences(cat *items.Catalog) error {
	var refs []items.ItemID
	var fluids []items.FluidID
	addKeys := func(keys map[string]IngredientConfig) {
		for _, k := range keys {
			refs = append(refs, k.Item)
		}
	}
	for _, r := range rc.Bottler {
		refs = append(refs, r.Can, r.Bottled.Item)
		fluids = append(fluids, r.Input.Fluid)
	}
	for _, r := range rc.Crafting {
		refs = append(refs, r.Output.Item)
		addKeys(r.Keys)
		for _, ing := range r.Ingredients {
			refs = append(refs, ing.Item)
		}
	}
	for _, r := range rc.Fabricator {
		refs = append(refs, r.Plan, r.Output.Item)
		fluids = append(fluids, r.Molten.Fluid)
		addKeys(r.Keys)
	}
	for _, r := range rc.Smelting {
		refs = append(refs, r.Resource)
		fluids = append(fluids, r.Product.Fluid)
	}

	for _, id := range refs {
		if id != "" && cat.Def(id) == nil {
			return fmt.Errorf("recipes: %q: %w", id, items.ErrUnknownItem)
		}
	}
	for _, f := range fluids {
		if f != "" && !cat.IsFluidRegistered(f) {
			return fmt.Errorf("recipes: %q: %w", f, items.ErrUnknownFluid)
		}
	}
	return nil
}

// BuildCatalog registers every configured item, fluid, ore and container.
func (c *Config) BuildCatalog() (*items.Catalog, error) {
	cat := items.NewCatalog()
	for _, def := range c.Catalog.Items {
		if err := cat.RegisterItem(def); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	for _, f := range c.Catalog.Fluids {
		if err := cat.RegisterFluid(f); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	// Ore names register in a stable order so equivalents list the same way
	// on every start.
	names := make([]string, 0, len(c.Catalog.Ores))
	for name := range c.Catalog.Ores {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, id := range c.Catalog.Ores[name] {
			if err := cat.RegisterOre(name, id); err != nil {
				return nil, fmt.Errorf("catalog: ore %s: %w", name, err)
			}
		}
	}
	for _, cd := range c.Catalog.Containers {
		if err := cat.RegisterContainer(cd); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	return cat, nil
}

// BuildRecipes creates the recipe service and registers every configured
// recipe. Any invalid recipe fails the whole build.
func (c *Config) BuildRecipes(cat *items.Catalog) (*recipes.Service, error) {
	if err := c.Recipes.checkReferences(cat); err != nil {
		return nil, err
	}
	svc := recipes.NewService(cat)

	for _, r := range c.Recipes.Bottler {
		if err := svc.Bottler.Add(r.Cycles, r.Input, items.NewStack(r.Can, 1), output(r.Bottled)); err != nil {
			return nil, err
		}
	}

	for _, r := range c.Recipes.Crafting {
		if len(r.Rows) == 0 {
			ings := make([]items.Ingredient, len(r.Ingredients))
			for i, ing := range r.Ingredients {
				ings[i] = ing.ingredient()
			}
			if err := svc.Crafting.AddShapeless(r.ID, output(r.Output), ings...); err != nil {
				return nil, err
			}
			continue
		}
		keys, err := keyMap(r.ID, r.Keys)
		if err != nil {
			return nil, err
		}
		var opts []recipes.ShapedOption
		if r.NoMirror {
			opts = append(opts, recipes.NoMirror())
		}
		if r.PreserveTag {
			opts = append(opts, recipes.PreserveTag())
		}
		if err := svc.Crafting.AddShaped(r.ID, output(r.Output), r.Rows, keys, opts...); err != nil {
			return nil, err
		}
	}

	for _, r := range c.Recipes.Fabricator {
		keys, err := keyMap(r.ID, r.Keys)
		if err != nil {
			return nil, err
		}
		var plan *items.Stack
		if r.Plan != "" {
			plan = items.NewStack(r.Plan, 1)
		}
		if err := svc.Fabricator.Add(r.ID, plan, r.Molten, output(r.Output), r.Rows, keys); err != nil {
			return nil, err
		}
	}

	for _, r := range c.Recipes.Smelting {
		if err := svc.Smelting.Add(items.NewStack(r.Resource, 1), r.Product, r.MeltingPoint); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

// Bootstrap builds the catalog and the recipe service.
func (c *Config) Bootstrap() (*recipes.Service, error) {
	cat, err := c.BuildCatalog()
	if err != nil {
		return nil, err
	}
	return c.BuildRecipes(cat)
}
