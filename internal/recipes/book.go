package recipes

import (
	"fmt"

	"github.com/talgya/mini-factory/internal/items"
)

// Book is the world's crafting recipe list.
type Book struct {
	catalog *items.Catalog
	recipes *Registry[CraftingRecipe]
}

// NewBook creates an empty crafting book.
func NewBook(catalog *items.Catalog) *Book {
	return &Book{catalog: catalog, recipes: NewRegistry[CraftingRecipe]()}
}

// Catalog returns the catalog recipes are matched against.
func (b *Book) Catalog() *items.Catalog { return b.catalog }

// Add registers a recipe.
func (b *Book) Add(r CraftingRecipe) error {
	if r == nil {
		return fmt.Errorf("crafting: nil recipe: %w", ErrInvalidRecipe)
	}
	if !b.recipes.Register(r) {
		return fmt.Errorf("crafting %s: %w", r.Key(), ErrDuplicateRecipe)
	}
	return nil
}

// AddShaped builds and registers a shaped recipe.
func (b *Book) AddShaped(id string, output *items.Stack, rows []string, keys map[rune]items.Ingredient, opts ...ShapedOption) error {
	r, err := NewShaped(id, output, rows, keys, opts...)
	if err != nil {
		return err
	}
	return b.Add(r)
}

// AddShapeless builds and registers a shapeless recipe.
func (b *Book) AddShapeless(id string, output *items.Stack, ingredients ...items.Ingredient) error {
	r, err := NewShapeless(id, output, ingredients...)
	if err != nil {
		return err
	}
	return b.Add(r)
}

// Recipes returns every registered recipe.
func (b *Book) Recipes() []CraftingRecipe {
	return b.recipes.All()
}

// Len returns the number of registered recipes.
func (b *Book) Len() int { return b.recipes.Len() }

// FindMatching returns what the grid crafts, or nil. Tool repair takes
// precedence; grids whose tagged stacks disagree never craft.
func (b *Book) FindMatching(g Grid) *items.Stack {
	all := b.FindAllMatching(g)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// FindAllMatching returns the output of every recipe the grid satisfies.
func (b *Book) FindAllMatching(g Grid) []*items.Stack {
	if repaired := Repair(b.catalog, g); repaired != nil {
		return []*items.Stack{repaired}
	}
	if _, ok := CraftingTag(g); !ok {
		return nil
	}
	var out []*items.Stack
	for _, r := range b.recipes.All() {
		if r.Matches(b.catalog, g) {
			out = append(out, r.Result(g))
		}
	}
	return out
}

// Repair combines exactly two single stacks of the same repairable item.
// The result keeps both items' remaining durability plus a 5% bonus.
func Repair(cat *items.Catalog, g Grid) *items.Stack {
	var found []*items.Stack
	for _, s := range g {
		if !items.Empty(s) {
			found = append(found, s)
		}
	}
	if len(found) != 2 {
		return nil
	}
	a, b := found[0], found[1]
	def := cat.Def(a.Item)
	if a.Item != b.Item || a.Size != 1 || b.Size != 1 || def == nil || !def.Repairable || !def.Damageable() {
		return nil
	}

	remaining := (def.MaxDamage - a.Damage) + (def.MaxDamage - b.Damage)
	damage := max(def.MaxDamage-(remaining+def.MaxDamage*5/100), 0)
	return &items.Stack{Item: a.Item, Size: 1, Damage: damage}
}

// CanCraft reports whether available can craft the recipe laid out in
// recipeGrid and still produce output. Substitutes are placed greedily
// into a scratch grid, exact crafting equivalents before ore-dictionary
// ones, and the scratch grid is resolved again so a substitute that turns
// the grid into a different recipe is refused.
func CanCraft(book *Book, recipeGrid Grid, output *items.Stack, available []*items.Stack) bool {
	cat := book.catalog
	if cat.ContainsSets(recipeGrid.Stacks(), available, true, true) == 0 {
		return false
	}

	stock := items.CondenseStacks(available)
	var scratch Grid
	for slot, want := range recipeGrid {
		if want == nil {
			continue
		}
		scratch[slot] = takeOne(cat, stock, want, false)
		if scratch[slot] == nil {
			scratch[slot] = takeOne(cat, stock, want, true)
		}
	}
	return items.AreStacksEqual(book.FindMatching(scratch), output)
}

func takeOne(cat *items.Catalog, stock []*items.Stack, want *items.Stack, loose bool) *items.Stack {
	for _, s := range stock {
		if s.Size > 0 && cat.IsCraftingEquivalent(want, s, loose, loose) {
			s.Size--
			return s.Split(1)
		}
	}
	return nil
}
