package recipes

import (
	"fmt"
	"strings"

	"github.com/talgya/mini-factory/internal/items"
)

// CraftingRecipe resolves a crafting grid to an output.
type CraftingRecipe interface {
	Keyed
	Matches(cat *items.Catalog, g Grid) bool
	Output() *items.Stack
	// Result is the stack crafted from g, which must match.
	Result(g Grid) *items.Stack
}

// ShapedRecipe is a width x height pattern that may sit anywhere in the
// grid and may be mirrored horizontally.
type ShapedRecipe struct {
	id          string
	width       int
	height      int
	ingredients []items.Ingredient
	output      *items.Stack
	mirrored    bool
	preserveTag bool
}

// ShapedOption configures a shaped recipe.
type ShapedOption func(*ShapedRecipe)

// NoMirror forbids the horizontally mirrored placement.
func NoMirror() ShapedOption { return func(r *ShapedRecipe) { r.mirrored = false } }

// PreserveTag copies the inputs' shared tag onto the output.
func PreserveTag() ShapedOption { return func(r *ShapedRecipe) { r.preserveTag = true } }

// NewShaped builds a shaped recipe from pattern rows and a key. A space in
// a row is an empty cell; every other rune must be in keys.
func NewShaped(id string, output *items.Stack, rows []string, keys map[rune]items.Ingredient, opts ...ShapedOption) (*ShapedRecipe, error) {
	if id == "" {
		return nil, fmt.Errorf("shaped recipe: empty id: %w", ErrInvalidRecipe)
	}
	if items.Empty(output) {
		return nil, fmt.Errorf("shaped recipe %s: no output: %w", id, ErrInvalidRecipe)
	}
	if len(rows) == 0 || len(rows) > GridWidth {
		return nil, fmt.Errorf("shaped recipe %s: %d rows: %w", id, len(rows), ErrInvalidRecipe)
	}
	width := len([]rune(rows[0]))
	if width == 0 || width > GridWidth {
		return nil, fmt.Errorf("shaped recipe %s: width %d: %w", id, width, ErrInvalidRecipe)
	}

	r := &ShapedRecipe{id: id, width: width, height: len(rows), output: output.Copy(), mirrored: true}
	for y, row := range rows {
		runes := []rune(row)
		if len(runes) != width {
			return nil, fmt.Errorf("shaped recipe %s: row %d is %d wide, want %d: %w", id, y, len(runes), width, ErrInvalidRecipe)
		}
		for _, c := range runes {
			if c == ' ' {
				r.ingredients = append(r.ingredients, items.Ingredient{})
				continue
			}
			ing, ok := keys[c]
			if !ok || ing.IsZero() {
				return nil, fmt.Errorf("shaped recipe %s: no ingredient for %q: %w", id, c, ErrInvalidRecipe)
			}
			r.ingredients = append(r.ingredients, ing)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *ShapedRecipe) Key() string          { return r.id }
func (r *ShapedRecipe) Output() *items.Stack { return r.output.Copy() }
func (r *ShapedRecipe) Width() int           { return r.width }
func (r *ShapedRecipe) Height() int          { return r.height }

// Layout spreads the pattern over the 3-wide grid addressing, anchored at
// the top-left cell.
func (r *ShapedRecipe) Layout() [GridSize]items.Ingredient {
	var out [GridSize]items.Ingredient
	for y := range r.height {
		copy(out[y*GridWidth:y*GridWidth+r.width], r.ingredients[y*r.width:(y+1)*r.width])
	}
	return out
}

// Matches tries every offset, and the mirrored pattern when allowed.
func (r *ShapedRecipe) Matches(cat *items.Catalog, g Grid) bool {
	for dx := 0; dx <= GridWidth-r.width; dx++ {
		for dy := 0; dy <= GridWidth-r.height; dy++ {
			if r.matchesAt(cat, g, dx, dy, false) {
				return true
			}
			if r.mirrored && r.matchesAt(cat, g, dx, dy, true) {
				return true
			}
		}
	}
	return false
}

func (r *ShapedRecipe) matchesAt(cat *items.Catalog, g Grid, dx, dy int, mirror bool) bool {
	for y := range GridWidth {
		for x := range GridWidth {
			px, py := x-dx, y-dy
			var want items.Ingredient
			if px >= 0 && py >= 0 && px < r.width && py < r.height {
				if mirror {
					px = r.width - 1 - px
				}
				want = r.ingredients[py*r.width+px]
			}
			if !cat.Matches(want, g[y*GridWidth+x]) {
				return false
			}
		}
	}
	return true
}

func (r *ShapedRecipe) Result(g Grid) *items.Stack {
	return result(r.output, g, r.preserveTag)
}

func (r *ShapedRecipe) String() string {
	parts := make([]string, len(r.ingredients))
	for i, ing := range r.ingredients {
		parts[i] = ing.String()
	}
	return fmt.Sprintf("%s %dx%d [%s] -> %s", r.id, r.width, r.height, strings.Join(parts, " "), r.output)
}

// ShapelessRecipe matches its ingredients in any cells.
type ShapelessRecipe struct {
	id          string
	ingredients []items.Ingredient
	output      *items.Stack
}

// NewShapeless builds a shapeless recipe.
func NewShapeless(id string, output *items.Stack, ingredients ...items.Ingredient) (*ShapelessRecipe, error) {
	switch {
	case id == "":
		return nil, fmt.Errorf("shapeless recipe: empty id: %w", ErrInvalidRecipe)
	case items.Empty(output):
		return nil, fmt.Errorf("shapeless recipe %s: no output: %w", id, ErrInvalidRecipe)
	case len(ingredients) == 0 || len(ingredients) > GridSize:
		return nil, fmt.Errorf("shapeless recipe %s: %d ingredients: %w", id, len(ingredients), ErrInvalidRecipe)
	}
	for i, ing := range ingredients {
		if ing.IsZero() {
			return nil, fmt.Errorf("shapeless recipe %s: ingredient %d empty: %w", id, i, ErrInvalidRecipe)
		}
	}
	return &ShapelessRecipe{id: id, ingredients: ingredients, output: output.Copy()}, nil
}

func (r *ShapelessRecipe) Key() string          { return r.id }
func (r *ShapelessRecipe) Output() *items.Stack { return r.output.Copy() }

func (r *ShapelessRecipe) Matches(cat *items.Catalog, g Grid) bool {
	if g.Count() != len(r.ingredients) {
		return false
	}
	used := make([]bool, len(r.ingredients))
	for _, s := range g {
		if items.Empty(s) {
			continue
		}
		found := false
		for i, ing := range r.ingredients {
			if !used[i] && cat.Matches(ing, s) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *ShapelessRecipe) Result(Grid) *items.Stack {
	return r.output.Copy()
}

func result(output *items.Stack, g Grid, preserveTag bool) *items.Stack {
	out := output.Copy()
	if !preserveTag {
		return out
	}
	if tag, ok := CraftingTag(g); ok && len(tag) > 0 {
		out.Tag = tag
	}
	return out
}
