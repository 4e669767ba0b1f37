package recipes

import (
	"strings"

	"github.com/talgya/mini-factory/internal/items"
)

const (
	GridWidth = 3
	GridSize  = GridWidth * GridWidth
)

// Grid is a 3x3 crafting matrix addressed row-major: cell (x, y) is
// index y*GridWidth+x. Nil cells are empty.
type Grid [GridSize]*items.Stack

// GridOf builds a grid from up to nine stacks.
func GridOf(stacks ...*items.Stack) Grid {
	var g Grid
	copy(g[:], stacks)
	for i := range g {
		g[i] = g[i].Copy()
	}
	return g
}

// Copy returns a deep copy.
func (g Grid) Copy() Grid {
	var c Grid
	for i, s := range g {
		c[i] = s.Copy()
	}
	return c
}

// Stacks returns the cells as a slice of copies.
func (g Grid) Stacks() []*items.Stack {
	out := make([]*items.Stack, GridSize)
	for i, s := range g {
		out[i] = s.Copy()
	}
	return out
}

// Count returns the number of occupied cells.
func (g Grid) Count() int {
	n := 0
	for _, s := range g {
		if !items.Empty(s) {
			n++
		}
	}
	return n
}

// Equal reports whether both grids hold identical stacks in every cell.
func (g Grid) Equal(o Grid) bool {
	for i := range g {
		if !items.AreStacksEqual(g[i], o[i]) {
			return false
		}
	}
	return true
}

func (g Grid) String() string {
	var b strings.Builder
	for y := range GridWidth {
		if y > 0 {
			b.WriteByte('/')
		}
		for x := range GridWidth {
			if x > 0 {
				b.WriteByte(' ')
			}
			s := g[y*GridWidth+x]
			if s == nil {
				b.WriteByte('.')
			} else {
				b.WriteString(string(s.Item))
			}
		}
	}
	return b.String()
}

// CraftingTag returns the tag carried by the grid's tagged stacks. All
// tagged stacks must agree; ok is false when they do not. A grid with no
// tagged stacks yields a nil tag and ok.
func CraftingTag(g Grid) (items.Tag, bool) {
	var tag items.Tag
	for _, s := range g {
		if !s.HasTag() {
			continue
		}
		if tag != nil && !tag.Equal(s.Tag) {
			return nil, false
		}
		tag = s.Tag
	}
	return tag.Clone(), true
}
