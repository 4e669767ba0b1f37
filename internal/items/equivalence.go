package items

import "slices"

// Ingredient is one recipe input: either a concrete stack or an
// ore-dictionary name standing for every item filed under it.
type Ingredient struct {
	Stack *Stack `json:"stack,omitempty"`
	Ore   string `json:"ore,omitempty"`
}

// IsZero reports whether the ingredient is an empty grid cell.
func (i Ingredient) IsZero() bool {
	return i.Stack == nil && i.Ore == ""
}

func (i Ingredient) String() string {
	switch {
	case i.Ore != "":
		return "ore:" + i.Ore
	case i.Stack != nil:
		return i.Stack.String()
	}
	return "-"
}

// Matches reports whether the offered stack satisfies the ingredient.
// An empty ingredient only accepts an empty cell.
func (c *Catalog) Matches(ing Ingredient, offered *Stack) bool {
	switch {
	case ing.Ore != "":
		if offered == nil {
			return false
		}
		return slices.Contains(c.ores[ing.Ore], offered.Item)
	case ing.Stack != nil:
		return MatchesIngredient(ing.Stack, offered)
	}
	return offered == nil
}

// Equivalents returns the equivalence classes a stack belongs to for
// recipe purposes: its ore-dictionary names, or the stack itself when it
// has none.
func (c *Catalog) Equivalents(s *Stack) []Ingredient {
	names := c.OreNames(s)
	if len(names) == 0 {
		return []Ingredient{{Stack: s}}
	}
	out := make([]Ingredient, 0, len(names))
	for _, n := range names {
		out = append(out, Ingredient{Ore: n})
	}
	return out
}

// IsCraftingEquivalent reports whether comparison can stand in for base in
// a crafting grid. Items must match (wildcard damage allowed) and carry a
// compatible tag. With oreDict, items sharing an ore name also match. With
// craftingTools, damage differences on damageable items are ignored.
func (c *Catalog) IsCraftingEquivalent(base, comparison *Stack, oreDict, craftingTools bool) bool {
	if base == nil || comparison == nil {
		return false
	}

	if base.Item != comparison.Item {
		if !oreDict {
			return false
		}
		baseOres := c.OreNames(base)
		for _, name := range c.OreNames(comparison) {
			if slices.Contains(baseOres, name) {
				return true
			}
		}
		return false
	}

	if base.Damage != WildcardDamage && base.Damage != comparison.Damage {
		if !craftingTools || !c.Def(base.Item).Damageable() {
			return false
		}
	}

	if base.HasTag() && !base.Tag.Equal(comparison.Tag) {
		return false
	}
	return true
}

// CondenseStacks merges identical stacks into single entries. The result is
// made of copies; the input is not modified.
func CondenseStacks(stacks []*Stack) []*Stack {
	var out []*Stack
	for _, s := range stacks {
		if Empty(s) {
			continue
		}
		merged := false
		for _, o := range out {
			if IsIdenticalItem(o, s) {
				o.Size += s.Size
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, s.Copy())
		}
	}
	return out
}

// ContainsSets counts how many complete copies of set can be assembled
// from stock.
func (c *Catalog) ContainsSets(set, stock []*Stack, oreDict, craftingTools bool) int {
	required := CondenseStacks(set)
	offered := CondenseStacks(stock)
	if len(required) == 0 {
		return 0
	}

	total := 0
	for _, req := range required {
		count := 0
		for _, off := range offered {
			if c.IsCraftingEquivalent(req, off, oreDict, craftingTools) {
				count = max(count, off.Size/req.Size)
			}
		}
		if count == 0 {
			return 0
		}
		if total == 0 || count < total {
			total = count
		}
	}
	return total
}
