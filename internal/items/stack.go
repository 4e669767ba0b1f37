// Package items provides item and fluid identities, stacks, and the item
// catalog that every processing unit resolves its inputs against.
package items

import (
	"fmt"
	"maps"
	"strconv"
)

// ItemID names an item type (e.g. "forestry:can").
type ItemID string

// FluidID names a fluid type (e.g. "water"). The empty FluidID means no fluid.
type FluidID string

// WildcardDamage in a recipe stack matches any damage value.
const WildcardDamage = -1

// Tag is the structured per-stack data attached to an item (charge,
// owner, enchantment...). Two stacks are only identical when their tags are.
type Tag map[string]string

// Equal reports whether two tags hold the same entries. A nil tag equals an empty one.
func (t Tag) Equal(o Tag) bool {
	return maps.Equal(t, o)
}

// Clone returns an independent copy of the tag.
func (t Tag) Clone() Tag {
	if t == nil {
		return nil
	}
	return maps.Clone(t)
}

// Stack is a quantity of one item type. A nil *Stack is an empty slot.
type Stack struct {
	Item   ItemID `json:"item" yaml:"item"`
	Size   int    `json:"size" yaml:"size"`
	Damage int    `json:"damage,omitempty" yaml:"damage"`
	Tag    Tag    `json:"tag,omitempty" yaml:"tag"`
}

// NewStack creates a stack of size n with zero damage.
func NewStack(item ItemID, n int) *Stack {
	return &Stack{Item: item, Size: n}
}

// Copy returns a deep copy, or nil for nil.
func (s *Stack) Copy() *Stack {
	if s == nil {
		return nil
	}
	c := *s
	c.Tag = s.Tag.Clone()
	return &c
}

// Split returns a copy of s holding n items. s itself is not changed.
func (s *Stack) Split(n int) *Stack {
	c := s.Copy()
	if c != nil {
		c.Size = n
	}
	return c
}

// HasTag reports whether the stack carries a non-empty tag.
func (s *Stack) HasTag() bool {
	return s != nil && len(s.Tag) > 0
}

func (s *Stack) String() string {
	if s == nil {
		return "<empty>"
	}
	if s.Damage != 0 {
		return fmt.Sprintf("%dx%s@%d", s.Size, s.Item, s.Damage)
	}
	return fmt.Sprintf("%dx%s", s.Size, s.Item)
}

// Empty reports whether s holds nothing.
func Empty(s *Stack) bool {
	return s == nil || s.Size <= 0
}

// IsItemEqual reports whether a and b are the same item type and damage.
func IsItemEqual(a, b *Stack) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Item == b.Item && a.Damage == b.Damage
}

// IsIdenticalItem reports whether a and b are the same item, damage and tag.
// Stack sizes are ignored.
func IsIdenticalItem(a, b *Stack) bool {
	if a == nil || b == nil {
		return a == b
	}
	return IsItemEqual(a, b) && a.Tag.Equal(b.Tag)
}

// AreStacksEqual reports whether a and b are identical including size.
// Two nil stacks are equal.
func AreStacksEqual(a, b *Stack) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return IsIdenticalItem(a, b) && a.Size == b.Size
}

// MatchesIngredient reports whether a recipe stack accepts the offered stack,
// honouring WildcardDamage on the recipe side.
func MatchesIngredient(recipe, offered *Stack) bool {
	if recipe == nil || offered == nil {
		return recipe == nil && offered == nil
	}
	if recipe.Item != offered.Item {
		return false
	}
	return recipe.Damage == WildcardDamage || recipe.Damage == offered.Damage
}

// Charge returns the stored electric charge of a battery-like stack.
func Charge(s *Stack) int {
	if s == nil || s.Tag == nil {
		return 0
	}
	n, err := strconv.Atoi(s.Tag["charge"])
	if err != nil {
		return 0
	}
	return n
}

// SetCharge stores electric charge on the stack's tag.
func SetCharge(s *Stack, charge int) {
	if s.Tag == nil {
		s.Tag = Tag{}
	}
	s.Tag["charge"] = strconv.Itoa(charge)
}

// FluidStack is an amount of one fluid.
type FluidStack struct {
	Fluid  FluidID `json:"fluid" yaml:"fluid"`
	Amount int     `json:"amount" yaml:"amount"`
}

// IsEmpty reports whether f holds no fluid.
func (f FluidStack) IsEmpty() bool {
	return f.Fluid == "" || f.Amount <= 0
}

// ContainsFluid reports whether f is the same fluid as other with at least as much of it.
func (f FluidStack) ContainsFluid(other FluidStack) bool {
	return !f.IsEmpty() && f.Fluid == other.Fluid && f.Amount >= other.Amount
}

func (f FluidStack) String() string {
	if f.IsEmpty() {
		return "<no fluid>"
	}
	return fmt.Sprintf("%dmB %s", f.Amount, f.Fluid)
}
