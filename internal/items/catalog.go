package items

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultMaxStackSize applies to items registered without a stack limit.
const DefaultMaxStackSize = 64

var (
	ErrUnknownItem  = errors.New("unknown item")
	ErrUnknownFluid = errors.New("unknown fluid")
	ErrDuplicate    = errors.New("already registered")
)

// CircuitEffect is how a chipset changes an electric engine's EU config
// while it sits in the engine's socket.
type CircuitEffect struct {
	EUChange      int `yaml:"eu_change"`
	RFChange      int `yaml:"rf_change"`
	StorageChange int `yaml:"storage_change"`
}

// ItemDef describes an item type.
type ItemDef struct {
	ID             ItemID         `yaml:"id"`
	MaxStackSize   int            `yaml:"max_stack_size"`
	MaxDamage      int            `yaml:"max_damage"`
	Repairable     bool           `yaml:"repairable"`
	ContainerItem  ItemID         `yaml:"container_item"`  // left behind in the grid after crafting
	ChargeCapacity int            `yaml:"charge_capacity"` // >0 for batteries
	Circuit        *CircuitEffect `yaml:"circuit"`
}

// Damageable reports whether the item wears down with use.
func (d *ItemDef) Damageable() bool {
	return d != nil && d.MaxDamage > 0
}

// ContainerData registers a filled container as holding an amount of fluid
// and turning back into an empty container when drained.
type ContainerData struct {
	Fluid  FluidStack `yaml:"fluid"`
	Empty  ItemID     `yaml:"empty"`
	Filled ItemID     `yaml:"filled"`
}

type containerKey struct {
	fluid FluidID
	empty ItemID
}

// Catalog is the world's item registry: item definitions, fluids, the ore
// dictionary, and the fluid-container registry. It is populated at startup
// and read-only afterwards.
type Catalog struct {
	items      map[ItemID]*ItemDef
	fluids     []FluidID
	fluidIndex map[FluidID]int
	ores       map[string][]ItemID
	oreNames   map[ItemID][]string
	byFilled   map[ItemID]ContainerData
	byEmpty    map[containerKey]ContainerData
	empties    map[ItemID]bool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		items:      make(map[ItemID]*ItemDef),
		fluidIndex: make(map[FluidID]int),
		ores:       make(map[string][]ItemID),
		oreNames:   make(map[ItemID][]string),
		byFilled:   make(map[ItemID]ContainerData),
		byEmpty:    make(map[containerKey]ContainerData),
		empties:    make(map[ItemID]bool),
	}
}

// RegisterItem adds an item definition.
func (c *Catalog) RegisterItem(def ItemDef) error {
	if def.ID == "" {
		return errors.New("item id cannot be empty")
	}
	if _, ok := c.items[def.ID]; ok {
		return fmt.Errorf("item %q: %w", def.ID, ErrDuplicate)
	}
	if def.MaxStackSize <= 0 {
		def.MaxStackSize = DefaultMaxStackSize
	}
	c.items[def.ID] = &def
	return nil
}

// RegisterFluid adds a fluid. Fluids are numbered from 1 in registration
// order; 0 is reserved for "no fluid" on the sync channel.
func (c *Catalog) RegisterFluid(id FluidID) error {
	if id == "" {
		return errors.New("fluid id cannot be empty")
	}
	if _, ok := c.fluidIndex[id]; ok {
		return fmt.Errorf("fluid %q: %w", id, ErrDuplicate)
	}
	c.fluids = append(c.fluids, id)
	c.fluidIndex[id] = len(c.fluids)
	return nil
}

// RegisterOre files an item under an ore-dictionary name.
func (c *Catalog) RegisterOre(name string, item ItemID) error {
	if name == "" {
		return errors.New("ore name cannot be empty")
	}
	if _, ok := c.items[item]; !ok {
		return fmt.Errorf("ore %q: item %q: %w", name, item, ErrUnknownItem)
	}
	if slices.Contains(c.ores[name], item) {
		return nil
	}
	c.ores[name] = append(c.ores[name], item)
	c.oreNames[item] = append(c.oreNames[item], name)
	return nil
}

// RegisterContainer adds a fluid-container pairing.
func (c *Catalog) RegisterContainer(data ContainerData) error {
	if !c.IsFluidRegistered(data.Fluid.Fluid) {
		return fmt.Errorf("container %q: fluid %q: %w", data.Filled, data.Fluid.Fluid, ErrUnknownFluid)
	}
	if data.Fluid.Amount <= 0 {
		return fmt.Errorf("container %q: amount must be positive", data.Filled)
	}
	for _, id := range []ItemID{data.Empty, data.Filled} {
		if _, ok := c.items[id]; !ok {
			return fmt.Errorf("container %q: item %q: %w", data.Filled, id, ErrUnknownItem)
		}
	}
	key := containerKey{fluid: data.Fluid.Fluid, empty: data.Empty}
	if _, ok := c.byEmpty[key]; ok {
		return fmt.Errorf("container %s+%s: %w", data.Empty, data.Fluid.Fluid, ErrDuplicate)
	}
	c.byFilled[data.Filled] = data
	c.byEmpty[key] = data
	c.empties[data.Empty] = true
	return nil
}

// Def returns the definition of an item, or nil when unknown.
func (c *Catalog) Def(id ItemID) *ItemDef {
	return c.items[id]
}

// Items returns all item definitions sorted by ID.
func (c *Catalog) Items() []*ItemDef {
	out := make([]*ItemDef, 0, len(c.items))
	for _, d := range c.items {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *ItemDef) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// MaxStackSize returns the stack limit for an item.
func (c *Catalog) MaxStackSize(id ItemID) int {
	if d := c.items[id]; d != nil {
		return d.MaxStackSize
	}
	return DefaultMaxStackSize
}

// IsFluidRegistered reports whether the fluid is known.
func (c *Catalog) IsFluidRegistered(id FluidID) bool {
	_, ok := c.fluidIndex[id]
	return ok
}

// FluidIndex returns the sync index of a fluid, 0 for none or unknown.
func (c *Catalog) FluidIndex(id FluidID) int {
	return c.fluidIndex[id]
}

// FluidAt returns the fluid with the given sync index, "" when out of range.
func (c *Catalog) FluidAt(index int) FluidID {
	if index <= 0 || index > len(c.fluids) {
		return ""
	}
	return c.fluids[index-1]
}

// Fluids returns all registered fluids in index order.
func (c *Catalog) Fluids() []FluidID {
	return slices.Clone(c.fluids)
}

// OreNames returns the ore-dictionary names the stack's item is filed under.
func (c *Catalog) OreNames(s *Stack) []string {
	if s == nil {
		return nil
	}
	return c.oreNames[s.Item]
}

// OreItems returns the items filed under an ore name.
func (c *Catalog) OreItems(name string) []ItemID {
	return c.ores[name]
}

// IsEmptyContainer reports whether the stack is an empty fluid container.
func (c *Catalog) IsEmptyContainer(s *Stack) bool {
	return s != nil && c.empties[s.Item]
}

// FluidInContainer returns the fluid held by a filled container.
func (c *Catalog) FluidInContainer(s *Stack) (FluidStack, bool) {
	if s == nil {
		return FluidStack{}, false
	}
	data, ok := c.byFilled[s.Item]
	return data.Fluid, ok
}

// EmptyContainer returns the empty container left after draining a filled
// one, or nil when the container is consumed.
func (c *Catalog) EmptyContainer(filled *Stack) *Stack {
	if filled == nil {
		return nil
	}
	data, ok := c.byFilled[filled.Item]
	if !ok || data.Empty == "" {
		return nil
	}
	return NewStack(data.Empty, 1)
}

// FilledContainer returns one filled container for the given fluid and
// empty container, or nil when the pair is not registered or the fluid
// amount is below the container's capacity.
func (c *Catalog) FilledContainer(fluid FluidStack, empty *Stack) *Stack {
	if fluid.IsEmpty() || empty == nil {
		return nil
	}
	data, ok := c.byEmpty[containerKey{fluid: fluid.Fluid, empty: empty.Item}]
	if !ok || fluid.Amount < data.Fluid.Amount {
		return nil
	}
	return NewStack(data.Filled, 1)
}
