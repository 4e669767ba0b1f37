package machines

import (
	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/fluids"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/recipes"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// Fabricator slots.
const (
	FabricatorSlotMetal     = 0
	FabricatorSlotPlan      = 1
	FabricatorSlotResult    = 2
	FabricatorSlotInventory = 3
	FabricatorStockSize     = 18
)

// Fabricator melts metal into its molten tank using heat bought with
// energy, then casts the molten material through the pattern laid out in
// its grid, taking the remaining ingredients from stock.
type Fabricator struct {
	Base
	Powered
	cfg          FabricatorConfig
	tanks        *fluids.Manager
	inv          *inventory.Inventory
	craft        *inventory.Inventory
	heat         int
	meltingPoint int
	recipe       *recipes.FabricatorRecipe
}

// NewFabricator creates a cold, empty fabricator.
func NewFabricator(id uuid.UUID, pos worldctx.Pos, env *Env) *Fabricator {
	cfg := env.Config.Fabricator
	cat := env.Catalog()
	svc := env.Recipes
	f := &Fabricator{
		Base:    newBase(KindFabricator, id, pos, env),
		Powered: newPowered(cfg.Powered),
		cfg:     cfg,
		tanks:   fluids.NewManager(cat, fluids.NewTank(cfg.TankCapacity)),
		craft:   inventory.New("crafting", recipes.GridSize, cat, inventory.Rules{}),
	}
	f.inv = inventory.New("items", FabricatorSlotInventory+FabricatorStockSize, cat, inventory.Rules{
		Accepts: func(slot int, s *items.Stack) bool {
			switch slot {
			case FabricatorSlotMetal:
				_, ok := svc.Smelting.FindByResource(s)
				return ok
			case FabricatorSlotPlan:
				return svc.Fabricator.IsPlan(s)
			case FabricatorSlotResult:
				return false
			}
			return true
		},
		CanExtract: func(slot int, _ *items.Stack, _ inventory.Side) bool {
			return slot == FabricatorSlotResult
		},
	})
	return f
}

func (f *Fabricator) Tanks() *fluids.Manager          { return f.tanks }
func (f *Fabricator) Inventory() *inventory.Inventory { return f.inv }
func (f *Fabricator) Heat() int                       { return f.heat }
func (f *Fabricator) MeltingPoint() int               { return f.meltingPoint }

// Recipe returns the recipe matched at the last check, or nil.
func (f *Fabricator) Recipe() *recipes.FabricatorRecipe { return f.recipe }

// Grid returns the casting pattern template.
func (f *Fabricator) Grid() recipes.Grid {
	var g recipes.Grid
	for i := range recipes.GridSize {
		g[i] = f.craft.Get(i).Copy()
	}
	return g
}

// SetGrid lays out the casting pattern. Each cell holds a single item.
func (f *Fabricator) SetGrid(g recipes.Grid) {
	for i, s := range g {
		_ = f.craft.Place(i, s.Split(1))
	}
}

func (f *Fabricator) Validate() {}

func (f *Fabricator) Tick(uint64) {
	f.step()
	f.dissipateHeat()
	f.Powered.update(&f.Base, f)
	if !f.updateOnInterval(f.cfg.CheckInterval) {
		return
	}
	f.trySmelting()
	f.solidify()
	f.craftResult()
}

func (f *Fabricator) hasWork() bool {
	if f.heat >= f.cfg.MaxHeat {
		return false
	}
	if !f.tanks.Tank(0).IsEmpty() {
		return true
	}
	_, ok := f.env.Recipes.Smelting.FindByResource(f.inv.Get(FabricatorSlotMetal))
	return ok
}

func (f *Fabricator) workCycle() bool {
	f.addHeat(f.cfg.HeatPerCycle)
	return true
}

func (f *Fabricator) addHeat(n int) {
	f.heat = max(0, min(f.heat+n, f.cfg.MaxHeat))
}

func (f *Fabricator) dissipateHeat() {
	switch {
	case f.heat > f.cfg.MaxHeat/2:
		f.addHeat(-2)
	case f.heat > 0:
		f.addHeat(-1)
	}
}

func (f *Fabricator) trySmelting() {
	rec, ok := f.env.Recipes.Smelting.FindByResource(f.inv.Get(FabricatorSlotMetal))
	if !ok {
		f.errors.SetCondition(false, errorlogic.TooCold)
		return
	}
	if f.errors.SetCondition(rec.MeltingPoint > f.heat, errorlogic.TooCold) {
		return
	}
	if f.tanks.Fill(fluids.AnyTank, rec.Product, true) != rec.Product.Amount {
		return
	}
	f.inv.Decr(FabricatorSlotMetal, 1)
	f.tanks.Fill(fluids.AnyTank, rec.Product, false)
	f.meltingPoint = rec.MeltingPoint
}

func (f *Fabricator) solidify() {
	molten := f.tanks.Tank(0)
	if molten.IsEmpty() {
		f.meltingPoint = 0
		return
	}
	if f.heat < f.meltingPoint {
		molten.Drain(f.cfg.SolidifyLoss, false)
		f.errors.SetCondition(true, errorlogic.TooCold)
	}
}

func (f *Fabricator) craftResult() {
	rec, ok := f.env.Recipes.Fabricator.Find(f.inv.Get(FabricatorSlotPlan), f.tanks.Tank(0).Fluid(), f.Grid())
	f.recipe = rec
	if f.errors.SetCondition(!ok, errorlogic.NoRecipe) {
		f.errors.SetCondition(false, errorlogic.NoSpace)
		f.errors.SetCondition(false, errorlogic.NoResource)
		return
	}
	out := rec.Output()
	if f.errors.SetCondition(!f.inv.TryAddStack(out, FabricatorSlotResult, 1, true, false), errorlogic.NoSpace) {
		return
	}
	removed := f.inv.RemoveSets(1, f.Grid().Stacks(), FabricatorSlotInventory, FabricatorStockSize, true, true)
	if f.errors.SetCondition(removed == nil, errorlogic.NoResource) {
		return
	}
	f.tanks.DrainFluid(fluids.AnyTank, rec.Molten, false)
	f.inv.TryAddStack(out, FabricatorSlotResult, 1, true, true)
}

func (f *Fabricator) channels() int { return f.tanks.MaxChannelID() + 1 }

func (f *Fabricator) WriteSync(w *deltasync.Writer) {
	f.tanks.WriteSync(w)
	ch := f.channels()
	w.Put(ch, f.heat)
	w.Put(ch+1, f.meltingPoint)
	w.Put(ch+2, f.errors.Mask())
	w.Put(ch+3, f.buffer.Stored())
}

func (f *Fabricator) ApplySync(channel, value int) bool {
	if f.tanks.ApplySync(channel, value) {
		return true
	}
	switch channel - f.channels() {
	case 0:
		f.heat = value
	case 1:
		f.meltingPoint = value
	case 2:
		f.errors.SetMask(value)
	case 3:
		f.buffer.SetStored(value)
	default:
		return false
	}
	return true
}

func (f *Fabricator) Status() Status {
	s := f.status()
	if f.recipe != nil {
		s.Recipe = f.recipe.Key()
	}
	s.Tanks = f.tanks.Snapshot()
	s.Energy = f.buffer.Stored()
	s.Heat = f.heat
	s.Slots = map[string][]*items.Stack{
		f.craft.Name(): f.craft.Snapshot(),
		f.inv.Name():   f.inv.Snapshot(),
	}
	return s
}

// FabricatorState is the fabricator's persisted state.
type FabricatorState struct {
	Heat         int                `json:"heat"`
	MeltingPoint int                `json:"melting_point"`
	Tanks        []fluids.TankState `json:"tanks"`
	Slots        []*items.Stack     `json:"slots"`
	Crafting     []*items.Stack     `json:"crafting"`
	PoweredState
}

func (f *Fabricator) NewState() any { return &FabricatorState{} }

func (f *Fabricator) SaveState() any {
	return &FabricatorState{
		Heat:         f.heat,
		MeltingPoint: f.meltingPoint,
		Tanks:        f.tanks.Snapshot(),
		Slots:        f.inv.Snapshot(),
		Crafting:     f.craft.Snapshot(),
		PoweredState: f.Powered.save(),
	}
}

func (f *Fabricator) LoadState(state any) error {
	s, err := stateAs[FabricatorState](state)
	if err != nil {
		return err
	}
	if err := f.tanks.Restore(s.Tanks); err != nil {
		return err
	}
	if err := f.inv.Restore(s.Slots); err != nil {
		return err
	}
	if err := f.craft.Restore(s.Crafting); err != nil {
		return err
	}
	f.Powered.load(s.PoweredState)
	f.heat = max(0, min(s.Heat, f.cfg.MaxHeat))
	f.meltingPoint = max(0, s.MeltingPoint)
	return nil
}
