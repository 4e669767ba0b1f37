package machines

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/fluids"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/recipes"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// Bottler slots.
const (
	BottlerSlotEmpty  = 0
	BottlerSlotOutput = 1
	BottlerSlotFull   = 2
)

// Bottler fills empty containers from its tank, one work cycle at a time.
// Filled containers put in the full slot are drained into the tank.
type Bottler struct {
	Base
	Powered
	cfg    BottlerConfig
	cycle  Cycle
	tanks  *fluids.Manager
	inv    *inventory.Inventory
	recipe *recipes.BottlerRecipe
}

// NewBottler creates an empty bottler.
func NewBottler(id uuid.UUID, pos worldctx.Pos, env *Env) *Bottler {
	cfg := env.Config.Bottler
	cat := env.Catalog()
	b := &Bottler{
		Base:    newBase(KindBottler, id, pos, env),
		Powered: newPowered(cfg.Powered),
		cfg:     cfg,
		tanks:   fluids.NewManager(cat, fluids.NewTank(cfg.TankCapacity)),
	}
	b.inv = inventory.New("items", 3, cat, inventory.Rules{
		Accepts: func(slot int, s *items.Stack) bool {
			switch slot {
			case BottlerSlotEmpty:
				return cat.IsEmptyContainer(s)
			case BottlerSlotFull:
				_, ok := cat.FluidInContainer(s)
				return ok
			}
			return false
		},
		CanExtract: func(slot int, _ *items.Stack, _ inventory.Side) bool {
			return slot == BottlerSlotOutput
		},
	})
	return b
}

func (b *Bottler) Tanks() *fluids.Manager          { return b.tanks }
func (b *Bottler) Inventory() *inventory.Inventory { return b.inv }
func (b *Bottler) Cycle() Cycle                    { return b.cycle }

// Recipe returns the bound recipe, or nil.
func (b *Bottler) Recipe() *recipes.BottlerRecipe { return b.recipe }

func (b *Bottler) Validate() {}

func (b *Bottler) Tick(uint64) {
	b.step()
	b.Powered.update(&b.Base, b)
	if !b.updateOnInterval(b.cfg.CheckInterval) {
		return
	}
	fluids.DrainContainers(b.tanks, b.inv, BottlerSlotFull)
	b.checkRecipe()
}

func (b *Bottler) hasWork() bool { return b.recipe != nil }

func (b *Bottler) workCycle() bool {
	b.checkRecipe()
	rec := b.recipe
	if rec == nil {
		return false
	}
	if b.errors.SetCondition(!b.inv.TryAddStack(rec.Bottled, BottlerSlotOutput, 1, true, false), errorlogic.NoSpace) {
		return false
	}

	b.cycle.Advance(1)
	if !b.cycle.Done() {
		return true
	}

	b.tanks.DrainFluid(fluids.AnyTank, rec.Input, false)
	b.inv.Decr(BottlerSlotEmpty, 1)
	b.inv.TryAddStack(rec.Bottled, BottlerSlotOutput, 1, true, true)

	b.checkRecipe()
	b.bind(b.recipe)
	return true
}

// checkRecipe resolves the recipe for the current tank and container and
// rebinds only when it changed.
func (b *Bottler) checkRecipe() {
	rec, _ := b.env.Recipes.Bottler.Find(b.tanks.Tank(0).Fluid(), b.inv.Get(BottlerSlotEmpty))
	if rec != b.recipe {
		b.bind(rec)
	}
	b.errors.SetCondition(rec == nil, errorlogic.NoRecipe)
}

func (b *Bottler) bind(rec *recipes.BottlerRecipe) {
	b.recipe = rec
	if rec == nil {
		b.cycle.Clear()
		return
	}
	b.cycle.Bind(rec.Cycles)
}

func (b *Bottler) channels() int { return b.tanks.MaxChannelID() + 1 }

func (b *Bottler) WriteSync(w *deltasync.Writer) {
	b.tanks.WriteSync(w)
	ch := b.channels()
	w.Put(ch, b.cycle.progress)
	w.Put(ch+1, b.cycle.total)
	w.Put(ch+2, b.errors.Mask())
	w.Put(ch+3, b.buffer.Stored())
}

func (b *Bottler) ApplySync(channel, value int) bool {
	if b.tanks.ApplySync(channel, value) {
		return true
	}
	switch channel - b.channels() {
	case 0:
		b.cycle.progress = value
	case 1:
		b.cycle.total = value
	case 2:
		b.errors.SetMask(value)
	case 3:
		b.buffer.SetStored(value)
	default:
		return false
	}
	return true
}

func (b *Bottler) Status() Status {
	s := b.status()
	if b.recipe != nil {
		s.Recipe = b.recipe.Key()
	}
	s.Progress, s.ProgressTotal = b.cycle.progress, b.cycle.total
	s.Tanks = b.tanks.Snapshot()
	s.Energy = b.buffer.Stored()
	s.Slots = map[string][]*items.Stack{b.inv.Name(): b.inv.Snapshot()}
	return s
}

// BottlerState is the bottler's persisted state.
type BottlerState struct {
	Recipe        string             `json:"recipe,omitempty"`
	Progress      int                `json:"progress"`
	ProgressTotal int                `json:"progress_total"`
	Tanks         []fluids.TankState `json:"tanks"`
	Slots         []*items.Stack     `json:"slots"`
	PoweredState
}

func (b *Bottler) NewState() any { return &BottlerState{} }

func (b *Bottler) SaveState() any {
	s := &BottlerState{
		Progress:      b.cycle.progress,
		ProgressTotal: b.cycle.total,
		Tanks:         b.tanks.Snapshot(),
		Slots:         b.inv.Snapshot(),
		PoweredState:  b.Powered.save(),
	}
	if b.recipe != nil {
		s.Recipe = b.recipe.Key()
	}
	return s
}

func (b *Bottler) LoadState(state any) error {
	s, err := stateAs[BottlerState](state)
	if err != nil {
		return err
	}
	if err := b.tanks.Restore(s.Tanks); err != nil {
		return err
	}
	if err := b.inv.Restore(s.Slots); err != nil {
		return err
	}
	b.Powered.load(s.PoweredState)

	b.recipe = b.lookup(s.Recipe)
	if b.recipe == nil {
		if s.ProgressTotal > 0 {
			slog.Warn("bottler recipe no longer resolves, progress dropped", "unit", b.id, "recipe", s.Recipe)
		}
		b.cycle.Clear()
		return nil
	}
	if s.ProgressTotal == 0 {
		b.bind(b.recipe)
		return nil
	}
	return b.cycle.Restore(s.Progress, s.ProgressTotal)
}

// lookup finds a saved recipe by key. Discovered recipes are not in the
// registry after a restart, so they are rediscovered from the contents.
func (b *Bottler) lookup(key string) *recipes.BottlerRecipe {
	if key == "" {
		return nil
	}
	reg := b.env.Recipes.Bottler
	if rec, ok := reg.Get(key); ok {
		return rec
	}
	if rec, ok := reg.Find(b.tanks.Tank(0).Fluid(), b.inv.Get(BottlerSlotEmpty)); ok && rec.Key() == key {
		return rec
	}
	return nil
}
