package machines

import (
	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/fluids"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// Water is the fluid a raintank collects.
const Water items.FluidID = "water"

// bucketVolume is the test amount used to decide whether a container can
// hold water at all.
const bucketVolume = 1000

// Raintank slots.
const (
	RaintankSlotResource = 0
	RaintankSlotProduct  = 1
)

// Raintank collects rain into a water-only tank while it is raining, the
// sky is open and its biome sees precipitation, and fills containers from
// the tank over a fixed number of updates.
type Raintank struct {
	Base
	cfg        RaintankConfig
	cycle      Cycle
	tanks      *fluids.Manager
	inv        *inventory.Inventory
	usedEmpty  *items.Stack
	validBiome bool
}

// NewRaintank creates an empty raintank. Biome validity is decided by
// Validate when the raintank is placed.
func NewRaintank(id uuid.UUID, pos worldctx.Pos, env *Env) *Raintank {
	cfg := env.Config.Raintank
	cat := env.Catalog()
	r := &Raintank{
		Base:  newBase(KindRaintank, id, pos, env),
		cfg:   cfg,
		tanks: fluids.NewManager(cat, fluids.NewFilteredTank(cfg.TankCapacity, Water)),
	}
	r.inv = inventory.New("items", 2, cat, inventory.Rules{
		Accepts: func(slot int, s *items.Stack) bool {
			return slot == RaintankSlotResource &&
				cat.FilledContainer(items.FluidStack{Fluid: Water, Amount: bucketVolume}, s) != nil
		},
		CanExtract: func(slot int, _ *items.Stack, _ inventory.Side) bool {
			return slot == RaintankSlotProduct
		},
	})
	return r
}

func (r *Raintank) Tanks() *fluids.Manager          { return r.tanks }
func (r *Raintank) Inventory() *inventory.Inventory { return r.inv }
func (r *Raintank) Cycle() Cycle                    { return r.cycle }
func (r *Raintank) ValidBiome() bool                { return r.validBiome }

// Validate decides once whether the biome at the raintank's position ever
// sees rain.
func (r *Raintank) Validate() {
	w := r.env.World
	r.validBiome = w.CanPrecipitate(w.Biome(r.pos))
}

func (r *Raintank) Tick(tick uint64) {
	r.step()
	if !r.updateOnInterval(r.cfg.CheckInterval) {
		return
	}

	w := r.env.World
	r.errors.SetCondition(!r.validBiome, errorlogic.InvalidBiome)
	r.errors.SetCondition(!w.CanSeeSky(worldctx.Pos{X: r.pos.X, Y: r.pos.Y + 1, Z: r.pos.Z}), errorlogic.NoSky)
	r.errors.SetCondition(!w.IsRaining(tick), errorlogic.NotRaining)
	if !r.errors.HasErrors() {
		r.tanks.Fill(0, items.FluidStack{Fluid: Water, Amount: r.cfg.AmountPerUpdate}, false)
	}

	res := r.inv.Get(RaintankSlotResource)
	if !items.IsIdenticalItem(r.usedEmpty, res) {
		r.cycle.Clear()
		r.usedEmpty = nil
	}
	if r.usedEmpty == nil && res != nil {
		r.usedEmpty = res.Split(1)
	}

	if !r.cycle.Active() {
		if fluids.FillContainers(r.tanks, r.inv, RaintankSlotResource, RaintankSlotProduct, Water, false) {
			r.cycle.Bind(r.cfg.FillingTime)
		}
		return
	}
	r.cycle.Advance(1)
	if r.cycle.Done() {
		fluids.FillContainers(r.tanks, r.inv, RaintankSlotResource, RaintankSlotProduct, Water, true)
		r.cycle.Clear()
	}
}

func (r *Raintank) channels() int { return r.tanks.MaxChannelID() + 1 }

func (r *Raintank) WriteSync(w *deltasync.Writer) {
	r.tanks.WriteSync(w)
	ch := r.channels()
	w.Put(ch, r.cycle.progress)
	w.Put(ch+1, r.cycle.total)
	w.Put(ch+2, r.errors.Mask())
}

func (r *Raintank) ApplySync(channel, value int) bool {
	if r.tanks.ApplySync(channel, value) {
		return true
	}
	switch channel - r.channels() {
	case 0:
		r.cycle.progress = value
	case 1:
		r.cycle.total = value
	case 2:
		r.errors.SetMask(value)
	default:
		return false
	}
	return true
}

func (r *Raintank) Status() Status {
	s := r.status()
	s.Progress, s.ProgressTotal = r.cycle.progress, r.cycle.total
	s.Tanks = r.tanks.Snapshot()
	s.Slots = map[string][]*items.Stack{r.inv.Name(): r.inv.Snapshot()}
	return s
}

// RaintankState is the raintank's persisted state.
type RaintankState struct {
	Progress      int                `json:"progress"`
	ProgressTotal int                `json:"progress_total"`
	Tanks         []fluids.TankState `json:"tanks"`
	Slots         []*items.Stack     `json:"slots"`
	IsValidBiome  bool               `json:"is_valid_biome"`
	UsedEmpty     *items.Stack       `json:"used_empty,omitempty"`
}

func (r *Raintank) NewState() any { return &RaintankState{} }

func (r *Raintank) SaveState() any {
	return &RaintankState{
		Progress:      r.cycle.progress,
		ProgressTotal: r.cycle.total,
		Tanks:         r.tanks.Snapshot(),
		Slots:         r.inv.Snapshot(),
		IsValidBiome:  r.validBiome,
		UsedEmpty:     r.usedEmpty.Copy(),
	}
}

func (r *Raintank) LoadState(state any) error {
	s, err := stateAs[RaintankState](state)
	if err != nil {
		return err
	}
	if err := r.tanks.Restore(s.Tanks); err != nil {
		return err
	}
	if err := r.inv.Restore(s.Slots); err != nil {
		return err
	}
	if err := r.cycle.Restore(s.Progress, s.ProgressTotal); err != nil {
		return err
	}
	r.validBiome = s.IsValidBiome
	r.usedEmpty = s.UsedEmpty.Copy()
	return nil
}
