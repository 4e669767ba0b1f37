package machines

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// Temperature is an engine's heat band.
type Temperature string

const (
	Cool        Temperature = "cool"
	WarmedUp    Temperature = "warmed_up"
	Operating   Temperature = "operating"
	RunningHot  Temperature = "running_hot"
	Overheating Temperature = "overheating"
	Melting     Temperature = "melting"
)

// TemperatureOf maps a heat level in [0, 1] to its band.
func TemperatureOf(level float64) Temperature {
	switch {
	case level < 0.2:
		return Cool
	case level < 0.45:
		return WarmedUp
	case level < 0.65:
		return Operating
	case level < 0.85:
		return RunningHot
	case level < 1.0:
		return Overheating
	}
	return Melting
}

// EngineSlotBattery is the battery slot of the electric engine.
const EngineSlotBattery = 0

// euConfig is the engine's live conversion setting. Chipsets shift it
// while they sit in a socket.
type euConfig struct {
	forCycle int
	rfCycle  int
	storage  int
}

// EngineElectric converts EU drawn from the energy network into RF,
// heating up while it burns. Generated RF is pushed to a linked receiver.
type EngineElectric struct {
	Base
	cfg           EngineConfig
	eu            euConfig
	adapter       energy.Adapter
	buffer        *energy.Buffer
	inv           *inventory.Inventory
	sockets       *inventory.Inventory
	receiver      EnergyReceiver
	heat          int
	currentOutput int
	forceCooldown bool
	disabled      bool
}

// NewEngineElectric creates an engine connected to env's energy provider.
// Without a provider it reports no_energy_net and never runs.
func NewEngineElectric(id uuid.UUID, pos worldctx.Pos, env *Env) *EngineElectric {
	cfg := env.Config.Engine
	cat := env.Catalog()
	e := &EngineElectric{
		Base:   newBase(KindEngineElectric, id, pos, env),
		cfg:    cfg,
		eu:     euConfig{forCycle: cfg.EUForCycle, rfCycle: cfg.RFPerCycle, storage: cfg.EUStorage},
		buffer: energy.NewBuffer(cfg.EnergyCapacity, cfg.MaxTransfer),
	}
	e.adapter = energy.NewAdapter(env.Energy, cfg.EUStorage)
	e.inv = inventory.New("electrical", 1, cat, inventory.Rules{
		Accepts: func(_ int, s *items.Stack) bool {
			d := cat.Def(s.Item)
			return d != nil && d.ChargeCapacity > 0 && items.Charge(s) > 0
		},
	})
	e.sockets = inventory.New("sockets", 1, cat, inventory.Rules{
		Accepts: func(_ int, s *items.Stack) bool { return isChipset(cat, s) },
	})
	return e
}

func isChipset(cat *items.Catalog, s *items.Stack) bool {
	d := cat.Def(s.Item)
	return d != nil && d.Circuit != nil
}

func (e *EngineElectric) Inventory() *inventory.Inventory { return e.inv }
func (e *EngineElectric) EnergyAdapter() energy.Adapter   { return e.adapter }
func (e *EngineElectric) Disabled() bool                  { return e.disabled }
func (e *EngineElectric) SetDisabled(disabled bool)       { e.disabled = disabled }
func (e *EngineElectric) Heat() int                       { return e.heat }
func (e *EngineElectric) CurrentOutput() int              { return e.currentOutput }
func (e *EngineElectric) EnergyStored() int               { return e.buffer.Stored() }
func (e *EngineElectric) ForcedCooldown() bool            { return e.forceCooldown }

// SetReceiver links the engine to the unit it powers. nil unlinks.
func (e *EngineElectric) SetReceiver(r EnergyReceiver) { e.receiver = r }

// EUConfig returns the current EU per cycle, RF per cycle and EU storage.
func (e *EngineElectric) EUConfig() (euForCycle, rfPerCycle, euStorage int) {
	return e.eu.forCycle, e.eu.rfCycle, e.eu.storage
}

func (e *EngineElectric) Temperature() Temperature {
	return TemperatureOf(float64(e.heat) / float64(e.cfg.MaxHeat))
}

func (e *EngineElectric) Validate() {}

func (e *EngineElectric) Tick(uint64) {
	e.step()
	if e.errors.SetCondition(e.adapter == nil, errorlogic.NoEnergyNet) {
		// A cut-off engine still cools down.
		e.currentOutput = 0
		e.dissipateHeat()
		return
	}
	e.adapter.Update()

	switch {
	case e.Temperature() == Melting && e.heat > 0:
		e.forceCooldown = true
	case e.forceCooldown && e.heat <= 0:
		e.forceCooldown = false
	}
	e.errors.SetCondition(e.disabled, errorlogic.Disabled)
	running := !e.forceCooldown && !e.disabled

	if running {
		e.dischargeBattery()
	}
	e.burn(running)
	e.dissipateHeat()
	e.generateHeat()
	e.pushEnergy()

	if e.updateOnInterval(e.cfg.StatusInterval) {
		e.errors.SetCondition(!e.adapter.CanUseEnergy(e.eu.forCycle), errorlogic.NoFuel)
	}
}

func (e *EngineElectric) dischargeBattery() {
	bat := e.inv.Get(EngineSlotBattery).Copy()
	if bat == nil {
		return
	}
	if e.adapter.Discharge(bat, e.eu.forCycle*e.cfg.BatteryFactor) > 0 {
		_ = e.inv.Place(EngineSlotBattery, bat)
	}
}

func (e *EngineElectric) burn(running bool) {
	e.currentOutput = 0
	if !running {
		return
	}
	if e.adapter.UseEnergy(e.eu.forCycle) {
		e.currentOutput = e.eu.rfCycle
		e.buffer.Generate(e.currentOutput)
	}
}

func (e *EngineElectric) burning() bool { return e.currentOutput > 0 }

func (e *EngineElectric) dissipateHeat() {
	if e.heat <= 0 {
		return
	}
	loss := 0
	if !e.burning() {
		loss++
	}
	if t := e.Temperature(); t == Overheating || t == Operating {
		loss++
	}
	e.addHeat(-loss)
}

func (e *EngineElectric) generateHeat() {
	if !e.burning() {
		return
	}
	gain := 1
	if e.buffer.Fraction() > 0.5 {
		gain++
	}
	e.addHeat(gain)
}

func (e *EngineElectric) addHeat(n int) {
	e.heat = max(0, min(e.heat+n, e.cfg.MaxHeat))
}

func (e *EngineElectric) pushEnergy() {
	if e.receiver == nil {
		return
	}
	offer := e.buffer.Extract(e.cfg.MaxTransfer, true)
	if offer == 0 {
		return
	}
	taken := e.receiver.ReceiveEnergy(offer, false)
	e.buffer.Extract(taken, false)
}

func (e *EngineElectric) SocketCount() int { return e.sockets.Size() }

func (e *EngineElectric) Socket(i int) *items.Stack { return e.sockets.Get(i).Copy() }

// SetSocket installs a chipset (or clears the socket with nil). The old
// chipset's effect is removed before the new one is applied.
func (e *EngineElectric) SetSocket(i int, s *items.Stack) error {
	if i < 0 || i >= e.sockets.Size() {
		return fmt.Errorf("socket %d: %w", i, ErrSocketRange)
	}
	cat := e.env.Catalog()
	if s != nil && !isChipset(cat, s) {
		return fmt.Errorf("socket %d: %s: %w", i, s, ErrNotChipset)
	}
	if old := e.sockets.Get(i); old != nil {
		e.applyCircuit(old, -1)
	}
	if err := e.sockets.Place(i, s.Split(1)); err != nil {
		return err
	}
	if s != nil {
		e.applyCircuit(s, 1)
	}
	return nil
}

func (e *EngineElectric) applyCircuit(chip *items.Stack, sign int) {
	c := e.env.Catalog().Def(chip.Item).Circuit
	e.eu.forCycle += sign * c.EUChange
	e.eu.rfCycle += sign * c.RFChange
	e.eu.storage += sign * c.StorageChange
	if e.adapter != nil {
		e.adapter.SetCapacity(e.eu.storage)
	}
}

func (e *EngineElectric) WriteSync(w *deltasync.Writer) {
	w.Put(0, e.currentOutput)
	w.Put(1, e.buffer.Stored())
	w.Put(2, e.heat)
	if e.adapter != nil {
		w.Put(3, e.adapter.EnergyStored())
	} else {
		w.Put(3, 0)
	}
	w.Put(4, e.errors.Mask())
}

func (e *EngineElectric) ApplySync(channel, value int) bool {
	switch channel {
	case 0:
		e.currentOutput = value
	case 1:
		e.buffer.SetStored(value)
	case 2:
		e.heat = value
	case 3:
		if e.adapter != nil {
			e.adapter.SetEnergyStored(value)
		}
	case 4:
		e.errors.SetMask(value)
	default:
		return false
	}
	return true
}

func (e *EngineElectric) Status() Status {
	s := e.status()
	s.Energy = e.buffer.Stored()
	s.Heat = e.heat
	s.Temperature = string(e.Temperature())
	s.Slots = map[string][]*items.Stack{
		e.inv.Name():     e.inv.Snapshot(),
		e.sockets.Name(): e.sockets.Snapshot(),
	}
	return s
}

// EngineState is the electric engine's persisted state.
type EngineState struct {
	Heat          int            `json:"heat"`
	Energy        int            `json:"energy"`
	EUStored      int            `json:"eu_stored"`
	ForceCooldown bool           `json:"force_cooldown,omitempty"`
	Disabled      bool           `json:"disabled,omitempty"`
	Slots         []*items.Stack `json:"slots"`
	Sockets       []*items.Stack `json:"sockets"`
}

func (e *EngineElectric) NewState() any { return &EngineState{} }

func (e *EngineElectric) SaveState() any {
	s := &EngineState{
		Heat:          e.heat,
		Energy:        e.buffer.Stored(),
		ForceCooldown: e.forceCooldown,
		Disabled:      e.disabled,
		Slots:         e.inv.Snapshot(),
		Sockets:       e.sockets.Snapshot(),
	}
	if e.adapter != nil {
		s.EUStored = e.adapter.EnergyStored()
	}
	return s
}

func (e *EngineElectric) LoadState(state any) error {
	s, err := stateAs[EngineState](state)
	if err != nil {
		return err
	}
	if err := e.inv.Restore(s.Slots); err != nil {
		return err
	}
	if err := e.sockets.Restore(s.Sockets); err != nil {
		return err
	}

	e.eu = euConfig{forCycle: e.cfg.EUForCycle, rfCycle: e.cfg.RFPerCycle, storage: e.cfg.EUStorage}
	if e.adapter != nil {
		e.adapter.SetCapacity(e.eu.storage)
	}
	for i := range e.sockets.Size() {
		if chip := e.sockets.Get(i); chip != nil {
			if !isChipset(e.env.Catalog(), chip) {
				return fmt.Errorf("socket %d: %s: %w", i, chip, ErrNotChipset)
			}
			e.applyCircuit(chip, 1)
		}
	}
	if e.adapter != nil {
		e.adapter.SetEnergyStored(s.EUStored)
	}

	e.heat = max(0, min(s.Heat, e.cfg.MaxHeat))
	e.buffer.SetStored(s.Energy)
	e.forceCooldown = s.ForceCooldown
	e.disabled = s.Disabled
	return nil
}
