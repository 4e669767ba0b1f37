package machines

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/fluids"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// WorkInterval is how often powered units try to spend energy on work.
const WorkInterval = 5

// Capability interfaces. The simulation and API discover what a unit can
// do through these rather than through its concrete type.
type (
	HasTanks interface {
		Tanks() *fluids.Manager
	}
	HasInventory interface {
		Inventory() *inventory.Inventory
	}
	HasEnergyAdapter interface {
		EnergyAdapter() energy.Adapter
	}
	HasSockets interface {
		SocketCount() int
		Socket(i int) *items.Stack
		SetSocket(i int, s *items.Stack) error
	}
	// EnergyReceiver accepts energy pushed by a linked engine.
	EnergyReceiver interface {
		ReceiveEnergy(amount int, simulate bool) int
	}
	Switchable interface {
		SetDisabled(disabled bool)
		Disabled() bool
	}
)

// Base carries what every unit has: identity, position, conditions and a
// tick counter with a per-unit phase so interval work is spread across ticks.
type Base struct {
	id     uuid.UUID
	kind   Kind
	pos    worldctx.Pos
	env    *Env
	errors *errorlogic.Logic
	ticks  uint64
	phase  uint64
}

func newBase(kind Kind, id uuid.UUID, pos worldctx.Pos, env *Env) Base {
	return Base{
		id:     id,
		kind:   kind,
		pos:    pos,
		env:    env,
		errors: errorlogic.New(),
		phase:  binary.BigEndian.Uint64(id[8:]),
	}
}

func (b *Base) ID() uuid.UUID             { return b.id }
func (b *Base) Kind() Kind                { return b.kind }
func (b *Base) Pos() worldctx.Pos         { return b.pos }
func (b *Base) Errors() *errorlogic.Logic { return b.errors }

func (b *Base) step() { b.ticks++ }

func (b *Base) updateOnInterval(n int) bool {
	return n > 0 && (b.ticks+b.phase)%uint64(n) == 0
}

func (b *Base) status() Status {
	return Status{
		ID:     b.id.String(),
		Kind:   b.kind,
		Pos:    b.pos,
		Errors: b.errors.Active(),
	}
}

// Cycle is a unit's progress toward its current recipe. Progress counts up
// from 0 to total; total is 0 exactly when nothing is bound.
type Cycle struct {
	progress int
	total    int
}

// Bind starts a new requirement, discarding any progress.
func (c *Cycle) Bind(total int) {
	c.progress = 0
	c.total = max(total, 0)
}

// Clear unbinds the cycle.
func (c *Cycle) Clear() { c.Bind(0) }

func (c *Cycle) Active() bool  { return c.total > 0 }
func (c *Cycle) Done() bool    { return c.total > 0 && c.progress >= c.total }
func (c *Cycle) Progress() int { return c.progress }
func (c *Cycle) Total() int    { return c.total }

// Advance adds n steps, stopping at total.
func (c *Cycle) Advance(n int) {
	if c.total == 0 || n <= 0 {
		return
	}
	c.progress = min(c.progress+n, c.total)
}

// Restore sets saved progress.
func (c *Cycle) Restore(progress, total int) error {
	if total < 0 || progress < 0 || progress > total {
		return fmt.Errorf("progress %d/%d: %w", progress, total, ErrInconsistent)
	}
	c.progress, c.total = progress, total
	return nil
}

// worker is what Powered drives.
type worker interface {
	hasWork() bool
	workCycle() bool
}

// Powered runs a unit's work off an internal energy buffer. Every
// WorkInterval ticks it spends a slice of the per-cycle cost; once a
// whole cycle is paid for it asks the unit to do one cycle of work.
type Powered struct {
	buffer        *energy.Buffer
	perCycle      int
	ticksPerCycle int
	workCounter   int
	disabled      bool
}

func newPowered(cfg PoweredConfig) Powered {
	return Powered{
		buffer:        energy.NewBuffer(cfg.EnergyCapacity, cfg.MaxTransfer),
		perCycle:      cfg.EnergyPerCycle,
		ticksPerCycle: cfg.TicksPerCycle,
	}
}

func (p *Powered) ReceiveEnergy(amount int, simulate bool) int {
	return p.buffer.Receive(amount, simulate)
}

func (p *Powered) EnergyStored() int         { return p.buffer.Stored() }
func (p *Powered) Disabled() bool            { return p.disabled }
func (p *Powered) SetDisabled(disabled bool) { p.disabled = disabled }

func (p *Powered) update(b *Base, w worker) {
	if !b.updateOnInterval(WorkInterval) {
		return
	}
	if b.errors.SetCondition(p.disabled, errorlogic.Disabled) {
		return
	}
	if !w.hasWork() {
		b.errors.SetCondition(false, errorlogic.NoPower)
		return
	}

	if p.workCounter < p.ticksPerCycle {
		cost := (p.perCycle + p.ticksPerCycle - 1) / p.ticksPerCycle
		if b.errors.SetCondition(!p.buffer.Consume(cost), errorlogic.NoPower) {
			return
		}
		p.workCounter++
	}
	if p.workCounter >= p.ticksPerCycle && w.workCycle() {
		p.workCounter = 0
	}
}

// PoweredState is the persisted part of Powered.
type PoweredState struct {
	Energy      int  `json:"energy"`
	WorkCounter int  `json:"work_counter,omitempty"`
	Disabled    bool `json:"disabled,omitempty"`
}

func (p *Powered) save() PoweredState {
	return PoweredState{Energy: p.buffer.Stored(), WorkCounter: p.workCounter, Disabled: p.disabled}
}

func (p *Powered) load(s PoweredState) {
	p.buffer.SetStored(s.Energy)
	p.workCounter = max(0, min(s.WorkCounter, p.ticksPerCycle))
	p.disabled = s.Disabled
}
