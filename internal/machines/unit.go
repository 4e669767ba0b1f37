// Package machines implements the processing units: a shared work-cycle
// driver and the unit kinds assembled from it.
package machines

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/fluids"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/recipes"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// Kind names a unit type.
type Kind string

const (
	KindBottler        Kind = "bottler"
	KindRaintank       Kind = "raintank"
	KindEngineElectric Kind = "engine_electric"
	KindWorktable      Kind = "worktable"
	KindFabricator     Kind = "fabricator"
)

// Kinds lists every unit kind.
var Kinds = []Kind{KindBottler, KindRaintank, KindEngineElectric, KindWorktable, KindFabricator}

var (
	ErrUnknownKind  = errors.New("unknown unit kind")
	ErrStateType    = errors.New("state has wrong type")
	ErrCannotCraft  = errors.New("cannot craft")
	ErrNotChipset   = errors.New("not a chipset")
	ErrSocketRange  = errors.New("socket out of range")
	ErrInconsistent = errors.New("inconsistent state")
)

// Unit is one processing unit in the world.
type Unit interface {
	ID() uuid.UUID
	Kind() Kind
	Pos() worldctx.Pos
	Errors() *errorlogic.Logic

	// Tick advances the unit by one world tick.
	Tick(tick uint64)
	// Validate runs once when the unit is placed in the world.
	Validate()
	Status() Status

	// SaveState returns the kind's typed persistent state.
	SaveState() any
	// NewState returns an empty state value to decode into.
	NewState() any
	LoadState(state any) error

	deltasync.Source
	deltasync.Sink
}

// Env holds the collaborators every unit is built with.
type Env struct {
	Recipes *recipes.Service
	World   worldctx.World
	Energy  energy.Provider
	Config  Config
}

// Catalog returns the item catalog.
func (e *Env) Catalog() *items.Catalog { return e.Recipes.Catalog }

// Status is an observer's summary of a unit.
type Status struct {
	ID            string                    `json:"id"`
	Kind          Kind                      `json:"kind"`
	Pos           worldctx.Pos              `json:"pos"`
	Recipe        string                    `json:"recipe,omitempty"`
	Progress      int                       `json:"progress"`
	ProgressTotal int                       `json:"progress_total"`
	Errors        []errorlogic.Code         `json:"errors"`
	Tanks         []fluids.TankState        `json:"tanks,omitempty"`
	Energy        int                       `json:"energy,omitempty"`
	Heat          int                       `json:"heat,omitempty"`
	Temperature   string                    `json:"temperature,omitempty"`
	Slots         map[string][]*items.Stack `json:"slots,omitempty"`
}

// New builds an empty unit of the given kind.
func New(kind Kind, id uuid.UUID, pos worldctx.Pos, env *Env) (Unit, error) {
	switch kind {
	case KindBottler:
		return NewBottler(id, pos, env), nil
	case KindRaintank:
		return NewRaintank(id, pos, env), nil
	case KindEngineElectric:
		return NewEngineElectric(id, pos, env), nil
	case KindWorktable:
		return NewWorktable(id, pos, env), nil
	case KindFabricator:
		return NewFabricator(id, pos, env), nil
	}
	return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
}

func stateAs[T any](state any) (*T, error) {
	s, ok := state.(*T)
	if !ok || s == nil {
		var want T
		return nil, fmt.Errorf("got %T, want *%T: %w", state, want, ErrStateType)
	}
	return s, nil
}
