package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// SchemaVersion is the state layout written by Encode.
//
// Version history:
//
//	1: single "tank" object, camelCase "isValidBiome", raintank progress
//	   stored as a "filling_time" countdown
//	2: "tanks" array in manager order, ascending "progress"/"progress_total"
const SchemaVersion = 2

var (
	ErrUnknownVersion = errors.New("unknown schema version")
	ErrCorruptRecord  = errors.New("corrupt unit record")
)

// Record is one persisted unit.
type Record struct {
	ID            string          `db:"id" json:"id"`
	Kind          string          `db:"kind" json:"kind"`
	X             int             `db:"pos_x" json:"x"`
	Y             int             `db:"pos_y" json:"y"`
	Z             int             `db:"pos_z" json:"z"`
	SchemaVersion int             `db:"schema_version" json:"schema_version"`
	SavedTick     uint64          `db:"saved_tick" json:"saved_tick"`
	State         json.RawMessage `db:"-" json:"state"`
}

// Pos returns the record's block position.
func (r Record) Pos() worldctx.Pos { return worldctx.Pos{X: r.X, Y: r.Y, Z: r.Z} }

// Encode captures a unit's state at tick.
func Encode(u machines.Unit, tick uint64) (Record, error) {
	raw, err := json.Marshal(u.SaveState())
	if err != nil {
		return Record{}, fmt.Errorf("encode %s %s: %w", u.Kind(), u.ID(), err)
	}
	p := u.Pos()
	return Record{
		ID:            u.ID().String(),
		Kind:          string(u.Kind()),
		X:             p.X,
		Y:             p.Y,
		Z:             p.Z,
		SchemaVersion: SchemaVersion,
		SavedTick:     tick,
		State:         raw,
	}, nil
}

// Decode rebuilds a unit from a record, migrating older layouts first.
// Placement-time properties come from the record, not from the world.
func Decode(rec Record, env *machines.Env) (machines.Unit, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("record id %q: %w", rec.ID, ErrCorruptRecord)
	}
	raw, err := Migrate(rec, env.Config)
	if err != nil {
		return nil, err
	}
	u, err := machines.New(machines.Kind(rec.Kind), id, rec.Pos(), env)
	if err != nil {
		return nil, err
	}
	state := u.NewState()
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", rec.Kind, rec.ID, errors.Join(ErrCorruptRecord, err))
	}
	if err := u.LoadState(state); err != nil {
		return nil, fmt.Errorf("load %s %s: %w", rec.Kind, rec.ID, err)
	}
	return u, nil
}

// migration upgrades a decoded state object by one version in place.
type migration func(kind machines.Kind, state map[string]any, cfg machines.Config) error

// migrations[v] upgrades version v to v+1.
var migrations = map[int]migration{
	1: migrateV1,
}

// Migrate returns the record's state in the current layout.
func Migrate(rec Record, cfg machines.Config) (json.RawMessage, error) {
	switch {
	case rec.SchemaVersion == SchemaVersion:
		return rec.State, nil
	case rec.SchemaVersion < 1 || rec.SchemaVersion > SchemaVersion:
		return nil, fmt.Errorf("%s %s: version %d: %w", rec.Kind, rec.ID, rec.SchemaVersion, ErrUnknownVersion)
	}

	var state map[string]any
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return nil, fmt.Errorf("migrate %s %s: %w", rec.Kind, rec.ID, errors.Join(ErrCorruptRecord, err))
	}
	for v := rec.SchemaVersion; v < SchemaVersion; v++ {
		if err := migrations[v](machines.Kind(rec.Kind), state, cfg); err != nil {
			return nil, fmt.Errorf("migrate %s %s from v%d: %w", rec.Kind, rec.ID, v, err)
		}
	}
	return json.Marshal(state)
}

func migrateV1(kind machines.Kind, state map[string]any, cfg machines.Config) error {
	if tank, ok := state["tank"]; ok {
		state["tanks"] = []any{tank}
		delete(state, "tank")
	}
	if valid, ok := state["isValidBiome"]; ok {
		state["is_valid_biome"] = valid
		delete(state, "isValidBiome")
	}
	if kind != machines.KindRaintank {
		return nil
	}

	remaining := 0
	if v, ok := state["filling_time"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return fmt.Errorf("filling_time %v: %w", v, ErrCorruptRecord)
		}
		remaining = int(f)
		delete(state, "filling_time")
	}
	total := cfg.Raintank.FillingTime
	if remaining == 0 || remaining > total {
		state["progress"], state["progress_total"] = 0, 0
		return nil
	}
	state["progress"], state["progress_total"] = total-remaining, total
	return nil
}
