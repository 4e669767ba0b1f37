// Package errorlogic tracks the non-fatal conditions that keep a unit from
// working. Conditions are level-triggered: units re-evaluate them from
// current state and set or clear them every time they check.
package errorlogic

import (
	"slices"
	"strings"
)

// Code identifies a blocking condition.
type Code string

const (
	NoRecipe     Code = "no_recipe"
	NoSpace      Code = "no_space"
	NoFuel       Code = "no_fuel"
	NoPower      Code = "no_power"
	NoEnergyNet  Code = "no_energy_net"
	InvalidBiome Code = "invalid_biome"
	NoSky        Code = "no_sky"
	NotRaining   Code = "not_raining"
	NoResource   Code = "no_resource"
	TooCold      Code = "too_cold"
	Disabled     Code = "disabled"
)

// Codes lists every known code in sync-bit order. Appending is safe;
// reordering changes the observer bitmask.
var Codes = []Code{
	NoRecipe, NoSpace, NoFuel, NoPower, NoEnergyNet, InvalidBiome,
	NoSky, NotRaining, NoResource, TooCold, Disabled,
}

// Logic is a unit's set of active conditions.
type Logic struct {
	active map[Code]struct{}
}

// New creates an empty condition set.
func New() *Logic {
	return &Logic{active: make(map[Code]struct{})}
}

// SetCondition activates or clears a code and returns active, so checks
// read as `if l.SetCondition(tank.IsEmpty(), NoResource) { return }`.
func (l *Logic) SetCondition(active bool, code Code) bool {
	if active {
		l.active[code] = struct{}{}
	} else {
		delete(l.active, code)
	}
	return active
}

// Contains reports whether code is active.
func (l *Logic) Contains(code Code) bool {
	_, ok := l.active[code]
	return ok
}

// HasErrors reports whether any condition is active.
func (l *Logic) HasErrors() bool {
	return len(l.active) > 0
}

// Active returns the active codes, sorted.
func (l *Logic) Active() []Code {
	out := make([]Code, 0, len(l.active))
	for c := range l.active {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Clear removes every condition.
func (l *Logic) Clear() {
	clear(l.active)
}

// Mask packs the active codes into a bitmask for delta sync, one bit per
// entry of Codes.
func (l *Logic) Mask() int {
	m := 0
	for i, c := range Codes {
		if l.Contains(c) {
			m |= 1 << i
		}
	}
	return m
}

// SetMask replaces the active set from a bitmask produced by Mask.
func (l *Logic) SetMask(m int) {
	l.Clear()
	for i, c := range Codes {
		if m&(1<<i) != 0 {
			l.active[c] = struct{}{}
		}
	}
}

func (l *Logic) String() string {
	active := l.Active()
	parts := make([]string, len(active))
	for i, c := range active {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
