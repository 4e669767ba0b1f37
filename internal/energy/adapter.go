package energy

import (
	"log/slog"

	"github.com/talgya/mini-factory/internal/items"
)

// Adapter is a unit's connection to an external energy network. Amounts
// are in the network's own unit (EU).
type Adapter interface {
	CanUseEnergy(amount int) bool
	UseEnergy(amount int) bool
	// Discharge moves up to maxAmount of a battery's charge into the
	// adapter, updating the stack's charge, and returns the amount moved.
	Discharge(battery *items.Stack, maxAmount int) int
	EnergyStored() int
	Capacity() int
	SetCapacity(capacity int)
	SetEnergyStored(amount int)
	// Update pulls from the network once per tick.
	Update()
}

// Provider creates adapters for one energy network.
type Provider interface {
	Name() string
	Available() bool
	NewAdapter(capacity int) Adapter
}

// Resolve returns the first available provider, or nil when none is.
// Units built without a provider run with no adapter.
func Resolve(providers ...Provider) Provider {
	for _, p := range providers {
		if p != nil && p.Available() {
			slog.Info("energy network resolved", "provider", p.Name())
			return p
		}
	}
	slog.Warn("no energy network available, electric units will idle")
	return nil
}

// NewAdapter returns an adapter from p, or nil when p is nil.
func NewAdapter(p Provider, capacity int) Adapter {
	if p == nil {
		return nil
	}
	return p.NewAdapter(capacity)
}
