package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/mini-factory/internal/config"
	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/worldctx"
)

// buildSimulation assembles the world context, energy grid and recipe
// service into an empty simulation.
func buildSimulation(cfg *config.Config) (*engine.Simulation, error) {
	svc, err := cfg.Bootstrap()
	if err != nil {
		return nil, fmt.Errorf("bootstrapping recipes: %w", err)
	}
	counts := svc.Counts()
	slog.Info("recipes registered",
		"bottler", counts["bottler"],
		"crafting", counts["crafting"],
		"fabricator", counts["fabricator"],
		"smelting", counts["smelting"],
		"fluids", len(svc.Catalog.Fluids()),
	)

	world := worldctx.NewNoiseWorld(cfg.World.Seed, cfg.World.RainChance)
	for _, p := range cfg.World.Covered {
		world.Cover(p)
	}

	grid := energy.NewGrid(cfg.Energy.PerTick, cfg.Energy.Grid)
	env := &machines.Env{
		Recipes: svc,
		World:   world,
		Energy:  energy.Resolve(grid),
		Config:  cfg.Machines,
	}
	return engine.NewSimulation(env, grid, deltasync.NewHub(cfg.Server.SyncBuffer)), nil
}

// placeLayout places the configured units of a fresh world and links
// engines to their consumers.
func placeLayout(sim *engine.Simulation, layout []config.PlacementConfig) error {
	ids := make([]uuid.UUID, len(layout))
	for i, p := range layout {
		u, err := sim.Place(p.Kind, p.Pos)
		if err != nil {
			return fmt.Errorf("layout[%d]: %w", i, err)
		}
		ids[i] = u.ID()
	}
	for i, p := range layout {
		if p.LinkTo == nil {
			continue
		}
		if err := sim.Link(ids[i], ids[*p.LinkTo]); err != nil {
			return fmt.Errorf("layout[%d] link: %w", i, err)
		}
	}
	return nil
}
