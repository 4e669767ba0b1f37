package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/mini-factory/internal/api"
	"github.com/talgya/mini-factory/internal/config"
	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/persistence"
	"github.com/talgya/mini-factory/internal/telemetry"
)

func newRunCommand() *cobra.Command {
	var ticks uint64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation",
		Long: `Run loads the saved factory from the database, or places the configured
layout into a fresh one, then ticks until interrupted. The world is saved
every auto_save_days in-world days and on shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, ticks)
		},
	}
	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "advance this many ticks unpaced, save and exit (0 runs until interrupted)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, ticks uint64) error {
	slog.Info("factory simulation starting", "version", Version)

	sim, err := buildSimulation(cfg)
	if err != nil {
		return err
	}

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := persistence.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Storage.Path)

	// ── Load or Place Units ───────────────────────────────────────────
	var startTick uint64
	if db.HasWorldState() {
		slog.Info("found saved factory, loading...")
		startTick, err = db.LoadWorldState(sim)
		if err != nil {
			return err
		}
		slog.Info("factory restored", "units", sim.Len(), "links", len(sim.Links()),
			"tick", startTick, "sim_time", engine.SimTime(startTick))
	} else {
		slog.Info("no saved factory found, placing layout...", "units", len(cfg.Layout))
		if err := placeLayout(sim, cfg.Layout); err != nil {
			return err
		}
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Telemetry ─────────────────────────────────────────────────────
	csv, err := telemetry.NewCSVWriter(cfg.Telemetry.CSVPath)
	if err != nil {
		return err
	}
	defer csv.Close()
	recorder := telemetry.NewRecorder(telemetry.NewMetrics(), csv)

	save := func(reason string) {
		start := time.Now()
		err := db.SaveWorldState(sim)
		recorder.Metrics.RecordSave(err)
		if err != nil {
			slog.Error("save failed", "reason", reason, "error", err)
			return
		}
		slog.Info("factory saved", "reason", reason, "units", sim.Len(),
			"took", time.Since(start).Round(time.Millisecond))
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Tick = startTick
	eng.SetSpeed(cfg.World.Speed)

	eng.OnTick = func(tick uint64) {
		recorder.TimeTick(func() { sim.TickUnits(tick) })
	}
	eng.OnSecond = sim.Sync
	eng.OnHour = func(uint64) {
		recorder.Flush(sim.Stats())
	}
	eng.OnDay = func(tick uint64) {
		sim.Report(tick)
		day := tick / engine.TicksPerDay
		if cfg.Storage.AutoSaveDays > 0 && day%uint64(cfg.Storage.AutoSaveDays) == 0 {
			save("auto")
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.Server.Port > 0 && ticks == 0 {
		if cfg.Server.AdminKey == "" {
			slog.Warn("FACTORY_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Sim:       sim,
			Eng:       eng,
			DB:        db,
			Telemetry: recorder,
			Port:      cfg.Server.Port,
			AdminKey:  cfg.Server.AdminKey,
			RateLimit: cfg.Server.RateLimit,
			Origins:   cfg.Server.CORS,
		}
		apiServer.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	}

	// ── Start ─────────────────────────────────────────────────────────
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", startTick, engine.SimTime(startTick))
	}

	if ticks > 0 {
		eng.RunFor(ticks)
	} else {
		go func() {
			<-ctx.Done()
			slog.Info("received signal, shutting down")
			eng.Stop()
		}()
		fmt.Println("Starting simulation... (Ctrl+C to stop)")
		eng.Run()
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
	}

	// Final save on shutdown.
	save("shutdown")
	sim.Report(eng.Tick)
	fmt.Println("Simulation stopped. Factory saved.")
	return nil
}
