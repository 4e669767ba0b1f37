package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-factory/internal/api"
	"github.com/talgya/mini-factory/internal/config"
	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/persistence"
	"github.com/talgya/mini-factory/internal/telemetry"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data", "factory.db")
	return cfg
}

func TestPlaceDefaultLayout(t *testing.T) {
	cfg := defaultConfig(t)
	sim, err := buildSimulation(cfg)
	require.NoError(t, err)
	require.NoError(t, placeLayout(sim, cfg.Layout))

	st := sim.Stats()
	assert.Equal(t, 6, st.Units)
	assert.Equal(t, 2, st.UnitsByKind[machines.KindEngineElectric])
	assert.Len(t, sim.Links(), 2)
}

func TestPlaceLayoutRejectsBadLink(t *testing.T) {
	cfg := defaultConfig(t)
	sim, err := buildSimulation(cfg)
	require.NoError(t, err)

	// A raintank produces no energy, so it cannot feed the bottler.
	one := 1
	err = placeLayout(sim, []config.PlacementConfig{
		{Kind: machines.KindRaintank, LinkTo: &one},
		{Kind: machines.KindBottler},
	})
	assert.ErrorIs(t, err, engine.ErrNotLinkable)
}

func TestRunSavesAndResumes(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Telemetry.CSVPath = filepath.Join(t.TempDir(), "ticks.csv")

	require.NoError(t, run(context.Background(), cfg, engine.TicksPerHour*2))

	db, err := persistence.Open(cfg.Storage.Path)
	require.NoError(t, err)
	tick, err := db.GetMeta("last_tick")
	require.NoError(t, err)
	assert.Equal(t, "2000", tick)
	require.NoError(t, db.Close())

	data, err := os.ReadFile(cfg.Telemetry.CSVPath)
	require.NoError(t, err)
	var rows []telemetry.WindowStats
	require.NoError(t, gocsv.UnmarshalBytes(data, &rows))
	require.Len(t, rows, 2, "one row per in-world hour")
	assert.Equal(t, 6, rows[1].Units)

	// The second run resumes the saved units instead of placing the layout again.
	cfg.Telemetry.CSVPath = ""
	require.NoError(t, run(context.Background(), cfg, engine.TicksPerHour))

	db, err = persistence.Open(cfg.Storage.Path)
	require.NoError(t, err)
	defer db.Close()
	tick, err = db.GetMeta("last_tick")
	require.NoError(t, err)
	assert.Equal(t, "3000", tick)
	recs, err := db.LoadUnits()
	require.NoError(t, err)
	assert.Len(t, recs, 6)
}

func TestPrintRecipes(t *testing.T) {
	cfg := defaultConfig(t)
	svc, err := cfg.Bootstrap()
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, printRecipes(&text, svc, false))
	lines := strings.Split(strings.TrimSpace(text.String()), "\n")
	assert.Equal(t, 1+1+8+4+3, len(lines), "header plus every recipe")
	assert.Contains(t, text.String(), "chipset_basic")

	var out bytes.Buffer
	require.NoError(t, printRecipes(&out, svc, true))
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	assert.Equal(t, "bottler", rows[0]["kind"])
}

func TestValidateCommand(t *testing.T) {
	t.Setenv("FACTORY_DB", filepath.Join(t.TempDir(), "unused.db"))
	out := filepath.Join(t.TempDir(), "merged.yaml")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"validate", "--write", out})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "config ok: 6 units, 2 links\n", stdout.String())

	merged, err := config.Load(out)
	require.NoError(t, err)
	assert.Len(t, merged.Layout, 6)
}

func startFactory(t *testing.T) (*api.Server, *httptest.Server) {
	t.Helper()
	cfg := defaultConfig(t)
	sim, err := buildSimulation(cfg)
	require.NoError(t, err)
	require.NoError(t, placeLayout(sim, cfg.Layout))

	db, err := persistence.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &api.Server{Sim: sim, Eng: engine.NewEngine(), DB: db, AdminKey: "ctl-key"}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestWatchOnce(t *testing.T) {
	_, ts := startFactory(t)

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"watch", "--once", "--url", ts.URL, "--key", "x"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "Day 1, 6:00")
	assert.Contains(t, stdout.String(), "units blocked")
}

func TestCtlCommands(t *testing.T) {
	s, ts := startFactory(t)
	unit := s.Sim.Statuses()[1]
	require.Equal(t, machines.KindBottler, unit.Kind)

	exec := func(args ...string) (string, error) {
		cmd := newRootCommand()
		var stdout bytes.Buffer
		cmd.SetOut(&stdout)
		cmd.SetArgs(append(append([]string{"ctl"}, args...), "--url", ts.URL, "--key", "ctl-key"))
		err := cmd.Execute()
		return stdout.String(), err
	}

	out, err := exec("speed", "3")
	require.NoError(t, err)
	assert.Equal(t, "speed set to 3\n", out)
	assert.Equal(t, 3.0, s.Eng.Speed())

	out, err = exec("disable", unit.ID)
	require.NoError(t, err)
	assert.Equal(t, unit.ID+" disabled\n", out)

	out, err = exec("save")
	require.NoError(t, err)
	assert.Equal(t, "factory saved\n", out)
	assert.True(t, s.DB.HasWorldState())

	_, err = exec("speed", "fast")
	assert.ErrorContains(t, err, "invalid speed")
}
