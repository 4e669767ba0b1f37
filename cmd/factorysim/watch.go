package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/mini-factory/internal/config"
	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/observer"
)

// remoteFlags are shared by the commands that talk to a running factory.
type remoteFlags struct {
	url string
	key string
}

func (rf *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rf.url, "url", "", "factory API base URL (default http://localhost:<server.port>)")
	cmd.Flags().StringVar(&rf.key, "key", "", "admin key (default server.admin_key or FACTORY_ADMIN_KEY)")
}

// resolve fills unset flags from the configuration.
func (rf *remoteFlags) resolve() error {
	if rf.url != "" && rf.key != "" {
		return nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if rf.url == "" {
		rf.url = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if rf.key == "" {
		rf.key = cfg.Server.AdminKey
	}
	return nil
}

func newWatchCommand() *cobra.Command {
	var (
		remote   remoteFlags
		interval time.Duration
		stream   bool
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a running factory and report its health",
		Long: `Watch polls a running factory's API every interval, triages the unit
error states and logs the result. With --stream it also mirrors every
unit's sync channels from the delta stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := remote.resolve(); err != nil {
				return err
			}
			ctx := cmd.Context()
			obs := observer.NewObserver(remote.url)
			out := cmd.OutOrStdout()

			if once {
				return watchCycle(ctx, out, obs, nil, jsonOutput)
			}

			slog.Info("waiting for factory API...", "url", remote.url)
			if err := obs.WaitReady(ctx, 5*time.Minute); err != nil {
				return err
			}

			var mirror *observer.Mirror
			if stream {
				mirror = observer.NewMirror()
				go func() {
					err := obs.Stream(ctx, func(_ string, f deltasync.Frame) { mirror.Apply(f) })
					if err != nil {
						slog.Error("delta stream ended", "error", err)
					}
				}()
			}

			if err := watchCycle(ctx, out, obs, mirror, jsonOutput); err != nil {
				slog.Error("observation failed", "error", err)
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := watchCycle(ctx, out, obs, mirror, jsonOutput); err != nil {
						slog.Error("observation failed", "error", err)
					}
				case <-ctx.Done():
					slog.Info("watch stopped")
					return nil
				}
			}
		},
	}
	remote.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "time between observations")
	cmd.Flags().BoolVar(&stream, "stream", false, "mirror unit channels from the delta stream")
	cmd.Flags().BoolVar(&once, "once", false, "observe once, print the result and exit")
	return cmd
}

// watchCycle observes the factory once and reports its health.
func watchCycle(ctx context.Context, out io.Writer, obs *observer.Observer, mirror *observer.Mirror, asJSON bool) error {
	snap, err := obs.Observe(ctx)
	if err != nil {
		return err
	}
	h := observer.Triage(snap)

	if asJSON {
		return json.NewEncoder(out).Encode(struct {
			Tick    uint64 `json:"tick"`
			SimTime string `json:"sim_time"`
			*observer.Health
		}{snap.Status.Tick, snap.Status.SimTime, h})
	}

	attrs := []any{
		"tick", snap.Status.Tick,
		"sim_time", snap.Status.SimTime,
		"units", h.Units,
		"blocked", h.Blocked,
	}
	if h.Dominant != "" {
		attrs = append(attrs, "dominant", h.Dominant)
	}
	if mirror != nil {
		attrs = append(attrs, "mirrored", len(mirror.Units()), "frames", mirror.Frames())
	}
	slog.Info("factory health", append(attrs, "level", h.Level)...)
	fmt.Fprintf(out, "%s %s: %d/%d units blocked\n", snap.Status.SimTime, h.Level, h.Blocked, h.Units)
	return nil
}

func newCtlCommand() *cobra.Command {
	var remote remoteFlags

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Send admin actions to a running factory",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			return remote.resolve()
		},
	}
	cmd.PersistentFlags().StringVar(&remote.url, "url", "", "factory API base URL (default http://localhost:<server.port>)")
	cmd.PersistentFlags().StringVar(&remote.key, "key", "", "admin key (default server.admin_key or FACTORY_ADMIN_KEY)")

	actor := func() *observer.Actor { return observer.NewActor(remote.url, remote.key) }

	cmd.AddCommand(&cobra.Command{
		Use:   "speed <multiplier>",
		Short: "Set the simulation speed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid speed %q: %w", args[0], err)
			}
			if err := actor().SetSpeed(cmd.Context(), speed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "speed set to %g\n", speed)
			return nil
		},
	})

	var enable bool
	disable := &cobra.Command{
		Use:   "disable <unit-id>",
		Short: "Switch a powered unit off (or back on with --enable)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := actor().SetDisabled(cmd.Context(), args[0], !enable); err != nil {
				return err
			}
			state := "disabled"
			if enable {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state)
			return nil
		},
	}
	disable.Flags().BoolVar(&enable, "enable", false, "switch the unit back on")
	cmd.AddCommand(disable)

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save the world now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := actor().Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "factory saved")
			return nil
		},
	})
	return cmd
}
