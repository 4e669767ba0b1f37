package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/talgya/mini-factory/internal/config"
	"github.com/talgya/mini-factory/internal/recipes"
)

func newRecipesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List the configured recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			svc, err := cfg.Bootstrap()
			if err != nil {
				return err
			}
			return printRecipes(cmd.OutOrStdout(), svc, jsonOutput)
		},
	}
}

func printRecipes(out io.Writer, svc *recipes.Service, asJSON bool) error {
	if asJSON {
		type row struct {
			Kind   string `json:"kind"`
			Key    string `json:"key"`
			Output string `json:"output"`
		}
		var rows []row
		eachRecipe(svc, func(kind, key, output string) {
			rows = append(rows, row{kind, key, output})
		})
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tKEY\tOUTPUT")
	eachRecipe(svc, func(kind, key, output string) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", kind, key, output)
	})
	return tw.Flush()
}

// eachRecipe visits every registered recipe in registration order.
func eachRecipe(svc *recipes.Service, fn func(kind, key, output string)) {
	for _, r := range svc.Bottler.All() {
		fn("bottler", r.Key(), fmt.Sprintf("%s (%d cycles)", r.Bottled, r.Cycles))
	}
	for _, r := range svc.Crafting.Recipes() {
		fn("crafting", r.Key(), r.Output().String())
	}
	for _, r := range svc.Fabricator.All() {
		fn("fabricator", r.Key(), fmt.Sprintf("%s (%d mB %s)", r.Output(), r.Molten.Amount, r.Molten.Fluid))
	}
	for _, r := range svc.Smelting.All() {
		fn("smelting", r.Key(), fmt.Sprintf("%d mB %s at %d", r.Product.Amount, r.Product.Fluid, r.MeltingPoint))
	}
}

func newValidateCommand() *cobra.Command {
	var writePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration, catalog and recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			sim, err := buildSimulation(cfg)
			if err != nil {
				return err
			}
			if err := placeLayout(sim, cfg.Layout); err != nil {
				return err
			}
			if writePath != "" {
				if err := cfg.WriteYAML(writePath); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d units, %d links\n", sim.Len(), len(sim.Links()))
			return nil
		},
	}
	cmd.Flags().StringVar(&writePath, "write", "", "write the merged configuration to this file")
	return cmd
}
