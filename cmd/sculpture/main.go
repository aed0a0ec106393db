// Sculpture drives the leaves of the interactive sculpture: it senses
// visitors, talks to the analysis host and animates the servos.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-sculpture/internal/config"
	"github.com/teslashibe/go-sculpture/internal/log"
	"github.com/teslashibe/go-sculpture/pkg/movement"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "sculpture",
		Short: "Interaction and animation engine for the kinetic sculpture",
		Long: `sculpture samples the approach and interaction sensors, reports presence
events to the analysis host, applies its set_state commands and sways the
leaves with a per-leaf phase accumulator.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults are embedded)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		log.Init(cfg.Log.Level)
		return cfg, nil
	}

	root.AddCommand(
		newRunCmd(load),
		newSimulateCmd(load),
		newValidateCmd(load),
		newProfilesCmd(load),
	)
	return root
}

type loader func() (*config.Config, error)

func newValidateCmd(load loader) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dump {
				return yaml.NewEncoder(out).Encode(cfg)
			}
			fmt.Fprintf(out, "config ok: %d leaves, host link %q, tick %v\n",
				len(cfg.Actuators), cfg.Hostlink.Kind, cfg.Loop.TickInterval)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "print", false, "print the effective configuration")
	return cmd
}

func newProfilesCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the motion profile for each movement state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			table, err := cfg.ProfileTable()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-18s %9s %8s %6s\n", "STATE", "AMPLITUDE", "CENTER", "SPEED")
			for _, s := range movement.All {
				p := table[s]
				fmt.Fprintf(out, "%-18s %9.1f %8.1f %6.2f\n", s, p.Amplitude, p.CenterAngle, p.SpeedFactor)
			}
			return nil
		},
	}
}
