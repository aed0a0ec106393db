package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-sculpture/internal/log"
	"github.com/teslashibe/go-sculpture/pkg/hostlink"
	"github.com/teslashibe/go-sculpture/pkg/sim"
)

func newSimulateCmd(load loader) *cobra.Command {
	var (
		stdio     bool
		noWeb     bool
		sentiment []float64
		linger    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scripted visit without hardware",
		Long: `simulate walks a virtual visitor up to the sculpture, lets them interact
twice and leave. Servo pulses are recorded instead of sent. By default a
built-in host answers each interaction with the next sentiment score; with
--stdio events go to stdout and set_state commands are read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if noWeb {
				cfg.Web.Enabled = false
			}

			var host hostlink.Link
			var fake *sim.Host
			if stdio {
				if host, err = hostlink.Open(cmd.Context(), hostlink.Config{Kind: hostlink.KindStdio}, log.Component("hostlink")); err != nil {
					return err
				}
			} else {
				fake = sim.NewHost(sentiment...)
				host = fake
			}
			defer host.Close()

			visitor := sim.NewVisitor(sim.DefaultVisit(), time.Now(), nil)
			servos := sim.NewRecorder()

			st, err := assemble(cfg, hardware{
				approach:    visitor.Approach(),
				interaction: visitor.Interaction(),
				servos:      servos,
				host:        host,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), visitor.Duration()+linger)
			defer cancel()

			log.Info("simulation started", "visit", visitor.Duration().String(), "stdio", stdio)
			if err := st.serve(ctx); err != nil {
				return err
			}

			snap := st.controller.Snapshot()
			attrs := []any{
				"ticks", snap.Tick,
				"pulses", len(servos.Calls()),
				"movement", snap.Movement.String(),
				"commands_accepted", snap.CommandsAccepted,
			}
			if fake != nil {
				attrs = append(attrs, "events", fake.Events())
			}
			log.Info("simulation finished", attrs...)
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false, "exchange host lines over stdin/stdout")
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "do not start the dashboard")
	cmd.Flags().Float64SliceVar(&sentiment, "sentiment", []float64{0.6, -0.4, 0.0}, "sentiment scores the built-in host replies with, in turn")
	cmd.Flags().DurationVar(&linger, "linger", 2*time.Second, "keep running this long after the visitor leaves")
	return cmd
}
