package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-sculpture/internal/log"
	"github.com/teslashibe/go-sculpture/pkg/bridge"
	"github.com/teslashibe/go-sculpture/pkg/hostlink"
	"github.com/teslashibe/go-sculpture/pkg/sensor"
)

func newRunCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drive the sculpture through the MCU bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			mcu, err := bridge.Open(cfg.Bridge, log.Component("bridge"))
			if err != nil {
				return err
			}
			defer mcu.Close()
			if err := mcu.SetFrequency(cfg.Servo.FrequencyHz); err != nil {
				return err
			}

			host, err := hostlink.Open(ctx, cfg.Hostlink, log.Component("hostlink"))
			if err != nil {
				return err
			}
			defer host.Close()

			st, err := assemble(cfg, hardware{
				approach:    sensor.NewUltrasonic("approach", mcu.Sensor("approach")),
				interaction: sensor.NewUltrasonic("interaction", mcu.Sensor("interaction")),
				servos:      mcu,
				host:        host,
			})
			if err != nil {
				return err
			}

			log.Info("sculpture running",
				"version", version,
				"leaves", len(cfg.Actuators),
				"host", cfg.Hostlink.Kind,
				"bridge", cfg.Bridge.Port,
				"web", cfg.Web.Enabled)
			err = st.serve(ctx)
			log.Info("sculpture stopped", "pulses", mcu.Pulses(), "echo_timeouts", mcu.Timeouts())
			return err
		},
	}
}
