package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-sculpture/internal/config"
	"github.com/teslashibe/go-sculpture/internal/log"
	"github.com/teslashibe/go-sculpture/pkg/animation"
	"github.com/teslashibe/go-sculpture/pkg/command"
	"github.com/teslashibe/go-sculpture/pkg/hostlink"
	"github.com/teslashibe/go-sculpture/pkg/metrics"
	"github.com/teslashibe/go-sculpture/pkg/movement"
	"github.com/teslashibe/go-sculpture/pkg/presence"
	"github.com/teslashibe/go-sculpture/pkg/sculpture"
	"github.com/teslashibe/go-sculpture/pkg/sensor"
	"github.com/teslashibe/go-sculpture/pkg/telemetry"
	"github.com/teslashibe/go-sculpture/pkg/web"
)

// hardware is what the loop talks to: two rangers, the servo driver and
// the host link.
type hardware struct {
	approach    sensor.Ranger
	interaction sensor.Ranger
	servos      animation.PulseWriter
	host        hostlink.Link
}

// stack is a fully wired sculpture.
type stack struct {
	cfg        *config.Config
	controller *sculpture.Controller
	dashboard  *hostlink.Queue
	metrics    *metrics.Collector
	telemetry  *telemetry.Recorder
	web        *web.Server
}

func assemble(cfg *config.Config, hw hardware) (*stack, error) {
	profiles, err := cfg.ProfileTable()
	if err != nil {
		return nil, err
	}

	engine, err := animation.NewEngine(cfg.Actuators, profiles, cfg.Servo, hw.servos,
		append(cfg.EngineOptions(), animation.WithLogger(log.Component("animation")))...)
	if err != nil {
		return nil, fmt.Errorf("animation: %w", err)
	}

	detector, err := presence.NewDetector(hw.approach, hw.interaction, cfg.PresenceConfig(), log.Component("presence"))
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}

	dashboard := hostlink.NewQueue(hostlink.DefaultQueueSize)
	interp := command.NewInterpreter(log.Component("command"))
	interp.AddSource("host", hw.host)
	interp.AddSource("dashboard", dashboard)

	ctrl, err := sculpture.New(cfg.Loop, sculpture.Parts{
		Interpreter: interp,
		Detector:    detector,
		Engine:      engine,
		Register:    movement.NewRegister(),
		Host:        hw.host,
		Logger:      log.Component("sculpture"),
	})
	if err != nil {
		return nil, err
	}

	rec, err := telemetry.New(cfg.Telemetry.Dir, cfg.Telemetry.Window, log.Component("telemetry"))
	if err != nil {
		return nil, err
	}

	st := &stack{
		cfg:        cfg,
		controller: ctrl,
		dashboard:  dashboard,
		metrics:    metrics.New(),
		telemetry:  rec,
	}
	ctrl.Observe(st.metrics)
	ctrl.Observe(rec)

	if cfg.Web.Enabled {
		st.web = web.NewServer(cfg.Web, web.Deps{
			Status:    ctrl,
			Telemetry: rec,
			Commands:  dashboard,
			Metrics:   metrics.Handler(metrics.Registry(st.metrics)),
			Logger:    log.Component("web"),
		})
		ctrl.Observe(st.web)
	}
	return st, nil
}

// serve runs the loop and, if enabled, the dashboard until ctx ends or
// either fails.
func (s *stack) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if s.web != nil {
		go func() { webErr <- s.web.Start(ctx) }()
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- s.controller.Run(ctx) }()

	var err error
	select {
	case err = <-loopErr:
		cancel()
		if s.web != nil {
			if werr := <-webErr; werr != nil {
				err = errors.Join(err, fmt.Errorf("dashboard: %w", werr))
			}
		}
	case err = <-webErr:
		cancel()
		<-loopErr
		if err != nil {
			err = fmt.Errorf("dashboard: %w", err)
		}
	}

	if cerr := s.telemetry.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
