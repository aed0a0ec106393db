// Package metrics exports controller activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-sculpture/pkg/command"
	"github.com/teslashibe/go-sculpture/pkg/presence"
	"github.com/teslashibe/go-sculpture/pkg/sculpture"
)

// Collector tracks ticks, transitions, commands, sensor readings and servo
// pulses. It implements sculpture.Observer and prometheus.Collector.
type Collector struct {
	ticks        prometheus.Counter
	transitions  *prometheus.CounterVec
	commands     *prometheus.CounterVec
	presence     prometheus.Gauge
	movement     prometheus.Gauge
	distance     *prometheus.GaugeVec
	noObject     *prometheus.CounterVec
	pulseWidth   *prometheus.GaugeVec
	tickDuration prometheus.Histogram
	sessions     prometheus.Counter
}

// New creates the collectors. Register them with a Registry.
func New() *Collector {
	return &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sculpture_ticks_total",
			Help: "Control loop ticks executed",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sculpture_presence_transitions_total",
			Help: "Presence transitions by event name",
		}, []string{"event"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sculpture_commands_total",
			Help: "Inbound command lines by result (accepted, ignored)",
		}, []string{"result"}),
		presence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sculpture_presence_state",
			Help: "Presence state (0=no_user, 1=approaching, 2=interacting)",
		}),
		movement: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sculpture_movement_state",
			Help: "Movement state (0=idle, 1=listening, 2=positive, 3=negative, 4=neutral)",
		}),
		distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sculpture_distance_cm",
			Help: "Last distance reading in centimetres",
		}, []string{"sensor"}),
		noObject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sculpture_sensor_no_object_total",
			Help: "Samples where a sensor heard no echo",
		}, []string{"sensor"}),
		pulseWidth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sculpture_pulse_width_us",
			Help: "Last servo pulse width in microseconds",
		}, []string{"channel"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sculpture_tick_duration_seconds",
			Help:    "Time spent in one control loop tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.02, 0.05, 0.1},
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sculpture_sessions_total",
			Help: "Visitor sessions started",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ticks.Describe(ch)
	c.transitions.Describe(ch)
	c.commands.Describe(ch)
	c.presence.Describe(ch)
	c.movement.Describe(ch)
	c.distance.Describe(ch)
	c.noObject.Describe(ch)
	c.pulseWidth.Describe(ch)
	c.tickDuration.Describe(ch)
	c.sessions.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ticks.Collect(ch)
	c.transitions.Collect(ch)
	c.commands.Collect(ch)
	c.presence.Collect(ch)
	c.movement.Collect(ch)
	c.distance.Collect(ch)
	c.noObject.Collect(ch)
	c.pulseWidth.Collect(ch)
	c.tickDuration.Collect(ch)
	c.sessions.Collect(ch)
}

// OnTransition implements sculpture.Observer.
func (c *Collector) OnTransition(ev sculpture.Event) {
	c.transitions.WithLabelValues(ev.Transition.Event.Name()).Inc()
	if ev.Transition.Event == presence.EventApproachStart {
		c.sessions.Inc()
	}
}

// OnCommand implements sculpture.Observer.
func (c *Collector) OnCommand(res command.Result) {
	if res.Accepted {
		c.commands.WithLabelValues("accepted").Inc()
	} else {
		c.commands.WithLabelValues("ignored").Inc()
	}
}

// OnTick implements sculpture.Observer.
func (c *Collector) OnTick(s sculpture.Snapshot) {
	c.ticks.Inc()
	c.tickDuration.Observe(s.TickDuration.Seconds())
	c.presence.Set(float64(s.Presence))
	c.movement.Set(float64(s.Movement))

	if s.Sampled {
		c.observeDistance("approach", s.ApproachCm)
		c.observeDistance("interaction", s.InteractionCm)
	}
	for _, o := range s.Outputs {
		c.pulseWidth.WithLabelValues(strconv.Itoa(o.Channel)).Set(float64(o.PulseWidth))
	}
}

func (c *Collector) observeDistance(sensor string, cm *float64) {
	if cm == nil {
		c.noObject.WithLabelValues(sensor).Inc()
		return
	}
	c.distance.WithLabelValues(sensor).Set(*cm)
}

// Registry returns a fresh registry holding c and the Go runtime collectors.
func Registry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
