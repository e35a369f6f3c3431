package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/unifi-mqtt/internal/unifi"
)

const namespace = "unifi"

// Collector counts controller events in its own Prometheus registry.
// It is a unifi.Handler and never fails an event.
type Collector struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	reconnects    prometheus.Counter
	logins        prometheus.Counter
	sessionErrors *prometheus.CounterVec
	sessionOpen   *prometheus.GaugeVec
}

// NewCollector creates a Collector with Go runtime and process metrics
// registered alongside the event metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of events emitted by the controller",
			},
			[]string{"subsystem", "event"},
		),

		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Total number of controller reconnect attempts",
			},
		),

		logins: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Total number of controller login attempts",
			},
		),

		sessionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "errors_total",
				Help:      "Total number of streaming session failures",
			},
			[]string{"subsystem"},
		),

		sessionOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "open",
				Help:      "Streaming session status (0=down, 1=open)",
			},
			[]string{"subsystem"},
		),
	}

	c.registry.MustRegister(
		c.events,
		c.reconnects,
		c.logins,
		c.sessionErrors,
		c.sessionOpen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// HandleEvent implements unifi.Handler.
func (c *Collector) HandleEvent(_ context.Context, ev unifi.Event) error {
	c.events.WithLabelValues(ev.Subsystem, ev.Name).Inc()

	if ev.Subsystem == unifi.SubsystemController {
		switch ev.Name {
		case unifi.EventReconnect:
			c.reconnects.Inc()
		case unifi.EventLogin:
			c.logins.Inc()
		}
		return nil
	}

	switch ev.Name {
	case unifi.EventConnect:
		c.sessionOpen.WithLabelValues(ev.Subsystem).Set(1)
	case unifi.EventClose:
		c.sessionOpen.WithLabelValues(ev.Subsystem).Set(0)
	case unifi.EventError:
		c.sessionOpen.WithLabelValues(ev.Subsystem).Set(0)
		c.sessionErrors.WithLabelValues(ev.Subsystem).Inc()
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
