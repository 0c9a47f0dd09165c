package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat"

// Collectors holds the chat manager's Prometheus instruments.
type Collectors struct {
	Registry *prometheus.Registry

	Connections       prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	AuthFailures      prometheus.Counter
	FramesDelivered   prometheus.Counter
	DeliveryFailures  *prometheus.CounterVec
	UndeliveredUsers  prometheus.Counter
	MalformedFrames   prometheus.Counter
	DeniedEvents      *prometheus.CounterVec
	InboundEvents     *prometheus.CounterVec
	PresenceBroadcast *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry.
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one open connection.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected connection attempts.",
		}),
		FramesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Frames queued to live connections.",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Frames abandoned for a single connection.",
		}, []string{"reason"}),
		UndeliveredUsers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undelivered_recipients_total",
			Help:      "Broadcast recipients with no live connection.",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		DeniedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "denied_events_total",
			Help:      "Conversation-scoped events dropped by authorization or lookup.",
		}, []string{"reason"}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Decoded inbound client events.",
		}, []string{"type"}),
		PresenceBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_transitions_total",
			Help:      "Online/offline transitions broadcast.",
		}, []string{"state"}),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Connections,
		c.OnlineUsers,
		c.AuthFailures,
		c.FramesDelivered,
		c.DeliveryFailures,
		c.UndeliveredUsers,
		c.MalformedFrames,
		c.DeniedEvents,
		c.InboundEvents,
		c.PresenceBroadcast,
	)
	return c
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
