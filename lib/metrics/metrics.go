// Package metrics exposes Prometheus collectors for secure-session servers.
// Every method is safe to call on a nil *Collector, which records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "secproto"

// Rejection reasons.
const (
	ReasonBlacklist = "blacklist"
	ReasonRateLimit = "rate_limit"
	ReasonHandshake = "handshake"
	ReasonTicket    = "ticket"
)

// Resumption results.
const (
	ResumeOK      = "ok"
	ResumeInvalid = "invalid"
	ResumeExpired = "expired"
)

type Collector struct {
	handshakes        *prometheus.CounterVec
	resumptions       *prometheus.CounterVec
	rejected          *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	activeTickets     prometheus.Gauge
	liveConnections   prometheus.Gauge
}

// NewCollector builds a collector and registers it with reg. A nil reg leaves
// the collectors unregistered. Collectors already registered under the same
// names are reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "handshakes_total",
				Help:      "Fresh asymmetric handshakes by result",
			},
			[]string{"result"},
		),
		resumptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "resumptions_total",
				Help:      "Ticket redemptions by result",
			},
			[]string{"result"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "rejected_connections_total",
				Help:      "Connections refused at accept time",
			},
			[]string{"reason"},
		),
		handshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "handshake_duration_seconds",
				Help:      "Server-side time from first packet to issued ticket",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
		),
		activeTickets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "active_tickets",
			Help:      "Tickets issued and not yet redeemed or swept",
		}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "live_connections",
			Help:      "Established sessions held by the server",
		}),
	}
	if reg == nil {
		return c, nil
	}

	var err error
	c.handshakes, err = register(reg, c.handshakes)
	if err != nil {
		return nil, err
	}
	c.resumptions, err = register(reg, c.resumptions)
	if err != nil {
		return nil, err
	}
	c.rejected, err = register(reg, c.rejected)
	if err != nil {
		return nil, err
	}
	c.handshakeDuration, err = register(reg, c.handshakeDuration)
	if err != nil {
		return nil, err
	}
	c.activeTickets, err = register(reg, c.activeTickets)
	if err != nil {
		return nil, err
	}
	c.liveConnections, err = register(reg, c.liveConnections)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (c *Collector) HandshakeSucceeded(d time.Duration) {
	if c == nil {
		return
	}
	c.handshakes.WithLabelValues("ok").Inc()
	c.handshakeDuration.Observe(d.Seconds())
}

func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakes.WithLabelValues("failed").Inc()
}

func (c *Collector) Resumed(result string) {
	if c == nil {
		return
	}
	c.resumptions.WithLabelValues(result).Inc()
}

func (c *Collector) Rejected(reason string) {
	if c == nil {
		return
	}
	c.rejected.WithLabelValues(reason).Inc()
}

func (c *Collector) SetActiveTickets(n int) {
	if c == nil {
		return
	}
	c.activeTickets.Set(float64(n))
}

func (c *Collector) SetLiveConnections(n int) {
	if c == nil {
		return
	}
	c.liveConnections.Set(float64(n))
}
