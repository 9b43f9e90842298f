// Package metrics exposes relay counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the gateway and HTTP layer report into.
type Recorder interface {
	SetConnections(n int)
	SetSessions(counts map[string]int)
	RecordMove()
	RecordMoveRejected(reason string)
	RecordInvitation(outcome string)
	RecordAuthFailure()
}

type Collector struct {
	connections   prometheus.Gauge
	sessions      *prometheus.GaugeVec
	moves         prometheus.Counter
	movesRejected *prometheus.CounterVec
	invitations   *prometheus.CounterVec
	authFailures  prometheus.Counter
}

// NewCollector creates the relay metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "e4square_connections",
			Help: "Open player connections.",
		}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "e4square_sessions",
			Help: "Game sessions held in memory by status.",
		}, []string{"status"}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "e4square_moves_total",
			Help: "Accepted and relayed moves.",
		}),
		movesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "e4square_moves_rejected_total",
			Help: "Rejected move submissions by reason.",
		}, []string{"reason"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "e4square_invitations_total",
			Help: "Invitations by outcome.",
		}, []string{"outcome"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "e4square_auth_failures_total",
			Help: "Connection attempts refused during authentication.",
		}),
	}
	reg.MustRegister(c.connections, c.sessions, c.moves, c.movesRejected, c.invitations, c.authFailures)
	return c
}

func (c *Collector) SetConnections(n int) { c.connections.Set(float64(n)) }

func (c *Collector) SetSessions(counts map[string]int) {
	for status, n := range counts {
		c.sessions.WithLabelValues(status).Set(float64(n))
	}
}

func (c *Collector) RecordMove() { c.moves.Inc() }

func (c *Collector) RecordMoveRejected(reason string) {
	c.movesRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordInvitation(outcome string) {
	c.invitations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordAuthFailure() { c.authFailures.Inc() }

// Nop discards everything.
type Nop struct{}

func (Nop) SetConnections(int)         {}
func (Nop) SetSessions(map[string]int) {}
func (Nop) RecordMove()                {}
func (Nop) RecordMoveRejected(string)  {}
func (Nop) RecordInvitation(string)    {}
func (Nop) RecordAuthFailure()         {}

// Handler serves the Prometheus scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
