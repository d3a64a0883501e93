// Package metrics holds the Prometheus collectors of the server.
//
// A nil *Metrics is valid and records nothing, so packages can take one
// unconditionally and tests can pass nil.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Candidate fetch outcomes.
const (
	FetchUpstream = "upstream"
	FetchFallback = "fallback"
	FetchShared   = "shared"
)

type Metrics struct {
	hubConnections   prometheus.Gauge
	broadcastDropped prometheus.Counter
	swipes           *prometheus.CounterVec
	matchesFound     prometheus.Counter
	candidateFetches *prometheus.CounterVec
	groupsCreated    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dining_hub_connections",
			Help: "Open websocket connections.",
		}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dining_broadcast_dropped_total",
			Help: "Events dropped because a connection's send buffer was full.",
		}),
		swipes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dining_swipes_total",
			Help: "Recorded swipes.",
		}, []string{"liked"}),
		matchesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dining_matches_found_total",
			Help: "Restaurants that became a match.",
		}),
		candidateFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dining_candidate_fetches_total",
			Help: "Candidate list requests by outcome.",
		}, []string{"result"}),
		groupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dining_groups_created_total",
			Help: "Groups created.",
		}),
	}
	reg.MustRegister(
		m.hubConnections,
		m.broadcastDropped,
		m.swipes,
		m.matchesFound,
		m.candidateFetches,
		m.groupsCreated,
	)
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.hubConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.hubConnections.Dec()
	}
}

func (m *Metrics) BroadcastDropped() {
	if m != nil {
		m.broadcastDropped.Inc()
	}
}

func (m *Metrics) Swipe(liked bool) {
	if m != nil {
		m.swipes.WithLabelValues(strconv.FormatBool(liked)).Inc()
	}
}

func (m *Metrics) MatchesFound(n int) {
	if m != nil && n > 0 {
		m.matchesFound.Add(float64(n))
	}
}

// CandidateFetch counts one candidate request with the given outcome.
func (m *Metrics) CandidateFetch(result string) {
	if m != nil {
		m.candidateFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) GroupCreated() {
	if m != nil {
		m.groupsCreated.Inc()
	}
}
