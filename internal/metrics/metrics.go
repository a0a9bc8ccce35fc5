// Package metrics exposes Prometheus collectors for the proxy's failover
// behavior: how often keys fail over, how often they get deprioritized, and
// how many keys remain available per channel.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts inbound /v1/messages requests by channel and
	// outcome (success, error).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudeproxy_requests_total",
		Help: "Total inbound requests handled, by channel and outcome.",
	}, []string{"channel", "outcome"})

	// KeyFailoversTotal counts individual key failover events by channel.
	KeyFailoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudeproxy_key_failovers_total",
		Help: "Total key failover events, by channel.",
	}, []string{"channel"})

	// KeyDeprioritizationsTotal counts deprioritize-key operations by
	// channel.
	KeyDeprioritizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudeproxy_key_deprioritizations_total",
		Help: "Total times a key was moved to the end of its channel's key order after a quota-related failure.",
	}, []string{"channel"})

	// AvailableKeys reports, per channel, how many keys are not currently
	// marked failed. No code path in the proxy sets this gauge, so it
	// reports no series.
	AvailableKeys = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "claudeproxy_available_keys",
		Help: "Number of API keys not currently marked failed, by channel.",
	}, []string{"channel"})
)
