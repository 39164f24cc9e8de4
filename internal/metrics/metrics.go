// Package metrics defines the Prometheus collectors exported by
// linksweep.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinksTested counts links for which a measurement was attempted,
	// labeled by outcome ("ok" or "fail").
	LinksTested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linksweep_links_tested_total",
			Help: "Links for which a bandwidth measurement was attempted",
		},
		[]string{"outcome"},
	)

	// LinkBandwidth reports the last measured bandwidth per interface.
	LinkBandwidth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "linksweep_link_bandwidth_gbps",
			Help: "Last measured bandwidth average per interface in Gb/s",
		},
		[]string{"netdev"},
	)

	// RemoteCommands counts remote executions, labeled by purpose.
	RemoteCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linksweep_remote_commands_total",
			Help: "Remote commands issued by the sweep",
		},
		[]string{"purpose"},
	)
)
