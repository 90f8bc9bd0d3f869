// Package metrics holds the Prometheus side of the toolkit: collectors
// for routing clients and simulated nodes, a read-only client for the
// Prometheus query API, and percentile summaries for offline analysis.
package metrics
