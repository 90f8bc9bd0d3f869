package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RPC outcomes recorded by ClientMetrics.
const (
	OutcomeOK       = "ok"
	OutcomeForward  = "forward"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// ClientMetrics instruments routing clients. A nil *ClientMetrics is
// valid and records nothing.
type ClientMetrics struct {
	routeHops  *prometheus.HistogramVec
	rpcs       *prometheus.CounterVec
	getLatency prometheus.Histogram
}

// NewClientMetrics registers the client collectors on reg.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	f := promauto.With(reg)
	return &ClientMetrics{
		routeHops: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chordkit_route_hops",
			Help:    "Forwarding hops taken by one routed operation",
			Buckets: prometheus.LinearBuckets(0, 1, 16),
		}, []string{"op"}),
		rpcs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chordkit_rpc_total",
			Help: "RPCs issued to ring nodes by method and outcome",
		}, []string{"method", "outcome"}),
		getLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chordkit_get_latency_seconds",
			Help:    "End-to-end latency of routed gets",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
	}
}

// ObserveRoute records the hop count of a completed operation.
func (m *ClientMetrics) ObserveRoute(op string, hops int) {
	if m == nil {
		return
	}
	m.routeHops.WithLabelValues(op).Observe(float64(hops))
}

// ObserveRPC counts one RPC.
func (m *ClientMetrics) ObserveRPC(method, outcome string) {
	if m == nil {
		return
	}
	m.rpcs.WithLabelValues(method, outcome).Inc()
}

// ObserveGet records the latency of one routed get.
func (m *ClientMetrics) ObserveGet(d time.Duration) {
	if m == nil {
		return
	}
	m.getLatency.Observe(d.Seconds())
}

// NodeMetrics instruments simulated nodes with the names the deployed
// ring exports, labelled by node identifier.
type NodeMetrics struct {
	keysTotal          *prometheus.GaugeVec
	successor          *prometheus.GaugeVec
	findSuccessorCalls prometheus.Counter
	setKeyCalls        prometheus.Counter
	getKeyCalls        prometheus.Counter
}

// NewNodeMetrics registers the node collectors on reg.
func NewNodeMetrics(reg prometheus.Registerer) *NodeMetrics {
	f := promauto.With(reg)
	return &NodeMetrics{
		keysTotal: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dht_keys_total",
			Help: "The total number of keys stored in the node",
		}, []string{"id"}),
		successor: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chord_successor",
			Help: "Identifier of the node's current successor",
		}, []string{"id"}),
		findSuccessorCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "chord_find_successor_calls_total",
			Help: "Count of calls to FindSuccessor",
		}),
		setKeyCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "dht_set_key_calls_total",
			Help: "Count of SetKey operations",
		}),
		getKeyCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "dht_get_key_calls_total",
			Help: "Count of GetKey operations",
		}),
	}
}

// SetKeys records how many keys node id holds.
func (m *NodeMetrics) SetKeys(id uint64, n int) {
	if m == nil {
		return
	}
	m.keysTotal.WithLabelValues(strconv.FormatUint(id, 10)).Set(float64(n))
}

// SetSuccessor records the successor of node id.
func (m *NodeMetrics) SetSuccessor(id, succ uint64) {
	if m == nil {
		return
	}
	m.successor.WithLabelValues(strconv.FormatUint(id, 10)).Set(float64(succ))
}

// FindSuccessorCalled counts one FindSuccessor call.
func (m *NodeMetrics) FindSuccessorCalled() {
	if m == nil {
		return
	}
	m.findSuccessorCalls.Inc()
}

// SetKeyCalled counts one SetKey call.
func (m *NodeMetrics) SetKeyCalled() {
	if m == nil {
		return
	}
	m.setKeyCalls.Inc()
}

// GetKeyCalled counts one GetKey call.
func (m *NodeMetrics) GetKeyCalled() {
	if m == nil {
		return
	}
	m.getKeyCalls.Inc()
}
