package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "mcpguard"

var (
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Challenge gate outcomes by decision.",
		},
		[]string{"decision"},
	)
	RequestsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Requests rejected before dispatch, by reason.",
		},
		[]string{"reason"},
	)
	RPCRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Dispatched JSON-RPC requests by method and status.",
		},
		[]string{"method", "status"},
	)
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and status.",
		},
		[]string{"tool", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		GateDecisions,
		RequestsRejected,
		RPCRequests,
		ToolCalls,
	)
}
