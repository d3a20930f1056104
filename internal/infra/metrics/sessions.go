package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sessionOpsTotal, sessionFallbacksTotal) }

var (
	sessionOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_ops_total",
			Help: "Session store operations by kind and outcome.",
		},
		[]string{"op", "outcome"}, // op: list|get|create|append|title|delete|get_or_create
	)

	sessionFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_session_fallbacks_total",
			Help: "Temporary (non-persisted) sessions handed out because the user could not be verified.",
		},
	)
)

func IncSessionOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sessionOpsTotal.WithLabelValues(norm(op), outcome).Inc()
}

func IncSessionFallback() { sessionFallbacksTotal.Inc() }
