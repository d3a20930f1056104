package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(analysisJobsProcessedTotal) }

var analysisJobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_jobs_processed_total",
		Help: "Total number of analysis jobs processed, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

func IncAnalysisJob(status string) {
	analysisJobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}
