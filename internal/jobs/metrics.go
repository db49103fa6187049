package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	jobUpdateSubscriptions = "update_subscriptions"
	jobSyncSubscriptions   = "sync_subscriptions"
	jobImportVideos        = "import_videos"
	jobUpdateVideoBuckets  = "update_video_buckets"
)

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_job_runs_total",
		Help: "Job invocations by job and outcome.",
	}, []string{"job", "status"})

	pagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_pages_processed_total",
		Help: "Pages committed by each job.",
	}, []string{"job"})

	recordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_records_written_total",
		Help: "Store writes by record kind and result.",
	}, []string{"kind", "result"})

	reconciliationMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_reconciliation_mismatches_total",
		Help: "Ids present in a listing but not in its detail lookup, or the reverse.",
	}, []string{"job", "kind"})
)

func observeRun(job string, status Status) {
	jobRuns.WithLabelValues(job, status.String()).Inc()
}

func observeFailure(job string) {
	jobRuns.WithLabelValues(job, "failed").Inc()
}
