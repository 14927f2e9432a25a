package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSucceeded tracks jobs that produced a result (including empty ones).
	JobsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_jobs_succeeded_total",
		Help: "The total number of jobs that completed successfully.",
	})
	// JobsFailed tracks jobs that ended in an error outcome.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_jobs_failed_total",
		Help: "The total number of jobs that failed.",
	})
	// JobsEmpty tracks successful jobs for which the site held no record.
	JobsEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_jobs_empty_total",
		Help: "The total number of jobs with no data on the site.",
	})
	// CooldownsEntered tracks global cooldown pauses triggered by clustered failures.
	CooldownsEntered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_cooldowns_total",
		Help: "The total number of failure cooldown pauses taken.",
	})
	// JobDuration observes wall time spent scraping a single job.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_job_duration_seconds",
		Help:    "Wall time per job, including human-pacing delays.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
