package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks cron cycles and what each replay pass achieved.
type CronJobMetrics struct {
	duration      *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	lockSkipped   prometheus.Counter
	replayed      *prometheus.CounterVec
	replayBacklog prometheus.Gauge
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cron_job_duration_seconds",
			Help:      "Duration of cron jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cron_job_runs_total",
			Help:      "Cron job executions by result.",
		}, []string{"job", "result"}),
		lockSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cron_cycles_skipped_total",
			Help:      "Cycles skipped because another replica held the lock.",
		}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_replays_total",
			Help:      "Degraded payment events retried by the replay job, by new outcome.",
		}, []string{"outcome"}),
		replayBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_replay_backlog",
			Help:      "Replay candidates found by the most recent pass.",
		}),
	}
	reg.MustRegister(m.duration, m.runs, m.lockSkipped, m.replayed, m.replayBacklog)
	return m
}

// ObserveRun records one execution of job; a non-nil err counts as a failure.
func (c *CronJobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	c.runs.WithLabelValues(job, result).Inc()
}

func (c *CronJobMetrics) IncLockSkipped() {
	if c == nil || c.lockSkipped == nil {
		return
	}
	c.lockSkipped.Inc()
}

func (c *CronJobMetrics) IncReplayed(outcome string) {
	if c == nil || c.replayed == nil {
		return
	}
	c.replayed.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CronJobMetrics) SetReplayBacklog(n int) {
	if c == nil || c.replayBacklog == nil {
		return
	}
	c.replayBacklog.Set(float64(n))
}
