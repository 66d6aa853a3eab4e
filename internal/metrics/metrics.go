package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PromptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotabot_prompts_total",
		Help: "Completed prompt requests by result",
	}, []string{"result"})

	PromptRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotabot_prompt_rejections_total",
		Help: "Rejected prompt requests by reason (quota, in_flight)",
	}, []string{"reason"})

	CompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotabot_completion_duration_seconds",
		Help:    "AI completion call duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	DailyResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotabot_daily_resets_total",
		Help: "Midnight ledger resets performed",
	})

	LimitChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotabot_limit_changes_total",
		Help: "Daily limit changes applied by administrators",
	})
)
