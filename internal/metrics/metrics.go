// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal      *prometheus.CounterVec
	postsIngestedTotal     *prometheus.CounterVec
	accountsTotal          *prometheus.CounterVec
	rateLimitDelaySeconds  *prometheus.HistogramVec
	mentionsHandledTotal   *prometheus.CounterVec
	generatedStatusesTotal prometheus.Counter

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedibooks_pages_fetched_total",
				Help: "Outbox pages fetched, labeled by instance.",
			},
			[]string{"instance"},
		)

		postsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedibooks_posts_ingested_total",
				Help: "Posts observed by the consumer, labeled by outcome (inserted, duplicate, skipped).",
			},
			[]string{"outcome"},
		)

		accountsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedibooks_accounts_total",
				Help: "Account crawls finished, labeled by status (ok, error, skipped).",
			},
			[]string{"status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedibooks_rate_limit_delay_seconds",
				Help:    "Delay imposed by the rate-limit wrapper, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"host"},
		)

		mentionsHandledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedibooks_mentions_handled_total",
				Help: "Mention notifications handled by the reply service, labeled by action.",
			},
			[]string{"action"},
		)

		generatedStatusesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fedibooks_generated_statuses_total",
				Help: "Statuses generated and submitted to the instance.",
			},
		)
	})
}

// IncPageFetched records one fetched outbox page.
func IncPageFetched(instance string) {
	Init()
	pagesFetchedTotal.WithLabelValues(instance).Inc()
}

// IncPostIngested records one consumer-side post outcome.
func IncPostIngested(outcome string) {
	Init()
	postsIngestedTotal.WithLabelValues(outcome).Inc()
}

// IncAccount records one finished account crawl.
func IncAccount(status string) {
	Init()
	accountsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records a rate-limit imposed delay.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// IncMentionHandled records one handled mention.
func IncMentionHandled(action string) {
	Init()
	mentionsHandledTotal.WithLabelValues(action).Inc()
}

// IncGeneratedStatus records one generated status submission.
func IncGeneratedStatus() {
	Init()
	generatedStatusesTotal.Inc()
}
