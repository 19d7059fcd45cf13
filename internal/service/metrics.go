// metrics.go — Prometheus-метрики движка хранения.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	policyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_policy_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш политик.",
	})
	policyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_policy_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша политик.",
	})

	conflictRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_status_conflict_retries_total",
		Help: "Повторы обновления статуса из-за конфликта версий.",
	})

	auditWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_audit_write_failures_total",
		Help: "Неудачные попытки записи в журнал disposition.",
	})
	auditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_audit_dropped_total",
		Help: "Записи журнала, отброшенные после исчерпания попыток или переполнения очереди.",
	})
	auditRetryQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rm_audit_retry_queue_length",
		Help: "Текущая длина очереди повторной записи журнала.",
	})

	dispositionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_dispositions_total",
		Help: "Результаты выполнения disposition.",
	}, []string{"outcome"})

	scanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_scan_runs_total",
		Help: "Запуски сканирования планировщика.",
	}, []string{"result"})
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_scan_duration_seconds",
		Help:    "Длительность сканирования планировщика в секундах.",
		Buckets: prometheus.DefBuckets,
	})
	holdsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_legal_holds_expired_total",
		Help: "Удержания, переведённые в expired по плановой дате.",
	})
	upcomingDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rm_upcoming_documents",
		Help: "Документы в окне уведомления на момент последнего сканирования.",
	})
)
