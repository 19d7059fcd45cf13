// health.go — обработчики health endpoints Retention Module.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (хранилище статусов, JWKS, blob store)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/retention-module/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// Константы статусов health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// namedCheck — дополнительная проверка зависимости.
type namedCheck struct {
	name    string
	checker ReadinessChecker
	// critical — fail зависимости переводит readiness в fail,
	// иначе в degraded
	critical bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	storageChecker ReadinessChecker
	checks         []namedCheck
	promHandler    http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// storageChecker — проверка хранилища статусов (PostgreSQL или память);
// nil — readiness вернёт "fail".
func NewHealthHandler(storageChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		storageChecker: storageChecker,
		promHandler:    promhttp.Handler(),
	}
}

// WithCheck добавляет проверку зависимости. Некритичная зависимость
// в состоянии fail переводит readiness только в degraded.
func (h *HealthHandler) WithCheck(name string, checker ReadinessChecker, critical bool) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: name, checker: checker, critical: critical})
	return h
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "retention-module",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — readiness probe. Проверяет хранилище и дополнительные зависимости.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "retention-module",
		Checks:    make(map[string]healthCheckResult, len(h.checks)+1),
	}

	// Проверяем хранилище статусов
	statuses := make([]string, 0, len(h.checks)+1)
	if h.storageChecker != nil {
		st, msg := h.storageChecker.CheckReady()
		resp.Checks["storage"] = healthCheckResult{Status: st, Message: msg}
		statuses = append(statuses, st)
	} else {
		resp.Checks["storage"] = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
		statuses = append(statuses, statusFail)
	}

	for _, c := range h.checks {
		st, msg := c.checker.CheckReady()
		resp.Checks[c.name] = healthCheckResult{Status: st, Message: msg}
		if st == statusFail && !c.critical {
			st = statusDegraded
		}
		statuses = append(statuses, st)
	}

	// Определяем итоговый статус
	resp.Status = overallStatus(statuses...)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == statusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
