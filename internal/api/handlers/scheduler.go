// scheduler.go — обработчики /api/v1/scheduler endpoints.
// Ручной запуск сканирования и итог последнего сканирования.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/retention-module/internal/api/errors"
)

// TriggerScan — POST /api/v1/scheduler/scan.
// Выполняется синхронно; 409 SCAN_IN_PROGRESS, если сканирование уже идёт.
func (h *APIHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Ручной запуск сканирования", slog.String("actor", actor(r)))

	res, err := h.scheduler.Scan(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Scan", err)
		return
	}
	writeJSON(w, http.StatusOK, scanToResponse(res))
}

// GetLastScan — GET /api/v1/scheduler/last-scan.
func (h *APIHandler) GetLastScan(w http.ResponseWriter, _ *http.Request) {
	res := h.scheduler.LastResult()
	if res == nil {
		apierrors.NotFound(w, "Сканирование ещё не выполнялось")
		return
	}
	writeJSON(w, http.StatusOK, scanToResponse(res))
}
