// audit.go — обработчик GET /api/v1/audit-log.
// Журнал аудита читается постранично через итератор AuditRecorder.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/retention-module/internal/api/errors"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// QueryAuditLog — GET /api/v1/audit-log.
// Фильтры: document_id, action, from, to (RFC 3339). Записи от новых к старым.
func (h *APIHandler) QueryAuditLog(w http.ResponseWriter, r *http.Request) {
	var (
		filter model.AuditFilter
		action *string
		from   *time.Time
		to     *time.Time
	)
	query := r.URL.Query()
	if !bindQuery(w, query, "document_id", &filter.DocumentID) ||
		!bindQuery(w, query, "action", &action) ||
		!bindQuery(w, query, "from", &from) ||
		!bindQuery(w, query, "to", &to) {
		return
	}
	if action != nil {
		a := model.AuditAction(*action)
		if !a.IsValid() {
			apierrors.ValidationError(w, "Некорректный параметр action: "+*action)
			return
		}
		filter.Action = &a
	}
	if from != nil && to != nil && from.After(*to) {
		apierrors.ValidationError(w, "Параметр from должен быть не позже to")
		return
	}
	filter.From, filter.To = from, to

	limit, offset, ok := bindPagination(w, r)
	if !ok {
		return
	}

	resp := auditPageResponse{
		Items:  make([]auditEntryResponse, 0, limit),
		Limit:  limit,
		Offset: offset,
	}
	skipped := 0
	for entry, err := range h.audit.Query(r.Context(), filter) {
		if err != nil {
			h.writeServiceError(w, r, "QueryAuditLog", err)
			return
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(resp.Items) == limit {
			resp.HasMore = true
			break
		}
		resp.Items = append(resp.Items, auditEntryToResponse(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}
