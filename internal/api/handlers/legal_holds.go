// legal_holds.go — обработчики /api/v1/legal-holds endpoints.
// Юридические удержания: создание, список, наложение на документы, снятие.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/retention-module/internal/api/errors"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// CreateLegalHold — POST /api/v1/legal-holds.
func (h *APIHandler) CreateLegalHold(w http.ResponseWriter, r *http.Request) {
	var req holdCreateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	hold, err := h.holds.CreateHold(r.Context(), req.spec(), actor(r))
	if err != nil {
		h.writeServiceError(w, r, "CreateHold", err)
		return
	}

	resp := holdToResponse(hold)
	zero := 0
	resp.DocumentCount = &zero
	writeJSON(w, http.StatusCreated, resp)
}

// ListLegalHolds — GET /api/v1/legal-holds.
// Фильтр: status (active, released, expired). Пагинация: limit, offset.
func (h *APIHandler) ListLegalHolds(w http.ResponseWriter, r *http.Request) {
	var status *string
	if !bindQuery(w, r.URL.Query(), "status", &status) {
		return
	}
	var filter *model.HoldStatus
	if status != nil {
		s := model.HoldStatus(*status)
		switch s {
		case model.HoldActive, model.HoldReleased, model.HoldExpired:
			filter = &s
		default:
			apierrors.ValidationError(w, "Некорректный параметр status: допустимо active, released, expired")
			return
		}
	}
	limit, offset, ok := bindPagination(w, r)
	if !ok {
		return
	}

	items, total, err := h.holds.ListHolds(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "ListHolds", err)
		return
	}

	resp := listResponse[holdResponse]{
		Items:  make([]holdResponse, 0, len(items)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, hold := range items {
		resp.Items = append(resp.Items, holdToResponse(hold))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetLegalHold — GET /api/v1/legal-holds/{hold_id}.
// Ответ содержит количество документов под удержанием.
func (h *APIHandler) GetLegalHold(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "hold_id")
	if !ok {
		return
	}

	hold, err := h.holds.GetHold(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "GetHold", err)
		return
	}
	count, err := h.holds.CountDocuments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "CountDocuments", err)
		return
	}

	resp := holdToResponse(hold)
	resp.DocumentCount = &count
	writeJSON(w, http.StatusOK, resp)
}

// ApplyLegalHold — POST /api/v1/legal-holds/{hold_id}/documents.
// Снятое удержание повторно не накладывается (409 INVALID_TRANSITION).
func (h *APIHandler) ApplyLegalHold(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "hold_id")
	if !ok {
		return
	}
	var req documentIDsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.holds.ApplyHoldToDocuments(r.Context(), id, req.DocumentIDs, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "ApplyHoldToDocuments", err)
		return
	}
	writeJSON(w, http.StatusOK, bulkToResponse(res))
}

// ListLegalHoldDocuments — GET /api/v1/legal-holds/{hold_id}/documents.
func (h *APIHandler) ListLegalHoldDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "hold_id")
	if !ok {
		return
	}
	limit, offset, ok := bindPagination(w, r)
	if !ok {
		return
	}

	items, total, err := h.holds.ListHoldDocuments(r.Context(), id, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "ListHoldDocuments", err)
		return
	}

	resp := listResponse[*retentionStatusResponse]{
		Items:  make([]*retentionStatusResponse, 0, len(items)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, st := range items {
		resp.Items = append(resp.Items, statusToResponse(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReleaseLegalHold — POST /api/v1/legal-holds/{hold_id}/release.
// Причина снятия обязательна.
func (h *APIHandler) ReleaseLegalHold(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "hold_id")
	if !ok {
		return
	}
	var req reasonRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	res, err := h.holds.ReleaseHold(r.Context(), id, req.Reason, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "ReleaseHold", err)
		return
	}

	h.logger.Info("Удержание снято через API",
		slog.String("hold_id", id),
		slog.Int("documents", len(res.Documents.Results)),
		slog.String("actor", actor(r)),
	)
	writeJSON(w, http.StatusOK, holdReleaseResponse{
		Hold:      holdToResponse(res.Hold),
		Documents: bulkToResponse(res.Documents),
	})
}
