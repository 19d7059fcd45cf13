// documents.go — обработчики /api/v1/documents/{document_id}/* и /api/v1/retention/upcoming.
// Статус хранения документа: применение политики, переходы, исключения, disposition.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/goartstore/retention-module/internal/api/errors"
	"github.com/bigkaa/goartstore/retention-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/rbac"
	"github.com/bigkaa/goartstore/retention-module/internal/service"
)

// ApplyPolicy — POST /api/v1/documents/{document_id}/policy.
func (h *APIHandler) ApplyPolicy(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	var req applyPolicyRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.tracker.ApplyPolicy(r.Context(), service.ApplyPolicyRequest{
		DocumentID:  documentID,
		PolicyID:    req.PolicyID,
		CustomStart: req.CustomStartDate,
		Actor:       actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, "ApplyPolicy", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationToResponse(res))
}

// AutoApplyPolicy — POST /api/v1/documents/{document_id}/policy/auto.
// Политика выбирается по категории документа в blob store.
func (h *APIHandler) AutoApplyPolicy(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	p, res, err := h.tracker.AutoApply(r.Context(), documentID, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "AutoApply", err)
		return
	}
	writeJSON(w, http.StatusOK, autoApplyResponse{
		Policy:           policyToResponse(p),
		mutationResponse: mutationToResponse(res),
	})
}

// GetRetentionStatus — GET /api/v1/documents/{document_id}/retention.
func (h *APIHandler) GetRetentionStatus(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.tracker.GetStatus(r.Context(), documentID)
	if err != nil {
		h.writeServiceError(w, r, "GetStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, viewToResponse(view))
}

// PurgeRetentionStatus — DELETE /api/v1/documents/{document_id}/retention.
// Административная очистка, только для admin.
func (h *APIHandler) PurgeRetentionStatus(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.tracker.PurgeStatus(r.Context(), documentID, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "PurgeStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationToResponse(res))
}

// MarkForReview — POST /api/v1/documents/{document_id}/review.
func (h *APIHandler) MarkForReview(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	res, err := h.tracker.MarkForReview(r.Context(), documentID, req.Reason, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "MarkForReview", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationToResponse(res))
}

// MarkForApproval — POST /api/v1/documents/{document_id}/approval.
func (h *APIHandler) MarkForApproval(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	res, err := h.tracker.MarkForApproval(r.Context(), documentID, req.Reason, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "MarkForApproval", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationToResponse(res))
}

// GrantException — POST /api/v1/documents/{document_id}/exception.
func (h *APIHandler) GrantException(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	var req exceptionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.tracker.GrantException(r.Context(), documentID, req.Reason, req.ExtensionDays, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "GrantException", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationToResponse(res))
}

// ExecuteDisposition — POST /api/v1/documents/{document_id}/disposition.
// Документ, требующий согласования, переводится в pending_approval (202).
// Подтверждение (confirm=true) доступно только пользователю с ролью admin.
func (h *APIHandler) ExecuteDisposition(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	var req dispositionRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	if req.Confirm {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil || !claims.AllowsRole(rbac.RoleAdmin) {
			apierrors.Forbidden(w, "Недостаточно прав: подтверждение disposition требует роль admin")
			return
		}
	}

	dr := service.DispositionRequest{
		DocumentID: documentID,
		Confirm:    req.Confirm,
		Actor:      actor(r),
	}
	if req.Action != nil {
		dr.Action = model.DispositionAction(*req.Action)
	}

	res, err := h.disposition.ExecuteDisposition(r.Context(), dr)
	if err != nil {
		h.writeServiceError(w, r, "ExecuteDisposition", err)
		return
	}

	status := http.StatusOK
	if res.Outcome == service.OutcomePendingApproval {
		status = http.StatusAccepted
	}
	writeJSON(w, status, dispositionResponse{
		Outcome:          string(res.Outcome),
		mutationResponse: mutationToResponse(res.MutationResult),
	})
}

// ListUpcoming — GET /api/v1/retention/upcoming.
// Active-документы в окне уведомления политики, ближайшие сроки первыми.
func (h *APIHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := bindPagination(w, r)
	if !ok {
		return
	}

	views, err := h.tracker.ListUpcoming(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "ListUpcoming", err)
		return
	}

	resp := upcomingResponse{
		Items:  make([]*retentionStatusResponse, 0, len(views)),
		Limit:  limit,
		Offset: offset,
	}
	for _, v := range views {
		resp.Items = append(resp.Items, viewToResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}
