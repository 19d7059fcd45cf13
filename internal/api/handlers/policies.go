// policies.go — обработчики /api/v1/policies и /api/v1/policy-templates.
// Политики хранения: CRUD, шаблоны, пакетное применение к документам.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// CreatePolicy — POST /api/v1/policies.
func (h *APIHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyCreateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	p, err := h.policies.CreatePolicy(r.Context(), req.spec(), actor(r))
	if err != nil {
		h.writeServiceError(w, r, "CreatePolicy", err)
		return
	}
	writeJSON(w, http.StatusCreated, policyToResponse(p))
}

// ListPolicies — GET /api/v1/policies.
// Фильтры: active, compliance_framework. Пагинация: limit, offset.
func (h *APIHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	var filter repository.PolicyFilter
	query := r.URL.Query()
	if !bindQuery(w, query, "active", &filter.Active) ||
		!bindQuery(w, query, "compliance_framework", &filter.ComplianceFramework) {
		return
	}
	limit, offset, ok := bindPagination(w, r)
	if !ok {
		return
	}

	items, total, err := h.policies.ListPolicies(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "ListPolicies", err)
		return
	}

	resp := listResponse[policyResponse]{
		Items:  make([]policyResponse, 0, len(items)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, p := range items {
		resp.Items = append(resp.Items, policyToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPolicy — GET /api/v1/policies/{policy_id}.
func (h *APIHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "policy_id")
	if !ok {
		return
	}

	p, err := h.policies.GetPolicy(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "GetPolicy", err)
		return
	}
	writeJSON(w, http.StatusOK, policyToResponse(p))
}

// UpdatePolicy — PATCH /api/v1/policies/{policy_id}.
// Частичное обновление: изменяются только переданные поля.
func (h *APIHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "policy_id")
	if !ok {
		return
	}
	var req policyPatchRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	p, err := h.policies.UpdatePolicy(r.Context(), id, req.patch(), actor(r))
	if err != nil {
		h.writeServiceError(w, r, "UpdatePolicy", err)
		return
	}

	h.logger.Info("Политика обновлена",
		slog.String("policy_id", id),
		slog.String("actor", actor(r)),
	)
	writeJSON(w, http.StatusOK, policyToResponse(p))
}

// DeletePolicy — DELETE /api/v1/policies/{policy_id}.
// 409 POLICY_IN_USE, если политика применена к документам.
func (h *APIHandler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "policy_id")
	if !ok {
		return
	}

	if err := h.policies.DeletePolicy(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "DeletePolicy", err)
		return
	}

	h.logger.Info("Политика удалена",
		slog.String("policy_id", id),
		slog.String("actor", actor(r)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// ApplyPolicyBulk — POST /api/v1/policies/{policy_id}/apply.
// Результат по каждому документу, ошибка одного документа не прерывает остальные.
func (h *APIHandler) ApplyPolicyBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUUIDPath(w, r, "policy_id")
	if !ok {
		return
	}
	var req documentIDsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.tracker.ApplyPolicyBulk(r.Context(), id, req.DocumentIDs, actor(r))
	if err != nil {
		h.writeServiceError(w, r, "ApplyPolicyBulk", err)
		return
	}
	writeJSON(w, http.StatusOK, bulkToResponse(res))
}

// ListTemplates — GET /api/v1/policy-templates.
func (h *APIHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.policies.ListTemplates(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "ListTemplates", err)
		return
	}

	resp := listResponse[templateResponse]{
		Items: make([]templateResponse, 0, len(items)),
		Total: len(items),
		Limit: len(items),
	}
	for _, t := range items {
		resp.Items = append(resp.Items, templateToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateFromTemplate — POST /api/v1/policy-templates/{template_id}/policies.
// Тело запроса (необязательное) переопределяет поля шаблона.
func (h *APIHandler) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "template_id")
	var req policyPatchRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	p, err := h.policies.CreateFromTemplate(r.Context(), templateID, req.patch(), actor(r))
	if err != nil {
		h.writeServiceError(w, r, "CreateFromTemplate", err)
		return
	}
	writeJSON(w, http.StatusCreated, policyToResponse(p))
}
