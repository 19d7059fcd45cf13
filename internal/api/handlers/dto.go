// dto.go — структуры запросов и ответов HTTP API и их преобразование
// из доменных моделей. Поля JSON совпадают со схемами openapi.yaml.
package handlers

import (
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/service"
)

// --- Запросы ---

// policyCreateRequest — тело POST /api/v1/policies.
type policyCreateRequest struct {
	Name                   string   `json:"name"`
	Description            *string  `json:"description,omitempty"`
	RetentionPeriodDays    int      `json:"retention_period_days"`
	DispositionAction      string   `json:"disposition_action"`
	TriggerType            string   `json:"trigger_type"`
	IsActive               *bool    `json:"is_active,omitempty"`
	Priority               int      `json:"priority"`
	AppliesToCategories    []string `json:"applies_to_categories,omitempty"`
	ComplianceFramework    *string  `json:"compliance_framework,omitempty"`
	RequiresApproval       bool     `json:"requires_approval"`
	NotificationDaysBefore int      `json:"notification_days_before"`
}

func (req policyCreateRequest) spec() service.PolicySpec {
	return service.PolicySpec{
		Name:                   req.Name,
		Description:            req.Description,
		RetentionPeriodDays:    req.RetentionPeriodDays,
		DispositionAction:      model.DispositionAction(req.DispositionAction),
		TriggerType:            model.TriggerType(req.TriggerType),
		IsActive:               req.IsActive,
		Priority:               req.Priority,
		AppliesToCategories:    req.AppliesToCategories,
		ComplianceFramework:    req.ComplianceFramework,
		RequiresApproval:       req.RequiresApproval,
		NotificationDaysBefore: req.NotificationDaysBefore,
	}
}

// policyPatchRequest — тело PATCH /api/v1/policies/{policy_id}
// и переопределения при создании политики из шаблона.
type policyPatchRequest struct {
	Name                   *string   `json:"name,omitempty"`
	Description            *string   `json:"description,omitempty"`
	RetentionPeriodDays    *int      `json:"retention_period_days,omitempty"`
	DispositionAction      *string   `json:"disposition_action,omitempty"`
	TriggerType            *string   `json:"trigger_type,omitempty"`
	IsActive               *bool     `json:"is_active,omitempty"`
	Priority               *int      `json:"priority,omitempty"`
	AppliesToCategories    *[]string `json:"applies_to_categories,omitempty"`
	ComplianceFramework    *string   `json:"compliance_framework,omitempty"`
	RequiresApproval       *bool     `json:"requires_approval,omitempty"`
	NotificationDaysBefore *int      `json:"notification_days_before,omitempty"`
}

func (req policyPatchRequest) patch() model.PolicyPatch {
	p := model.PolicyPatch{
		Name:                   req.Name,
		Description:            req.Description,
		RetentionPeriodDays:    req.RetentionPeriodDays,
		IsActive:               req.IsActive,
		Priority:               req.Priority,
		AppliesToCategories:    req.AppliesToCategories,
		ComplianceFramework:    req.ComplianceFramework,
		RequiresApproval:       req.RequiresApproval,
		NotificationDaysBefore: req.NotificationDaysBefore,
	}
	if req.DispositionAction != nil {
		a := model.DispositionAction(*req.DispositionAction)
		p.DispositionAction = &a
	}
	if req.TriggerType != nil {
		t := model.TriggerType(*req.TriggerType)
		p.TriggerType = &t
	}
	return p
}

// applyPolicyRequest — тело POST /api/v1/documents/{document_id}/policy.
type applyPolicyRequest struct {
	PolicyID        string     `json:"policy_id" validate:"required,uuid"`
	CustomStartDate *time.Time `json:"custom_start_date,omitempty"`
}

// documentIDsRequest — список документов пакетной операции.
type documentIDsRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,max=1000,dive,required,max=255"`
}

// reasonRequest — тело запросов с причиной действия.
type reasonRequest struct {
	Reason string `json:"reason" validate:"max=4000"`
}

// exceptionRequest — тело POST /api/v1/documents/{document_id}/exception.
type exceptionRequest struct {
	Reason        string `json:"reason" validate:"max=4000"`
	ExtensionDays int    `json:"extension_days"`
}

// dispositionRequest — тело POST /api/v1/documents/{document_id}/disposition.
type dispositionRequest struct {
	Action  *string `json:"action,omitempty" validate:"omitempty,oneof=delete archive review transfer"`
	Confirm bool    `json:"confirm"`
}

// holdCreateRequest — тело POST /api/v1/legal-holds.
type holdCreateRequest struct {
	Name           string     `json:"name"`
	HoldReason     string     `json:"hold_reason"`
	MatterID       *string    `json:"matter_id,omitempty"`
	CustodianName  *string    `json:"custodian_name,omitempty"`
	CustodianEmail *string    `json:"custodian_email,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
}

func (req holdCreateRequest) spec() service.HoldSpec {
	return service.HoldSpec{
		Name:           req.Name,
		HoldReason:     req.HoldReason,
		MatterID:       req.MatterID,
		CustodianName:  req.CustodianName,
		CustodianEmail: req.CustodianEmail,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
}

// --- Ответы ---

// listResponse — страница списка.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type policyResponse struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Description            *string   `json:"description,omitempty"`
	RetentionPeriodDays    int       `json:"retention_period_days"`
	DispositionAction      string    `json:"disposition_action"`
	TriggerType            string    `json:"trigger_type"`
	IsActive               bool      `json:"is_active"`
	Priority               int       `json:"priority"`
	AppliesToCategories    []string  `json:"applies_to_categories"`
	ComplianceFramework    *string   `json:"compliance_framework,omitempty"`
	RequiresApproval       bool      `json:"requires_approval"`
	NotificationDaysBefore int       `json:"notification_days_before"`
	CreatedBy              string    `json:"created_by"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func policyToResponse(p *model.RetentionPolicy) policyResponse {
	categories := p.AppliesToCategories
	if categories == nil {
		categories = []string{}
	}
	return policyResponse{
		ID:                     p.ID,
		Name:                   p.Name,
		Description:            p.Description,
		RetentionPeriodDays:    p.RetentionPeriodDays,
		DispositionAction:      string(p.DispositionAction),
		TriggerType:            string(p.TriggerType),
		IsActive:               p.IsActive,
		Priority:               p.Priority,
		AppliesToCategories:    categories,
		ComplianceFramework:    p.ComplianceFramework,
		RequiresApproval:       p.RequiresApproval,
		NotificationDaysBefore: p.NotificationDaysBefore,
		CreatedBy:              p.CreatedBy,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

type templateResponse struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Description            *string  `json:"description,omitempty"`
	RetentionPeriodDays    int      `json:"retention_period_days"`
	DispositionAction      string   `json:"disposition_action"`
	TriggerType            string   `json:"trigger_type"`
	Priority               int      `json:"priority"`
	AppliesToCategories    []string `json:"applies_to_categories"`
	ComplianceFramework    *string  `json:"compliance_framework,omitempty"`
	RequiresApproval       bool     `json:"requires_approval"`
	NotificationDaysBefore int      `json:"notification_days_before"`
}

func templateToResponse(t *model.RetentionPolicyTemplate) templateResponse {
	categories := t.AppliesToCategories
	if categories == nil {
		categories = []string{}
	}
	return templateResponse{
		ID:                     t.ID,
		Name:                   t.Name,
		Description:            t.Description,
		RetentionPeriodDays:    t.RetentionPeriodDays,
		DispositionAction:      string(t.DispositionAction),
		TriggerType:            string(t.TriggerType),
		Priority:               t.Priority,
		AppliesToCategories:    categories,
		ComplianceFramework:    t.ComplianceFramework,
		RequiresApproval:       t.RequiresApproval,
		NotificationDaysBefore: t.NotificationDaysBefore,
	}
}

// retentionStatusResponse — статус хранения документа.
// Вычисляемые поля заполняются только для GET-запросов.
type retentionStatusResponse struct {
	DocumentID             string     `json:"document_id"`
	PolicyID               *string    `json:"policy_id,omitempty"`
	RetentionStartDate     time.Time  `json:"retention_start_date"`
	RetentionEndDate       time.Time  `json:"retention_end_date"`
	CurrentStatus          string     `json:"current_status"`
	LegalHoldIDs           []string   `json:"legal_hold_ids"`
	ExceptionReason        *string    `json:"exception_reason,omitempty"`
	ExceptionExtendedUntil *time.Time `json:"exception_extended_until,omitempty"`
	CertificateNumber      *string    `json:"certificate_number,omitempty"`
	Version                int64      `json:"version"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	DaysRemaining          *int       `json:"days_remaining,omitempty"`
	IsDue                  *bool      `json:"is_due,omitempty"`
	IsExpiringSoon         *bool      `json:"is_expiring_soon,omitempty"`
}

func statusToResponse(st *model.DocumentRetentionStatus) *retentionStatusResponse {
	if st == nil {
		return nil
	}
	holds := st.LegalHoldIDs
	if holds == nil {
		holds = []string{}
	}
	return &retentionStatusResponse{
		DocumentID:             st.DocumentID,
		PolicyID:               st.PolicyID,
		RetentionStartDate:     st.RetentionStartDate,
		RetentionEndDate:       st.RetentionEndDate,
		CurrentStatus:          string(st.CurrentStatus),
		LegalHoldIDs:           holds,
		ExceptionReason:        st.ExceptionReason,
		ExceptionExtendedUntil: st.ExceptionExtendedUntil,
		CertificateNumber:      st.CertificateNumber,
		Version:                st.Version,
		CreatedAt:              st.CreatedAt,
		UpdatedAt:              st.UpdatedAt,
	}
}

func viewToResponse(v *model.RetentionStatusView) *retentionStatusResponse {
	resp := statusToResponse(v.DocumentRetentionStatus)
	days, due, soon := v.DaysRemaining, v.IsDue, v.IsExpiringSoon
	resp.DaysRemaining = &days
	resp.IsDue = &due
	resp.IsExpiringSoon = &soon
	return resp
}

// mutationResponse — результат изменения статуса документа.
type mutationResponse struct {
	Status        *retentionStatusResponse `json:"status,omitempty"`
	Changed       bool                     `json:"changed"`
	AuditEntryIDs []string                 `json:"audit_entry_ids"`
	AuditPending  int                      `json:"audit_pending,omitempty"`
}

func mutationToResponse(res service.MutationResult) mutationResponse {
	ids := res.AuditEntryIDs
	if ids == nil {
		ids = []string{}
	}
	return mutationResponse{
		Status:        statusToResponse(res.Status),
		Changed:       res.Changed,
		AuditEntryIDs: ids,
		AuditPending:  res.AuditPending,
	}
}

// dispositionResponse — результат disposition.
type dispositionResponse struct {
	Outcome string `json:"outcome"`
	mutationResponse
}

// autoApplyResponse — результат автоматического применения политики.
type autoApplyResponse struct {
	Policy policyResponse `json:"policy"`
	mutationResponse
}

// documentErrorResponse — ошибка обработки документа в пакетной операции.
type documentErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type bulkItemResponse struct {
	DocumentID    string                   `json:"document_id"`
	Status        *retentionStatusResponse `json:"status,omitempty"`
	Changed       bool                     `json:"changed"`
	AuditEntryIDs []string                 `json:"audit_entry_ids,omitempty"`
	Error         *documentErrorResponse   `json:"error,omitempty"`
}

// bulkResponse — результат пакетной операции.
type bulkResponse struct {
	Results       []bulkItemResponse `json:"results"`
	Succeeded     int                `json:"succeeded"`
	Failed        int                `json:"failed"`
	AuditEntryIDs []string           `json:"audit_entry_ids"`
}

func bulkToResponse(res *service.BulkResult) bulkResponse {
	resp := bulkResponse{
		Results:       make([]bulkItemResponse, 0, len(res.Results)),
		Succeeded:     res.Succeeded,
		Failed:        res.Failed,
		AuditEntryIDs: res.AuditEntryIDs(),
	}
	if resp.AuditEntryIDs == nil {
		resp.AuditEntryIDs = []string{}
	}
	for _, item := range res.Results {
		out := bulkItemResponse{
			DocumentID:    item.DocumentID,
			Status:        statusToResponse(item.Status),
			Changed:       item.Changed,
			AuditEntryIDs: item.AuditEntryIDs,
		}
		if item.Err != nil {
			_, code := errorStatus(item.Err)
			out.Error = &documentErrorResponse{Code: code, Message: item.Err.Error()}
		}
		resp.Results = append(resp.Results, out)
	}
	return resp
}

type holdResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	HoldReason     string     `json:"hold_reason"`
	MatterID       *string    `json:"matter_id,omitempty"`
	CustodianName  *string    `json:"custodian_name,omitempty"`
	CustodianEmail *string    `json:"custodian_email,omitempty"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Status         string     `json:"status"`
	ReleaseReason  *string    `json:"release_reason,omitempty"`
	ReleasedAt     *time.Time `json:"released_at,omitempty"`
	ReleasedBy     *string    `json:"released_by,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DocumentCount  *int       `json:"document_count,omitempty"`
}

func holdToResponse(hold *model.LegalHold) holdResponse {
	return holdResponse{
		ID:             hold.ID,
		Name:           hold.Name,
		HoldReason:     hold.HoldReason,
		MatterID:       hold.MatterID,
		CustodianName:  hold.CustodianName,
		CustodianEmail: hold.CustodianEmail,
		StartDate:      hold.StartDate,
		EndDate:        hold.EndDate,
		Status:         string(hold.Status),
		ReleaseReason:  hold.ReleaseReason,
		ReleasedAt:     hold.ReleasedAt,
		ReleasedBy:     hold.ReleasedBy,
		CreatedBy:      hold.CreatedBy,
		CreatedAt:      hold.CreatedAt,
		UpdatedAt:      hold.UpdatedAt,
	}
}

// holdReleaseResponse — результат снятия удержания.
type holdReleaseResponse struct {
	Hold      holdResponse `json:"hold"`
	Documents bulkResponse `json:"documents"`
}

type auditEntryResponse struct {
	ID                string    `json:"id"`
	DocumentID        string    `json:"document_id"`
	Action            string    `json:"action"`
	PreviousStatus    *string   `json:"previous_status,omitempty"`
	NewStatus         *string   `json:"new_status,omitempty"`
	Reason            *string   `json:"reason,omitempty"`
	CertificateNumber *string   `json:"certificate_number,omitempty"`
	ActionBy          string    `json:"action_by"`
	CreatedAt         time.Time `json:"created_at"`
}

func stateString(s *model.RetentionState) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func auditEntryToResponse(e *model.AuditLogEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:                e.ID,
		DocumentID:        e.DocumentID,
		Action:            string(e.Action),
		PreviousStatus:    stateString(e.PreviousStatus),
		NewStatus:         stateString(e.NewStatus),
		Reason:            e.Reason,
		CertificateNumber: e.CertificateNumber,
		ActionBy:          e.ActionBy,
		CreatedAt:         e.CreatedAt,
	}
}

// auditPageResponse — страница журнала аудита. Общее количество записей
// не вычисляется, признак has_more показывает наличие следующей страницы.
type auditPageResponse struct {
	Items   []auditEntryResponse `json:"items"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	HasMore bool                 `json:"has_more"`
}

// upcomingResponse — документы в окне уведомления.
type upcomingResponse struct {
	Items  []*retentionStatusResponse `json:"items"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

// scanResponse — итог сканирования планировщика.
type scanResponse struct {
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Processed    []string          `json:"processed"`
	Outcomes     map[string]int    `json:"outcomes"`
	Failures     map[string]string `json:"failures"`
	HoldsExpired int               `json:"holds_expired"`
	Upcoming     int               `json:"upcoming"`
}

func scanToResponse(res *service.ScanResult) scanResponse {
	resp := scanResponse{
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Processed:    res.Processed,
		Outcomes:     make(map[string]int, len(res.Outcomes)),
		Failures:     res.Failures,
		HoldsExpired: res.HoldsExpired,
		Upcoming:     res.Upcoming,
	}
	if resp.Processed == nil {
		resp.Processed = []string{}
	}
	if resp.Failures == nil {
		resp.Failures = map[string]string{}
	}
	for outcome, n := range res.Outcomes {
		resp.Outcomes[string(outcome)] = n
	}
	return resp
}
