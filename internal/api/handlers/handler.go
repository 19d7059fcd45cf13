// handler.go — основной обработчик API Retention Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/retention-module/internal/api/errors"
	"github.com/bigkaa/goartstore/retention-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/retention-module/internal/service"
)

// maxRequestBody — максимальный размер тела запроса.
const maxRequestBody = 1 << 20

// APIHandler — основной обработчик API Retention Module.
type APIHandler struct {
	health      *HealthHandler
	policies    *service.PolicyService
	tracker     *service.TrackerService
	holds       *service.LegalHoldService
	disposition *service.DispositionService
	scheduler   *service.SchedulerService
	audit       *service.AuditRecorder
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	policies *service.PolicyService,
	tracker *service.TrackerService,
	holds *service.LegalHoldService,
	disposition *service.DispositionService,
	scheduler *service.SchedulerService,
	audit *service.AuditRecorder,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		policies:    policies,
		tracker:     tracker,
		holds:       holds,
		disposition: disposition,
		scheduler:   scheduler,
		audit:       audit,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// decodeJSON разбирает тело запроса в dst и проверяет теги validate.
// При ошибке записывает ответ 400 и возвращает false.
func (h *APIHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptionalJSON — как decodeJSON, но пустое тело допустимо.
func (h *APIHandler) decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *APIHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return true
			}
			apierrors.ValidationError(w, "Пустое тело запроса")
			return false
		}
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		apierrors.ValidationError(w, validationMessage(err))
		return false
	}
	return true
}

// validationMessage формирует сообщение об ошибке валидации запроса
// с именем первого некорректного поля.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Некорректное поле %s: нарушено правило %s", fe.Field(), fe.Tag())
	}
	return "Некорректный запрос: " + err.Error()
}

// bindQuery связывает query-параметр (style=form, explode=true) с dest.
// При ошибке записывает ответ 400 и возвращает false.
func bindQuery(w http.ResponseWriter, query url.Values, name string, dest any) bool {
	if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %s", name, err))
		return false
	}
	return true
}

// bindPagination связывает параметры limit и offset.
func bindPagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	var l, o *int
	query := r.URL.Query()
	if !bindQuery(w, query, "limit", &l) || !bindQuery(w, query, "offset", &o) {
		return 0, 0, false
	}
	limit, offset = paginationDefaults(l, o)
	return limit, offset, true
}

// bindUUIDPath связывает path-параметр формата uuid.
// При ошибке записывает ответ 400 и возвращает false.
func bindUUIDPath(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: ожидается UUID", name))
		return "", false
	}
	return id.String(), true
}

// documentIDParam возвращает идентификатор документа из пути.
func documentIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "document_id")
	if id == "" {
		apierrors.ValidationError(w, "Идентификатор документа (document_id) обязателен")
		return "", false
	}
	return id, true
}

// actor возвращает инициатора запроса для журнала аудита.
func actor(r *http.Request) string {
	return middleware.ActorFromContext(r.Context())
}

// errorStatus сопоставляет ошибку сервисного слоя HTTP-статусу и коду ошибки.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, apierrors.CodeValidationError
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, apierrors.CodeNotFound
	case errors.Is(err, service.ErrBlockedByLegalHold):
		return http.StatusLocked, apierrors.CodeBlockedByLegalHold
	case errors.Is(err, service.ErrApprovalRequired):
		return http.StatusConflict, apierrors.CodeApprovalRequired
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, apierrors.CodeInvalidTransition
	case errors.Is(err, service.ErrPolicyInUse):
		return http.StatusConflict, apierrors.CodePolicyInUse
	case errors.Is(err, service.ErrConcurrencyConflict):
		return http.StatusConflict, apierrors.CodeConcurrencyConflict
	case errors.Is(err, service.ErrScanInProgress):
		return http.StatusConflict, apierrors.CodeScanInProgress
	case errors.Is(err, service.ErrBlobStoreUnavailable):
		return http.StatusBadGateway, apierrors.CodeBlobStoreUnavailable
	default:
		return http.StatusInternalServerError, apierrors.CodeInternalError
	}
}

// writeServiceError записывает ответ для ошибки сервисного слоя.
// Внутренние ошибки логируются, клиенту возвращается общее сообщение.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Ошибка выполнения операции",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при выполнении "+op)
		return
	}
	apierrors.WriteError(w, status, code, err.Error())
}
