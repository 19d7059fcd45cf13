// Пакет errors — конструкторы стандартных ошибок HTTP API Retention Module.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeApprovalRequired      = "APPROVAL_REQUIRED"
	CodeBlockedByLegalHold    = "BLOCKED_BY_LEGAL_HOLD"
	CodeBlobStoreUnavailable  = "BLOB_STORE_UNAVAILABLE"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeScanInProgress        = "SCAN_IN_PROGRESS"
	CodeConcurrencyConflict   = "CONCURRENCY_CONFLICT"
	CodePolicyInUse           = "POLICY_IN_USE"
	CodeServiceNotInitialized = "SERVICE_NOT_INITIALIZED"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт с текущим состоянием ресурса.
// code уточняет причину (CONFLICT, INVALID_TRANSITION, POLICY_IN_USE, ...).
func Conflict(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusConflict, code, message)
}

// Locked — 423 документ под юридическим удержанием.
func Locked(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusLocked, CodeBlockedByLegalHold, message)
}

// BlobStoreUnavailable — 502 хранилище документов недоступно.
func BlobStoreUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeBlobStoreUnavailable, message)
}

// ServiceUnavailable — 503 компонент не инициализирован.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeServiceNotInitialized, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
