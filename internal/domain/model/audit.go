package model

import "time"

// AuditAction — тип записи журнала disposition.
type AuditAction string

const (
	AuditPolicyApplied     AuditAction = "policy_applied"
	AuditDisposed          AuditAction = "disposed"
	AuditArchived          AuditAction = "archived"
	AuditExtended          AuditAction = "extended"
	AuditExceptionGranted  AuditAction = "exception_granted"
	AuditLegalHoldApplied  AuditAction = "legal_hold_applied"
	AuditLegalHoldReleased AuditAction = "legal_hold_released"
	AuditStatusChanged     AuditAction = "status_changed"
)

// IsValid проверяет, является ли действие допустимым.
func (a AuditAction) IsValid() bool {
	switch a {
	case AuditPolicyApplied, AuditDisposed, AuditArchived, AuditExtended,
		AuditExceptionGranted, AuditLegalHoldApplied, AuditLegalHoldReleased,
		AuditStatusChanged:
		return true
	default:
		return false
	}
}

// AuditLogEntry — неизменяемая запись журнала disposition.
// Хранится в таблице disposition_audit_log (только INSERT).
type AuditLogEntry struct {
	// ID — UUID записи (генерируется до записи, чтобы вернуть его вызывающему)
	ID string
	// DocumentID — документ, к которому относится запись
	DocumentID string
	// Action — тип события
	Action AuditAction
	// PreviousStatus — состояние до изменения
	PreviousStatus *RetentionState
	// NewStatus — состояние после изменения
	NewStatus *RetentionState
	// Reason — причина / комментарий
	Reason *string
	// CertificateNumber — сертификат уничтожения (для disposed)
	CertificateNumber *string
	// ActionBy — инициатор (username, client_id или system:scheduler)
	ActionBy string
	// CreatedAt — время события
	CreatedAt time.Time
}

// AuditFilter — фильтр выборки журнала.
type AuditFilter struct {
	DocumentID *string
	Action     *AuditAction
	From       *time.Time
	To         *time.Time
}
