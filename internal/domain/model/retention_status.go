package model

import (
	"slices"
	"time"
)

// RetentionState — состояние документа в жизненном цикле хранения.
type RetentionState string

const (
	StateActive          RetentionState = "active"
	StatePendingReview   RetentionState = "pending_review"
	StatePendingApproval RetentionState = "pending_approval"
	StateOnHold          RetentionState = "on_hold"
	StateArchived        RetentionState = "archived"
	StateDisposed        RetentionState = "disposed"
)

// IsValid проверяет, является ли состояние допустимым.
func (s RetentionState) IsValid() bool {
	switch s {
	case StateActive, StatePendingReview, StatePendingApproval,
		StateOnHold, StateArchived, StateDisposed:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true для конечных состояний штатного потока.
func (s RetentionState) IsTerminal() bool {
	return s == StateArchived || s == StateDisposed
}

// DocumentRetentionStatus — статус хранения одного документа.
// Хранится в таблице document_retention_status (ключ — document_id).
//
// Инвариант: CurrentStatus == on_hold тогда и только тогда,
// когда LegalHoldIDs не пуст.
type DocumentRetentionStatus struct {
	// DocumentID — идентификатор документа в blob store
	DocumentID string
	// PolicyID — UUID политики (nil до применения политики)
	PolicyID *string
	// RetentionStartDate — начало срока хранения
	RetentionStartDate time.Time
	// RetentionEndDate — окончание срока хранения
	RetentionEndDate time.Time
	// CurrentStatus — текущее состояние
	CurrentStatus RetentionState
	// LegalHoldIDs — активные удержания документа
	LegalHoldIDs []string
	// ExceptionReason — причина последнего продления
	ExceptionReason *string
	// ExceptionExtendedUntil — дата, до которой продлено хранение
	ExceptionExtendedUntil *time.Time
	// CertificateNumber — сертификат уничтожения (для disposed)
	CertificateNumber *string
	// PreHoldStatus — состояние до первого удержания
	PreHoldStatus *RetentionState
	// Version — счётчик версии для оптимистичной блокировки
	Version int64
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsHeld возвращает true, если на документ наложено хотя бы одно удержание.
func (s *DocumentRetentionStatus) IsHeld() bool {
	return len(s.LegalHoldIDs) > 0
}

// HasHold проверяет наличие конкретного удержания.
func (s *DocumentRetentionStatus) HasHold(holdID string) bool {
	return slices.Contains(s.LegalHoldIDs, holdID)
}

// DaysRemaining возвращает количество дней до окончания срока хранения.
// Отрицательное значение — срок истёк.
func (s *DocumentRetentionStatus) DaysRemaining(now time.Time) int {
	d := s.RetentionEndDate.Sub(now)
	days := int(d / (24 * time.Hour))
	// Округление вверх для неполного дня в будущем
	if d > 0 && d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// IsDue — производный признак: документ подлежит disposition.
// Не хранится в БД, вычисляется при чтении и сканировании.
func (s *DocumentRetentionStatus) IsDue(now time.Time) bool {
	return s.CurrentStatus == StateActive && !s.IsHeld() && !s.RetentionEndDate.After(now)
}

// Clone возвращает глубокую копию статуса.
func (s *DocumentRetentionStatus) Clone() *DocumentRetentionStatus {
	c := *s
	c.LegalHoldIDs = slices.Clone(s.LegalHoldIDs)
	if s.PolicyID != nil {
		v := *s.PolicyID
		c.PolicyID = &v
	}
	if s.ExceptionReason != nil {
		v := *s.ExceptionReason
		c.ExceptionReason = &v
	}
	if s.ExceptionExtendedUntil != nil {
		v := *s.ExceptionExtendedUntil
		c.ExceptionExtendedUntil = &v
	}
	if s.CertificateNumber != nil {
		v := *s.CertificateNumber
		c.CertificateNumber = &v
	}
	if s.PreHoldStatus != nil {
		v := *s.PreHoldStatus
		c.PreHoldStatus = &v
	}
	return &c
}

// RetentionStatusView — статус с производными полями для чтения.
type RetentionStatusView struct {
	*DocumentRetentionStatus
	// DaysRemaining — дней до окончания срока
	DaysRemaining int
	// IsDue — срок истёк, документ подлежит disposition
	IsDue bool
	// IsExpiringSoon — документ вошёл в окно уведомления политики
	IsExpiringSoon bool
}
