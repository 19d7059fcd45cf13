package model

import "time"

// HoldStatus — статус юридического удержания.
type HoldStatus string

const (
	// HoldActive — удержание действует
	HoldActive HoldStatus = "active"
	// HoldReleased — удержание снято явным действием оператора
	HoldReleased HoldStatus = "released"
	// HoldExpired — плановая дата окончания прошла без снятия.
	// Документы остаются заблокированными до явного снятия.
	HoldExpired HoldStatus = "expired"
)

// LegalHold — юридическое удержание (litigation hold).
// Хранится в таблице legal_holds.
type LegalHold struct {
	// ID — UUID удержания
	ID string
	// Name — название (например, номер дела)
	Name string
	// HoldReason — основание удержания
	HoldReason string
	// MatterID — идентификатор судебного дела (опционально)
	MatterID *string
	// CustodianName — ответственный хранитель (опционально)
	CustodianName *string
	// CustodianEmail — email хранителя (опционально)
	CustodianEmail *string
	// StartDate — дата начала удержания
	StartDate time.Time
	// EndDate — плановая дата окончания (опционально)
	EndDate *time.Time
	// Status — active, released, expired
	Status HoldStatus
	// ReleaseReason — причина снятия (только для released)
	ReleaseReason *string
	// ReleasedAt — время снятия
	ReleasedAt *time.Time
	// ReleasedBy — кто снял удержание
	ReleasedBy *string
	// CreatedBy — кто создал удержание
	CreatedBy string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsBlocking возвращает true, если удержание может блокировать документы.
// Истёкшее удержание продолжает блокировать до явного снятия.
func (h *LegalHold) IsBlocking() bool {
	return h.Status == HoldActive || h.Status == HoldExpired
}

// TargetDatePassed проверяет, прошла ли плановая дата окончания.
func (h *LegalHold) TargetDatePassed(now time.Time) bool {
	return h.EndDate != nil && !h.EndDate.After(now)
}
