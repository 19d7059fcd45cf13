// Пакет model — доменные сущности модуля хранения записей (retention module).
package model

import "time"

// DispositionAction — действие, применяемое к документу по истечении срока хранения.
type DispositionAction string

const (
	// DispositionDelete — уничтожение документа (с выдачей сертификата).
	DispositionDelete DispositionAction = "delete"
	// DispositionArchive — перевод в архив.
	DispositionArchive DispositionAction = "archive"
	// DispositionReview — ручной пересмотр.
	DispositionReview DispositionAction = "review"
	// DispositionTransfer — передача во внешнее хранилище (через пересмотр).
	DispositionTransfer DispositionAction = "transfer"
)

// IsValid проверяет, является ли действие допустимым.
func (a DispositionAction) IsValid() bool {
	switch a {
	case DispositionDelete, DispositionArchive, DispositionReview, DispositionTransfer:
		return true
	default:
		return false
	}
}

// TriggerType — событие, от которого отсчитывается срок хранения.
type TriggerType string

const (
	TriggerCreationDate TriggerType = "creation_date"
	TriggerLastModified TriggerType = "last_modified"
	TriggerCustomDate   TriggerType = "custom_date"
	TriggerLastAccessed TriggerType = "last_accessed"
)

// IsValid проверяет, является ли тип триггера допустимым.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerCreationDate, TriggerLastModified, TriggerCustomDate, TriggerLastAccessed:
		return true
	default:
		return false
	}
}

// RetentionPolicy — политика хранения.
// Хранится в таблице retention_policies.
type RetentionPolicy struct {
	// ID — UUID политики
	ID string
	// Name — название политики
	Name string
	// Description — описание (опционально)
	Description *string
	// RetentionPeriodDays — срок хранения в днях (>= 1)
	RetentionPeriodDays int
	// DispositionAction — действие по истечении срока
	DispositionAction DispositionAction
	// TriggerType — от какой даты отсчитывается срок
	TriggerType TriggerType
	// IsActive — политика доступна для применения
	IsActive bool
	// Priority — приоритет при автоматическом выборе (больше — важнее)
	Priority int
	// AppliesToCategories — категории документов для автоприменения
	AppliesToCategories []string
	// ComplianceFramework — регуляторная рамка (SOX, HIPAA, GDPR, ...)
	ComplianceFramework *string
	// RequiresApproval — уничтожение только после ручного подтверждения
	RequiresApproval bool
	// NotificationDaysBefore — за сколько дней предупреждать об истечении
	NotificationDaysBefore int
	// CreatedBy — кто создал политику
	CreatedBy string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// AppliesToCategory проверяет, входит ли категория в список автоприменения.
func (p *RetentionPolicy) AppliesToCategory(category string) bool {
	for _, c := range p.AppliesToCategories {
		if c == category {
			return true
		}
	}
	return false
}

// RetentionPolicyTemplate — шаблон политики (seed-данные, только чтение).
// Хранится в таблице retention_policy_templates.
type RetentionPolicyTemplate struct {
	// ID — slug шаблона (например, "sox-financial")
	ID                     string
	Name                   string
	Description            *string
	RetentionPeriodDays    int
	DispositionAction      DispositionAction
	TriggerType            TriggerType
	Priority               int
	AppliesToCategories    []string
	ComplianceFramework    *string
	RequiresApproval       bool
	NotificationDaysBefore int
}

// PolicyPatch — частичное обновление политики.
// nil-поля не изменяются.
type PolicyPatch struct {
	Name                   *string
	Description            *string
	RetentionPeriodDays    *int
	DispositionAction      *DispositionAction
	TriggerType            *TriggerType
	IsActive               *bool
	Priority               *int
	AppliesToCategories    *[]string
	ComplianceFramework    *string
	RequiresApproval       *bool
	NotificationDaysBefore *int
}

// Apply применяет патч к политике.
func (p PolicyPatch) Apply(policy *RetentionPolicy) {
	if p.Name != nil {
		policy.Name = *p.Name
	}
	if p.Description != nil {
		policy.Description = p.Description
	}
	if p.RetentionPeriodDays != nil {
		policy.RetentionPeriodDays = *p.RetentionPeriodDays
	}
	if p.DispositionAction != nil {
		policy.DispositionAction = *p.DispositionAction
	}
	if p.TriggerType != nil {
		policy.TriggerType = *p.TriggerType
	}
	if p.IsActive != nil {
		policy.IsActive = *p.IsActive
	}
	if p.Priority != nil {
		policy.Priority = *p.Priority
	}
	if p.AppliesToCategories != nil {
		policy.AppliesToCategories = *p.AppliesToCategories
	}
	if p.ComplianceFramework != nil {
		policy.ComplianceFramework = p.ComplianceFramework
	}
	if p.RequiresApproval != nil {
		policy.RequiresApproval = *p.RequiresApproval
	}
	if p.NotificationDaysBefore != nil {
		policy.NotificationDaysBefore = *p.NotificationDaysBefore
	}
}
