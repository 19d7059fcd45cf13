// Пакет memory — потокобезопасная реализация репозиториев в памяти.
//
// Используется при RM_STORAGE_BACKEND=memory (однопроцессный режим) и в
// тестах сервисов. Все данные хранятся копиями: внешние изменения
// возвращённых структур не влияют на содержимое хранилища.
// Не персистентный: при рестарте данные теряются.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// Store — общее in-memory хранилище всех таблиц модуля.
// Один RWMutex на все таблицы: объёмы однопроцессного режима невелики.
type Store struct {
	mu        sync.RWMutex
	clock     clock.Clock
	policies  map[string]*model.RetentionPolicy
	templates map[string]*model.RetentionPolicyTemplate
	statuses  map[string]*model.DocumentRetentionStatus
	holds     map[string]*model.LegalHold
	audit     []*model.AuditLogEntry
	auditIDs  map[string]struct{}
}

// New создаёт пустое хранилище с seed-шаблонами политик.
func New(c clock.Clock) *Store {
	s := &Store{
		clock:     c,
		policies:  make(map[string]*model.RetentionPolicy),
		templates: make(map[string]*model.RetentionPolicyTemplate),
		statuses:  make(map[string]*model.DocumentRetentionStatus),
		holds:     make(map[string]*model.LegalHold),
		auditIDs:  make(map[string]struct{}),
	}
	for _, t := range DefaultTemplates() {
		s.templates[t.ID] = t
	}
	return s
}

// Policies возвращает репозиторий политик.
func (s *Store) Policies() repository.PolicyRepository { return (*policyRepo)(s) }

// Templates возвращает репозиторий шаблонов.
func (s *Store) Templates() repository.TemplateRepository { return (*templateRepo)(s) }

// Statuses возвращает репозиторий статусов хранения.
func (s *Store) Statuses() repository.StatusRepository { return (*statusRepo)(s) }

// Holds возвращает репозиторий удержаний.
func (s *Store) Holds() repository.LegalHoldRepository { return (*holdRepo)(s) }

// AuditLog возвращает репозиторий журнала disposition.
func (s *Store) AuditLog() repository.AuditLogRepository { return (*auditRepo)(s) }

// CheckReady всегда сообщает о готовности: хранилище в памяти процесса.
func (s *Store) CheckReady() (status string, message string) {
	return "ok", "in-memory хранилище"
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

// page возвращает срез items[offset:offset+limit] с проверкой границ.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func strPtr(s string) *string { return &s }

// DefaultTemplates возвращает стандартный набор шаблонов политик.
// Совпадает с seed-миграцией PostgreSQL.
func DefaultTemplates() []*model.RetentionPolicyTemplate {
	return []*model.RetentionPolicyTemplate{
		{
			ID: "sox-financial", Name: "SOX Financial Records",
			Description:         strPtr("Финансовая отчётность: 7 лет с даты создания"),
			RetentionPeriodDays: 2555, DispositionAction: model.DispositionDelete,
			TriggerType: model.TriggerCreationDate, Priority: 100,
			AppliesToCategories: []string{"financial", "audit"},
			ComplianceFramework: strPtr("SOX"), RequiresApproval: true, NotificationDaysBefore: 30,
		},
		{
			ID: "hipaa-medical", Name: "HIPAA Medical Records",
			Description:         strPtr("Медицинские записи: 6 лет с даты последнего изменения"),
			RetentionPeriodDays: 2190, DispositionAction: model.DispositionArchive,
			TriggerType: model.TriggerLastModified, Priority: 90,
			AppliesToCategories: []string{"medical", "patient"},
			ComplianceFramework: strPtr("HIPAA"), RequiresApproval: true, NotificationDaysBefore: 60,
		},
		{
			ID: "gdpr-personal", Name: "GDPR Personal Data",
			Description:         strPtr("Персональные данные: пересмотр через 3 года"),
			RetentionPeriodDays: 1095, DispositionAction: model.DispositionReview,
			TriggerType: model.TriggerLastAccessed, Priority: 80,
			AppliesToCategories: []string{"personal", "hr"},
			ComplianceFramework: strPtr("GDPR"), NotificationDaysBefore: 30,
		},
		{
			ID: "tax-archive", Name: "Tax Records Archive",
			Description:         strPtr("Налоговые документы: архивирование через 10 лет"),
			RetentionPeriodDays: 3650, DispositionAction: model.DispositionArchive,
			TriggerType: model.TriggerCreationDate, Priority: 70,
			AppliesToCategories: []string{"tax"}, NotificationDaysBefore: 90,
		},
		{
			ID: "temporary", Name: "Temporary Files",
			Description:         strPtr("Временные файлы: удаление через 30 дней"),
			RetentionPeriodDays: 30, DispositionAction: model.DispositionDelete,
			TriggerType: model.TriggerCreationDate, Priority: 10,
			AppliesToCategories: []string{"temporary", "draft"}, NotificationDaysBefore: 7,
		},
	}
}

// --- Политики ---

type policyRepo Store

func copyPolicy(p *model.RetentionPolicy) *model.RetentionPolicy {
	c := *p
	c.AppliesToCategories = slices.Clone(p.AppliesToCategories)
	return &c
}

func (r *policyRepo) Create(_ context.Context, p *model.RetentionPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[p.ID]; ok {
		return fmt.Errorf("%w: политика %s", repository.ErrConflict, p.ID)
	}
	now := (*Store)(r).now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.policies[p.ID] = copyPolicy(p)
	return nil
}

func (r *policyRepo) GetByID(_ context.Context, id string) (*model.RetentionPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyPolicy(p), nil
}

func (r *policyRepo) filtered(filter repository.PolicyFilter) []*model.RetentionPolicy {
	var result []*model.RetentionPolicy
	for _, p := range r.policies {
		if filter.Active != nil && p.IsActive != *filter.Active {
			continue
		}
		if filter.ComplianceFramework != nil &&
			(p.ComplianceFramework == nil || *p.ComplianceFramework != *filter.ComplianceFramework) {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b *model.RetentionPolicy) int {
		return cmp.Or(
			cmp.Compare(b.Priority, a.Priority),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return result
}

func (r *policyRepo) List(_ context.Context, filter repository.PolicyFilter, limit, offset int) ([]*model.RetentionPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := page(r.filtered(filter), limit, offset)
	result := make([]*model.RetentionPolicy, 0, len(items))
	for _, p := range items {
		result = append(result, copyPolicy(p))
	}
	return result, nil
}

func (r *policyRepo) Count(_ context.Context, filter repository.PolicyFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filtered(filter)), nil
}

func (r *policyRepo) Update(_ context.Context, p *model.RetentionPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.policies[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = (*Store)(r).now()
	r.policies[p.ID] = copyPolicy(p)
	return nil
}

func (r *policyRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[id]; !ok {
		return repository.ErrNotFound
	}
	for _, st := range r.statuses {
		if st.PolicyID != nil && *st.PolicyID == id {
			return fmt.Errorf("%w: на политику %s ссылаются статусы документов", repository.ErrInUse, id)
		}
	}
	delete(r.policies, id)
	return nil
}

// --- Шаблоны ---

type templateRepo Store

func copyTemplate(t *model.RetentionPolicyTemplate) *model.RetentionPolicyTemplate {
	c := *t
	c.AppliesToCategories = slices.Clone(t.AppliesToCategories)
	return &c
}

func (r *templateRepo) List(_ context.Context) ([]*model.RetentionPolicyTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.RetentionPolicyTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		result = append(result, copyTemplate(t))
	}
	slices.SortFunc(result, func(a, b *model.RetentionPolicyTemplate) int {
		return cmp.Or(cmp.Compare(b.Priority, a.Priority), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

func (r *templateRepo) GetByID(_ context.Context, id string) (*model.RetentionPolicyTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTemplate(t), nil
}
