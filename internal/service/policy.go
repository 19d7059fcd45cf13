// policy.go — сервис политик хранения и шаблонов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// PolicySpec — параметры создания политики.
type PolicySpec struct {
	Name                   string                  `validate:"required,max=255"`
	Description            *string                 `validate:"omitempty,max=4000"`
	RetentionPeriodDays    int                     `validate:"min=1"`
	DispositionAction      model.DispositionAction `validate:"required,oneof=delete archive review transfer"`
	TriggerType            model.TriggerType       `validate:"required,oneof=creation_date last_modified custom_date last_accessed"`
	IsActive               *bool
	Priority               int
	AppliesToCategories    []string `validate:"dive,required,max=100"`
	ComplianceFramework    *string  `validate:"omitempty,max=100"`
	RequiresApproval       bool
	NotificationDaysBefore int `validate:"min=0"`
}

func specFromPolicy(p *model.RetentionPolicy) PolicySpec {
	active := p.IsActive
	return PolicySpec{
		Name:                   p.Name,
		Description:            p.Description,
		RetentionPeriodDays:    p.RetentionPeriodDays,
		DispositionAction:      p.DispositionAction,
		TriggerType:            p.TriggerType,
		IsActive:               &active,
		Priority:               p.Priority,
		AppliesToCategories:    p.AppliesToCategories,
		ComplianceFramework:    p.ComplianceFramework,
		RequiresApproval:       p.RequiresApproval,
		NotificationDaysBefore: p.NotificationDaysBefore,
	}
}

// PolicyRecomputer пересчитывает сроки документов, использующих политику.
type PolicyRecomputer interface {
	RecomputePolicy(ctx context.Context, p *model.RetentionPolicy, actor string) (*BulkResult, error)
}

// PolicyService — хранилище политик: CRUD, шаблоны, кэш.
type PolicyService struct {
	policies  repository.PolicyRepository
	templates repository.TemplateRepository
	statuses  repository.StatusRepository
	cache     *PolicyCache
	recompute PolicyRecomputer
	validate  *validator.Validate
	clock     clock.Clock
	logger    *slog.Logger
}

// NewPolicyService создаёт сервис политик. cache может быть nil.
func NewPolicyService(
	policies repository.PolicyRepository,
	templates repository.TemplateRepository,
	statuses repository.StatusRepository,
	cache *PolicyCache,
	c clock.Clock,
	logger *slog.Logger,
) *PolicyService {
	return &PolicyService{
		policies:  policies,
		templates: templates,
		statuses:  statuses,
		cache:     cache,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		clock:     c,
		logger:    logger.With(slog.String("component", "policy_service")),
	}
}

// validateSpec проверяет параметры политики и возвращает ErrValidation
// с перечислением нарушенных полей.
func (s *PolicyService) validateSpec(spec PolicySpec) error {
	err := s.validate.Struct(spec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationError("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: нарушено правило %s", fe.Namespace(), fe.Tag()))
	}
	return validationError("%s", strings.Join(msgs, "; "))
}

// CreatePolicy создаёт политику. По умолчанию политика активна.
func (s *PolicyService) CreatePolicy(ctx context.Context, spec PolicySpec, actor string) (*model.RetentionPolicy, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if err := s.validateSpec(spec); err != nil {
		return nil, opError("CreatePolicy", err)
	}

	p := &model.RetentionPolicy{
		ID:                     uuid.New().String(),
		Name:                   spec.Name,
		Description:            spec.Description,
		RetentionPeriodDays:    spec.RetentionPeriodDays,
		DispositionAction:      spec.DispositionAction,
		TriggerType:            spec.TriggerType,
		IsActive:               spec.IsActive == nil || *spec.IsActive,
		Priority:               spec.Priority,
		AppliesToCategories:    spec.AppliesToCategories,
		ComplianceFramework:    spec.ComplianceFramework,
		RequiresApproval:       spec.RequiresApproval,
		NotificationDaysBefore: spec.NotificationDaysBefore,
		CreatedBy:              actor,
	}
	if err := s.policies.Create(ctx, p); err != nil {
		return nil, opError("CreatePolicy", fmt.Errorf("сохранение политики: %w", err), withPolicy(p.ID))
	}

	s.logger.Info("Политика хранения создана",
		slog.String("policy_id", p.ID),
		slog.String("name", p.Name),
		slog.Int("retention_period_days", p.RetentionPeriodDays),
		slog.String("disposition_action", string(p.DispositionAction)),
		slog.String("created_by", actor),
	)
	return p, nil
}

// GetPolicy возвращает политику по id (через кэш).
func (s *PolicyService) GetPolicy(ctx context.Context, id string) (*model.RetentionPolicy, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(id); ok {
			return p, nil
		}
	}
	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, opError("GetPolicy", ErrPolicyNotFound, withPolicy(id))
		}
		return nil, opError("GetPolicy", err, withPolicy(id))
	}
	if s.cache != nil {
		s.cache.Set(p)
	}
	return p, nil
}

// ListPolicies возвращает страницу политик и общее количество.
func (s *PolicyService) ListPolicies(ctx context.Context, filter repository.PolicyFilter, limit, offset int) ([]*model.RetentionPolicy, int, error) {
	items, err := s.policies.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, opError("ListPolicies", err)
	}
	total, err := s.policies.Count(ctx, filter)
	if err != nil {
		return nil, 0, opError("ListPolicies", err)
	}
	return items, total, nil
}

// ListActive возвращает все активные политики (сортировка: priority DESC).
func (s *PolicyService) ListActive(ctx context.Context) ([]*model.RetentionPolicy, error) {
	const pageSize = 500
	active := true
	var result []*model.RetentionPolicy
	for offset := 0; ; offset += pageSize {
		page, err := s.policies.List(ctx, repository.PolicyFilter{Active: &active}, pageSize, offset)
		if err != nil {
			return nil, opError("ListActive", err)
		}
		result = append(result, page...)
		if len(page) < pageSize {
			return result, nil
		}
	}
}

// SetRecomputer задаёт пересчёт сроков документов при изменении
// retention_period_days политики.
func (s *PolicyService) SetRecomputer(r PolicyRecomputer) {
	s.recompute = r
}

// UpdatePolicy применяет частичное обновление. Итоговая политика
// валидируется целиком, кэш инвалидируется. При изменении срока хранения
// даты окончания документов с этой политикой пересчитываются.
func (s *PolicyService) UpdatePolicy(ctx context.Context, id string, patch model.PolicyPatch, actor string) (*model.RetentionPolicy, error) {
	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, opError("UpdatePolicy", ErrPolicyNotFound, withPolicy(id))
		}
		return nil, opError("UpdatePolicy", err, withPolicy(id))
	}

	prevPeriod := p.RetentionPeriodDays
	patch.Apply(p)
	p.Name = strings.TrimSpace(p.Name)
	if err := s.validateSpec(specFromPolicy(p)); err != nil {
		return nil, opError("UpdatePolicy", err, withPolicy(id))
	}

	if err := s.policies.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = ErrPolicyNotFound
		}
		return nil, opError("UpdatePolicy", err, withPolicy(id))
	}
	if s.cache != nil {
		s.cache.Invalidate(id)
	}

	s.logger.Info("Политика хранения обновлена",
		slog.String("policy_id", id),
		slog.Bool("is_active", p.IsActive),
	)

	if s.recompute != nil && p.RetentionPeriodDays != prevPeriod {
		res, err := s.recompute.RecomputePolicy(ctx, p, actor)
		switch {
		case err != nil:
			s.logger.Error("Ошибка пересчёта сроков документов после изменения политики",
				slog.String("policy_id", id),
				slog.String("error", err.Error()),
			)
		case res.Failed > 0:
			s.logger.Warn("Сроки части документов не пересчитаны",
				slog.String("policy_id", id),
				slog.Int("succeeded", res.Succeeded),
				slog.Int("failed", res.Failed),
			)
		}
	}
	return p, nil
}

// DeletePolicy удаляет политику. ErrPolicyInUse — на неё ссылаются статусы.
func (s *PolicyService) DeletePolicy(ctx context.Context, id string) error {
	refs, err := s.statuses.Count(ctx, repository.StatusFilter{PolicyID: &id})
	if err != nil {
		return opError("DeletePolicy", err, withPolicy(id))
	}
	if refs > 0 {
		return opError("DeletePolicy",
			fmt.Errorf("%w: ссылок из статусов документов: %d", ErrPolicyInUse, refs), withPolicy(id))
	}

	if err := s.policies.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			err = ErrPolicyNotFound
		case errors.Is(err, repository.ErrInUse):
			err = fmt.Errorf("%w: %w", ErrPolicyInUse, err) //nolint:errorlint // намеренный двойной wrap
		}
		return opError("DeletePolicy", err, withPolicy(id))
	}
	if s.cache != nil {
		s.cache.Invalidate(id)
	}

	s.logger.Info("Политика хранения удалена", slog.String("policy_id", id))
	return nil
}

// ListTemplates возвращает шаблоны политик.
func (s *PolicyService) ListTemplates(ctx context.Context) ([]*model.RetentionPolicyTemplate, error) {
	items, err := s.templates.List(ctx)
	if err != nil {
		return nil, opError("ListTemplates", err)
	}
	return items, nil
}

// CreateFromTemplate создаёт активную политику из шаблона с переопределениями.
func (s *PolicyService) CreateFromTemplate(ctx context.Context, templateID string, overrides model.PolicyPatch, actor string) (*model.RetentionPolicy, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, opError("CreateFromTemplate", fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID))
		}
		return nil, opError("CreateFromTemplate", err)
	}

	draft := &model.RetentionPolicy{
		Name:                   t.Name,
		Description:            t.Description,
		RetentionPeriodDays:    t.RetentionPeriodDays,
		DispositionAction:      t.DispositionAction,
		TriggerType:            t.TriggerType,
		IsActive:               true,
		Priority:               t.Priority,
		AppliesToCategories:    t.AppliesToCategories,
		ComplianceFramework:    t.ComplianceFramework,
		RequiresApproval:       t.RequiresApproval,
		NotificationDaysBefore: t.NotificationDaysBefore,
	}
	overrides.Apply(draft)

	p, err := s.CreatePolicy(ctx, specFromPolicy(draft), actor)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Политика создана из шаблона",
		slog.String("policy_id", p.ID),
		slog.String("template_id", templateID),
	)
	return p, nil
}

