package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// PolicyFilter — фильтр списка политик.
type PolicyFilter struct {
	// Active — только активные (true) или только неактивные (false)
	Active *bool
	// ComplianceFramework — регуляторная рамка
	ComplianceFramework *string
}

// PolicyRepository — CRUD для таблицы retention_policies.
type PolicyRepository interface {
	// Create создаёт политику.
	Create(ctx context.Context, p *model.RetentionPolicy) error
	// GetByID возвращает политику по UUID.
	GetByID(ctx context.Context, id string) (*model.RetentionPolicy, error)
	// List возвращает политики с фильтрацией (сортировка: priority DESC, name).
	List(ctx context.Context, filter PolicyFilter, limit, offset int) ([]*model.RetentionPolicy, error)
	// Count возвращает количество политик с фильтрацией.
	Count(ctx context.Context, filter PolicyFilter) (int, error)
	// Update обновляет политику целиком.
	Update(ctx context.Context, p *model.RetentionPolicy) error
	// Delete удаляет политику. ErrInUse — на неё ссылаются статусы.
	Delete(ctx context.Context, id string) error
}

type policyRepo struct {
	db DBTX
}

// NewPolicyRepository создаёт репозиторий политик.
func NewPolicyRepository(db DBTX) PolicyRepository {
	return &policyRepo{db: db}
}

const policyColumns = `id, name, description, retention_period_days, disposition_action,
	trigger_type, is_active, priority, applies_to_categories, compliance_framework,
	requires_approval, notification_days_before, created_by, created_at, updated_at`

func scanPolicy(row pgx.Row) (*model.RetentionPolicy, error) {
	p := &model.RetentionPolicy{}
	var action, trigger string
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.RetentionPeriodDays, &action,
		&trigger, &p.IsActive, &p.Priority, &p.AppliesToCategories, &p.ComplianceFramework,
		&p.RequiresApproval, &p.NotificationDaysBefore, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.DispositionAction = model.DispositionAction(action)
	p.TriggerType = model.TriggerType(trigger)
	return p, nil
}

func categoriesArg(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}

func (r *policyRepo) Create(ctx context.Context, p *model.RetentionPolicy) error {
	query := `
		INSERT INTO retention_policies (id, name, description, retention_period_days,
			disposition_action, trigger_type, is_active, priority, applies_to_categories,
			compliance_framework, requires_approval, notification_days_before, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.RetentionPeriodDays,
		string(p.DispositionAction), string(p.TriggerType), p.IsActive, p.Priority,
		categoriesArg(p.AppliesToCategories), p.ComplianceFramework, p.RequiresApproval,
		p.NotificationDaysBefore, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: политика %s", ErrConflict, p.ID)
		}
		return fmt.Errorf("ошибка создания политики: %w", err)
	}
	return nil
}

func (r *policyRepo) GetByID(ctx context.Context, id string) (*model.RetentionPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM retention_policies WHERE id = $1`

	p, err := scanPolicy(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения политики: %w", err)
	}
	return p, nil
}

func policyWhere(filter PolicyFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.Active != nil {
		w.add("is_active = $%d", *filter.Active)
	}
	if filter.ComplianceFramework != nil {
		w.add("compliance_framework = $%d", *filter.ComplianceFramework)
	}
	return w
}

func (r *policyRepo) List(ctx context.Context, filter PolicyFilter, limit, offset int) ([]*model.RetentionPolicy, error) {
	w := policyWhere(filter)
	n := w.next()
	query := fmt.Sprintf(`
		SELECT %s FROM retention_policies
		%s
		ORDER BY priority DESC, name, id
		LIMIT $%d OFFSET $%d`, policyColumns, w, n, n+1)

	rows, err := r.db.Query(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка политик: %w", err)
	}
	defer rows.Close()

	var result []*model.RetentionPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования политики: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *policyRepo) Count(ctx context.Context, filter PolicyFilter) (int, error) {
	w := policyWhere(filter)
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM retention_policies `+w.String(), w.args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта политик: %w", err)
	}
	return count, nil
}

func (r *policyRepo) Update(ctx context.Context, p *model.RetentionPolicy) error {
	query := `
		UPDATE retention_policies
		SET name = $2, description = $3, retention_period_days = $4,
			disposition_action = $5, trigger_type = $6, is_active = $7, priority = $8,
			applies_to_categories = $9, compliance_framework = $10,
			requires_approval = $11, notification_days_before = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.RetentionPeriodDays,
		string(p.DispositionAction), string(p.TriggerType), p.IsActive, p.Priority,
		categoriesArg(p.AppliesToCategories), p.ComplianceFramework,
		p.RequiresApproval, p.NotificationDaysBefore,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления политики: %w", err)
	}
	return nil
}

func (r *policyRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM retention_policies WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: на политику %s ссылаются статусы документов", ErrInUse, id)
		}
		return fmt.Errorf("ошибка удаления политики: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
