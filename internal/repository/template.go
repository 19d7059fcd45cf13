package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// TemplateRepository — чтение таблицы retention_policy_templates.
// Шаблоны заполняются миграцией и не изменяются через API.
type TemplateRepository interface {
	// List возвращает все шаблоны (сортировка: priority DESC).
	List(ctx context.Context) ([]*model.RetentionPolicyTemplate, error)
	// GetByID возвращает шаблон по slug.
	GetByID(ctx context.Context, id string) (*model.RetentionPolicyTemplate, error)
}

type templateRepo struct {
	db DBTX
}

// NewTemplateRepository создаёт репозиторий шаблонов политик.
func NewTemplateRepository(db DBTX) TemplateRepository {
	return &templateRepo{db: db}
}

const templateColumns = `id, name, description, retention_period_days, disposition_action,
	trigger_type, priority, applies_to_categories, compliance_framework,
	requires_approval, notification_days_before`

func scanTemplate(row pgx.Row) (*model.RetentionPolicyTemplate, error) {
	t := &model.RetentionPolicyTemplate{}
	var action, trigger string
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.RetentionPeriodDays, &action,
		&trigger, &t.Priority, &t.AppliesToCategories, &t.ComplianceFramework,
		&t.RequiresApproval, &t.NotificationDaysBefore,
	)
	if err != nil {
		return nil, err
	}
	t.DispositionAction = model.DispositionAction(action)
	t.TriggerType = model.TriggerType(trigger)
	return t, nil
}

func (r *templateRepo) List(ctx context.Context) ([]*model.RetentionPolicyTemplate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+templateColumns+` FROM retention_policy_templates ORDER BY priority DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения шаблонов: %w", err)
	}
	defer rows.Close()

	var result []*model.RetentionPolicyTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования шаблона: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *templateRepo) GetByID(ctx context.Context, id string) (*model.RetentionPolicyTemplate, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM retention_policy_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения шаблона: %w", err)
	}
	return t, nil
}
