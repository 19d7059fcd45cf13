package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// LegalHoldRepository — CRUD для таблицы legal_holds.
type LegalHoldRepository interface {
	// Create создаёт удержание.
	Create(ctx context.Context, h *model.LegalHold) error
	// GetByID возвращает удержание по UUID.
	GetByID(ctx context.Context, id string) (*model.LegalHold, error)
	// List возвращает удержания с фильтром по статусу (сортировка: created_at DESC).
	List(ctx context.Context, status *model.HoldStatus, limit, offset int) ([]*model.LegalHold, error)
	// Count возвращает количество удержаний с фильтром по статусу.
	Count(ctx context.Context, status *model.HoldStatus) (int, error)
	// Update обновляет удержание.
	Update(ctx context.Context, h *model.LegalHold) error
	// ListExpiring возвращает active-удержания с end_date <= now.
	ListExpiring(ctx context.Context, now time.Time) ([]*model.LegalHold, error)
}

type legalHoldRepo struct {
	db DBTX
}

// NewLegalHoldRepository создаёт репозиторий удержаний.
func NewLegalHoldRepository(db DBTX) LegalHoldRepository {
	return &legalHoldRepo{db: db}
}

const holdColumns = `id, name, hold_reason, matter_id, custodian_name, custodian_email,
	start_date, end_date, status, release_reason, released_at, released_by,
	created_by, created_at, updated_at`

func scanHold(row pgx.Row) (*model.LegalHold, error) {
	h := &model.LegalHold{}
	var status string
	err := row.Scan(
		&h.ID, &h.Name, &h.HoldReason, &h.MatterID, &h.CustodianName, &h.CustodianEmail,
		&h.StartDate, &h.EndDate, &status, &h.ReleaseReason, &h.ReleasedAt, &h.ReleasedBy,
		&h.CreatedBy, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Status = model.HoldStatus(status)
	return h, nil
}

func collectHolds(rows pgx.Rows) ([]*model.LegalHold, error) {
	defer rows.Close()
	var result []*model.LegalHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования удержания: %w", err)
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (r *legalHoldRepo) Create(ctx context.Context, h *model.LegalHold) error {
	query := `
		INSERT INTO legal_holds (id, name, hold_reason, matter_id, custodian_name,
			custodian_email, start_date, end_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		h.ID, h.Name, h.HoldReason, h.MatterID, h.CustodianName,
		h.CustodianEmail, h.StartDate, h.EndDate, string(h.Status), h.CreatedBy,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: удержание %s", ErrConflict, h.ID)
		}
		return fmt.Errorf("ошибка создания удержания: %w", err)
	}
	return nil
}

func (r *legalHoldRepo) GetByID(ctx context.Context, id string) (*model.LegalHold, error) {
	h, err := scanHold(r.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM legal_holds WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения удержания: %w", err)
	}
	return h, nil
}

func holdWhere(status *model.HoldStatus) *whereBuilder {
	w := &whereBuilder{}
	if status != nil {
		w.add("status = $%d", string(*status))
	}
	return w
}

func (r *legalHoldRepo) List(ctx context.Context, status *model.HoldStatus, limit, offset int) ([]*model.LegalHold, error) {
	w := holdWhere(status)
	n := w.next()
	query := fmt.Sprintf(`
		SELECT %s FROM legal_holds
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, holdColumns, w, n, n+1)

	rows, err := r.db.Query(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка удержаний: %w", err)
	}
	return collectHolds(rows)
}

func (r *legalHoldRepo) Count(ctx context.Context, status *model.HoldStatus) (int, error) {
	w := holdWhere(status)
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM legal_holds `+w.String(), w.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта удержаний: %w", err)
	}
	return count, nil
}

func (r *legalHoldRepo) Update(ctx context.Context, h *model.LegalHold) error {
	query := `
		UPDATE legal_holds
		SET name = $2, hold_reason = $3, matter_id = $4, custodian_name = $5,
			custodian_email = $6, start_date = $7, end_date = $8, status = $9,
			release_reason = $10, released_at = $11, released_by = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		h.ID, h.Name, h.HoldReason, h.MatterID, h.CustodianName,
		h.CustodianEmail, h.StartDate, h.EndDate, string(h.Status),
		h.ReleaseReason, h.ReleasedAt, h.ReleasedBy,
	).Scan(&h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления удержания: %w", err)
	}
	return nil
}

func (r *legalHoldRepo) ListExpiring(ctx context.Context, now time.Time) ([]*model.LegalHold, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+holdColumns+` FROM legal_holds
		WHERE status = 'active' AND end_date IS NOT NULL AND end_date <= $1
		ORDER BY end_date, id`, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки истекающих удержаний: %w", err)
	}
	return collectHolds(rows)
}
