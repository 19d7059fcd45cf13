package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// StatusFilter — фильтр списка статусов хранения.
type StatusFilter struct {
	Status   *model.RetentionState
	PolicyID *string
	HoldID   *string
}

// StatusRepository — доступ к таблице document_retention_status.
//
// Update выполняет compare-and-swap по полю version: запись обновляется,
// только если её версия в БД совпадает с переданной. Набор удержаний и
// состояние меняются одним UPDATE одной строки.
type StatusRepository interface {
	// Get возвращает статус документа.
	Get(ctx context.Context, documentID string) (*model.DocumentRetentionStatus, error)
	// Create создаёт статус с version = 1. ErrConflict — статус уже существует.
	Create(ctx context.Context, st *model.DocumentRetentionStatus) error
	// Update сохраняет статус, если его version не изменилась, и увеличивает version.
	// ErrVersionConflict — запись изменена параллельно.
	Update(ctx context.Context, st *model.DocumentRetentionStatus) error
	// Delete удаляет статус (административная очистка).
	Delete(ctx context.Context, documentID string) error
	// List возвращает статусы с фильтрацией (сортировка: document_id).
	List(ctx context.Context, filter StatusFilter, limit, offset int) ([]*model.DocumentRetentionStatus, error)
	// ListDue возвращает active-документы без удержаний с истёкшим сроком
	// и назначенной политикой, document_id которых больше afterID
	// (keyset-пагинация).
	ListDue(ctx context.Context, now time.Time, afterID string, limit int) ([]*model.DocumentRetentionStatus, error)
	// ListUpcoming возвращает active-документы без удержаний, вошедшие в окно
	// уведомления своей политики (сортировка: retention_end_date).
	ListUpcoming(ctx context.Context, now time.Time, limit, offset int) ([]*model.DocumentRetentionStatus, error)
	// Count возвращает количество статусов с фильтрацией.
	Count(ctx context.Context, filter StatusFilter) (int, error)
}

type statusRepo struct {
	db DBTX
}

// NewStatusRepository создаёт репозиторий статусов хранения.
func NewStatusRepository(db DBTX) StatusRepository {
	return &statusRepo{db: db}
}

const statusColumns = `s.document_id, s.policy_id::text, s.retention_start_date, s.retention_end_date,
	s.current_status, s.legal_hold_ids::text[], s.exception_reason, s.exception_extended_until,
	s.certificate_number, s.pre_hold_status, s.version, s.created_at, s.updated_at`

func scanStatus(row pgx.Row) (*model.DocumentRetentionStatus, error) {
	st := &model.DocumentRetentionStatus{}
	var current string
	var preHold *string
	err := row.Scan(
		&st.DocumentID, &st.PolicyID, &st.RetentionStartDate, &st.RetentionEndDate,
		&current, &st.LegalHoldIDs, &st.ExceptionReason, &st.ExceptionExtendedUntil,
		&st.CertificateNumber, &preHold, &st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.CurrentStatus = model.RetentionState(current)
	if preHold != nil {
		s := model.RetentionState(*preHold)
		st.PreHoldStatus = &s
	}
	return st, nil
}

func collectStatuses(rows pgx.Rows) ([]*model.DocumentRetentionStatus, error) {
	defer rows.Close()
	var result []*model.DocumentRetentionStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования статуса: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func holdIDsArg(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func preHoldArg(s *model.RetentionState) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func (r *statusRepo) Get(ctx context.Context, documentID string) (*model.DocumentRetentionStatus, error) {
	st, err := scanStatus(r.db.QueryRow(ctx,
		`SELECT `+statusColumns+` FROM document_retention_status s WHERE s.document_id = $1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения статуса: %w", err)
	}
	return st, nil
}

func (r *statusRepo) Create(ctx context.Context, st *model.DocumentRetentionStatus) error {
	query := `
		INSERT INTO document_retention_status (document_id, policy_id, retention_start_date,
			retention_end_date, current_status, legal_hold_ids, exception_reason,
			exception_extended_until, certificate_number, pre_hold_status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING version, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		st.DocumentID, st.PolicyID, st.RetentionStartDate, st.RetentionEndDate,
		string(st.CurrentStatus), holdIDsArg(st.LegalHoldIDs), st.ExceptionReason,
		st.ExceptionExtendedUntil, st.CertificateNumber, preHoldArg(st.PreHoldStatus),
	).Scan(&st.Version, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: статус документа %s", ErrConflict, st.DocumentID)
		}
		return fmt.Errorf("ошибка создания статуса: %w", err)
	}
	return nil
}

func (r *statusRepo) Update(ctx context.Context, st *model.DocumentRetentionStatus) error {
	query := `
		UPDATE document_retention_status
		SET policy_id = $3, retention_start_date = $4, retention_end_date = $5,
			current_status = $6, legal_hold_ids = $7, exception_reason = $8,
			exception_extended_until = $9, certificate_number = $10, pre_hold_status = $11,
			version = version + 1, updated_at = NOW()
		WHERE document_id = $1 AND version = $2
		RETURNING version, updated_at`

	err := r.db.QueryRow(ctx, query,
		st.DocumentID, st.Version, st.PolicyID, st.RetentionStartDate, st.RetentionEndDate,
		string(st.CurrentStatus), holdIDsArg(st.LegalHoldIDs), st.ExceptionReason,
		st.ExceptionExtendedUntil, st.CertificateNumber, preHoldArg(st.PreHoldStatus),
	).Scan(&st.Version, &st.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ошибка обновления статуса: %w", err)
	}

	// Строка не обновлена: либо её нет, либо версия ушла вперёд
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_retention_status WHERE document_id = $1)`,
		st.DocumentID).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка проверки статуса: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: документ %s, версия %d", ErrVersionConflict, st.DocumentID, st.Version)
}

func (r *statusRepo) Delete(ctx context.Context, documentID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM document_retention_status WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("ошибка удаления статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func statusWhere(filter StatusFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.Status != nil {
		w.add("s.current_status = $%d", string(*filter.Status))
	}
	if filter.PolicyID != nil {
		w.add("s.policy_id = $%d", *filter.PolicyID)
	}
	if filter.HoldID != nil {
		w.add("$%d = ANY(s.legal_hold_ids)", *filter.HoldID)
	}
	return w
}

func (r *statusRepo) List(ctx context.Context, filter StatusFilter, limit, offset int) ([]*model.DocumentRetentionStatus, error) {
	w := statusWhere(filter)
	n := w.next()
	query := fmt.Sprintf(`
		SELECT %s FROM document_retention_status s
		%s
		ORDER BY s.document_id
		LIMIT $%d OFFSET $%d`, statusColumns, w, n, n+1)

	rows, err := r.db.Query(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка статусов: %w", err)
	}
	return collectStatuses(rows)
}

func (r *statusRepo) ListDue(ctx context.Context, now time.Time, afterID string, limit int) ([]*model.DocumentRetentionStatus, error) {
	query := `
		SELECT ` + statusColumns + ` FROM document_retention_status s
		WHERE s.current_status = 'active'
			AND cardinality(s.legal_hold_ids) = 0
			AND s.policy_id IS NOT NULL
			AND s.retention_end_date <= $1
			AND s.document_id > $2
		ORDER BY s.document_id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, now, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки документов с истёкшим сроком: %w", err)
	}
	return collectStatuses(rows)
}

func (r *statusRepo) ListUpcoming(ctx context.Context, now time.Time, limit, offset int) ([]*model.DocumentRetentionStatus, error) {
	query := `
		SELECT ` + statusColumns + ` FROM document_retention_status s
		JOIN retention_policies p ON p.id = s.policy_id
		WHERE s.current_status = 'active'
			AND cardinality(s.legal_hold_ids) = 0
			AND p.notification_days_before > 0
			AND s.retention_end_date > $1
			AND s.retention_end_date <= $1 + make_interval(days => p.notification_days_before)
		ORDER BY s.retention_end_date, s.document_id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки документов в окне уведомления: %w", err)
	}
	return collectStatuses(rows)
}

func (r *statusRepo) Count(ctx context.Context, filter StatusFilter) (int, error) {
	w := statusWhere(filter)
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_retention_status s `+w.String(), w.args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта статусов: %w", err)
	}
	return count, nil
}
