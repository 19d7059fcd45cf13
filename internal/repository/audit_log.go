package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// AuditCursor — позиция keyset-пагинации журнала (created_at DESC, id DESC).
type AuditCursor struct {
	CreatedAt time.Time
	ID        string
}

// AuditLogRepository — доступ к таблице disposition_audit_log.
// Записи только добавляются, UPDATE и DELETE не предусмотрены.
type AuditLogRepository interface {
	// Insert добавляет запись. Повторная вставка записи с тем же ID — no-op,
	// что делает повторы из очереди идемпотентными.
	Insert(ctx context.Context, e *model.AuditLogEntry) error
	// List возвращает страницу записей после курсора (nil — с начала),
	// от новых к старым.
	List(ctx context.Context, filter model.AuditFilter, after *AuditCursor, limit int) ([]*model.AuditLogEntry, error)
}

type auditLogRepo struct {
	db DBTX
}

// NewAuditLogRepository создаёт репозиторий журнала disposition.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func stateArg(s *model.RetentionState) *string {
	return preHoldArg(s)
}

func (r *auditLogRepo) Insert(ctx context.Context, e *model.AuditLogEntry) error {
	query := `
		INSERT INTO disposition_audit_log (id, document_id, action, previous_status,
			new_status, reason, certificate_number, action_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(ctx, query,
		e.ID, e.DocumentID, string(e.Action), stateArg(e.PreviousStatus),
		stateArg(e.NewStatus), e.Reason, e.CertificateNumber, e.ActionBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return nil
}

func (r *auditLogRepo) List(ctx context.Context, filter model.AuditFilter, after *AuditCursor, limit int) ([]*model.AuditLogEntry, error) {
	w := &whereBuilder{}
	if filter.DocumentID != nil {
		w.add("document_id = $%d", *filter.DocumentID)
	}
	if filter.Action != nil {
		w.add("action = $%d", string(*filter.Action))
	}
	if filter.From != nil {
		w.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("created_at < $%d", *filter.To)
	}
	if after != nil {
		n := w.next()
		w.args = append(w.args, after.CreatedAt, after.ID)
		w.addRaw(fmt.Sprintf("(created_at, id) < ($%d, $%d::uuid)", n, n+1))
	}
	n := w.next()
	query := fmt.Sprintf(`
		SELECT id, document_id, action, previous_status, new_status, reason,
			certificate_number, action_by, created_at
		FROM disposition_audit_log
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, w, n)

	rows, err := r.db.Query(ctx, query, append(w.args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditLogEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanAuditEntry(row pgx.Row) (*model.AuditLogEntry, error) {
	e := &model.AuditLogEntry{}
	var action string
	var prev, next *string
	if err := row.Scan(&e.ID, &e.DocumentID, &action, &prev, &next, &e.Reason,
		&e.CertificateNumber, &e.ActionBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Action = model.AuditAction(action)
	if prev != nil {
		s := model.RetentionState(*prev)
		e.PreviousStatus = &s
	}
	if next != nil {
		s := model.RetentionState(*next)
		e.NewStatus = &s
	}
	return e, nil
}
