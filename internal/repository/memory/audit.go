package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

type auditRepo Store

func (r *auditRepo) Insert(_ context.Context, e *model.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auditIDs[e.ID]; ok {
		return nil
	}
	c := *e
	r.audit = append(r.audit, &c)
	r.auditIDs[e.ID] = struct{}{}
	return nil
}

// before проверяет порядок (created_at DESC, id DESC): e идёт после курсора.
func before(e *model.AuditLogEntry, c *repository.AuditCursor) bool {
	if e.CreatedAt.Equal(c.CreatedAt) {
		return e.ID < c.ID
	}
	return e.CreatedAt.Before(c.CreatedAt)
}

func matchAudit(e *model.AuditLogEntry, f model.AuditFilter) bool {
	if f.DocumentID != nil && e.DocumentID != *f.DocumentID {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func (r *auditRepo) List(_ context.Context, filter model.AuditFilter, after *repository.AuditCursor, limit int) ([]*model.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*model.AuditLogEntry
	for _, e := range r.audit {
		if !matchAudit(e, filter) {
			continue
		}
		if after != nil && !before(e, after) {
			continue
		}
		matched = append(matched, e)
	}
	sortAuditDesc(matched)

	items := page(matched, limit, 0)
	result := make([]*model.AuditLogEntry, 0, len(items))
	for _, e := range items {
		c := *e
		result = append(result, &c)
	}
	return result, nil
}

func sortAuditDesc(items []*model.AuditLogEntry) {
	slices.SortFunc(items, func(a, b *model.AuditLogEntry) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
}
