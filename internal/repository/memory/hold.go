package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

type holdRepo Store

func copyHold(h *model.LegalHold) *model.LegalHold {
	c := *h
	return &c
}

func (r *holdRepo) Create(_ context.Context, h *model.LegalHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.holds[h.ID]; ok {
		return fmt.Errorf("%w: удержание %s", repository.ErrConflict, h.ID)
	}
	now := (*Store)(r).now()
	h.CreatedAt, h.UpdatedAt = now, now
	r.holds[h.ID] = copyHold(h)
	return nil
}

func (r *holdRepo) GetByID(_ context.Context, id string) (*model.LegalHold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.holds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyHold(h), nil
}

func (r *holdRepo) filtered(match func(*model.LegalHold) bool) []*model.LegalHold {
	var result []*model.LegalHold
	for _, h := range r.holds {
		if match(h) {
			result = append(result, h)
		}
	}
	slices.SortFunc(result, func(a, b *model.LegalHold) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return result
}

func byStatus(status *model.HoldStatus) func(*model.LegalHold) bool {
	return func(h *model.LegalHold) bool {
		return status == nil || h.Status == *status
	}
}

func (r *holdRepo) List(_ context.Context, status *model.HoldStatus, limit, offset int) ([]*model.LegalHold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := page(r.filtered(byStatus(status)), limit, offset)
	result := make([]*model.LegalHold, 0, len(items))
	for _, h := range items {
		result = append(result, copyHold(h))
	}
	return result, nil
}

func (r *holdRepo) Count(_ context.Context, status *model.HoldStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filtered(byStatus(status))), nil
}

func (r *holdRepo) Update(_ context.Context, h *model.LegalHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.holds[h.ID]
	if !ok {
		return repository.ErrNotFound
	}
	h.CreatedAt = existing.CreatedAt
	h.UpdatedAt = (*Store)(r).now()
	r.holds[h.ID] = copyHold(h)
	return nil
}

func (r *holdRepo) ListExpiring(_ context.Context, now time.Time) ([]*model.LegalHold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.filtered(func(h *model.LegalHold) bool {
		return h.Status == model.HoldActive && h.TargetDatePassed(now)
	})
	result := make([]*model.LegalHold, 0, len(items))
	for _, h := range items {
		result = append(result, copyHold(h))
	}
	return result, nil
}
