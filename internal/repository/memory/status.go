package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/retention"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

type statusRepo Store

func (r *statusRepo) Get(_ context.Context, documentID string) (*model.DocumentRetentionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.statuses[documentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return st.Clone(), nil
}

func (r *statusRepo) Create(_ context.Context, st *model.DocumentRetentionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statuses[st.DocumentID]; ok {
		return fmt.Errorf("%w: статус документа %s", repository.ErrConflict, st.DocumentID)
	}
	now := (*Store)(r).now()
	st.Version = 1
	st.CreatedAt, st.UpdatedAt = now, now
	r.statuses[st.DocumentID] = st.Clone()
	return nil
}

func (r *statusRepo) Update(_ context.Context, st *model.DocumentRetentionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.statuses[st.DocumentID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Version != st.Version {
		return fmt.Errorf("%w: документ %s, версия %d", repository.ErrVersionConflict, st.DocumentID, st.Version)
	}
	st.Version++
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = (*Store)(r).now()
	r.statuses[st.DocumentID] = st.Clone()
	return nil
}

func (r *statusRepo) Delete(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statuses[documentID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.statuses, documentID)
	return nil
}

// selectSorted выбирает статусы по предикату, сортируя по document_id.
func (r *statusRepo) selectSorted(match func(*model.DocumentRetentionStatus) bool) []*model.DocumentRetentionStatus {
	var result []*model.DocumentRetentionStatus
	for _, st := range r.statuses {
		if match(st) {
			result = append(result, st)
		}
	}
	slices.SortFunc(result, func(a, b *model.DocumentRetentionStatus) int {
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
	return result
}

func cloneAll(items []*model.DocumentRetentionStatus) []*model.DocumentRetentionStatus {
	result := make([]*model.DocumentRetentionStatus, 0, len(items))
	for _, st := range items {
		result = append(result, st.Clone())
	}
	return result
}

func matchFilter(filter repository.StatusFilter) func(*model.DocumentRetentionStatus) bool {
	return func(st *model.DocumentRetentionStatus) bool {
		if filter.Status != nil && st.CurrentStatus != *filter.Status {
			return false
		}
		if filter.PolicyID != nil && (st.PolicyID == nil || *st.PolicyID != *filter.PolicyID) {
			return false
		}
		if filter.HoldID != nil && !st.HasHold(*filter.HoldID) {
			return false
		}
		return true
	}
}

func (r *statusRepo) List(_ context.Context, filter repository.StatusFilter, limit, offset int) ([]*model.DocumentRetentionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(page(r.selectSorted(matchFilter(filter)), limit, offset)), nil
}

func (r *statusRepo) Count(_ context.Context, filter repository.StatusFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.selectSorted(matchFilter(filter))), nil
}

func (r *statusRepo) ListDue(_ context.Context, now time.Time, afterID string, limit int) ([]*model.DocumentRetentionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := r.selectSorted(func(st *model.DocumentRetentionStatus) bool {
		return st.IsDue(now) && st.PolicyID != nil && st.DocumentID > afterID
	})
	return cloneAll(page(due, limit, 0)), nil
}

func (r *statusRepo) ListUpcoming(_ context.Context, now time.Time, limit, offset int) ([]*model.DocumentRetentionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	upcoming := r.selectSorted(func(st *model.DocumentRetentionStatus) bool {
		if st.PolicyID == nil {
			return false
		}
		p, ok := r.policies[*st.PolicyID]
		if !ok {
			return false
		}
		return retention.InNotificationWindow(st, p.NotificationDaysBefore, now)
	})
	slices.SortStableFunc(upcoming, func(a, b *model.DocumentRetentionStatus) int {
		return a.RetentionEndDate.Compare(b.RetentionEndDate)
	})
	return cloneAll(page(upcoming, limit, offset)), nil
}
