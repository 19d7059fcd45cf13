// status_update.go — единая точка изменения статуса хранения документа.
//
// Любое изменение статуса проходит через statusUpdater.mutate: блокировка
// документа внутри процесса, чтение, изменение и сохранение с CAS по
// version. Конфликт версий (другой процесс) повторяется ограниченное число раз.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// mutateFunc получает текущий статус (nil — записи нет) и возвращает статус
// для сохранения. nil без ошибки — изменений нет.
// current — свежая копия, её можно изменять и возвращать.
type mutateFunc func(current *model.DocumentRetentionStatus) (*model.DocumentRetentionStatus, error)

// statusUpdater — изменение статусов с блокировкой и повтором при конфликте.
type statusUpdater struct {
	repo         repository.StatusRepository
	locker       *DocumentLocker
	retries      int
	storeTimeout time.Duration
	logger       *slog.Logger
}

func newStatusUpdater(repo repository.StatusRepository, locker *DocumentLocker, retries int, storeTimeout time.Duration, logger *slog.Logger) *statusUpdater {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &statusUpdater{
		repo:         repo,
		locker:       locker,
		retries:      retries,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// get читает статус с таймаутом. Отсутствие записи — (nil, nil).
func (u *statusUpdater) get(ctx context.Context, documentID string) (*model.DocumentRetentionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()

	st, err := u.repo.Get(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение статуса %s: %w", documentID, err)
	}
	return st, nil
}

// save сохраняет статус: Create для новой записи, Update с CAS для существующей.
func (u *statusUpdater) save(ctx context.Context, st *model.DocumentRetentionStatus, exists bool) error {
	ctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()

	if exists {
		return u.repo.Update(ctx, st)
	}
	return u.repo.Create(ctx, st)
}

// mutate применяет fn к статусу документа под блокировкой.
// Возвращает сохранённый статус (или текущий, если fn не внёс изменений)
// и признак того, что запись изменена.
func (u *statusUpdater) mutate(ctx context.Context, documentID string, fn mutateFunc) (*model.DocumentRetentionStatus, bool, error) {
	unlock := u.locker.Lock(documentID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		current, err := u.get(ctx, documentID)
		if err != nil {
			return nil, false, err
		}
		exists := current != nil

		var before *model.DocumentRetentionStatus
		if exists {
			before = current.Clone()
		}

		next, err := fn(current)
		if err != nil {
			return before, false, err
		}
		if next == nil {
			return before, false, nil
		}

		err = u.save(ctx, next, exists)
		if err == nil {
			return next, true, nil
		}

		// ErrConflict — запись создана параллельно, ErrNotFound — удалена параллельно
		conflict := errors.Is(err, repository.ErrVersionConflict) ||
			errors.Is(err, repository.ErrConflict) ||
			(exists && errors.Is(err, repository.ErrNotFound))
		if !conflict {
			return nil, false, fmt.Errorf("сохранение статуса %s: %w", documentID, err)
		}
		if attempt >= u.retries {
			return nil, false, fmt.Errorf("%w: документ %s, попыток %d", ErrConcurrencyConflict, documentID, attempt+1)
		}

		conflictRetriesTotal.Inc()
		u.logger.Debug("Конфликт версий статуса, повтор",
			slog.String("document_id", documentID),
			slog.Int("attempt", attempt+1),
		)
	}
}

// remove удаляет статус документа под блокировкой. check получает текущий
// статус и может запретить удаление. Возвращает удалённый статус.
func (u *statusUpdater) remove(ctx context.Context, documentID string, check func(current *model.DocumentRetentionStatus) error) (*model.DocumentRetentionStatus, error) {
	unlock := u.locker.Lock(documentID)
	defer unlock()

	current, err := u.get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrStatusNotFound
	}
	if err := check(current); err != nil {
		return current, err
	}

	dctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()
	if err := u.repo.Delete(dctx, documentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("удаление статуса %s: %w", documentID, err)
	}
	return current, nil
}
