// audit.go — запись и чтение журнала disposition.
//
// Запись в журнал выполняется после фиксации изменения статуса. Если
// вставка не удалась, изменение статуса не откатывается: запись ставится
// в очередь повтора с экспоненциальной задержкой, вызывающий получает
// ErrAuditWriteFailed.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// auditPageSize — размер страницы при ленивом чтении журнала.
const auditPageSize = 200

// AuditConfig — параметры AuditRecorder.
type AuditConfig struct {
	// Timeout — таймаут одной вставки
	Timeout time.Duration
	// RetryInterval — базовая задержка повтора (удваивается на каждой попытке)
	RetryInterval time.Duration
	// MaxRetryInterval — верхняя граница задержки
	MaxRetryInterval time.Duration
	// MaxAttempts — максимальное количество попыток записи
	MaxAttempts int
	// QueueSize — ёмкость очереди повтора
	QueueSize int
}

// pendingEntry — запись в очереди повтора.
type pendingEntry struct {
	entry    *model.AuditLogEntry
	attempts int
	nextAt   time.Time
}

// AuditRecorder — журнал disposition с очередью повторной записи.
type AuditRecorder struct {
	repo   repository.AuditLogRepository
	clock  clock.Clock
	cfg    AuditConfig
	logger *slog.Logger

	mu    sync.Mutex
	queue []*pendingEntry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAuditRecorder создаёт AuditRecorder.
func NewAuditRecorder(repo repository.AuditLogRepository, c clock.Clock, cfg AuditConfig, logger *slog.Logger) *AuditRecorder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.MaxRetryInterval <= 0 {
		cfg.MaxRetryInterval = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &AuditRecorder{
		repo:   repo,
		clock:  c,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "audit_recorder")),
	}
}

// Append записывает запись в журнал. ID и CreatedAt заполняются, если пусты.
// Возвращает ID записи. При ошибке вставки запись ставится в очередь повтора,
// а возвращается ErrAuditWriteFailed вместе с ID.
func (r *AuditRecorder) Append(ctx context.Context, entry *model.AuditLogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	if !entry.Action.IsValid() {
		return "", validationError("недопустимое действие журнала %q", entry.Action)
	}

	// Запись журнала не должна отменяться вместе с запросом: изменение уже зафиксировано
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	err := r.repo.Insert(insertCtx, entry)
	if err == nil {
		return entry.ID, nil
	}

	auditWriteFailuresTotal.Inc()
	r.logger.Error("Ошибка записи в журнал, запись поставлена в очередь повтора",
		slog.String("entry_id", entry.ID),
		slog.String("document_id", entry.DocumentID),
		slog.String("action", string(entry.Action)),
		slog.String("error", err.Error()),
	)
	r.enqueue(entry, 1)
	return entry.ID, fmt.Errorf("%w: %w", ErrAuditWriteFailed, err) //nolint:errorlint // намеренный двойной wrap
}

// enqueue добавляет запись в очередь повтора. При переполнении запись отбрасывается.
func (r *AuditRecorder) enqueue(entry *model.AuditLogEntry, attempts int) {
	r.mu.Lock()
	if len(r.queue) >= r.cfg.QueueSize {
		r.mu.Unlock()
		auditDroppedTotal.Inc()
		r.logger.Error("Очередь повтора журнала переполнена, запись отброшена",
			slog.String("entry_id", entry.ID),
			slog.String("document_id", entry.DocumentID),
			slog.String("action", string(entry.Action)),
		)
		return
	}
	r.queue = append(r.queue, &pendingEntry{
		entry:    entry,
		attempts: attempts,
		nextAt:   r.clock.Now().Add(r.backoff(attempts)),
	})
	auditRetryQueueLength.Set(float64(len(r.queue)))
	r.mu.Unlock()
}

// backoff возвращает задержку перед попыткой номер attempts+1.
func (r *AuditRecorder) backoff(attempts int) time.Duration {
	d := r.cfg.RetryInterval
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= r.cfg.MaxRetryInterval {
			return r.cfg.MaxRetryInterval
		}
	}
	return d
}

// QueueLen возвращает длину очереди повтора.
func (r *AuditRecorder) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Start запускает фоновую обработку очереди повтора.
func (r *AuditRecorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.cfg.RetryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RetryPending(ctx, false)
			}
		}
	}()

	r.logger.Info("Очередь повтора журнала запущена",
		slog.Duration("retry_interval", r.cfg.RetryInterval),
		slog.Int("max_attempts", r.cfg.MaxAttempts),
	)
}

// Stop останавливает обработку и делает последнюю попытку записать очередь.
func (r *AuditRecorder) Stop(ctx context.Context) {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.RetryPending(ctx, true)
	if n := r.QueueLen(); n > 0 {
		r.logger.Error("Записи журнала не сохранены при остановке",
			slog.Int("pending", n),
		)
	}
}

// RetryPending повторяет запись элементов очереди, срок которых наступил.
// force — повторить все элементы независимо от задержки.
// Возвращает количество успешно записанных элементов.
func (r *AuditRecorder) RetryPending(ctx context.Context, force bool) int {
	now := r.clock.Now()

	r.mu.Lock()
	var due, rest []*pendingEntry
	for _, p := range r.queue {
		if force || !p.nextAt.After(now) {
			due = append(due, p)
		} else {
			rest = append(rest, p)
		}
	}
	r.queue = rest
	r.mu.Unlock()

	written := 0
	for _, p := range due {
		insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
		err := r.repo.Insert(insertCtx, p.entry)
		cancel()

		if err == nil {
			written++
			r.logger.Info("Запись журнала сохранена после повтора",
				slog.String("entry_id", p.entry.ID),
				slog.Int("attempts", p.attempts+1),
			)
			continue
		}

		auditWriteFailuresTotal.Inc()
		if p.attempts+1 >= r.cfg.MaxAttempts {
			auditDroppedTotal.Inc()
			r.logger.Error("Запись журнала отброшена после исчерпания попыток",
				slog.String("entry_id", p.entry.ID),
				slog.String("document_id", p.entry.DocumentID),
				slog.String("action", string(p.entry.Action)),
				slog.Int("attempts", p.attempts+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.enqueue(p.entry, p.attempts+1)
	}

	r.mu.Lock()
	auditRetryQueueLength.Set(float64(len(r.queue)))
	r.mu.Unlock()
	return written
}

// Query возвращает ленивую конечную последовательность записей журнала,
// от новых к старым. Страницы читаются по мере итерации; повторный вызов
// итератора начинает чтение заново.
func (r *AuditRecorder) Query(ctx context.Context, filter model.AuditFilter) iter.Seq2[*model.AuditLogEntry, error] {
	return func(yield func(*model.AuditLogEntry, error) bool) {
		var cursor *repository.AuditCursor
		for {
			page, err := r.repo.List(ctx, filter, cursor, auditPageSize)
			if err != nil {
				yield(nil, fmt.Errorf("чтение журнала: %w", err))
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < auditPageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &repository.AuditCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	}
}

// recordAll записывает набор записей журнала и возвращает их ID.
// Ошибки записи не прерывают цикл: возвращается количество записей,
// поставленных в очередь повтора.
func (r *AuditRecorder) recordAll(ctx context.Context, entries []*model.AuditLogEntry) (ids []string, pending int) {
	for _, e := range entries {
		id, err := r.Append(ctx, e)
		if err != nil {
			if !errors.Is(err, ErrAuditWriteFailed) {
				r.logger.Error("Некорректная запись журнала",
					slog.String("document_id", e.DocumentID),
					slog.String("error", err.Error()),
				)
				continue
			}
			pending++
		}
		ids = append(ids, id)
	}
	return ids, pending
}

// newEntry создаёт запись журнала о переходе prev → next.
// Пустые состояния и причина не заполняются.
func newEntry(documentID string, action model.AuditAction, prev, next model.RetentionState, reason, actor string) *model.AuditLogEntry {
	e := &model.AuditLogEntry{
		DocumentID: documentID,
		Action:     action,
		ActionBy:   actor,
	}
	if prev != "" {
		e.PreviousStatus = &prev
	}
	if next != "" {
		e.NewStatus = &next
	}
	if reason != "" {
		e.Reason = &reason
	}
	return e
}
