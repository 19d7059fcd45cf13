// engine.go — общие части сервисов движка хранения: конфигурация,
// результат изменения статуса, преобразование ошибок переходов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/retention"
)

// SystemActor — инициатор действий, выполняемых планировщиком.
const SystemActor = "system:scheduler"

// EngineConfig — общие параметры сервисов движка хранения.
type EngineConfig struct {
	// StoreTimeout — таймаут одного обращения к хранилищу статусов
	StoreTimeout time.Duration
	// ConflictRetries — повторы при конфликте версий статуса
	ConflictRetries int
	// DefaultHoldWindowDays — срок хранения документа, впервые попавшего
	// в систему через удержание
	DefaultHoldWindowDays int
	// Concurrency — количество документов, обрабатываемых параллельно
	Concurrency int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.ConflictRetries < 0 {
		c.ConflictRetries = 0
	}
	if c.DefaultHoldWindowDays <= 0 {
		c.DefaultHoldWindowDays = 365
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	return c
}

// MutationResult — результат изменения статуса одного документа.
type MutationResult struct {
	// Status — статус после операции
	Status *model.DocumentRetentionStatus
	// Changed — запись изменена
	Changed bool
	// AuditEntryIDs — записи журнала, созданные операцией
	AuditEntryIDs []string
	// AuditPending — сколько из них ожидают повторной записи
	AuditPending int
}

// transitionError преобразует ошибку перехода домена в ошибку сервиса.
func transitionError(err error) error {
	var te *retention.TransitionError
	if !errors.As(err, &te) {
		return err
	}
	if te.Code == retention.CodeHeld {
		return fmt.Errorf("%w: %s", ErrBlockedByLegalHold, te.Message)
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, te.Message)
}

// heldError — ошибка для документа под удержанием.
func heldError(st *model.DocumentRetentionStatus) error {
	return fmt.Errorf("%w: удержания %v", ErrBlockedByLegalHold, st.LegalHoldIDs)
}

// record записывает журнал изменения и заполняет результат.
// Ошибка записи журнала не отменяет изменение статуса.
func record(ctx context.Context, audit *AuditRecorder, logger *slog.Logger, res *MutationResult, entries ...*model.AuditLogEntry) {
	if len(entries) == 0 {
		return
	}
	res.AuditEntryIDs, res.AuditPending = audit.recordAll(ctx, entries)
	if res.AuditPending > 0 {
		logger.Warn("Изменение статуса сохранено, запись журнала отложена",
			slog.String("document_id", entries[0].DocumentID),
			slog.Int("pending", res.AuditPending),
		)
	}
}
