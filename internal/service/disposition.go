// disposition.go — исполнение disposition: проверка удержаний,
// согласование и финальное действие над документом.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/retention"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// DispositionOutcome — итог выполнения disposition.
type DispositionOutcome string

const (
	OutcomeDisposed        DispositionOutcome = "disposed"
	OutcomeArchived        DispositionOutcome = "archived"
	OutcomePendingReview   DispositionOutcome = "pending_review"
	OutcomePendingApproval DispositionOutcome = "pending_approval"
	// OutcomeSkipped — документ перестал подлежать disposition к моменту блокировки
	OutcomeSkipped DispositionOutcome = "skipped"
)

// DispositionRequest — параметры выполнения disposition.
type DispositionRequest struct {
	DocumentID string
	// Action — пусто: действие политики документа
	Action model.DispositionAction
	// Confirm — подтверждение оператора для документов, требующих согласования
	Confirm bool
	Actor   string
	// OnlyIfDue — выполнить, только если документ подлежит disposition
	// (проверка повторяется под блокировкой документа)
	OnlyIfDue bool
}

// DispositionResult — результат выполнения disposition.
type DispositionResult struct {
	Outcome DispositionOutcome
	MutationResult
}

// DispositionService — исполнитель disposition.
type DispositionService struct {
	policies *PolicyService
	updater  *statusUpdater
	audit    *AuditRecorder
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDispositionService создаёт исполнителя disposition.
func NewDispositionService(
	policies *PolicyService,
	statuses repository.StatusRepository,
	locker *DocumentLocker,
	audit *AuditRecorder,
	c clock.Clock,
	cfg EngineConfig,
	logger *slog.Logger,
) *DispositionService {
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "disposition_service"))
	return &DispositionService{
		policies: policies,
		updater:  newStatusUpdater(statuses, locker, cfg.ConflictRetries, cfg.StoreTimeout, logger),
		audit:    audit,
		clock:    c,
		logger:   logger,
	}
}

// ExecuteDisposition выполняет disposition документа.
//
// Порядок проверок: наличие статуса, удержания, конечные состояния,
// согласование. Документ, требующий согласования, сначала переводится
// в pending_approval; финальное действие выполняется повторным вызовом
// с Confirm.
func (s *DispositionService) ExecuteDisposition(ctx context.Context, req DispositionRequest) (*DispositionResult, error) {
	if req.Action != "" && !req.Action.IsValid() {
		return nil, opError("ExecuteDisposition",
			validationError("недопустимое действие %q", req.Action), withDocument(req.DocumentID))
	}

	var (
		outcome DispositionOutcome
		entry   *model.AuditLogEntry
	)
	st, changed, err := s.updater.mutate(ctx, req.DocumentID, func(current *model.DocumentRetentionStatus) (*model.DocumentRetentionStatus, error) {
		var next *model.DocumentRetentionStatus
		var err error
		next, outcome, entry, err = s.decide(ctx, current, req)
		return next, err
	})

	result := &DispositionResult{Outcome: outcome, MutationResult: MutationResult{Status: st, Changed: changed}}
	if err != nil {
		dispositionsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return result, opError("ExecuteDisposition", err, withDocument(req.DocumentID))
	}
	dispositionsTotal.WithLabelValues(string(outcome)).Inc()

	if changed && entry != nil {
		record(ctx, s.audit, s.logger, &result.MutationResult, entry)
		s.logger.Info("Disposition выполнен",
			slog.String("document_id", req.DocumentID),
			slog.String("outcome", string(outcome)),
			slog.String("actor", req.Actor),
		)
	}
	return result, nil
}

// decide вычисляет новое состояние документа. Вызывается под блокировкой.
func (s *DispositionService) decide(ctx context.Context, current *model.DocumentRetentionStatus, req DispositionRequest) (*model.DocumentRetentionStatus, DispositionOutcome, *model.AuditLogEntry, error) {
	if current == nil {
		return nil, "", nil, ErrDocumentNotFound
	}
	if current.IsHeld() {
		return nil, "", nil, heldError(current)
	}
	if current.CurrentStatus == model.StateDisposed {
		return nil, "", nil, ErrAlreadyDisposed
	}
	if req.OnlyIfDue && !current.IsDue(s.clock.Now()) {
		return nil, OutcomeSkipped, nil, nil
	}

	var policy *model.RetentionPolicy
	if current.PolicyID != nil {
		p, err := s.policies.GetPolicy(ctx, *current.PolicyID)
		if err != nil {
			return nil, "", nil, err
		}
		policy = p
	}

	action := req.Action
	if action == "" {
		if policy == nil && req.OnlyIfDue {
			// Статус создан удержанием: действие по сроку не определено
			return nil, OutcomeSkipped, nil, nil
		}
		if policy == nil {
			return nil, "", nil, validationError("у документа нет политики, действие должно быть указано явно")
		}
		action = policy.DispositionAction
	}

	prev := current.CurrentStatus
	archivedDelete := prev == model.StateArchived && action == model.DispositionDelete
	if prev == model.StateArchived && !archivedDelete {
		return nil, "", nil, fmt.Errorf("%w: документ в архиве, допустимо только уничтожение", ErrInvalidTransition)
	}

	gated := (policy != nil && policy.RequiresApproval) || prev == model.StatePendingApproval || archivedDelete
	if gated {
		if prev != model.StatePendingApproval {
			if err := retention.Transition(current, model.StatePendingApproval); err != nil {
				return nil, "", nil, transitionError(err)
			}
			e := newEntry(current.DocumentID, model.AuditStatusChanged, prev, model.StatePendingApproval,
				fmt.Sprintf("ожидает подтверждения: %s", action), req.Actor)
			return current, OutcomePendingApproval, e, nil
		}
		if !req.Confirm {
			return nil, "", nil, ErrApprovalRequired
		}
	}

	return s.execute(current, prev, action, req.Actor)
}

// execute выполняет действие над документом.
func (s *DispositionService) execute(current *model.DocumentRetentionStatus, prev model.RetentionState, action model.DispositionAction, actor string) (*model.DocumentRetentionStatus, DispositionOutcome, *model.AuditLogEntry, error) {
	switch action {
	case model.DispositionDelete:
		if err := retention.Transition(current, model.StateDisposed); err != nil {
			return nil, "", nil, transitionError(err)
		}
		cert := retention.NewCertificateNumber(s.clock.Now())
		current.CertificateNumber = &cert
		e := newEntry(current.DocumentID, model.AuditDisposed, prev, model.StateDisposed, "", actor)
		e.CertificateNumber = &cert
		return current, OutcomeDisposed, e, nil

	case model.DispositionArchive:
		if err := retention.Transition(current, model.StateArchived); err != nil {
			return nil, "", nil, transitionError(err)
		}
		return current, OutcomeArchived,
			newEntry(current.DocumentID, model.AuditArchived, prev, model.StateArchived, "", actor), nil

	default:
		// review и transfer завершаются ручным пересмотром
		if err := retention.Transition(current, model.StatePendingReview); err != nil {
			return nil, "", nil, transitionError(err)
		}
		return current, OutcomePendingReview,
			newEntry(current.DocumentID, model.AuditStatusChanged, prev, model.StatePendingReview, string(action), actor), nil
	}
}

// outcomeLabel — метка метрики для неуспешного disposition.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrBlockedByLegalHold):
		return "blocked_by_legal_hold"
	case errors.Is(err, ErrApprovalRequired):
		return "approval_required"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
