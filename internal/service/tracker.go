// tracker.go — учёт статусов хранения документов: применение политик,
// ручные переходы, продления, чтение статуса с производными полями.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/blobclient"
	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/retention"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// DocumentMetadataSource — источник метаданных документа (blob store).
type DocumentMetadataSource interface {
	GetDocument(ctx context.Context, documentID string) (*blobclient.DocumentMetadata, error)
}

// ApplyPolicyRequest — параметры применения политики к документу.
type ApplyPolicyRequest struct {
	DocumentID string
	PolicyID   string
	// CustomStart — дата начала для trigger_type = custom_date
	CustomStart *time.Time
	Actor       string
}

// TrackerService — учёт статусов хранения документов.
type TrackerService struct {
	policies *PolicyService
	statuses repository.StatusRepository
	updater  *statusUpdater
	audit    *AuditRecorder
	docs     DocumentMetadataSource
	clock    clock.Clock
	cfg      EngineConfig
	logger   *slog.Logger
}

// NewTrackerService создаёт сервис статусов. docs может быть nil:
// тогда дата начала срока — текущее время, AutoApply недоступен.
// Сервис регистрируется в policies для пересчёта сроков при изменении политик.
func NewTrackerService(
	policies *PolicyService,
	statuses repository.StatusRepository,
	locker *DocumentLocker,
	audit *AuditRecorder,
	docs DocumentMetadataSource,
	c clock.Clock,
	cfg EngineConfig,
	logger *slog.Logger,
) *TrackerService {
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "tracker_service"))
	s := &TrackerService{
		policies: policies,
		statuses: statuses,
		updater:  newStatusUpdater(statuses, locker, cfg.ConflictRetries, cfg.StoreTimeout, logger),
		audit:    audit,
		docs:     docs,
		clock:    c,
		cfg:      cfg,
		logger:   logger,
	}
	if policies != nil {
		policies.SetRecomputer(s)
	}
	return s
}

// activePolicy возвращает политику, пригодную для применения.
func (s *TrackerService) activePolicy(ctx context.Context, policyID string) (*model.RetentionPolicy, error) {
	p, err := s.policies.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, validationError("политика %s неактивна", policyID)
	}
	return p, nil
}

// ApplyPolicy применяет политику к документу.
//
// Новый статус получает дату начала по trigger_type политики из метаданных
// хранилища (при недоступности — текущее время). У существующего статуса
// дата окончания пересчитывается от прежней даты начала; продление,
// выданное исключением, сохраняется, если оно позже. Каждый успешный вызов
// создаёт запись policy_applied, в том числе без изменения статуса.
func (s *TrackerService) ApplyPolicy(ctx context.Context, req ApplyPolicyRequest) (MutationResult, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		return MutationResult{}, opError("ApplyPolicy", validationError("document_id обязателен"), withPolicy(req.PolicyID))
	}
	p, err := s.activePolicy(ctx, req.PolicyID)
	if err != nil {
		return MutationResult{}, opError("ApplyPolicy", err, withDocument(req.DocumentID), withPolicy(req.PolicyID))
	}
	res, err := s.applyPolicy(ctx, req.DocumentID, p, applyOptions{customStart: req.CustomStart, actor: req.Actor})
	if err != nil {
		return res, opError("ApplyPolicy", err, withDocument(req.DocumentID), withPolicy(req.PolicyID))
	}
	return res, nil
}

// ApplyPolicyBulk применяет политику к набору документов параллельно.
func (s *TrackerService) ApplyPolicyBulk(ctx context.Context, policyID string, documentIDs []string, actor string) (*BulkResult, error) {
	p, err := s.activePolicy(ctx, policyID)
	if err != nil {
		return nil, opError("ApplyPolicyBulk", err, withPolicy(policyID))
	}
	ids, err := uniqueDocumentIDs(documentIDs)
	if err != nil {
		return nil, opError("ApplyPolicyBulk", err, withPolicy(policyID))
	}

	result := forEachDocument(ctx, ids, s.cfg.Concurrency, func(ctx context.Context, documentID string) (MutationResult, error) {
		res, err := s.applyPolicy(ctx, documentID, p, applyOptions{actor: actor})
		return res, opError("ApplyPolicy", err, withDocument(documentID), withPolicy(policyID))
	})

	s.logger.Info("Политика применена к набору документов",
		slog.String("policy_id", policyID),
		slog.Int("documents", len(ids)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// AutoApply выбирает активную политику с наибольшим приоритетом,
// покрывающую категорию документа, и применяет её.
func (s *TrackerService) AutoApply(ctx context.Context, documentID, actor string) (*model.RetentionPolicy, MutationResult, error) {
	meta, err := s.fetchMetadata(ctx, documentID)
	if err != nil {
		return nil, MutationResult{}, opError("AutoApply", err, withDocument(documentID))
	}

	active, err := s.policies.ListActive(ctx)
	if err != nil {
		return nil, MutationResult{}, opError("AutoApply", err, withDocument(documentID))
	}
	var chosen *model.RetentionPolicy
	for _, p := range active {
		if p.AppliesToCategory(meta.Category) {
			chosen = p
			break
		}
	}
	if chosen == nil {
		return nil, MutationResult{}, opError("AutoApply",
			fmt.Errorf("%w: нет активной политики для категории %q", ErrPolicyNotFound, meta.Category),
			withDocument(documentID))
	}

	res, err := s.applyPolicy(ctx, documentID, chosen, applyOptions{meta: meta, actor: actor})
	if err != nil {
		return chosen, res, opError("AutoApply", err, withDocument(documentID), withPolicy(chosen.ID))
	}
	return chosen, res, nil
}

// fetchMetadata читает метаданные документа из хранилища.
func (s *TrackerService) fetchMetadata(ctx context.Context, documentID string) (*blobclient.DocumentMetadata, error) {
	if s.docs == nil {
		return nil, fmt.Errorf("%w: хранилище документов не настроено", ErrBlobStoreUnavailable)
	}
	meta, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, blobclient.ErrDocumentNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrBlobStoreUnavailable, err) //nolint:errorlint // намеренный двойной wrap
	}
	return meta, nil
}

// resolveStart определяет дату начала срока нового статуса.
func (s *TrackerService) resolveStart(ctx context.Context, documentID string, p *model.RetentionPolicy, customStart *time.Time, known *blobclient.DocumentMetadata) (time.Time, error) {
	now := s.clock.Now()
	if p.TriggerType == model.TriggerCustomDate {
		if customStart != nil {
			return customStart.UTC(), nil
		}
		return now, nil
	}

	if known == nil && s.docs != nil {
		m, err := s.fetchMetadata(ctx, documentID)
		switch {
		case errors.Is(err, ErrDocumentNotFound):
			return time.Time{}, err
		case err != nil:
			s.logger.Warn("Метаданные документа недоступны, срок отсчитывается от текущего времени",
				slog.String("document_id", documentID),
				slog.String("error", err.Error()),
			)
		default:
			known = m
		}
	}
	if ts := startFromMetadata(p.TriggerType, known); ts != nil {
		return ts.UTC(), nil
	}
	return now, nil
}

// startFromMetadata выбирает дату метаданных по типу триггера.
func startFromMetadata(trigger model.TriggerType, meta *blobclient.DocumentMetadata) *time.Time {
	if meta == nil {
		return nil
	}
	switch trigger {
	case model.TriggerCreationDate:
		return meta.CreatedAt
	case model.TriggerLastModified:
		return meta.ModifiedAt
	case model.TriggerLastAccessed:
		return meta.LastAccessedAt
	default:
		return nil
	}
}

// applyOptions — параметры применения политики к одному документу.
type applyOptions struct {
	customStart *time.Time
	meta        *blobclient.DocumentMetadata
	actor       string
	reason      string
	// onlyChanged — запись журнала только при изменении статуса
	onlyChanged bool
}

func (s *TrackerService) applyPolicy(ctx context.Context, documentID string, p *model.RetentionPolicy, opts applyOptions) (MutationResult, error) {
	// Дата начала нужна только новому статусу: метаданные читаются вне блокировки
	existing, err := s.updater.get(ctx, documentID)
	if err != nil {
		return MutationResult{}, err
	}
	var start time.Time
	if existing == nil {
		start, err = s.resolveStart(ctx, documentID, p, opts.customStart, opts.meta)
		if err != nil {
			return MutationResult{}, err
		}
	}

	var prev model.RetentionState
	st, changed, err := s.updater.mutate(ctx, documentID, func(current *model.DocumentRetentionStatus) (*model.DocumentRetentionStatus, error) {
		now := s.clock.Now()
		if current == nil {
			prev = ""
			if start.IsZero() {
				start = now
			}
			return &model.DocumentRetentionStatus{
				DocumentID:         documentID,
				PolicyID:           &p.ID,
				RetentionStartDate: start,
				RetentionEndDate:   retention.EndDate(start, p.RetentionPeriodDays),
				CurrentStatus:      model.StateActive,
			}, nil
		}

		prev = current.CurrentStatus
		if current.CurrentStatus == model.StateDisposed {
			return nil, fmt.Errorf("%w: документ уничтожен, политика не применяется", ErrInvalidTransition)
		}

		end := retention.EndDate(current.RetentionStartDate, p.RetentionPeriodDays)
		if current.ExceptionExtendedUntil != nil && current.ExceptionExtendedUntil.After(end) {
			end = *current.ExceptionExtendedUntil
		}
		samePolicy := current.PolicyID != nil && *current.PolicyID == p.ID
		endPassed := current.CurrentStatus == model.StateActive && !end.After(now)
		if samePolicy && current.RetentionEndDate.Equal(end) && !endPassed {
			return nil, nil
		}

		current.PolicyID = &p.ID
		current.RetentionEndDate = end
		if endPassed {
			if err := retention.Transition(current, model.StatePendingReview); err != nil {
				return nil, transitionError(err)
			}
		}
		return current, nil
	})
	res := MutationResult{Status: st, Changed: changed}
	if err != nil {
		return res, err
	}
	if !changed && opts.onlyChanged {
		return res, nil
	}

	reason := opts.reason
	if reason == "" {
		reason = fmt.Sprintf("политика %s (%d дн.)", p.Name, p.RetentionPeriodDays)
	}
	record(ctx, s.audit, s.logger, &res,
		newEntry(documentID, model.AuditPolicyApplied, prev, st.CurrentStatus, reason, opts.actor))
	if changed {
		s.logger.Info("Политика применена к документу",
			slog.String("document_id", documentID),
			slog.String("policy_id", p.ID),
			slog.Time("retention_end_date", st.RetentionEndDate),
			slog.String("status", string(st.CurrentStatus)),
		)
	}
	return res, nil
}

// RecomputePolicy пересчитывает даты окончания документов, использующих
// политику, после изменения её срока хранения. Уничтоженные документы
// не затрагиваются, запись журнала создаётся только для изменённых статусов.
func (s *TrackerService) RecomputePolicy(ctx context.Context, p *model.RetentionPolicy, actor string) (*BulkResult, error) {
	const pageSize = 500
	var ids []string
	for offset := 0; ; offset += pageSize {
		page, err := s.statuses.List(ctx, repository.StatusFilter{PolicyID: &p.ID}, pageSize, offset)
		if err != nil {
			return nil, opError("RecomputePolicy", err, withPolicy(p.ID))
		}
		for _, st := range page {
			if st.CurrentStatus != model.StateDisposed {
				ids = append(ids, st.DocumentID)
			}
		}
		if len(page) < pageSize {
			break
		}
	}
	if len(ids) == 0 {
		return &BulkResult{}, nil
	}

	reason := fmt.Sprintf("пересчёт по изменённой политике %s (%d дн.)", p.Name, p.RetentionPeriodDays)
	result := forEachDocument(ctx, ids, s.cfg.Concurrency, func(ctx context.Context, documentID string) (MutationResult, error) {
		res, err := s.applyPolicy(ctx, documentID, p, applyOptions{actor: actor, reason: reason, onlyChanged: true})
		return res, opError("RecomputePolicy", err, withDocument(documentID), withPolicy(p.ID))
	})

	s.logger.Info("Сроки документов пересчитаны по изменённой политике",
		slog.String("policy_id", p.ID),
		slog.Int("documents", len(ids)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// MarkForReview переводит active-документ в pending_review.
func (s *TrackerService) MarkForReview(ctx context.Context, documentID, reason, actor string) (MutationResult, error) {
	res, err := s.markFrom(ctx, documentID, model.StatePendingReview, reason, actor)
	return res, opError("MarkForReview", err, withDocument(documentID))
}

// MarkForApproval переводит active-документ в pending_approval.
func (s *TrackerService) MarkForApproval(ctx context.Context, documentID, reason, actor string) (MutationResult, error) {
	res, err := s.markFrom(ctx, documentID, model.StatePendingApproval, reason, actor)
	return res, opError("MarkForApproval", err, withDocument(documentID))
}

// markFrom выполняет ручной переход из active в состояние to.
func (s *TrackerService) markFrom(ctx context.Context, documentID string, to model.RetentionState, reason, actor string) (MutationResult, error) {
	st, changed, err := s.updater.mutate(ctx, documentID, func(current *model.DocumentRetentionStatus) (*model.DocumentRetentionStatus, error) {
		if current == nil {
			return nil, ErrStatusNotFound
		}
		if current.IsHeld() {
			return nil, heldError(current)
		}
		if current.CurrentStatus != model.StateActive {
			return nil, fmt.Errorf("%w: переход в %s возможен только из active, текущее состояние %s",
				ErrInvalidTransition, to, current.CurrentStatus)
		}
		if err := retention.Transition(current, to); err != nil {
			return nil, transitionError(err)
		}
		return current, nil
	})
	res := MutationResult{Status: st, Changed: changed}
	if err != nil {
		return res, err
	}
	record(ctx, s.audit, s.logger, &res,
		newEntry(documentID, model.AuditStatusChanged, model.StateActive, to, strings.TrimSpace(reason), actor))
	return res, nil
}

// GrantException продлевает срок хранения документа на extensionDays дней.
// Состояние документа не меняется.
func (s *TrackerService) GrantException(ctx context.Context, documentID, reason string, extensionDays int, actor string) (MutationResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return MutationResult{}, opError("GrantException", validationError("причина исключения обязательна"), withDocument(documentID))
	}
	if extensionDays < 1 {
		return MutationResult{}, opError("GrantException",
			validationError("extension_days должно быть >= 1, получено %d", extensionDays), withDocument(documentID))
	}

	st, changed, err := s.updater.mutate(ctx, documentID, func(current *model.DocumentRetentionStatus) (*model.DocumentRetentionStatus, error) {
		if current == nil {
			return nil, ErrStatusNotFound
		}
		if current.CurrentStatus == model.StateDisposed {
			return nil, fmt.Errorf("%w: документ уничтожен", ErrInvalidTransition)
		}
		end := current.RetentionEndDate.AddDate(0, 0, extensionDays)
		current.RetentionEndDate = end
		current.ExceptionExtendedUntil = &end
		current.ExceptionReason = &reason
		return current, nil
	})
	res := MutationResult{Status: st, Changed: changed}
	if err != nil {
		return res, opError("GrantException", err, withDocument(documentID))
	}
	record(ctx, s.audit, s.logger, &res,
		newEntry(documentID, model.AuditExceptionGranted, st.CurrentStatus, st.CurrentStatus,
			fmt.Sprintf("%s (+%d дн.)", reason, extensionDays), actor))

	s.logger.Info("Срок хранения продлён",
		slog.String("document_id", documentID),
		slog.Int("extension_days", extensionDays),
		slog.Time("retention_end_date", st.RetentionEndDate),
		slog.String("actor", actor),
	)
	return res, nil
}

// GetStatus возвращает статус документа с производными полями.
func (s *TrackerService) GetStatus(ctx context.Context, documentID string) (*model.RetentionStatusView, error) {
	st, err := s.updater.get(ctx, documentID)
	if err != nil {
		return nil, opError("GetStatus", err, withDocument(documentID))
	}
	if st == nil {
		return nil, opError("GetStatus", ErrStatusNotFound, withDocument(documentID))
	}
	return s.view(ctx, st), nil
}

// view вычисляет производные поля статуса на текущий момент.
func (s *TrackerService) view(ctx context.Context, st *model.DocumentRetentionStatus) *model.RetentionStatusView {
	now := s.clock.Now()
	v := &model.RetentionStatusView{
		DocumentRetentionStatus: st,
		DaysRemaining:           st.DaysRemaining(now),
		IsDue:                   st.IsDue(now),
	}
	if st.PolicyID != nil {
		p, err := s.policies.GetPolicy(ctx, *st.PolicyID)
		if err == nil {
			v.IsExpiringSoon = retention.InNotificationWindow(st, p.NotificationDaysBefore, now)
		}
	}
	return v
}

// ListUpcoming возвращает active-документы, вошедшие в окно уведомления
// своей политики (ближайшие сроки первыми).
func (s *TrackerService) ListUpcoming(ctx context.Context, limit, offset int) ([]*model.RetentionStatusView, error) {
	items, err := s.statuses.ListUpcoming(ctx, s.clock.Now(), limit, offset)
	if err != nil {
		return nil, opError("ListUpcoming", err)
	}
	views := make([]*model.RetentionStatusView, 0, len(items))
	for _, st := range items {
		views = append(views, s.view(ctx, st))
	}
	return views, nil
}

// PurgeStatus удаляет статус документа (административная очистка).
// Документ под удержанием не удаляется.
func (s *TrackerService) PurgeStatus(ctx context.Context, documentID, actor string) (MutationResult, error) {
	st, err := s.updater.remove(ctx, documentID, func(current *model.DocumentRetentionStatus) error {
		if current.IsHeld() {
			return heldError(current)
		}
		return nil
	})
	if err != nil {
		return MutationResult{}, opError("PurgeStatus", err, withDocument(documentID))
	}

	res := MutationResult{Status: st, Changed: true}
	record(ctx, s.audit, s.logger, &res,
		newEntry(documentID, model.AuditStatusChanged, st.CurrentStatus, "", "purged", actor))

	s.logger.Warn("Статус хранения документа удалён",
		slog.String("document_id", documentID),
		slog.String("previous_status", string(st.CurrentStatus)),
		slog.String("actor", actor),
	)
	return res, nil
}
