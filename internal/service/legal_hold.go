// legal_hold.go — реестр юридических удержаний.
// Удержание блокирует disposition документа независимо от политики
// до явного снятия с указанием причины.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/retention"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// holdDocumentsPageSize — размер страницы при переборе документов удержания.
const holdDocumentsPageSize = 500

// HoldSpec — параметры создания удержания.
type HoldSpec struct {
	Name           string  `validate:"required,max=255"`
	HoldReason     string  `validate:"required,max=4000"`
	MatterID       *string `validate:"omitempty,max=255"`
	CustodianName  *string `validate:"omitempty,max=255"`
	CustodianEmail *string `validate:"omitempty,email"`
	// StartDate — по умолчанию текущее время
	StartDate *time.Time
	EndDate   *time.Time
}

// ReleaseResult — результат снятия удержания.
type ReleaseResult struct {
	Hold      *model.LegalHold
	Documents *BulkResult
}

// LegalHoldService — реестр удержаний и их применение к документам.
type LegalHoldService struct {
	holds    repository.LegalHoldRepository
	statuses repository.StatusRepository
	updater  *statusUpdater
	audit    *AuditRecorder
	validate *validator.Validate
	clock    clock.Clock
	cfg      EngineConfig
	logger   *slog.Logger
}

// NewLegalHoldService создаёт сервис удержаний.
// locker должен быть общим для всех сервисов, изменяющих статусы.
func NewLegalHoldService(
	holds repository.LegalHoldRepository,
	statuses repository.StatusRepository,
	locker *DocumentLocker,
	audit *AuditRecorder,
	c clock.Clock,
	cfg EngineConfig,
	logger *slog.Logger,
) *LegalHoldService {
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "legal_hold_service"))
	return &LegalHoldService{
		holds:    holds,
		statuses: statuses,
		updater:  newStatusUpdater(statuses, locker, cfg.ConflictRetries, cfg.StoreTimeout, logger),
		audit:    audit,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    c,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateHold создаёт удержание в статусе active.
func (s *LegalHoldService) CreateHold(ctx context.Context, spec HoldSpec, actor string) (*model.LegalHold, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.HoldReason = strings.TrimSpace(spec.HoldReason)
	if err := s.validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, opError("CreateHold", validationError("%s: нарушено правило %s", verrs[0].Field(), verrs[0].Tag()))
		}
		return nil, opError("CreateHold", validationError("%v", err))
	}

	start := s.clock.Now()
	if spec.StartDate != nil {
		start = spec.StartDate.UTC()
	}
	if spec.EndDate != nil && !spec.EndDate.After(start) {
		return nil, opError("CreateHold", validationError("end_date должна быть позже start_date"))
	}

	h := &model.LegalHold{
		ID:             uuid.New().String(),
		Name:           spec.Name,
		HoldReason:     spec.HoldReason,
		MatterID:       spec.MatterID,
		CustodianName:  spec.CustodianName,
		CustodianEmail: spec.CustodianEmail,
		StartDate:      start,
		EndDate:        spec.EndDate,
		Status:         model.HoldActive,
		CreatedBy:      actor,
	}
	if err := s.holds.Create(ctx, h); err != nil {
		return nil, opError("CreateHold", fmt.Errorf("сохранение удержания: %w", err), withHold(h.ID))
	}

	s.logger.Info("Юридическое удержание создано",
		slog.String("hold_id", h.ID),
		slog.String("name", h.Name),
		slog.String("created_by", actor),
	)
	return h, nil
}

// GetHold возвращает удержание по id.
func (s *LegalHoldService) GetHold(ctx context.Context, id string) (*model.LegalHold, error) {
	h, err := s.holds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, opError("GetHold", ErrHoldNotFound, withHold(id))
		}
		return nil, opError("GetHold", err, withHold(id))
	}
	return h, nil
}

// ListHolds возвращает страницу удержаний и общее количество.
func (s *LegalHoldService) ListHolds(ctx context.Context, status *model.HoldStatus, limit, offset int) ([]*model.LegalHold, int, error) {
	items, err := s.holds.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, opError("ListHolds", err)
	}
	total, err := s.holds.Count(ctx, status)
	if err != nil {
		return nil, 0, opError("ListHolds", err)
	}
	return items, total, nil
}

// ApplyHoldToDocuments накладывает удержание на документы.
// Документ без статуса получает статус с окном хранения по умолчанию.
// Повторное наложение того же удержания — no-op без записи журнала.
func (s *LegalHoldService) ApplyHoldToDocuments(ctx context.Context, holdID string, documentIDs []string, actor string) (*BulkResult, error) {
	h, err := s.GetHold(ctx, holdID)
	if err != nil {
		return nil, opError("ApplyHoldToDocuments", err, withHold(holdID))
	}
	if !h.IsBlocking() {
		return nil, opError("ApplyHoldToDocuments", ErrHoldReleased, withHold(holdID))
	}
	ids, err := uniqueDocumentIDs(documentIDs)
	if err != nil {
		return nil, opError("ApplyHoldToDocuments", err, withHold(holdID))
	}

	result := forEachDocument(ctx, ids, s.cfg.Concurrency, func(ctx context.Context, documentID string) (MutationResult, error) {
		return s.applyHold(ctx, h, documentID, actor)
	})

	s.logger.Info("Удержание наложено на документы",
		slog.String("hold_id", holdID),
		slog.Int("documents", len(ids)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.String("actor", actor),
	)
	return result, nil
}

func (s *LegalHoldService) applyHold(ctx context.Context, h *model.LegalHold, documentID, actor string) (MutationResult, error) {
	var prev model.RetentionState
	st, changed, err := s.updater.mutate(ctx, documentID, func(current *model.DocumentRetentionStatus) (*model.DocumentRetentionStatus, error) {
		prev = ""
		if current == nil {
			now := s.clock.Now()
			current = &model.DocumentRetentionStatus{
				DocumentID:         documentID,
				RetentionStartDate: now,
				RetentionEndDate:   retention.EndDate(now, s.cfg.DefaultHoldWindowDays),
				CurrentStatus:      model.StateActive,
			}
		} else {
			prev = current.CurrentStatus
		}
		if !retention.ApplyHold(current, h.ID) {
			return nil, nil
		}
		return current, nil
	})
	res := MutationResult{Status: st, Changed: changed}
	if err != nil {
		return res, opError("ApplyHold", err, withDocument(documentID), withHold(h.ID))
	}
	if changed {
		record(ctx, s.audit, s.logger, &res,
			newEntry(documentID, model.AuditLegalHoldApplied, prev, st.CurrentStatus,
				fmt.Sprintf("удержание %s: %s", h.Name, h.HoldReason), actor))
	}
	return res, nil
}

// ReleaseHold снимает удержание со всех документов.
// Для уже снятого удержания, на которое ещё ссылаются документы,
// снятие завершается с документов без повторного изменения удержания.
func (s *LegalHoldService) ReleaseHold(ctx context.Context, holdID, reason, actor string) (*ReleaseResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, opError("ReleaseHold", ErrInvalidRelease, withHold(holdID))
	}

	h, err := s.GetHold(ctx, holdID)
	if err != nil {
		return nil, opError("ReleaseHold", err, withHold(holdID))
	}

	// Документы собираются до изменений: снятие удержания меняет выборку
	ids, err := s.holdDocumentIDs(ctx, holdID)
	if err != nil {
		return nil, opError("ReleaseHold", err, withHold(holdID))
	}

	if h.Status == model.HoldReleased {
		if len(ids) == 0 {
			return nil, opError("ReleaseHold", ErrHoldReleased, withHold(holdID))
		}
		s.logger.Warn("Удержание уже снято, завершение снятия с документов",
			slog.String("hold_id", holdID),
			slog.Int("documents", len(ids)),
		)
	} else {
		now := s.clock.Now()
		h.Status = model.HoldReleased
		h.ReleaseReason = &reason
		h.ReleasedAt = &now
		h.ReleasedBy = &actor
		if err := s.holds.Update(ctx, h); err != nil {
			return nil, opError("ReleaseHold", fmt.Errorf("обновление удержания: %w", err), withHold(holdID))
		}
	}

	result := &BulkResult{}
	if len(ids) > 0 {
		result = forEachDocument(ctx, ids, s.cfg.Concurrency, func(ctx context.Context, documentID string) (MutationResult, error) {
			return s.releaseDocument(ctx, holdID, documentID, reason, actor)
		})
	}

	s.logger.Info("Юридическое удержание снято",
		slog.String("hold_id", holdID),
		slog.Int("documents", len(ids)),
		slog.Int("failed", result.Failed),
		slog.String("released_by", actor),
	)
	return &ReleaseResult{Hold: h, Documents: result}, nil
}

func (s *LegalHoldService) releaseDocument(ctx context.Context, holdID, documentID, reason, actor string) (MutationResult, error) {
	var prev model.RetentionState
	st, changed, err := s.updater.mutate(ctx, documentID, func(current *model.DocumentRetentionStatus) (*model.DocumentRetentionStatus, error) {
		if current == nil {
			return nil, nil
		}
		prev = current.CurrentStatus
		if !retention.ReleaseHold(current, holdID, s.clock.Now()) {
			return nil, nil
		}
		return current, nil
	})
	res := MutationResult{Status: st, Changed: changed}
	if err != nil {
		return res, opError("ReleaseHold", err, withDocument(documentID), withHold(holdID))
	}
	if changed {
		record(ctx, s.audit, s.logger, &res,
			newEntry(documentID, model.AuditLegalHoldReleased, prev, st.CurrentStatus, reason, actor))
	}
	return res, nil
}

// holdDocumentIDs возвращает все документы, на которые наложено удержание.
func (s *LegalHoldService) holdDocumentIDs(ctx context.Context, holdID string) ([]string, error) {
	filter := repository.StatusFilter{HoldID: &holdID}
	var ids []string
	for offset := 0; ; offset += holdDocumentsPageSize {
		page, err := s.statuses.List(ctx, filter, holdDocumentsPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("список документов удержания: %w", err)
		}
		for _, st := range page {
			ids = append(ids, st.DocumentID)
		}
		if len(page) < holdDocumentsPageSize {
			return ids, nil
		}
	}
}

// CountDocuments возвращает количество документов под удержанием.
func (s *LegalHoldService) CountDocuments(ctx context.Context, holdID string) (int, error) {
	if _, err := s.GetHold(ctx, holdID); err != nil {
		return 0, opError("CountDocuments", err, withHold(holdID))
	}
	n, err := s.statuses.Count(ctx, repository.StatusFilter{HoldID: &holdID})
	if err != nil {
		return 0, opError("CountDocuments", err, withHold(holdID))
	}
	return n, nil
}

// ListHoldDocuments возвращает страницу статусов документов под удержанием
// и их общее количество.
func (s *LegalHoldService) ListHoldDocuments(ctx context.Context, holdID string, limit, offset int) ([]*model.DocumentRetentionStatus, int, error) {
	total, err := s.CountDocuments(ctx, holdID)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.statuses.List(ctx, repository.StatusFilter{HoldID: &holdID}, limit, offset)
	if err != nil {
		return nil, 0, opError("ListHoldDocuments", err, withHold(holdID))
	}
	return items, total, nil
}

// ExpireHolds переводит в expired активные удержания с прошедшей end_date.
// Документы остаются заблокированными до явного снятия.
func (s *LegalHoldService) ExpireHolds(ctx context.Context) (int, error) {
	now := s.clock.Now()
	holds, err := s.holds.ListExpiring(ctx, now)
	if err != nil {
		return 0, opError("ExpireHolds", err)
	}

	expired := 0
	for _, h := range holds {
		h.Status = model.HoldExpired
		if err := s.holds.Update(ctx, h); err != nil {
			s.logger.Error("Ошибка перевода удержания в expired",
				slog.String("hold_id", h.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		expired++
		s.logger.Warn("Плановая дата удержания прошла, требуется явное снятие",
			slog.String("hold_id", h.ID),
			slog.String("name", h.Name),
		)
	}
	holdsExpiredTotal.Add(float64(expired))
	return expired, nil
}
