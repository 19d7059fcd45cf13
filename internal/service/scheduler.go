// scheduler.go — плановое сканирование сроков хранения.
//
// По расписанию cron (RM_SCAN_SCHEDULE) выбирает документы с истёкшим
// сроком, выполняет для каждого disposition по действию политики, переводит
// удержания с прошедшей плановой датой в expired и обновляет счётчик
// документов в окне уведомления. Пересекающиеся запуски пропускаются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

// ErrScanInProgress — сканирование уже выполняется.
var ErrScanInProgress = errors.New("сканирование уже выполняется")

// SchedulerConfig — параметры планировщика.
type SchedulerConfig struct {
	// Schedule — расписание в формате cron (включая дескрипторы @every, @hourly)
	Schedule string
	// BatchSize — размер страницы выборки документов с истёкшим сроком
	BatchSize int
	// Concurrency — параллельно обрабатываемые документы
	Concurrency int
}

// ScanResult — итог одного сканирования.
type ScanResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	// Processed — документы, состояние которых изменено
	Processed []string
	// Outcomes — количество документов по итогу disposition
	Outcomes map[DispositionOutcome]int
	// Failures — ошибки по документам
	Failures map[string]string
	// HoldsExpired — удержания, переведённые в expired
	HoldsExpired int
	// Upcoming — документы в окне уведомления
	Upcoming int
}

// SchedulerService — планировщик сканирования.
type SchedulerService struct {
	statuses    repository.StatusRepository
	disposition *DispositionService
	holds       *LegalHoldService
	clock       clock.Clock
	cfg         SchedulerConfig
	logger      *slog.Logger

	cron    *cron.Cron
	running atomic.Bool
	cancel  context.CancelFunc

	mu   sync.Mutex
	last *ScanResult
}

// NewSchedulerService создаёт планировщик.
func NewSchedulerService(
	statuses repository.StatusRepository,
	disposition *DispositionService,
	holds *LegalHoldService,
	c clock.Clock,
	cfg SchedulerConfig,
	logger *slog.Logger,
) *SchedulerService {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 15m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &SchedulerService{
		statuses:    statuses,
		disposition: disposition,
		holds:       holds,
		clock:       c,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "scheduler")),
	}
}

// Start регистрирует задачу сканирования и запускает cron.
func (s *SchedulerService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		_, err := s.Scan(ctx)
		switch {
		case errors.Is(err, ErrScanInProgress):
			s.logger.Warn("Предыдущее сканирование не завершено, запуск пропущен")
		case err != nil:
			s.logger.Error("Ошибка планового сканирования", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		s.cancel()
		return fmt.Errorf("регистрация расписания %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Планировщик запущен",
		slog.String("schedule", s.cfg.Schedule),
		slog.Int("batch_size", s.cfg.BatchSize),
		slog.Int("concurrency", s.cfg.Concurrency),
	)
	return nil
}

// Stop отменяет текущее сканирование и дожидается его завершения.
// Обработанные документы остаются в новом состоянии.
func (s *SchedulerService) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Планировщик остановлен")
}

// LastResult возвращает итог последнего завершённого сканирования.
func (s *SchedulerService) LastResult() *ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Scan выполняет одно сканирование. ErrScanInProgress — сканирование
// уже идёт (плановое или ручное).
func (s *SchedulerService) Scan(ctx context.Context) (*ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.running.Store(false)

	res := &ScanResult{
		StartedAt: s.clock.Now(),
		Outcomes:  make(map[DispositionOutcome]int),
		Failures:  make(map[string]string),
	}
	s.logger.Info("Сканирование сроков хранения начато")

	err := s.scan(ctx, res)
	res.FinishedAt = s.clock.Now()

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	scanDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	if err != nil {
		scanRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Сканирование прервано",
			slog.Int("processed", len(res.Processed)),
			slog.String("error", err.Error()),
		)
		return res, err
	}
	scanRunsTotal.WithLabelValues("success").Inc()

	s.logger.Info("Сканирование сроков хранения завершено",
		slog.Int("processed", len(res.Processed)),
		slog.Int("failed", len(res.Failures)),
		slog.Int("holds_expired", res.HoldsExpired),
		slog.Int("upcoming", res.Upcoming),
		slog.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (s *SchedulerService) scan(ctx context.Context, res *ScanResult) error {
	if err := s.disposeDue(ctx, res); err != nil {
		return err
	}

	expired, err := s.holds.ExpireHolds(ctx)
	if err != nil {
		return err
	}
	res.HoldsExpired = expired

	upcoming, err := s.countUpcoming(ctx)
	if err != nil {
		return err
	}
	res.Upcoming = upcoming
	upcomingDocuments.Set(float64(upcoming))
	return nil
}

// disposeDue обрабатывает документы с истёкшим сроком постранично.
// Каждый документ перепроверяется под блокировкой (OnlyIfDue), поэтому
// повторная обработка безопасна.
func (s *SchedulerService) disposeDue(ctx context.Context, res *ScanResult) error {
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.statuses.ListDue(ctx, s.clock.Now(), afterID, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("выборка документов с истёкшим сроком: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		ids := make([]string, len(page))
		index := make(map[string]int, len(page))
		outcomes := make([]DispositionOutcome, len(page))
		for i, st := range page {
			ids[i] = st.DocumentID
			index[st.DocumentID] = i
		}

		batch := forEachDocument(ctx, ids, s.cfg.Concurrency, func(ctx context.Context, documentID string) (MutationResult, error) {
			r, err := s.disposition.ExecuteDisposition(ctx, DispositionRequest{
				DocumentID: documentID,
				Actor:      SystemActor,
				OnlyIfDue:  true,
			})
			if r == nil {
				return MutationResult{}, err
			}
			outcomes[index[documentID]] = r.Outcome
			return r.MutationResult, err
		})

		for i, r := range batch.Results {
			if r.Err != nil {
				res.Failures[r.DocumentID] = r.Err.Error()
				continue
			}
			res.Outcomes[outcomes[i]]++
			if r.Changed {
				res.Processed = append(res.Processed, r.DocumentID)
			}
		}

		afterID = ids[len(ids)-1]
		if len(page) < s.cfg.BatchSize {
			return nil
		}
	}
}

// countUpcoming считает документы в окне уведомления.
func (s *SchedulerService) countUpcoming(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0
	for offset := 0; ; offset += s.cfg.BatchSize {
		page, err := s.statuses.ListUpcoming(ctx, now, s.cfg.BatchSize, offset)
		if err != nil {
			return 0, fmt.Errorf("выборка документов в окне уведомления: %w", err)
		}
		total += len(page)
		if len(page) < s.cfg.BatchSize {
			return total, nil
		}
	}
}
