// Точка входа Retention Module — движок сроков хранения и юридических удержаний.
// Загружает конфигурацию, подключает хранилище статусов (PostgreSQL или память),
// создаёт сервисный слой и API handlers, запускает планировщик disposition,
// topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/retention-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/retention-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/retention-module/internal/api/openapi"
	"github.com/bigkaa/goartstore/retention-module/internal/blobclient"
	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/config"
	"github.com/bigkaa/goartstore/retention-module/internal/database"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/rbac"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
	"github.com/bigkaa/goartstore/retention-module/internal/repository/memory"
	"github.com/bigkaa/goartstore/retention-module/internal/server"
	"github.com/bigkaa/goartstore/retention-module/internal/service"
)

// stores — репозитории выбранного бэкенда хранения.
type stores struct {
	policies  repository.PolicyRepository
	templates repository.TemplateRepository
	statuses  repository.StatusRepository
	holds     repository.LegalHoldRepository
	auditLog  repository.AuditLogRepository
	checker   handlers.ReadinessChecker
}

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Retention Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Retention Module остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sysClock := clock.Real{}
	targets := service.DephealthTargets{BlobStoreURL: cfg.BlobStoreURL}

	// 3. Хранилище статусов
	var st stores
	switch cfg.StorageBackend {
	case config.StorageBackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return fmt.Errorf("миграции БД: %w", err)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
		// через тот же пул соединений
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()
		targets.DB = pgDB
		targets.PgConnURL = fmt.Sprintf("postgres://%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

		st = stores{
			policies:  repository.NewPolicyRepository(pool),
			templates: repository.NewTemplateRepository(pool),
			statuses:  repository.NewStatusRepository(pool),
			holds:     repository.NewLegalHoldRepository(pool),
			auditLog:  repository.NewAuditLogRepository(pool),
			checker:   database.NewReadinessChecker(pool),
		}

	default:
		logger.Warn("Хранилище в памяти: данные не сохраняются между рестартами")
		mem := memory.New(sysClock)
		st = stores{
			policies:  mem.Policies(),
			templates: mem.Templates(),
			statuses:  mem.Statuses(),
			holds:     mem.Holds(),
			auditLog:  mem.AuditLog(),
			checker:   mem,
		}
	}

	// 4. Клиент blob store (метаданные документов для auto-apply)
	var (
		blob *blobclient.Client
		docs service.DocumentMetadataSource
	)
	if cfg.BlobStoreURL != "" {
		var tokens blobclient.TokenProvider
		if cfg.BlobStoreToken != "" {
			tokens = blobclient.StaticToken(cfg.BlobStoreToken)
		}
		client, err := blobclient.New(cfg.BlobStoreURL, cfg.BlobStoreTimeout, cfg.BlobStoreCACertPath, tokens, logger)
		if err != nil {
			return fmt.Errorf("клиент blob store: %w", err)
		}
		blob = client
		docs = client
		logger.Info("Клиент blob store создан", slog.String("url", blob.BaseURL()))
	} else {
		logger.Warn("RM_BLOB_STORE_URL не задан, автоматическое применение политик недоступно")
	}

	// 5. Сервисы движка
	audit := service.NewAuditRecorder(st.auditLog, sysClock, service.AuditConfig{
		Timeout:       cfg.AuditTimeout,
		RetryInterval: cfg.AuditRetryInterval,
		MaxAttempts:   cfg.AuditRetryMaxAttempts,
		QueueSize:     cfg.AuditQueueSize,
	}, logger)
	engineCfg := service.EngineConfig{
		StoreTimeout:          cfg.StoreTimeout,
		ConflictRetries:       cfg.ConflictRetries,
		DefaultHoldWindowDays: cfg.DefaultHoldWindowDays,
		Concurrency:           cfg.ScanConcurrency,
	}
	locker := service.NewDocumentLocker()

	policies := service.NewPolicyService(st.policies, st.templates, st.statuses,
		service.NewPolicyCache(cfg.PolicyCacheSize, cfg.PolicyCacheTTL), sysClock, logger)
	holds := service.NewLegalHoldService(st.holds, st.statuses, locker, audit, sysClock, engineCfg, logger)
	tracker := service.NewTrackerService(policies, st.statuses, locker, audit, docs, sysClock, engineCfg, logger)
	disposition := service.NewDispositionService(policies, st.statuses, locker, audit, sysClock, engineCfg, logger)
	scheduler := service.NewSchedulerService(st.statuses, disposition, holds, sysClock, service.SchedulerConfig{
		Schedule:    cfg.ScanSchedule,
		BatchSize:   cfg.ScanBatchSize,
		Concurrency: cfg.ScanConcurrency,
	}, logger)

	// 6. Фоновые задачи
	audit.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer stopCancel()
		audit.Stop(stopCtx)
	}()

	if cfg.SchedulerEnabled {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("запуск планировщика: %w", err)
		}
		defer scheduler.Stop()
	} else {
		logger.Info("Планировщик отключён (RM_SCHEDULER_ENABLED=false)")
	}

	// 6.1 topologymetrics — мониторинг зависимостей (PostgreSQL + blob store)
	dephealthSvc, err := service.NewDephealthService(
		"retention-module",
		cfg.DephealthGroup,
		targets,
		cfg.DephealthCheckInterval,
		logger,
	)
	switch {
	case errors.Is(err, service.ErrNoDependencies):
		logger.Info("topologymetrics: нет зависимостей для мониторинга")
	case err != nil:
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	default:
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 7. Аутентификация и readiness checkers
	healthHandler := handlers.NewHealthHandler(st.checker)
	var auth func(http.Handler) http.Handler
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTIssuer,
			rbac.GroupMapping{
				Admin:    cfg.RoleAdminGroups,
				Manager:  cfg.RoleManagerGroups,
				Readonly: cfg.RoleReadonlyGroups,
			},
			cfg.JWTJWKSRefresh,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			return fmt.Errorf("JWT middleware: %w", err)
		}
		auth = jwtAuth.Middleware()
		healthHandler.WithCheck("jwks", middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, 3*time.Second), true)
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		auth = middleware.StaticIdentity("anonymous", rbac.RoleAdmin)
		logger.Warn("RM_JWT_JWKS_URL не задан, проверка токенов отключена: все запросы выполняются с ролью admin")
	}
	if blob != nil {
		healthHandler.WithCheck("blob_store", blob, false)
	}

	// 8. OpenAPI контракт
	doc, err := openapi.Load(ctx)
	if err != nil {
		return err
	}
	specHandler, err := openapi.Handler(doc)
	if err != nil {
		return err
	}

	// 9. API handler и HTTP-сервер
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		policies,
		tracker,
		holds,
		disposition,
		scheduler,
		audit,
		logger,
	)

	srv := server.New(cfg, logger, apiHandler, specHandler, auth)
	if err := srv.Run(); err != nil {
		return err
	}

	logger.Info("Останавливаем фоновые задачи...")
	return nil
}
