// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Retention Module мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - Blob store — HTTP checker к health endpoint (не critical: при недоступности
//     срок хранения отсчитывается от текущего времени)
//
// При RM_STORAGE_BACKEND=memory PostgreSQL не мониторится, при пустом
// RM_BLOB_STORE_URL не мониторится blob store.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// blobStoreHealthPath — probe path blob store.
const blobStoreHealthPath = "/health/ready"

// ErrNoDependencies — нет зависимостей для мониторинга.
var ErrNoDependencies = errors.New("нет зависимостей для мониторинга")

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	deps   []string
	logger *slog.Logger
}

// DephealthTargets — зависимости для мониторинга.
type DephealthTargets struct {
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool() (nil — без PostgreSQL)
	DB *sql.DB
	// PgConnURL — URL подключения к PostgreSQL (для метрик/лейблов, не для подключения)
	PgConnURL string
	// BlobStoreURL — базовый URL blob store (пусто — без blob store)
	BlobStoreURL string
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
// ErrNoDependencies — ни одна зависимость не задана.
func NewDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}
	var deps []string

	if targets.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)),
			dephealth.FromURL(targets.PgConnURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		))
		deps = append(deps, "postgresql")
	}

	if targets.BlobStoreURL != "" {
		useTLS, err := blobStoreTLS(targets.BlobStoreURL)
		if err != nil {
			return nil, err
		}
		blobOpts := []dephealth.DependencyOption{
			dephealth.FromURL(targets.BlobStoreURL),
			dephealth.WithHTTPHealthPath(blobStoreHealthPath),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(false),
		}
		if useTLS {
			blobOpts = append(blobOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		opts = append(opts, dephealth.HTTP("blob-store", blobOpts...))
		deps = append(deps, "blob-store")
	}

	if len(deps) == 0 {
		return nil, ErrNoDependencies
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		deps:   deps,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// blobStoreTLS проверяет URL blob store и определяет, используется ли TLS.
func blobStoreTLS(raw string) (bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("некорректный URL blob store %q: %w", raw, err)
	}
	switch {
	case u.Host == "":
		return false, fmt.Errorf("некорректный URL blob store %q: не указан host", raw)
	case u.Scheme == "https":
		return true, nil
	case u.Scheme == "http":
		return false, nil
	default:
		return false, fmt.Errorf("некорректный URL blob store %q: схема %q не поддерживается", raw, u.Scheme)
	}
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.Any("dependencies", ds.deps))
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
