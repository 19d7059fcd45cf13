// Пакет config — загрузка и валидация конфигурации Retention Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды хранения.
const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"
)

// Config содержит все параметры конфигурации Retention Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения HTTP-запроса
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-ответа
	HTTPWriteTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	HTTPIdleTimeout time.Duration

	// --- Хранилище ---

	// Бэкенд хранения: postgres или memory
	StorageBackend string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT ---

	// URL JWKS endpoint IdP. Пустое значение отключает проверку токенов.
	JWTJWKSURL string
	// Ожидаемый issuer (опционально)
	JWTIssuer string
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWTJWKSRefresh time.Duration

	// --- Маппинг групп → ролей ---

	// Группы IdP, дающие роль admin (через запятую)
	RoleAdminGroups []string
	// Группы IdP, дающие роль records-manager (через запятую)
	RoleManagerGroups []string
	// Группы IdP, дающие роль readonly (через запятую)
	RoleReadonlyGroups []string

	// --- Blob store ---

	// Базовый URL API хранилища документов
	BlobStoreURL string
	// Таймаут запросов к хранилищу документов
	BlobStoreTimeout time.Duration
	// Путь к CA-сертификату для TLS-соединений с хранилищем (опционально)
	BlobStoreCACertPath string
	// Статический токен для запросов к хранилищу (опционально)
	BlobStoreToken string

	// --- Движок хранения ---

	// Таймаут одного обращения к хранилищу статусов
	StoreTimeout time.Duration
	// Таймаут записи в журнал аудита
	AuditTimeout time.Duration
	// Количество повторов при конфликте версий
	ConflictRetries int
	// Окно хранения по умолчанию для документа, впервые попавшего под удержание
	DefaultHoldWindowDays int
	// Размер кэша политик
	PolicyCacheSize int
	// TTL записи кэша политик
	PolicyCacheTTL time.Duration

	// --- Планировщик ---

	// Включён ли планировщик
	SchedulerEnabled bool
	// Расписание сканирования в формате cron (например, "@every 15m")
	ScanSchedule string
	// Размер страницы при выборке документов с истёкшим сроком
	ScanBatchSize int
	// Максимальное количество параллельно обрабатываемых документов
	ScanConcurrency int

	// --- Повторная запись аудита ---

	// Базовый интервал повторной записи (экспоненциальный backoff)
	AuditRetryInterval time.Duration
	// Максимальное количество попыток записи
	AuditRetryMaxAttempts int
	// Ёмкость очереди повторной записи
	AuditQueueSize int

	// --- Dephealth ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Группа сервиса для метрик зависимостей
	DephealthGroup string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("RM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("RM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("RM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// RM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	// RM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("RM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("RM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("RM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Хранилище ---

	// RM_STORAGE_BACKEND — postgres (по умолчанию) или memory
	cfg.StorageBackend = getEnvDefault("RM_STORAGE_BACKEND", StorageBackendPostgres)
	if cfg.StorageBackend != StorageBackendPostgres && cfg.StorageBackend != StorageBackendMemory {
		return nil, fmt.Errorf("RM_STORAGE_BACKEND: недопустимое значение %q, допустимые: postgres, memory", cfg.StorageBackend)
	}

	// --- PostgreSQL ---

	// Параметры БД обязательны только для бэкенда postgres
	if cfg.StorageBackend == StorageBackendPostgres {
		cfg.DBHost, err = getEnvRequired("RM_DB_HOST")
		if err != nil {
			return nil, err
		}
		cfg.DBName, err = getEnvRequired("RM_DB_NAME")
		if err != nil {
			return nil, err
		}
		cfg.DBUser, err = getEnvRequired("RM_DB_USER")
		if err != nil {
			return nil, err
		}
		cfg.DBPassword, err = getEnvRequired("RM_DB_PASSWORD")
		if err != nil {
			return nil, err
		}
	}

	// RM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("RM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RM_DB_PORT: %w", err)
	}

	// RM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("RM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("RM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- JWT ---

	// RM_JWT_JWKS_URL — пустое значение отключает аутентификацию (dev-режим)
	cfg.JWTJWKSURL = strings.TrimSpace(getEnvDefault("RM_JWT_JWKS_URL", ""))
	cfg.JWTIssuer = getEnvDefault("RM_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("RM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWT_LEEWAY: %w", err)
	}
	cfg.JWTJWKSRefresh, err = getEnvDuration("RM_JWT_JWKS_REFRESH", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_JWT_JWKS_REFRESH: %w", err)
	}

	// --- Маппинг групп → ролей ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("RM_ROLE_ADMIN_GROUPS", "records-admins"))
	cfg.RoleManagerGroups = parseCSV(getEnvDefault("RM_ROLE_MANAGER_GROUPS", "records-managers"))
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("RM_ROLE_READONLY_GROUPS", "records-viewers"))

	// --- Blob store ---

	// RM_BLOB_STORE_URL — опционально; без него даты триггеров берутся от now
	cfg.BlobStoreURL = strings.TrimRight(getEnvDefault("RM_BLOB_STORE_URL", ""), "/")
	cfg.BlobStoreTimeout, err = getEnvDuration("RM_BLOB_STORE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_BLOB_STORE_TIMEOUT: %w", err)
	}
	cfg.BlobStoreCACertPath = getEnvDefault("RM_BLOB_STORE_CA_CERT_PATH", "")
	cfg.BlobStoreToken = getEnvDefault("RM_BLOB_STORE_TOKEN", "")

	// --- Движок хранения ---

	cfg.StoreTimeout, err = getEnvDuration("RM_STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_STORE_TIMEOUT: %w", err)
	}
	cfg.AuditTimeout, err = getEnvDuration("RM_AUDIT_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_AUDIT_TIMEOUT: %w", err)
	}

	cfg.ConflictRetries, err = getEnvInt("RM_CONFLICT_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("RM_CONFLICT_RETRIES: %w", err)
	}
	if cfg.ConflictRetries < 0 || cfg.ConflictRetries > 100 {
		return nil, fmt.Errorf("RM_CONFLICT_RETRIES: значение %d вне допустимого диапазона 0-100", cfg.ConflictRetries)
	}

	cfg.DefaultHoldWindowDays, err = getEnvInt("RM_DEFAULT_HOLD_WINDOW_DAYS", 365)
	if err != nil {
		return nil, fmt.Errorf("RM_DEFAULT_HOLD_WINDOW_DAYS: %w", err)
	}
	if cfg.DefaultHoldWindowDays < 1 {
		return nil, fmt.Errorf("RM_DEFAULT_HOLD_WINDOW_DAYS: значение %d должно быть >= 1", cfg.DefaultHoldWindowDays)
	}

	cfg.PolicyCacheSize, err = getEnvInt("RM_POLICY_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("RM_POLICY_CACHE_SIZE: %w", err)
	}
	if cfg.PolicyCacheSize < 1 {
		return nil, fmt.Errorf("RM_POLICY_CACHE_SIZE: значение %d должно быть >= 1", cfg.PolicyCacheSize)
	}
	cfg.PolicyCacheTTL, err = getEnvDuration("RM_POLICY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_POLICY_CACHE_TTL: %w", err)
	}

	// --- Планировщик ---

	cfg.SchedulerEnabled, err = getEnvBool("RM_SCHEDULER_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("RM_SCHEDULER_ENABLED: %w", err)
	}

	// RM_SCAN_SCHEDULE — расписание cron (по умолчанию каждые 15 минут)
	cfg.ScanSchedule = getEnvDefault("RM_SCAN_SCHEDULE", "@every 15m")
	if _, err := cron.ParseStandard(cfg.ScanSchedule); err != nil {
		return nil, fmt.Errorf("RM_SCAN_SCHEDULE: некорректное расписание %q: %w", cfg.ScanSchedule, err)
	}

	cfg.ScanBatchSize, err = getEnvInt("RM_SCAN_BATCH_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("RM_SCAN_BATCH_SIZE: %w", err)
	}
	if cfg.ScanBatchSize < 1 || cfg.ScanBatchSize > 10000 {
		return nil, fmt.Errorf("RM_SCAN_BATCH_SIZE: значение %d вне допустимого диапазона 1-10000", cfg.ScanBatchSize)
	}

	cfg.ScanConcurrency, err = getEnvInt("RM_SCAN_CONCURRENCY", 8)
	if err != nil {
		return nil, fmt.Errorf("RM_SCAN_CONCURRENCY: %w", err)
	}
	if cfg.ScanConcurrency < 1 || cfg.ScanConcurrency > 256 {
		return nil, fmt.Errorf("RM_SCAN_CONCURRENCY: значение %d вне допустимого диапазона 1-256", cfg.ScanConcurrency)
	}

	// --- Повторная запись аудита ---

	cfg.AuditRetryInterval, err = getEnvDuration("RM_AUDIT_RETRY_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_AUDIT_RETRY_INTERVAL: %w", err)
	}
	cfg.AuditRetryMaxAttempts, err = getEnvInt("RM_AUDIT_RETRY_MAX_ATTEMPTS", 10)
	if err != nil {
		return nil, fmt.Errorf("RM_AUDIT_RETRY_MAX_ATTEMPTS: %w", err)
	}
	if cfg.AuditRetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RM_AUDIT_RETRY_MAX_ATTEMPTS: значение %d должно быть >= 1", cfg.AuditRetryMaxAttempts)
	}
	cfg.AuditQueueSize, err = getEnvInt("RM_AUDIT_QUEUE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("RM_AUDIT_QUEUE_SIZE: %w", err)
	}
	if cfg.AuditQueueSize < 1 {
		return nil, fmt.Errorf("RM_AUDIT_QUEUE_SIZE: значение %d должно быть >= 1", cfg.AuditQueueSize)
	}

	// --- Dephealth ---

	cfg.DephealthCheckInterval, err = getEnvDuration("RM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("RM_DEPHEALTH_GROUP", "artsore")

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("RM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// AuthEnabled возвращает true, если задан JWKS URL.
func (c *Config) AuthEnabled() bool {
	return c.JWTJWKSURL != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
