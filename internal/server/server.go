// Пакет server — HTTP-сервер Retention Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/retention-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/retention-module/internal/config"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/rbac"
)

// Server — HTTP-сервер Retention Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// auth — middleware аутентификации (JWT или статическая identity).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, openapiHandler http.Handler, auth func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler, openapiHandler, auth),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter создаёт chi router со всеми маршрутами API.
//
// Доступ:
//   - чтение: роль readonly или scope retention:read / retention:write;
//   - изменение: роль records-manager или scope retention:write;
//   - purge статуса и ручное сканирование: только пользователь с ролью admin.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, openapiHandler http.Handler, auth func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Аутентификация с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if auth != nil {
		router.Use(AuthWithExclusions(auth, "/health/", "/metrics", "/api/v1/openapi.json"))
	}

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	readAccess := middleware.RequireRoleOrScope(rbac.RoleReadonly, middleware.ScopeRead, middleware.ScopeWrite)
	writeAccess := middleware.RequireRoleOrScope(rbac.RoleManager, middleware.ScopeWrite)
	adminAccess := middleware.RequireRole(rbac.RoleAdmin)

	router.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/openapi.json", openapiHandler)

		// Чтение
		r.Group(func(r chi.Router) {
			r.Use(readAccess)
			r.Get("/policies", h.ListPolicies)
			r.Get("/policies/{policy_id}", h.GetPolicy)
			r.Get("/policy-templates", h.ListTemplates)
			r.Get("/documents/{document_id}/retention", h.GetRetentionStatus)
			r.Get("/retention/upcoming", h.ListUpcoming)
			r.Get("/legal-holds", h.ListLegalHolds)
			r.Get("/legal-holds/{hold_id}", h.GetLegalHold)
			r.Get("/legal-holds/{hold_id}/documents", h.ListLegalHoldDocuments)
			r.Get("/audit-log", h.QueryAuditLog)
			r.Get("/scheduler/last-scan", h.GetLastScan)
		})

		// Изменение
		r.Group(func(r chi.Router) {
			r.Use(writeAccess)
			r.Post("/policies", h.CreatePolicy)
			r.Patch("/policies/{policy_id}", h.UpdatePolicy)
			r.Delete("/policies/{policy_id}", h.DeletePolicy)
			r.Post("/policies/{policy_id}/apply", h.ApplyPolicyBulk)
			r.Post("/policy-templates/{template_id}/policies", h.CreateFromTemplate)
			r.Post("/documents/{document_id}/policy", h.ApplyPolicy)
			r.Post("/documents/{document_id}/policy/auto", h.AutoApplyPolicy)
			r.Post("/documents/{document_id}/review", h.MarkForReview)
			r.Post("/documents/{document_id}/approval", h.MarkForApproval)
			r.Post("/documents/{document_id}/exception", h.GrantException)
			r.Post("/documents/{document_id}/disposition", h.ExecuteDisposition)
			r.Post("/legal-holds", h.CreateLegalHold)
			r.Post("/legal-holds/{hold_id}/documents", h.ApplyLegalHold)
			r.Post("/legal-holds/{hold_id}/release", h.ReleaseLegalHold)
		})

		// Администрирование
		r.Group(func(r chi.Router) {
			r.Use(adminAccess)
			r.Delete("/documents/{document_id}/retention", h.PurgeRetentionStatus)
			r.Post("/scheduler/scan", h.TriggerScan)
		})
	})

	return router
}

// AuthWithExclusions оборачивает middleware аутентификации, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func AuthWithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authenticated := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			authenticated.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
