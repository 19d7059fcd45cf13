package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/retention-module/internal/config"
	"github.com/bigkaa/goartstore/retention-module/internal/database"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("retention_test"),
		postgres.WithUsername("retention"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("RM_STORAGE_BACKEND", "postgres")
	t.Setenv("RM_DB_HOST", host)
	t.Setenv("RM_DB_PORT", port.Port())
	t.Setenv("RM_DB_NAME", "retention_test")
	t.Setenv("RM_DB_USER", "retention")
	t.Setenv("RM_DB_PASSWORD", "test-password")
	t.Setenv("RM_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newPolicy(name string, active bool) *model.RetentionPolicy {
	return &model.RetentionPolicy{
		ID:                     uuid.New().String(),
		Name:                   name,
		RetentionPeriodDays:    365,
		DispositionAction:      model.DispositionDelete,
		TriggerType:            model.TriggerCreationDate,
		IsActive:               active,
		Priority:               10,
		AppliesToCategories:    []string{"finance"},
		NotificationDaysBefore: 30,
		CreatedBy:              "tester",
	}
}

func newStatus(docID string, policyID *string, end time.Time) *model.DocumentRetentionStatus {
	return &model.DocumentRetentionStatus{
		DocumentID:         docID,
		PolicyID:           policyID,
		RetentionStartDate: end.AddDate(-1, 0, 0),
		RetentionEndDate:   end,
		CurrentStatus:      model.StateActive,
	}
}

// --- Тесты PolicyRepository ---

func TestPolicyCRUD(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPolicyRepository(pool)
	ctx := context.Background()

	p := newPolicy("Финансы", true)
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt не заполнен")
	}

	// Дубликат ID
	if err := repo.Create(ctx, p); !errors.Is(err, ErrConflict) {
		t.Errorf("Create дубликата: ожидалась ErrConflict, получено %v", err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Финансы" || len(got.AppliesToCategories) != 1 || got.AppliesToCategories[0] != "finance" {
		t.Errorf("GetByID: получено %+v", got)
	}

	if err := repo.Create(ctx, newPolicy("Архив", false)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	active := true
	list, err := repo.List(ctx, PolicyFilter{Active: &active}, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("List(active): ожидалась 1 политика, получено %d", len(list))
	}
	total, err := repo.Count(ctx, PolicyFilter{})
	if err != nil || total != 2 {
		t.Errorf("Count: %d, %v, ожидалось 2", total, err)
	}

	got.Name = "Финансы (обновлено)"
	got.RetentionPeriodDays = 730
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, _ := repo.GetByID(ctx, p.ID)
	if updated.RetentionPeriodDays != 730 {
		t.Errorf("Update: retention_period_days = %d, ожидалось 730", updated.RetentionPeriodDays)
	}

	// Политика со ссылками из статусов не удаляется
	statuses := NewStatusRepository(pool)
	if err := statuses.Create(ctx, newStatus("doc-1", &p.ID, time.Now().AddDate(1, 0, 0))); err != nil {
		t.Fatalf("Create status: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, ErrInUse) {
		t.Errorf("Delete используемой политики: ожидалась ErrInUse, получено %v", err)
	}

	if err := statuses.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete status: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID после удаления: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestTemplatesSeeded(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewTemplateRepository(pool)
	ctx := context.Background()

	templates, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("шаблоны политик не загружены миграцией")
	}

	got, err := repo.GetByID(ctx, templates[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != templates[0].Name {
		t.Errorf("GetByID: name = %q, ожидалось %q", got.Name, templates[0].Name)
	}
	if _, err := repo.GetByID(ctx, "no-such-template"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID: ожидалась ErrNotFound, получено %v", err)
	}
}

// --- Тесты StatusRepository ---

func TestStatusCompareAndSwap(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewStatusRepository(pool)
	ctx := context.Background()

	st := newStatus("doc-cas", nil, time.Now().AddDate(0, 0, 10))
	if err := repo.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.Version != 1 {
		t.Errorf("Create: version = %d, ожидалась 1", st.Version)
	}
	if err := repo.Create(ctx, newStatus("doc-cas", nil, time.Now())); !errors.Is(err, ErrConflict) {
		t.Errorf("Create дубликата: ожидалась ErrConflict, получено %v", err)
	}

	first, _ := repo.Get(ctx, "doc-cas")
	second, _ := repo.Get(ctx, "doc-cas")

	holdID := uuid.New().String()
	first.LegalHoldIDs = []string{holdID}
	prev := model.StateActive
	first.PreHoldStatus = &prev
	first.CurrentStatus = model.StateOnHold
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("Update: version = %d, ожидалась 2", first.Version)
	}

	// Устаревшая версия
	second.CurrentStatus = model.StatePendingReview
	if err := repo.Update(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Update устаревшей версии: ожидалась ErrVersionConflict, получено %v", err)
	}

	got, err := repo.Get(ctx, "doc-cas")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentStatus != model.StateOnHold || len(got.LegalHoldIDs) != 1 || got.LegalHoldIDs[0] != holdID {
		t.Errorf("Get: status=%s holds=%v", got.CurrentStatus, got.LegalHoldIDs)
	}
	if got.PreHoldStatus == nil || *got.PreHoldStatus != model.StateActive {
		t.Errorf("Get: pre_hold_status = %v, ожидался active", got.PreHoldStatus)
	}

	missing := newStatus("doc-missing", nil, time.Now())
	missing.Version = 1
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update несуществующего: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestStatusListDueAndUpcoming(t *testing.T) {
	pool := setupTestDB(t)
	policies := NewPolicyRepository(pool)
	repo := NewStatusRepository(pool)
	ctx := context.Background()

	p := newPolicy("Кадры", true)
	if err := policies.Create(ctx, p); err != nil {
		t.Fatalf("Create policy: %v", err)
	}

	now := time.Now().UTC()
	fixtures := []*model.DocumentRetentionStatus{
		newStatus("doc-a", &p.ID, now.AddDate(0, 0, -5)),  // истёк
		newStatus("doc-b", &p.ID, now.AddDate(0, 0, -1)),  // истёк
		newStatus("doc-c", &p.ID, now.AddDate(0, 0, 10)),  // в окне уведомления (30 дней)
		newStatus("doc-d", &p.ID, now.AddDate(0, 0, 100)), // вне окна
	}
	held := newStatus("doc-e", &p.ID, now.AddDate(0, 0, -3)) // истёк, но под удержанием
	held.CurrentStatus = model.StateOnHold
	held.LegalHoldIDs = []string{uuid.New().String()}
	fixtures = append(fixtures, held)
	// истёк, но политика не назначена (статус создан удержанием)
	fixtures = append(fixtures, newStatus("doc-f", nil, now.AddDate(0, 0, -2)))

	for _, st := range fixtures {
		if err := repo.Create(ctx, st); err != nil {
			t.Fatalf("Create %s: %v", st.DocumentID, err)
		}
	}

	due, err := repo.ListDue(ctx, now, "", 1)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].DocumentID != "doc-a" {
		t.Fatalf("ListDue: первая страница %v", due)
	}
	due, err = repo.ListDue(ctx, now, due[0].DocumentID, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].DocumentID != "doc-b" {
		t.Errorf("ListDue: вторая страница %v", due)
	}

	upcoming, err := repo.ListUpcoming(ctx, now, 10, 0)
	if err != nil {
		t.Fatalf("ListUpcoming: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].DocumentID != "doc-c" {
		t.Errorf("ListUpcoming: %v", upcoming)
	}

	onHold := model.StateOnHold
	count, err := repo.Count(ctx, StatusFilter{Status: &onHold})
	if err != nil || count != 1 {
		t.Errorf("Count(on_hold) = %d, %v, ожидалось 1", count, err)
	}
	count, err = repo.Count(ctx, StatusFilter{HoldID: &held.LegalHoldIDs[0]})
	if err != nil || count != 1 {
		t.Errorf("Count(hold_id) = %d, %v, ожидалось 1", count, err)
	}
}

// --- Тесты LegalHoldRepository ---

func TestLegalHoldCRUD(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewLegalHoldRepository(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	past := now.AddDate(0, 0, -1)
	matter := "CASE-2026-17"
	h := &model.LegalHold{
		ID:         uuid.New().String(),
		Name:       "Иск поставщика",
		HoldReason: "судебный запрос",
		MatterID:   &matter,
		StartDate:  now.AddDate(0, -1, 0),
		EndDate:    &past,
		Status:     model.HoldActive,
		CreatedBy:  "counsel",
	}
	if err := repo.Create(ctx, h); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.MatterID == nil || *got.MatterID != matter {
		t.Errorf("GetByID: matter_id = %v", got.MatterID)
	}

	expiring, err := repo.ListExpiring(ctx, now)
	if err != nil {
		t.Fatalf("ListExpiring: %v", err)
	}
	if len(expiring) != 1 || expiring[0].ID != h.ID {
		t.Errorf("ListExpiring: %v", expiring)
	}

	reason := "дело закрыто"
	by := "counsel"
	got.Status = model.HoldReleased
	got.ReleaseReason = &reason
	got.ReleasedAt = &now
	got.ReleasedBy = &by
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	active := model.HoldActive
	released := model.HoldReleased
	if n, _ := repo.Count(ctx, &active); n != 0 {
		t.Errorf("Count(active) = %d, ожидалось 0", n)
	}
	list, err := repo.List(ctx, &released, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ReleaseReason == nil || *list[0].ReleaseReason != reason {
		t.Errorf("List(released): %v", list)
	}

	if _, err := repo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID: ожидалась ErrNotFound, получено %v", err)
	}
}

// --- Тесты AuditLogRepository ---

func TestAuditLogKeysetPagination(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAuditLogRepository(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	var ids []string
	for i := range 5 {
		e := &model.AuditLogEntry{
			ID:         uuid.New().String(),
			DocumentID: "doc-audit",
			Action:     model.AuditStatusChanged,
			ActionBy:   "tester",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, e.ID)

		// Повторная вставка — no-op
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("повторный Insert: %v", err)
		}
	}

	docID := "doc-audit"
	filter := model.AuditFilter{DocumentID: &docID}

	page, err := repo.List(ctx, filter, nil, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 3 || page[0].ID != ids[4] {
		t.Fatalf("List: первая страница %d записей", len(page))
	}

	last := page[len(page)-1]
	page, err = repo.List(ctx, filter, &AuditCursor{CreatedAt: last.CreatedAt, ID: last.ID}, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 || page[1].ID != ids[0] {
		t.Errorf("List: вторая страница %d записей", len(page))
	}

	action := model.AuditDisposed
	page, err = repo.List(ctx, model.AuditFilter{Action: &action}, nil, 10)
	if err != nil || len(page) != 0 {
		t.Errorf("List(disposed) = %d, %v, ожидалось 0", len(page), err)
	}
}
