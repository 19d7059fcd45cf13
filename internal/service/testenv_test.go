package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/blobclient"
	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
	"github.com/bigkaa/goartstore/retention-module/internal/repository/memory"
)

// day0 — начало отсчёта в сценариях тестов.
var day0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// atDay возвращает момент через n дней после day0.
func atDay(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDocs — blob store в памяти.
type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]*blobclient.DocumentMetadata
	err  error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[string]*blobclient.DocumentMetadata)}
}

func (f *fakeDocs) add(id, category string, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id] = &blobclient.DocumentMetadata{ID: id, Category: category, CreatedAt: &createdAt}
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (*blobclient.DocumentMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.docs[id]
	if !ok {
		return nil, blobclient.ErrDocumentNotFound
	}
	cp := *m
	return &cp, nil
}

// flakyAuditRepo — репозиторий журнала с управляемым отказом записи.
type flakyAuditRepo struct {
	repository.AuditLogRepository
	mu   sync.Mutex
	fail bool
}

func (r *flakyAuditRepo) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *flakyAuditRepo) Insert(ctx context.Context, e *model.AuditLogEntry) error {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	return r.AuditLogRepository.Insert(ctx, e)
}

// testEnv — полный набор сервисов движка поверх хранилища в памяти.
type testEnv struct {
	clock       *clock.Fake
	store       *memory.Store
	docs        *fakeDocs
	auditRepo   *flakyAuditRepo
	audit       *AuditRecorder
	policies    *PolicyService
	holds       *LegalHoldService
	tracker     *TrackerService
	disposition *DispositionService
	scheduler   *SchedulerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	c := clock.NewFake(day0)
	store := memory.New(c)
	docs := newFakeDocs()
	logger := testLogger()

	auditRepo := &flakyAuditRepo{AuditLogRepository: store.AuditLog()}
	audit := NewAuditRecorder(auditRepo, c, AuditConfig{
		Timeout:       time.Second,
		RetryInterval: time.Minute,
		MaxAttempts:   3,
		QueueSize:     16,
	}, logger)

	cfg := EngineConfig{
		StoreTimeout:          time.Second,
		ConflictRetries:       3,
		DefaultHoldWindowDays: 365,
		Concurrency:           4,
	}
	locker := NewDocumentLocker()
	policies := NewPolicyService(store.Policies(), store.Templates(), store.Statuses(),
		NewPolicyCache(100, time.Minute), c, logger)
	holds := NewLegalHoldService(store.Holds(), store.Statuses(), locker, audit, c, cfg, logger)
	tracker := NewTrackerService(policies, store.Statuses(), locker, audit, docs, c, cfg, logger)
	disposition := NewDispositionService(policies, store.Statuses(), locker, audit, c, cfg, logger)
	scheduler := NewSchedulerService(store.Statuses(), disposition, holds, c,
		SchedulerConfig{Schedule: "@every 15m", BatchSize: 2, Concurrency: 4}, logger)

	return &testEnv{
		clock:       c,
		store:       store,
		docs:        docs,
		auditRepo:   auditRepo,
		audit:       audit,
		policies:    policies,
		holds:       holds,
		tracker:     tracker,
		disposition: disposition,
		scheduler:   scheduler,
	}
}

// createPolicy создаёт активную политику с заданными параметрами.
func (e *testEnv) createPolicy(t *testing.T, days int, action model.DispositionAction, requiresApproval bool) *model.RetentionPolicy {
	t.Helper()
	p, err := e.policies.CreatePolicy(context.Background(), PolicySpec{
		Name:                   "policy",
		RetentionPeriodDays:    days,
		DispositionAction:      action,
		TriggerType:            model.TriggerCreationDate,
		RequiresApproval:       requiresApproval,
		NotificationDaysBefore: 30,
	}, "tester")
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	return p
}

// applyPolicy применяет политику к документу, созданному в blob store в момент createdAt.
func (e *testEnv) applyPolicy(t *testing.T, docID string, p *model.RetentionPolicy, createdAt time.Time) *model.DocumentRetentionStatus {
	t.Helper()
	e.docs.add(docID, "finance", createdAt)
	res, err := e.tracker.ApplyPolicy(context.Background(), ApplyPolicyRequest{
		DocumentID: docID, PolicyID: p.ID, Actor: "tester",
	})
	if err != nil {
		t.Fatalf("ApplyPolicy(%s): %v", docID, err)
	}
	return res.Status
}

// createHold создаёт активное удержание.
func (e *testEnv) createHold(t *testing.T, name string) *model.LegalHold {
	t.Helper()
	h, err := e.holds.CreateHold(context.Background(), HoldSpec{Name: name, HoldReason: "litigation"}, "counsel")
	if err != nil {
		t.Fatalf("CreateHold: %v", err)
	}
	return h
}

// status читает статус документа из хранилища.
func (e *testEnv) status(t *testing.T, docID string) *model.DocumentRetentionStatus {
	t.Helper()
	st, err := e.store.Statuses().Get(context.Background(), docID)
	if err != nil {
		t.Fatalf("Get(%s): %v", docID, err)
	}
	return st
}

// auditEntries возвращает записи журнала документа (от новых к старым).
func (e *testEnv) auditEntries(t *testing.T, docID string) []*model.AuditLogEntry {
	t.Helper()
	var result []*model.AuditLogEntry
	for entry, err := range e.audit.Query(context.Background(), model.AuditFilter{DocumentID: &docID}) {
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		result = append(result, entry)
	}
	return result
}

// assertHoldInvariant проверяет on_hold ⇔ непустой набор удержаний.
func assertHoldInvariant(t *testing.T, st *model.DocumentRetentionStatus) {
	t.Helper()
	if (st.CurrentStatus == model.StateOnHold) != st.IsHeld() {
		t.Errorf("нарушен инвариант удержания: status=%s holds=%v", st.CurrentStatus, st.LegalHoldIDs)
	}
}
