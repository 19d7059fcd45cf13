package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// Сканирование обрабатывает все страницы (размер страницы в тестах — 2)
// и не трогает документы с неистёкшим сроком.
func TestScan_ProcessesAllPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.createPolicy(t, 30, model.DispositionArchive, false)
	for i := range 5 {
		env.applyPolicy(t, fmt.Sprintf("old-%d", i), p, day0)
	}
	env.applyPolicy(t, "fresh", p, atDay(60))

	env.clock.Set(atDay(40))
	res, err := env.scheduler.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Processed) != 5 || res.Outcomes[OutcomeArchived] != 5 {
		t.Errorf("Processed = %v, Outcomes = %v, ожидалось 5 archived", res.Processed, res.Outcomes)
	}
	if len(res.Failures) != 0 {
		t.Errorf("Failures = %v", res.Failures)
	}
	if st := env.status(t, "fresh"); st.CurrentStatus != model.StateActive {
		t.Errorf("fresh: CurrentStatus = %s, ожидалось active", st.CurrentStatus)
	}
	if env.scheduler.LastResult() != res {
		t.Error("LastResult не совпадает с результатом сканирования")
	}

	// Повторное сканирование ничего не меняет
	res, err = env.scheduler.Scan(ctx)
	if err != nil {
		t.Fatalf("повторный Scan: %v", err)
	}
	if len(res.Processed) != 0 {
		t.Errorf("повторный Scan: Processed = %v, ожидалось пусто", res.Processed)
	}
}

// Сканирование переводит удержания с прошедшей датой в expired
// и считает документы в окне уведомления.
func TestScan_ExpiresHoldsAndCountsUpcoming(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.createPolicy(t, 60, model.DispositionDelete, false) // окно 30 дней
	env.applyPolicy(t, "upcoming", p, day0)
	end := atDay(10)
	if _, err := env.holds.CreateHold(ctx, HoldSpec{Name: "temp", HoldReason: "audit", EndDate: &end}, "counsel"); err != nil {
		t.Fatalf("CreateHold: %v", err)
	}

	env.clock.Set(atDay(40))
	res, err := env.scheduler.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.HoldsExpired != 1 {
		t.Errorf("HoldsExpired = %d, ожидалось 1", res.HoldsExpired)
	}
	if res.Upcoming != 1 {
		t.Errorf("Upcoming = %d, ожидалось 1", res.Upcoming)
	}
}

// Статус, созданный удержанием без политики, после снятия удержания
// и окончания окна не попадает в сканирование и не даёт ошибок.
func TestScan_IgnoresStatusWithoutPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	h := env.createHold(t, "matter")
	if _, err := env.holds.ApplyHoldToDocuments(ctx, h.ID, []string{"doc-x"}, "counsel"); err != nil {
		t.Fatalf("ApplyHoldToDocuments: %v", err)
	}
	env.clock.Set(atDay(1))
	if _, err := env.holds.ReleaseHold(ctx, h.ID, "closed", "counsel"); err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}
	if st := env.status(t, "doc-x"); st.CurrentStatus != model.StateActive {
		t.Fatalf("CurrentStatus = %s, ожидалось active", st.CurrentStatus)
	}

	env.clock.Set(atDay(400))
	for i := range 2 {
		res, err := env.scheduler.Scan(ctx)
		if err != nil {
			t.Fatalf("Scan %d: %v", i, err)
		}
		if len(res.Processed) != 0 || len(res.Failures) != 0 {
			t.Errorf("Scan %d: Processed = %v, Failures = %v, ожидалось пусто", i, res.Processed, res.Failures)
		}
	}

	out, err := env.disposition.ExecuteDisposition(ctx, DispositionRequest{
		DocumentID: "doc-x", OnlyIfDue: true, Actor: SystemActor,
	})
	if err != nil {
		t.Fatalf("ExecuteDisposition(OnlyIfDue): %v", err)
	}
	if out.Outcome != OutcomeSkipped || out.Changed {
		t.Errorf("Outcome = %s, Changed = %v, ожидалось skipped", out.Outcome, out.Changed)
	}

	// Явно указанное действие по-прежнему выполняется
	out, err = env.disposition.ExecuteDisposition(ctx, DispositionRequest{
		DocumentID: "doc-x", Action: model.DispositionArchive, Actor: "manager",
	})
	if err != nil {
		t.Fatalf("ExecuteDisposition(archive): %v", err)
	}
	if out.Outcome != OutcomeArchived {
		t.Errorf("Outcome = %s, ожидалось archived", out.Outcome)
	}
}

func TestScan_SkipsOverlappingRun(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.running.Store(true)

	if _, err := env.scheduler.Scan(context.Background()); !errors.Is(err, ErrScanInProgress) {
		t.Errorf("ошибка = %v, ожидалась ErrScanInProgress", err)
	}
}

func TestScan_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPolicy(t, 30, model.DispositionDelete, false)
	env.applyPolicy(t, "doc", p, day0)
	env.clock.Set(atDay(40))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := env.scheduler.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ошибка = %v, ожидалась context.Canceled", err)
	}
	if st := env.status(t, "doc"); st.CurrentStatus != model.StateActive {
		t.Errorf("CurrentStatus = %s, ожидалось active", st.CurrentStatus)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	env := newTestEnv(t)
	if err := env.scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.scheduler.Stop()

	bad := NewSchedulerService(env.store.Statuses(), env.disposition, env.holds, env.clock,
		SchedulerConfig{Schedule: "not a schedule"}, testLogger())
	if err := bad.Start(context.Background()); err == nil {
		t.Error("ожидалась ошибка некорректного расписания")
	}
}
