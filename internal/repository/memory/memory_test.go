package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/clock"
	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newStore() (*Store, *clock.Fake) {
	c := clock.NewFake(t0)
	return New(c), c
}

func newPolicy(id string, notify int) *model.RetentionPolicy {
	return &model.RetentionPolicy{
		ID: id, Name: "policy-" + id, RetentionPeriodDays: 30,
		DispositionAction: model.DispositionDelete, TriggerType: model.TriggerCreationDate,
		IsActive: true, NotificationDaysBefore: notify, CreatedBy: "test",
	}
}

func newStatus(id string, policyID *string, end time.Time) *model.DocumentRetentionStatus {
	return &model.DocumentRetentionStatus{
		DocumentID: id, PolicyID: policyID,
		RetentionStartDate: end.AddDate(0, 0, -30), RetentionEndDate: end,
		CurrentStatus: model.StateActive,
	}
}

func TestStatusUpdate_CAS(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	repo := s.Statuses()

	st := newStatus("doc-1", nil, t0)
	if err := repo.Create(ctx, st); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if st.Version != 1 {
		t.Fatalf("Version = %d, ожидалась 1", st.Version)
	}
	if err := repo.Create(ctx, newStatus("doc-1", nil, t0)); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("повторный Create() = %v, ожидался ErrConflict", err)
	}

	a, _ := repo.Get(ctx, "doc-1")
	b, _ := repo.Get(ctx, "doc-1")

	a.CurrentStatus = model.StatePendingReview
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update(a) ошибка: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("Version после Update = %d, ожидалась 2", a.Version)
	}

	b.CurrentStatus = model.StateArchived
	if err := repo.Update(ctx, b); !errors.Is(err, repository.ErrVersionConflict) {
		t.Errorf("Update(b) = %v, ожидался ErrVersionConflict", err)
	}

	got, _ := repo.Get(ctx, "doc-1")
	if got.CurrentStatus != model.StatePendingReview {
		t.Errorf("CurrentStatus = %s, ожидалось pending_review", got.CurrentStatus)
	}

	if err := repo.Update(ctx, newStatus("missing", nil, t0)); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Update(missing) = %v, ожидался ErrNotFound", err)
	}
}

func TestStatusGet_ReturnsCopy(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	repo := s.Statuses()

	_ = repo.Create(ctx, newStatus("doc-1", nil, t0))
	got, _ := repo.Get(ctx, "doc-1")
	got.LegalHoldIDs = append(got.LegalHoldIDs, "h1")
	got.CurrentStatus = model.StateOnHold

	again, _ := repo.Get(ctx, "doc-1")
	if again.IsHeld() || again.CurrentStatus != model.StateActive {
		t.Error("изменение возвращённой копии повлияло на хранилище")
	}
}

func TestListDue_Paging(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	repo := s.Statuses()

	policyID := "p1"
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		_ = repo.Create(ctx, newStatus(id, &policyID, t0.Add(-time.Hour)))
	}
	// Не подлежат disposition: срок не истёк, удержание, не active, нет политики
	_ = repo.Create(ctx, newStatus("future", &policyID, t0.Add(time.Hour)))
	_ = repo.Create(ctx, newStatus("hold-only", nil, t0.Add(-time.Hour)))
	held := newStatus("held", &policyID, t0.Add(-time.Hour))
	held.LegalHoldIDs = []string{"h1"}
	held.CurrentStatus = model.StateOnHold
	_ = repo.Create(ctx, held)
	archived := newStatus("archived", &policyID, t0.Add(-time.Hour))
	archived.CurrentStatus = model.StateArchived
	_ = repo.Create(ctx, archived)

	first, _ := repo.ListDue(ctx, t0, "", 3)
	if len(first) != 3 || first[0].DocumentID != "d1" || first[2].DocumentID != "d3" {
		t.Fatalf("первая страница = %v", ids(first))
	}
	second, _ := repo.ListDue(ctx, t0, first[2].DocumentID, 3)
	if len(second) != 1 || second[0].DocumentID != "d4" {
		t.Fatalf("вторая страница = %v", ids(second))
	}
}

func TestListUpcoming(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	p := newPolicy("p1", 7)
	_ = s.Policies().Create(ctx, p)
	quiet := newPolicy("p2", 0)
	_ = s.Policies().Create(ctx, quiet)

	_ = s.Statuses().Create(ctx, newStatus("soon", &p.ID, t0.AddDate(0, 0, 3)))
	_ = s.Statuses().Create(ctx, newStatus("sooner", &p.ID, t0.AddDate(0, 0, 1)))
	_ = s.Statuses().Create(ctx, newStatus("later", &p.ID, t0.AddDate(0, 0, 20)))
	_ = s.Statuses().Create(ctx, newStatus("expired", &p.ID, t0.Add(-time.Minute)))
	_ = s.Statuses().Create(ctx, newStatus("no-window", &quiet.ID, t0.AddDate(0, 0, 1)))

	got, err := s.Statuses().ListUpcoming(ctx, t0, 10, 0)
	if err != nil {
		t.Fatalf("ListUpcoming() ошибка: %v", err)
	}
	if len(got) != 2 || got[0].DocumentID != "sooner" || got[1].DocumentID != "soon" {
		t.Errorf("ListUpcoming() = %v, ожидалось [sooner soon]", ids(got))
	}
}

func TestPolicyDelete_InUse(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	p := newPolicy("p1", 0)
	_ = s.Policies().Create(ctx, p)
	_ = s.Statuses().Create(ctx, newStatus("doc-1", &p.ID, t0))

	if err := s.Policies().Delete(ctx, p.ID); !errors.Is(err, repository.ErrInUse) {
		t.Fatalf("Delete() = %v, ожидался ErrInUse", err)
	}
	_ = s.Statuses().Delete(ctx, "doc-1")
	if err := s.Policies().Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() после очистки статусов: %v", err)
	}
	if _, err := s.Policies().GetByID(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID() = %v, ожидался ErrNotFound", err)
	}
}

func TestPolicyList_PriorityOrder(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	for i, prio := range []int{5, 50, 20} {
		p := newPolicy(string(rune('a'+i)), 0)
		p.Priority = prio
		_ = s.Policies().Create(ctx, p)
	}
	inactive := newPolicy("z", 0)
	inactive.IsActive = false
	_ = s.Policies().Create(ctx, inactive)

	active := true
	list, _ := s.Policies().List(ctx, repository.PolicyFilter{Active: &active}, 10, 0)
	if len(list) != 3 {
		t.Fatalf("List(active) вернул %d, ожидалось 3", len(list))
	}
	if list[0].Priority != 50 || list[2].Priority != 5 {
		t.Errorf("порядок приоритетов: %d, %d, %d", list[0].Priority, list[1].Priority, list[2].Priority)
	}
	if n, _ := s.Policies().Count(ctx, repository.PolicyFilter{}); n != 4 {
		t.Errorf("Count() = %d, ожидалось 4", n)
	}
}

func TestTemplatesSeeded(t *testing.T) {
	s, _ := newStore()
	list, _ := s.Templates().List(context.Background())
	if len(list) != 5 {
		t.Fatalf("шаблонов %d, ожидалось 5", len(list))
	}
	if list[0].ID != "sox-financial" {
		t.Errorf("первый шаблон = %s, ожидался sox-financial", list[0].ID)
	}
	if _, err := s.Templates().GetByID(context.Background(), "unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID(unknown) = %v, ожидался ErrNotFound", err)
	}
}

func TestHoldListExpiring(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	past := t0.Add(-time.Hour)
	future := t0.Add(time.Hour)
	for _, h := range []*model.LegalHold{
		{ID: "h1", Name: "a", HoldReason: "r", Status: model.HoldActive, EndDate: &past},
		{ID: "h2", Name: "b", HoldReason: "r", Status: model.HoldActive, EndDate: &future},
		{ID: "h3", Name: "c", HoldReason: "r", Status: model.HoldActive},
		{ID: "h4", Name: "d", HoldReason: "r", Status: model.HoldReleased, EndDate: &past},
	} {
		_ = s.Holds().Create(ctx, h)
	}

	got, _ := s.Holds().ListExpiring(ctx, t0)
	if len(got) != 1 || got[0].ID != "h1" {
		t.Errorf("ListExpiring() вернул %d удержаний, ожидалось только h1", len(got))
	}
}

func TestAuditList_CursorPaging(t *testing.T) {
	s, c := newStore()
	ctx := context.Background()
	repo := s.AuditLog()

	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		c.Advance(time.Second)
		_ = repo.Insert(ctx, &model.AuditLogEntry{
			ID: id, DocumentID: "doc-1", Action: model.AuditStatusChanged,
			ActionBy: "test", CreatedAt: c.Now(),
		})
	}
	// Повторная вставка того же ID — no-op
	_ = repo.Insert(ctx, &model.AuditLogEntry{ID: "a5", DocumentID: "doc-1", CreatedAt: c.Now()})

	page1, _ := repo.List(ctx, model.AuditFilter{}, nil, 2)
	if len(page1) != 2 || page1[0].ID != "a5" || page1[1].ID != "a4" {
		t.Fatalf("первая страница некорректна: %d записей", len(page1))
	}
	last := page1[len(page1)-1]
	page2, _ := repo.List(ctx, model.AuditFilter{}, &repository.AuditCursor{CreatedAt: last.CreatedAt, ID: last.ID}, 10)
	if len(page2) != 3 || page2[0].ID != "a3" {
		t.Fatalf("вторая страница некорректна: %d записей", len(page2))
	}
}

func ids(items []*model.DocumentRetentionStatus) []string {
	result := make([]string, 0, len(items))
	for _, st := range items {
		result = append(result, st.DocumentID)
	}
	return result
}
