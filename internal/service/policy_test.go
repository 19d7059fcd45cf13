package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
	"github.com/bigkaa/goartstore/retention-module/internal/repository"
)

func TestCreatePolicy_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	valid := PolicySpec{
		Name:                "Contracts",
		RetentionPeriodDays: 365,
		DispositionAction:   model.DispositionArchive,
		TriggerType:         model.TriggerCreationDate,
	}

	tests := []struct {
		name   string
		mutate func(*PolicySpec)
		field  string
	}{
		{"пустое имя", func(s *PolicySpec) { s.Name = "   " }, "Name"},
		{"нулевой срок", func(s *PolicySpec) { s.RetentionPeriodDays = 0 }, "RetentionPeriodDays"},
		{"неизвестное действие", func(s *PolicySpec) { s.DispositionAction = "burn" }, "DispositionAction"},
		{"неизвестный триггер", func(s *PolicySpec) { s.TriggerType = "birthday" }, "TriggerType"},
		{"отрицательное окно", func(s *PolicySpec) { s.NotificationDaysBefore = -1 }, "NotificationDaysBefore"},
		{"пустая категория", func(s *PolicySpec) { s.AppliesToCategories = []string{"ok", ""} }, "AppliesToCategories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid
			tt.mutate(&spec)
			_, err := env.policies.CreatePolicy(ctx, spec, "tester")
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ошибка = %v, ожидалась ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("сообщение %q не называет поле %s", err.Error(), tt.field)
			}
		})
	}

	p, err := env.policies.CreatePolicy(ctx, valid, "tester")
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if !p.IsActive || p.CreatedBy != "tester" || p.ID == "" {
		t.Errorf("политика = %+v, ожидалась активная с id и автором", p)
	}
}

func TestPolicyCRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createPolicy(t, 30, model.DispositionDelete, false)
	inactive := false
	b, err := env.policies.CreatePolicy(ctx, PolicySpec{
		Name: "Low", RetentionPeriodDays: 10, DispositionAction: model.DispositionReview,
		TriggerType: model.TriggerLastModified, IsActive: &inactive, Priority: -5,
	}, "tester")
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	got, err := env.policies.GetPolicy(ctx, a.ID)
	if err != nil || got.ID != a.ID {
		t.Fatalf("GetPolicy = %v, %v", got, err)
	}
	if _, err := env.policies.GetPolicy(ctx, "missing"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("GetPolicy(missing): ошибка = %v, ожидалась ErrPolicyNotFound", err)
	}

	items, total, err := env.policies.ListPolicies(ctx, repository.PolicyFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("ListPolicies: total = %d, len = %d, ожидалось 2", total, len(items))
	}

	active, err := env.policies.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("ListActive = %v, ожидалась только %s", active, a.ID)
	}

	// Обновление валидирует итоговую политику
	zero := 0
	if _, err := env.policies.UpdatePolicy(ctx, b.ID, model.PolicyPatch{RetentionPeriodDays: &zero}, "tester"); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdatePolicy: ошибка = %v, ожидалась ErrValidation", err)
	}
	days := 90
	updated, err := env.policies.UpdatePolicy(ctx, b.ID, model.PolicyPatch{RetentionPeriodDays: &days}, "tester")
	if err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	if updated.RetentionPeriodDays != 90 || updated.Name != "Low" {
		t.Errorf("UpdatePolicy = %+v", updated)
	}
	if _, err := env.policies.UpdatePolicy(ctx, "missing", model.PolicyPatch{}, "tester"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("UpdatePolicy(missing): ошибка = %v, ожидалась ErrPolicyNotFound", err)
	}

	if err := env.policies.DeletePolicy(ctx, b.ID); err != nil {
		t.Fatalf("DeletePolicy: %v", err)
	}
	if _, err := env.policies.GetPolicy(ctx, b.ID); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("после удаления: ошибка = %v, ожидалась ErrPolicyNotFound", err)
	}
	if err := env.policies.DeletePolicy(ctx, b.ID); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("повторное удаление: ошибка = %v, ожидалась ErrPolicyNotFound", err)
	}
}

// Изменение срока хранения пересчитывает даты окончания документов
// с этой политикой от их даты начала.
func TestUpdatePolicy_RecomputesEndDates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.createPolicy(t, 365, model.DispositionArchive, false)
	other := env.createPolicy(t, 365, model.DispositionArchive, false)
	env.applyPolicy(t, "doc", p, day0)
	env.applyPolicy(t, "doc-held", p, day0)
	env.applyPolicy(t, "doc-other", other, day0)

	h := env.createHold(t, "matter")
	if _, err := env.holds.ApplyHoldToDocuments(ctx, h.ID, []string{"doc-held"}, "counsel"); err != nil {
		t.Fatalf("ApplyHoldToDocuments: %v", err)
	}

	// Изменение без срока хранения не трогает документы
	action := model.DispositionDelete
	if _, err := env.policies.UpdatePolicy(ctx, p.ID, model.PolicyPatch{DispositionAction: &action}, "admin"); err != nil {
		t.Fatalf("UpdatePolicy(action): %v", err)
	}
	if n := len(env.auditEntries(t, "doc")); n != 1 {
		t.Fatalf("записей журнала doc = %d, ожидалась 1", n)
	}

	days := 30
	if _, err := env.policies.UpdatePolicy(ctx, p.ID, model.PolicyPatch{RetentionPeriodDays: &days}, "admin"); err != nil {
		t.Fatalf("UpdatePolicy(period): %v", err)
	}

	want := day0.AddDate(0, 0, 30)
	if st := env.status(t, "doc"); !st.RetentionEndDate.Equal(want) || st.CurrentStatus != model.StateActive {
		t.Errorf("doc: end = %v, status = %s, ожидалось %v active", st.RetentionEndDate, st.CurrentStatus, want)
	}
	held := env.status(t, "doc-held")
	if !held.RetentionEndDate.Equal(want) || held.CurrentStatus != model.StateOnHold {
		t.Errorf("doc-held: end = %v, status = %s, ожидалось %v on_hold", held.RetentionEndDate, held.CurrentStatus, want)
	}
	if st := env.status(t, "doc-other"); !st.RetentionEndDate.Equal(day0.AddDate(0, 0, 365)) {
		t.Errorf("doc-other: end = %v, ожидался прежний срок", st.RetentionEndDate)
	}

	entries := env.auditEntries(t, "doc")
	if len(entries) != 2 {
		t.Fatalf("записей журнала doc = %d, ожидалось 2", len(entries))
	}
	if entries[0].Action != model.AuditPolicyApplied || entries[0].ActionBy != "admin" {
		t.Errorf("последняя запись = %s от %s, ожидалось policy_applied от admin", entries[0].Action, entries[0].ActionBy)
	}

	env.clock.Set(atDay(31))
	res, err := env.scheduler.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Processed) != 1 || res.Processed[0] != "doc" {
		t.Errorf("Processed = %v, ожидался [doc]", res.Processed)
	}
}

// Обновление сбрасывает кэш: следующее чтение видит новые значения.
func TestUpdatePolicy_InvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.createPolicy(t, 30, model.DispositionDelete, false)
	if _, err := env.policies.GetPolicy(ctx, p.ID); err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if env.policies.cache.Len() != 1 {
		t.Fatalf("Len = %d, ожидалось 1", env.policies.cache.Len())
	}

	action := model.DispositionArchive
	if _, err := env.policies.UpdatePolicy(ctx, p.ID, model.PolicyPatch{DispositionAction: &action}, "tester"); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	got, err := env.policies.GetPolicy(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.DispositionAction != model.DispositionArchive {
		t.Errorf("DispositionAction = %s, ожидалось archive", got.DispositionAction)
	}
}

func TestDeletePolicy_InUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.createPolicy(t, 30, model.DispositionDelete, false)
	env.applyPolicy(t, "doc", p, day0)

	err := env.policies.DeletePolicy(ctx, p.ID)
	if !errors.Is(err, ErrPolicyInUse) {
		t.Fatalf("ошибка = %v, ожидалась ErrPolicyInUse", err)
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.PolicyID != p.ID {
		t.Errorf("OperationError = %+v, ожидался policy %s", oe, p.ID)
	}

	// После удаления статуса политику можно удалить
	if _, err := env.tracker.PurgeStatus(ctx, "doc", "tester"); err != nil {
		t.Fatalf("PurgeStatus: %v", err)
	}
	if err := env.policies.DeletePolicy(ctx, p.ID); err != nil {
		t.Errorf("DeletePolicy: %v", err)
	}
}

func TestTemplates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	templates, err := env.policies.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("список шаблонов пуст")
	}

	name := "SOX (контракты)"
	days := 3650
	p, err := env.policies.CreateFromTemplate(ctx, "sox-financial", model.PolicyPatch{
		Name: &name, RetentionPeriodDays: &days,
	}, "tester")
	if err != nil {
		t.Fatalf("CreateFromTemplate: %v", err)
	}
	if p.Name != name || p.RetentionPeriodDays != days {
		t.Errorf("переопределения не применены: %+v", p)
	}
	if p.DispositionAction != model.DispositionDelete || !p.RequiresApproval || !p.IsActive {
		t.Errorf("поля шаблона не перенесены: %+v", p)
	}
	if p.ComplianceFramework == nil || *p.ComplianceFramework != "SOX" {
		t.Errorf("ComplianceFramework = %v, ожидалось SOX", p.ComplianceFramework)
	}

	if _, err := env.policies.CreateFromTemplate(ctx, "missing", model.PolicyPatch{}, "tester"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrTemplateNotFound", err)
	}

	zero := 0
	if _, err := env.policies.CreateFromTemplate(ctx, "temporary", model.PolicyPatch{RetentionPeriodDays: &zero}, "tester"); !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, ожидалась ErrValidation", err)
	}
}
