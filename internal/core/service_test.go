package core_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"budgetcore/internal/core"
	"budgetcore/pkg/domain"
)

func TestEndToEndSubmitThenApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	change := f.submit(t, healthMember, 1, 150)
	if change.Status != domain.StatusPending || change.OldValue != 100 || change.NewValue != 150 {
		t.Fatalf("unexpected change %+v", change)
	}
	if change.RequesterName != healthMember.FullName || change.SubmittedDate != "2025-03-01 09:30:00" {
		t.Fatalf("unexpected requester or date %+v", change)
	}
	if change.BudgetItemName != "Hospitals" || change.BudgetItemYear != 2025 {
		t.Fatalf("expected item snapshot, got %+v", change)
	}

	approved, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}
	if got := f.item(t, 1).Value; got != 150 {
		t.Fatalf("expected item value 150, got %v", got)
	}
	logs := f.svc.ChangeLogs(ctx)
	if len(logs) != 1 {
		t.Fatalf("expected one change log, got %d", len(logs))
	}
	entry := logs[0]
	if entry.OldValue != 100 || entry.NewValue != 150 || entry.BudgetItemID != 1 {
		t.Fatalf("unexpected change log %+v", entry)
	}
	if entry.ActorID != primeMinister.ID || entry.ActorName != primeMinister.FullName || entry.Timestamp != "2025-03-01 09:30:00" {
		t.Fatalf("unexpected audit identity %+v", entry)
	}
	budget, err := f.svc.Budget(ctx, 2025)
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if budget.TotalExpense != 650 || budget.NetResult != 9350 || !budget.TotalsConsistent() {
		t.Fatalf("totals not recomputed: %+v", budget)
	}
}

func TestSubmitKeepsOldValueSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 120)

	if _, err := f.svc.UpdateItem(ctx, &financeMember, 2025, 1, 110); err != nil {
		t.Fatalf("direct edit: %v", err)
	}
	stored, ok := f.stores.Pending.FindByID(ctx, change.ID)
	if !ok || stored.OldValue != 100 {
		t.Fatalf("expected snapshot old value 100, got %+v", stored)
	}
	if _, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	logs := f.svc.ChangeLogs(ctx)
	last := logs[len(logs)-1]
	if last.OldValue != 110 || last.NewValue != 120 {
		t.Fatalf("audit must record the value actually replaced, got %+v", last)
	}
}

func TestSubmitRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	hospitals := f.item(t, 1)
	claimsDefense := hospitals.Clone()
	claimsDefense.Ministries = []domain.Ministry{domain.MinistryDefense}
	missingYear := hospitals.Clone()
	missingYear.Year = 2030
	missingItem := hospitals.Clone()
	missingItem.ID = 99

	cases := []struct {
		name  string
		actor domain.User
		as    string
		item  *domain.BudgetItem
		value float64
		kind  domain.ErrorKind
		rule  string
	}{
		{name: "nil item", actor: healthMember, item: nil, value: 150, kind: domain.KindValidation, rule: core.RuleRequired},
		{name: "citizen", actor: citizen, item: &hospitals, value: 150, kind: domain.KindAuthorization},
		{name: "other ministry", actor: defenseMember, item: &hospitals, value: 150, kind: domain.KindAuthorization},
		{name: "forged ministries", actor: defenseMember, item: &claimsDefense, value: 150, kind: domain.KindAuthorization},
		{name: "prime minister", actor: primeMinister, item: &hospitals, value: 150, kind: domain.KindAuthorization},
		{name: "missing budget", actor: healthMember, item: &missingYear, value: 150, kind: domain.KindNotFound},
		{name: "missing item", actor: healthMember, item: &missingItem, value: 150, kind: domain.KindNotFound},
		{name: "negative", actor: healthMember, item: &hospitals, value: -1, kind: domain.KindValidation, rule: core.RuleNonNegative},
		{name: "no-op", actor: healthMember, item: &hospitals, value: 100, kind: domain.KindValidation, rule: core.RuleNoop},
		{name: "blank requester", actor: healthMember, as: "   ", item: &hospitals, value: 150, kind: domain.KindValidation, rule: core.RuleRequester},
		{name: "spoofed requester", actor: healthMember, as: "Someone Else", item: &hospitals, value: 150, kind: domain.KindValidation, rule: core.RuleRequester},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor := tc.actor
			var err error
			if tc.as != "" {
				_, err = f.svc.SubmitChangeRequestAs(ctx, &actor, tc.as, tc.item, tc.value)
			} else {
				_, err = f.svc.SubmitChangeRequest(ctx, &actor, tc.item, tc.value)
			}
			expectKind(t, err, tc.kind)
			if tc.rule != "" && domain.RuleOf(err) != tc.rule {
				t.Fatalf("expected rule %s, got %s (%v)", tc.rule, domain.RuleOf(err), err)
			}
			if !strings.HasPrefix(err.Error(), "submit: ") {
				t.Fatalf("expected op prefix, got %q", err.Error())
			}
		})
	}
	if n := len(f.svc.PendingChanges(ctx)); n != 0 {
		t.Fatalf("rejected submissions must not persist, found %d", n)
	}
}

func TestSubmitAcceptsUsernameAsRequester(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, 1)
	actor := healthMember
	change, err := f.svc.SubmitChangeRequestAs(context.Background(), &actor, actor.Username, &item, 130)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if change.RequesterName != actor.Username {
		t.Fatalf("unexpected requester %q", change.RequesterName)
	}
}

func TestPendingCapPerRequester(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.WithLimits(core.Limits{MaxPendingPerRequester: 2}))
	first := f.submit(t, healthMember, 1, 110)
	f.submit(t, healthMember, 3, 510)

	item := f.item(t, 1)
	actor := healthMember
	_, err := f.svc.SubmitChangeRequest(ctx, &actor, &item, 120)
	expectKind(t, err, domain.KindValidation)
	if domain.RuleOf(err) != core.RulePendingCap {
		t.Fatalf("expected pending cap rule, got %v", err)
	}

	// Another requester is unaffected, even on the same item.
	other := defenseMember
	zero := f.item(t, 4)
	if _, err := f.svc.SubmitChangeRequest(ctx, &other, &zero, 10); err != nil {
		t.Fatalf("other requester: %v", err)
	}

	if _, err := f.svc.RejectRequest(ctx, &primeMinister, first.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.svc.SubmitChangeRequest(ctx, &actor, &item, 120); err != nil {
		t.Fatalf("resolved requests must free a slot: %v", err)
	}
}

func TestResolvedRequestsAreImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 110)
	if _, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindInvalidState)
	if !strings.Contains(err.Error(), "Current status: APPROVED") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	_, err = f.svc.RejectRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindInvalidState)

	stored, _ := f.stores.Pending.FindByID(ctx, change.ID)
	if stored.Status != domain.StatusApproved {
		t.Fatalf("status changed to %s", stored.Status)
	}
	if got := f.item(t, 1).Value; got != 110 {
		t.Fatalf("budget changed by second approval: %v", got)
	}
	if n := len(f.svc.ChangeLogs(ctx)); n != 1 {
		t.Fatalf("expected one change log, got %d", n)
	}
}

func TestRejectLeavesBudgetUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 110)
	rejected, err := f.svc.RejectRequest(ctx, &primeMinister, change.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}
	if got := f.item(t, 1).Value; got != 100 {
		t.Fatalf("reject must not touch the budget, got %v", got)
	}
	if n := len(f.svc.ChangeLogs(ctx)); n != 0 {
		t.Fatalf("reject must not log, got %d", n)
	}
	_, err = f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindInvalidState)
}

func TestApproveRequiresApprover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 110)

	_, err := f.svc.ApproveRequest(ctx, &healthMember, change.ID)
	expectKind(t, err, domain.KindAuthorization)
	_, err = f.svc.RejectRequest(ctx, &financeMember, change.ID)
	expectKind(t, err, domain.KindAuthorization)
	_, err = f.svc.ApproveRequest(ctx, nil, change.ID)
	expectKind(t, err, domain.KindValidation)
	_, err = f.svc.ApproveRequest(ctx, &primeMinister, 404)
	expectKind(t, err, domain.KindNotFound)
	if !domain.IsInvalidState(err) {
		t.Fatalf("a missing request counts as invalid state")
	}
	if got := f.item(t, 1).Value; got != 100 {
		t.Fatalf("failed approvals must not mutate, got %v", got)
	}
}

func TestApproveDeletedItemFailsWithoutLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 110)
	if err := f.svc.DeleteBudgetItem(ctx, &financeMember, 2025, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	if !domain.IsInvalidState(err) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if n := len(f.svc.ChangeLogs(ctx)); n != 0 {
		t.Fatalf("no change log may be written, got %d", n)
	}
	stored, _ := f.stores.Pending.FindByID(ctx, change.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("request must stay PENDING, got %s", stored.Status)
	}
}

func TestAuditFailureRestoresBudget(t *testing.T) {
	ctx := context.Background()
	metrics := core.NewExpvarMetricsRecorder("")
	sink := core.AuditSinkFunc(func(context.Context, domain.ChangeLog) (domain.ChangeLog, error) {
		return domain.ChangeLog{}, errInjected
	})
	f := newFixture(t, core.WithAuditSink(sink), core.WithMetrics(metrics))
	change := f.submit(t, healthMember, 1, 110)
	before, _ := f.svc.Budget(ctx, 2025)

	_, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindRolledBack)
	if !errors.Is(err, errInjected) {
		t.Fatalf("cause must be reachable, got %v", err)
	}
	if domain.IsFatal(err) {
		t.Fatalf("a successful rollback is not fatal")
	}
	after, _ := f.svc.Budget(ctx, 2025)
	if f.item(t, 1).Value != 100 || after.NetResult != before.NetResult || !after.TotalsConsistent() {
		t.Fatalf("budget not restored: before %+v after %+v", before, after)
	}
	stored, _ := f.stores.Pending.FindByID(ctx, change.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("request must be reopened, got %s", stored.Status)
	}
	if got := metrics.Snapshot().Compensations[core.CompensationRestored]; got != 1 {
		t.Fatalf("expected one restored compensation, got %d", got)
	}
}

func TestAuditFailureWithStuckStatusIsFatal(t *testing.T) {
	ctx := context.Background()
	metrics := core.NewExpvarMetricsRecorder("")
	var f *fixture
	sink := core.AuditSinkFunc(func(context.Context, domain.ChangeLog) (domain.ChangeLog, error) {
		f.adapter.setSaveFailure(domain.CollectionPendingChanges, true)
		return domain.ChangeLog{}, errInjected
	})
	f = newFixture(t, core.WithAuditSink(sink), core.WithMetrics(metrics))
	change := f.submit(t, healthMember, 1, 110)

	_, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindCompensation)
	if !domain.IsFatal(err) {
		t.Fatalf("a request left APPROVED must be fatal, got %v", err)
	}
	if !errors.Is(err, errInjected) {
		t.Fatalf("cause must be reachable, got %v", err)
	}
	if f.item(t, 1).Value != 100 {
		t.Fatalf("budget must still be restored, got %v", f.item(t, 1).Value)
	}
	stored, _ := f.stores.Pending.FindByID(ctx, change.ID)
	if stored.Status != domain.StatusApproved {
		t.Fatalf("expected the request stuck at APPROVED, got %s", stored.Status)
	}
	if n := len(f.svc.ChangeLogs(ctx)); n != 0 {
		t.Fatalf("no change log may be written, got %d", n)
	}
	if got := metrics.Snapshot().Compensations[core.CompensationFailed]; got != 1 {
		t.Fatalf("expected one failed compensation, got %d", got)
	}
}

func TestApproveRequiresExistingRequester(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 110)
	if _, err := f.stores.Users.Delete(ctx, healthMember); err != nil {
		t.Fatalf("delete requester: %v", err)
	}

	_, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindNotFound)
	if f.item(t, 1).Value != 100 {
		t.Fatalf("budget must be untouched")
	}
	stored, _ := f.stores.Pending.FindByID(ctx, change.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("request must stay PENDING, got %s", stored.Status)
	}
	if n := len(f.svc.ChangeLogs(ctx)); n != 0 {
		t.Fatalf("no change log may be written, got %d", n)
	}
}

func TestStatusWriteFailureRestoresBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 110)
	f.adapter.setSaveFailure(domain.CollectionPendingChanges, true)

	_, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindRolledBack)
	if f.item(t, 1).Value != 100 {
		t.Fatalf("budget not restored")
	}
	if n := len(f.svc.ChangeLogs(ctx)); n != 0 {
		t.Fatalf("no change log may be written, got %d", n)
	}

	f.adapter.setSaveFailure(domain.CollectionPendingChanges, false)
	if _, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
}

func TestCompensationFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	obsCore, observed := observer.New(zapcore.InfoLevel)
	metrics := core.NewExpvarMetricsRecorder("")
	var f *fixture
	sink := core.AuditSinkFunc(func(context.Context, domain.ChangeLog) (domain.ChangeLog, error) {
		f.adapter.setSaveFailure(domain.CollectionBudgets, true)
		return domain.ChangeLog{}, errInjected
	})
	f = newFixture(t, core.WithAuditSink(sink), core.WithLogger(zap.New(obsCore)), core.WithMetrics(metrics))
	change := f.submit(t, healthMember, 1, 110)

	_, err := f.svc.ApproveRequest(ctx, &primeMinister, change.ID)
	expectKind(t, err, domain.KindCompensation)
	if !domain.IsFatal(err) {
		t.Fatalf("expected fatal error")
	}
	if !errors.Is(err, errInjected) {
		t.Fatalf("rollback cause must be reachable, got %v", err)
	}
	if observed.FilterField(zap.Bool("fatal", true)).Len() == 0 {
		t.Fatalf("expected a fatal log entry")
	}
	if got := metrics.Snapshot().Compensations[core.CompensationFailed]; got != 1 {
		t.Fatalf("expected one failed compensation, got %d", got)
	}
}

func TestSubmitSurfacesStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.adapter.setLoadFailure(domain.CollectionPendingChanges, true)
	item := f.item(t, 1)
	actor := healthMember
	_, err := f.svc.SubmitChangeRequest(context.Background(), &actor, &item, 110)
	expectKind(t, err, domain.KindStorage)
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.UpdateItem(ctx, &financeMember, 2025, 2, 11000)
	if err != nil {
		t.Fatalf("finance edit: %v", err)
	}
	if !res.Direct || res.Item.Value != 11000 || f.item(t, 2).Value != 11000 {
		t.Fatalf("expected direct edit, got %+v", res)
	}
	logs := f.svc.ChangeLogs(ctx)
	if len(logs) != 1 || logs[0].OldValue != 10000 || logs[0].ActorID != financeMember.ID {
		t.Fatalf("unexpected logs %+v", logs)
	}

	_, err = f.svc.UpdateItem(ctx, &financeMember, 2025, 2, 30000)
	if domain.RuleOf(err) != core.RuleEditLimit {
		t.Fatalf("expected edit limit, got %v", err)
	}
	_, err = f.svc.UpdateItem(ctx, &financeMember, 2025, 2, 11000)
	if domain.RuleOf(err) != core.RuleNoop {
		t.Fatalf("expected no-op rejection, got %v", err)
	}
	if _, err := f.svc.UpdateItem(ctx, &financeMember, 2025, 4, 750); err != nil {
		t.Fatalf("zero original is unrestricted: %v", err)
	}

	res, err = f.svc.UpdateItem(ctx, &healthMember, 2025, 1, 180)
	if err != nil {
		t.Fatalf("member edit: %v", err)
	}
	if res.Direct || res.Request.Status != domain.StatusPending || f.item(t, 1).Value != 100 {
		t.Fatalf("expected change request, got %+v", res)
	}

	_, err = f.svc.UpdateItem(ctx, &primeMinister, 2025, 1, 180)
	expectKind(t, err, domain.KindAuthorization)
	_, err = f.svc.UpdateItem(ctx, nil, 2025, 1, 180)
	expectKind(t, err, domain.KindValidation)
	_, err = f.svc.UpdateItem(ctx, &citizen, 2025, 1, 110)
	expectKind(t, err, domain.KindAuthorization)
	_, err = f.svc.UpdateItem(ctx, &financeMember, 2025, 77, 110)
	expectKind(t, err, domain.KindNotFound)
}

func TestUpdateItemAuditFailureRestores(t *testing.T) {
	sink := core.AuditSinkFunc(func(context.Context, domain.ChangeLog) (domain.ChangeLog, error) {
		return domain.ChangeLog{}, errInjected
	})
	f := newFixture(t, core.WithAuditSink(sink))
	_, err := f.svc.UpdateItem(context.Background(), &financeMember, 2025, 2, 10500)
	expectKind(t, err, domain.KindRolledBack)
	if f.item(t, 2).Value != 10000 {
		t.Fatalf("direct edit not restored")
	}
}

func TestCreateBudgetItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	vaccines := domain.BudgetItem{ID: 5, Year: 2025, Name: "Vaccines", Value: 200, Ministries: []domain.Ministry{domain.MinistryHealth}}

	created, err := f.svc.CreateBudgetItem(ctx, &financeMember, vaccines)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 5 {
		t.Fatalf("unexpected item %+v", created)
	}
	budget, _ := f.svc.Budget(ctx, 2025)
	if budget.TotalExpense != 800 || !budget.TotalsConsistent() {
		t.Fatalf("totals not updated: %+v", budget)
	}
	logs := f.svc.ChangeLogs(ctx)
	if len(logs) != 1 || logs[0].OldValue != 0 || logs[0].NewValue != 200 {
		t.Fatalf("unexpected creation log %+v", logs)
	}

	dupName := vaccines
	dupName.ID = 6
	_, err = f.svc.CreateBudgetItem(ctx, &financeMember, dupName)
	if domain.RuleOf(err) != core.RuleDuplicate {
		t.Fatalf("expected duplicate, got %v", err)
	}
	dupID := vaccines
	dupID.Name = "Clinics"
	_, err = f.svc.CreateBudgetItem(ctx, &financeMember, dupID)
	if domain.RuleOf(err) != core.RuleDuplicate {
		t.Fatalf("expected duplicate id, got %v", err)
	}

	large := domain.BudgetItem{ID: 7, Year: 2025, Name: "Stadium", Value: 2000, Ministries: []domain.Ministry{domain.MinistryInfrastructure}}
	_, err = f.svc.CreateBudgetItem(ctx, &financeMember, large)
	if domain.RuleOf(err) != core.RuleBalanceLimit {
		t.Fatalf("expected balance limit, got %v", err)
	}

	_, err = f.svc.CreateBudgetItem(ctx, &healthMember, domain.BudgetItem{ID: 8, Year: 2025, Name: "Clinics", Value: 1, Ministries: []domain.Ministry{domain.MinistryHealth}})
	expectKind(t, err, domain.KindAuthorization)

	_, err = f.svc.CreateBudgetItem(ctx, &financeMember, domain.BudgetItem{ID: 9, Year: 2031, Name: "Future", Value: 1, Ministries: []domain.Ministry{domain.MinistryHealth}})
	expectKind(t, err, domain.KindNotFound)
}

func TestCreateBudgetItemAuditFailureRemovesItem(t *testing.T) {
	sink := core.AuditSinkFunc(func(context.Context, domain.ChangeLog) (domain.ChangeLog, error) {
		return domain.ChangeLog{}, errInjected
	})
	f := newFixture(t, core.WithAuditSink(sink))
	item := domain.BudgetItem{ID: 5, Year: 2025, Name: "Vaccines", Value: 200, Ministries: []domain.Ministry{domain.MinistryHealth}}
	_, err := f.svc.CreateBudgetItem(context.Background(), &financeMember, item)
	expectKind(t, err, domain.KindRolledBack)
	if _, ok := f.stores.Budgets.FindItem(context.Background(), 2025, 5); ok {
		t.Fatalf("created item must be removed on rollback")
	}
}

func TestDeleteBudgetItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.DeleteBudgetItem(ctx, &financeMember, 2025, 3)
	if domain.RuleOf(err) != core.RuleProtected {
		t.Fatalf("expected protected item rejection, got %v", err)
	}
	expectKind(t, f.svc.DeleteBudgetItem(ctx, &healthMember, 2025, 1), domain.KindAuthorization)
	expectKind(t, f.svc.DeleteBudgetItem(ctx, &financeMember, 2025, 99), domain.KindNotFound)

	if err := f.svc.DeleteBudgetItem(ctx, &financeMember, 2025, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	budget, _ := f.svc.Budget(ctx, 2025)
	if _, ok := budget.FindItem(1); ok || budget.TotalExpense != 500 {
		t.Fatalf("item not removed or totals stale: %+v", budget)
	}
}

func TestCreateAndImportBudgets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateBudget(ctx, seedBudget())
	if domain.RuleOf(err) != core.RuleDuplicate {
		t.Fatalf("expected duplicate year, got %v", err)
	}
	_, err = f.svc.CreateBudget(ctx, domain.Budget{Year: 1999})
	if domain.RuleOf(err) != core.RuleIntegrity {
		t.Fatalf("expected minimum year, got %v", err)
	}
	_, err = f.svc.CreateBudget(ctx, domain.Budget{Year: 2026, Items: []domain.BudgetItem{
		{ID: 1, Name: "A", Value: 1, Ministries: []domain.Ministry{domain.MinistryHealth}},
		{ID: 2, Name: "A", Value: 1, Ministries: []domain.Ministry{domain.MinistryHealth}},
	}})
	if domain.RuleOf(err) != core.RuleDuplicate {
		t.Fatalf("expected duplicate name, got %v", err)
	}

	replacement := domain.Budget{Year: 2025, Items: []domain.BudgetItem{
		{ID: 1, Name: "Hospitals", Value: 300, Ministries: []domain.Ministry{domain.MinistryHealth}},
	}}
	next := domain.Budget{Year: 2026, Items: []domain.BudgetItem{
		{ID: 1, Name: "Schools", Value: 50, Ministries: []domain.Ministry{domain.MinistryEducation}},
	}}
	n, err := f.svc.ImportBudgets(ctx, []domain.Budget{next, replacement})
	if err != nil || n != 2 {
		t.Fatalf("import: %d %v", n, err)
	}
	budgets := f.svc.Budgets(ctx)
	if len(budgets) != 2 || budgets[0].Year != 2025 || budgets[1].Year != 2026 {
		t.Fatalf("unexpected budgets %+v", budgets)
	}
	if budgets[0].TotalExpense != 300 || budgets[1].Items[0].Year != 2026 {
		t.Fatalf("import must fill years and totals: %+v", budgets)
	}

	_, err = f.svc.ImportBudgets(ctx, []domain.Budget{next, next})
	if domain.RuleOf(err) != core.RuleDuplicate {
		t.Fatalf("expected duplicate year in import, got %v", err)
	}
	_, err = f.svc.Budget(ctx, 2040)
	expectKind(t, err, domain.KindNotFound)
}

func TestListingAndCleanup(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	tick := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	clock := core.ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(-time.Minute)
		return tick
	})
	f := newFixture(t, core.WithClock(clock))
	a := f.submit(t, healthMember, 1, 110)
	b := f.submit(t, defenseMember, 4, 10)
	c := f.submit(t, healthMember, 3, 550)

	all := f.svc.PendingChanges(ctx)
	if len(all) != 3 || all[0].ID != c.ID || all[2].ID != a.ID {
		t.Fatalf("expected oldest first, got %+v", all)
	}
	if _, err := f.svc.ApproveRequest(ctx, &primeMinister, a.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.RejectRequest(ctx, &primeMinister, b.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if open := f.svc.PendingChanges(ctx, domain.StatusPending); len(open) != 1 || open[0].ID != c.ID {
		t.Fatalf("unexpected pending filter %+v", open)
	}
	if mine := f.svc.PendingChangesFor(ctx, healthMember.ID); len(mine) != 2 {
		t.Fatalf("expected two requests by health member, got %d", len(mine))
	}

	removed, err := f.svc.CleanupResolved(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("cleanup: %d %v", removed, err)
	}
	if rest := f.svc.PendingChanges(ctx); len(rest) != 1 || rest[0].ID != c.ID {
		t.Fatalf("unexpected remaining %+v", rest)
	}
	if removed, _ := f.svc.CleanupResolved(ctx); removed != 0 {
		t.Fatalf("second cleanup removed %d", removed)
	}
}

func TestConcurrentSubmissionsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.WithLimits(core.Limits{MaxPendingPerRequester: 100}))
	item := f.item(t, 2)
	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := financeMember
			copyItem := item.Clone()
			if _, err := f.svc.SubmitChangeRequest(ctx, &actor, &copyItem, 10001+float64(i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("submit: %v", err)
	}
	seen := map[int]bool{}
	for _, change := range f.svc.PendingChanges(ctx) {
		if seen[change.ID] {
			t.Fatalf("duplicate id %d", change.ID)
		}
		seen[change.ID] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d requests, got %d", workers, len(seen))
	}
}

func TestConcurrentApprovalsApplyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	change := f.submit(t, healthMember, 1, 110)
	const approvers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pm := primeMinister
			if _, err := f.svc.ApproveRequest(ctx, &pm, change.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !domain.IsInvalidState(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one approval, got %d", successes)
	}
	if n := len(f.svc.ChangeLogs(ctx)); n != 1 {
		t.Fatalf("expected one change log, got %d", n)
	}
}

func TestApproveStaleSnapshotIsReported(t *testing.T) {
	ctx := context.Background()
	obsCore, observed := observer.New(zapcore.WarnLevel)
	f := newFixture(t, core.WithLogger(zap.New(obsCore)))
	first := f.submit(t, healthMember, 4, 10)
	second := f.submit(t, defenseMember, 4, 20)

	if _, err := f.svc.ApproveRequest(ctx, &primeMinister, first.ID); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if observed.FilterMessage("approving request with a stale old value").Len() != 0 {
		t.Fatalf("fresh request must not be reported")
	}
	if _, err := f.svc.ApproveRequest(ctx, &primeMinister, second.ID); err != nil {
		t.Fatalf("approve second: %v", err)
	}
	if observed.FilterMessage("approving request with a stale old value").Len() != 1 {
		t.Fatalf("expected stale snapshot warning")
	}
	logs := f.svc.ChangeLogs(ctx)
	if last := logs[len(logs)-1]; last.OldValue != 10 || last.NewValue != 20 {
		t.Fatalf("change log must record the replaced value, got %+v", last)
	}
	if second.OldValue != 0 {
		t.Fatalf("request snapshot changed: %+v", second)
	}
}
