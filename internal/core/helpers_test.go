package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetcore/internal/core"
	"budgetcore/internal/infra/persistence/memory"
	"budgetcore/pkg/domain"
)

var errInjected = errors.New("injected failure")

// faultyAdapter wraps the memory adapter and fails saves of chosen
// collections on demand.
type faultyAdapter struct {
	*memory.Store
	mu       sync.Mutex
	failSave map[string]bool
	failLoad map[string]bool
}

func newFaultyAdapter() *faultyAdapter {
	return &faultyAdapter{Store: memory.NewStore(), failSave: map[string]bool{}, failLoad: map[string]bool{}}
}

func (f *faultyAdapter) setSaveFailure(collection string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSave[collection] = fail
}

func (f *faultyAdapter) setLoadFailure(collection string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLoad[collection] = fail
}

func (f *faultyAdapter) LoadAll(ctx context.Context, collection string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failLoad[collection]
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.LoadAll(ctx, collection)
}

func (f *faultyAdapter) SaveAll(ctx context.Context, collection string, payload []byte) error {
	f.mu.Lock()
	fail := f.failSave[collection]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.SaveAll(ctx, collection, payload)
}

var (
	healthMember  = domain.User{ID: 1, Username: "hmember", FullName: "Hanna Health", Role: domain.RoleGovernmentMember, Ministry: domain.MinistryHealth}
	financeMember = domain.User{ID: 2, Username: "fmember", FullName: "Fotis Finance", Role: domain.RoleGovernmentMember, Ministry: domain.MinistryFinance}
	primeMinister = domain.User{ID: 3, Username: "premier", FullName: "Petra Premier", Role: domain.RolePrimeMinister}
	citizen       = domain.User{ID: 4, Username: "citizen", FullName: "Chris Citizen", Role: domain.RoleCitizen}
	defenseMember = domain.User{ID: 5, Username: "dmember", FullName: "Dora Defense", Role: domain.RoleGovernmentMember, Ministry: domain.MinistryDefense}
)

func fixedClock() core.Clock {
	return core.ClockFunc(func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) })
}

// seedBudget is the 2025 budget used across service tests: one Health
// expense of 100 plus a revenue line that keeps the net result non-zero.
func seedBudget() domain.Budget {
	return domain.Budget{
		Year: 2025,
		Items: []domain.BudgetItem{
			{ID: 1, Year: 2025, Name: "Hospitals", Value: 100, Ministries: []domain.Ministry{domain.MinistryHealth}},
			{ID: 2, Year: 2025, Name: "Income Tax", Value: 10000, IsRevenue: true, Ministries: []domain.Ministry{domain.MinistryFinance}},
			{ID: 3, Year: 2025, Name: "Health", Value: 500, Ministries: []domain.Ministry{domain.MinistryHealth}},
			{ID: 4, Year: 2025, Name: "Zero Line", Value: 0, Ministries: []domain.Ministry{domain.MinistryHealth, domain.MinistryDefense}},
		},
	}
}

type fixture struct {
	adapter *faultyAdapter
	stores  core.Stores
	svc     *core.Service
}

func newFixture(t *testing.T, opts ...core.Option) *fixture {
	t.Helper()
	adapter := newFaultyAdapter()
	stores := core.OpenStores(adapter, nil)
	users := []domain.User{healthMember, financeMember, primeMinister, citizen, defenseMember}
	if err := stores.Users.SaveAll(context.Background(), users); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	svc := stores.Service(append([]core.Option{core.WithClock(fixedClock())}, opts...)...)
	if _, err := svc.CreateBudget(context.Background(), seedBudget()); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	return &fixture{adapter: adapter, stores: stores, svc: svc}
}

func (f *fixture) item(t *testing.T, id int) domain.BudgetItem {
	t.Helper()
	item, ok := f.stores.Budgets.FindItem(context.Background(), 2025, id)
	if !ok {
		t.Fatalf("item %d missing", id)
	}
	return item
}

func (f *fixture) submit(t *testing.T, actor domain.User, itemID int, value float64) domain.PendingChange {
	t.Helper()
	item := f.item(t, itemID)
	change, err := f.svc.SubmitChangeRequest(context.Background(), &actor, &item, value)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return change
}

func expectKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
