package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"budgetcore/pkg/domain"
)

// Clock supplies timestamps for submitted dates and change logs.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Capabilities is the authorization contract used by Service.
type Capabilities interface {
	CheckSubmit(user *domain.User, item *domain.BudgetItem) error
	CheckApprove(user *domain.User) error
	CheckEdit(user *domain.User, item *domain.BudgetItem) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLimits overrides the business thresholds.
func WithLimits(limits Limits) Option {
	return func(s *Service) {
		s.validator = NewValidator(limits)
	}
}

// WithAuditSink replaces the default change log sink.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithAuthorizer replaces the role-based authorizer.
func WithAuthorizer(auth Capabilities) Option {
	return func(s *Service) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// WithUsers sets the users store approvals resolve requesters against.
// Without it the requester is not checked.
func WithUsers(users *CollectionStore[domain.User]) Option {
	return func(s *Service) {
		s.users = users
	}
}

// Service coordinates change requests across the budgets, pending changes
// and change log stores. The stores share no transaction: an approval writes
// the budget first and undoes that write itself if a later step fails.
type Service struct {
	// sagaMu serializes approvals, rejections and direct budget writes, so a
	// second resolver sees the first one's status and a compensation never
	// undoes a concurrent write.
	sagaMu    sync.Mutex
	budgets   *BudgetRepository
	pending   *CollectionStore[domain.PendingChange]
	logs      *CollectionStore[domain.ChangeLog]
	users     *CollectionStore[domain.User]
	validator Validator
	auth      Capabilities
	audit     AuditSink
	metrics   MetricsRecorder
	clock     Clock
	logger    *zap.Logger
}

// NewService wires a service over the three stores.
func NewService(budgets *BudgetRepository, pending *CollectionStore[domain.PendingChange], logs *CollectionStore[domain.ChangeLog], opts ...Option) *Service {
	s := &Service{
		budgets:   budgets,
		pending:   pending,
		logs:      logs,
		validator: NewValidator(Limits{}),
		auth:      NewAuthorizer(),
		audit:     NewStoreAuditSink(logs),
		metrics:   noopMetrics{},
		clock:     systemClock{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validator returns the validator in use.
func (s *Service) Validator() Validator { return s.validator }

func (s *Service) run(ctx context.Context, op string, fields []zap.Field, fn func(log *zap.Logger) error) error {
	start := time.Now()
	log := s.logger.With(append([]zap.Field{
		zap.String("op", op),
		zap.String("request_id", uuid.NewString()),
	}, fields...)...)
	err := fn(log)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	switch {
	case err == nil:
		log.Info("operation completed")
	case domain.IsFatal(err):
		log.Error("operation failed", zap.Error(err), zap.Bool("fatal", true))
	case domain.IsKind(err, domain.KindRolledBack), domain.IsKind(err, domain.KindStorage):
		log.Error("operation failed", zap.Error(err))
	default:
		log.Warn("operation rejected", zap.Error(err), zap.String("kind", string(domain.KindOf(err))))
	}
	return domain.WithOp(op, err)
}

func actorFields(actor *domain.User) []zap.Field {
	if actor == nil {
		return nil
	}
	return []zap.Field{zap.Int("actor_id", actor.ID), zap.String("role", string(actor.Role))}
}

func (s *Service) now() string {
	return s.clock.Now().Format(domain.TimestampLayout)
}

// liveItem resolves the stored item for (year, id).
func (s *Service) liveItem(ctx context.Context, year, id int) (domain.BudgetItem, error) {
	if _, ok := s.budgets.FindByYear(ctx, year); !ok {
		return domain.BudgetItem{}, domain.NotFoundError("budget for year %d does not exist", year)
	}
	item, ok := s.budgets.FindItem(ctx, year, id)
	if !ok {
		return domain.BudgetItem{}, domain.NotFoundError("budget item %d does not exist in %d", id, year)
	}
	return item, nil
}

// SubmitChangeRequest files a PENDING request to set item's value to
// newValue on behalf of actor. The requester name is the actor's full name.
func (s *Service) SubmitChangeRequest(ctx context.Context, actor *domain.User, item *domain.BudgetItem, newValue float64) (domain.PendingChange, error) {
	name := ""
	if actor != nil {
		name = actor.FullName
		if strings.TrimSpace(name) == "" {
			name = actor.Username
		}
	}
	return s.SubmitChangeRequestAs(ctx, actor, name, item, newValue)
}

// SubmitChangeRequestAs is SubmitChangeRequest with an explicit requester
// name, which must match the actor's full name or username.
func (s *Service) SubmitChangeRequestAs(ctx context.Context, actor *domain.User, requesterName string, item *domain.BudgetItem, newValue float64) (domain.PendingChange, error) {
	var created domain.PendingChange
	err := s.run(ctx, "submit", actorFields(actor), func(log *zap.Logger) error {
		if err := s.auth.CheckSubmit(actor, item); err != nil {
			return err
		}
		live, err := s.liveItem(ctx, item.Year, item.ID)
		if err != nil {
			return err
		}
		// The stored item decides ownership, not the caller's copy.
		if err := s.auth.CheckSubmit(actor, &live); err != nil {
			return err
		}
		name := strings.TrimSpace(requesterName)
		if name == "" {
			return domain.ValidationError(RuleRequester, "requester name cannot be blank")
		}
		if name != actor.FullName && name != actor.Username {
			return domain.ValidationError(RuleRequester, "requester name does not match the acting user")
		}
		if newValue < 0 {
			return domain.ValidationError(RuleNonNegative, "amount cannot be negative")
		}
		if newValue == live.Value {
			return domain.ValidationError(RuleNoop, "new value equals the current value")
		}
		// The edit limit applies to direct edits only.
		limit := s.validator.Limits().MaxPendingPerRequester
		created, err = s.pending.CreateIf(ctx, func(existing []domain.PendingChange) error {
			open := 0
			for _, change := range existing {
				if change.RequesterID == actor.ID && change.Status == domain.StatusPending {
					open++
				}
			}
			if open >= limit {
				return domain.ValidationError(RulePendingCap, "requester already has %d pending requests (limit %d)", open, limit)
			}
			return nil
		}, func(id int) (domain.PendingChange, error) {
			return domain.PendingChange{
				ID:             id,
				BudgetItemID:   live.ID,
				BudgetItemYear: live.Year,
				BudgetItemName: live.Name,
				RequesterName:  name,
				RequesterID:    actor.ID,
				OldValue:       live.Value,
				NewValue:       newValue,
				Status:         domain.StatusPending,
				SubmittedDate:  s.now(),
			}, nil
		})
		if err != nil {
			return err
		}
		log.Info("change request submitted", zap.Int("change_id", created.ID), zap.Int("item_id", live.ID))
		return nil
	})
	return created, err
}

// pendingRequest re-reads a request and requires it to be PENDING.
func (s *Service) pendingRequest(ctx context.Context, requestID int) (domain.PendingChange, error) {
	change, ok := s.pending.FindByID(ctx, requestID)
	if !ok {
		return domain.PendingChange{}, domain.NotFoundError("change request %d not found", requestID)
	}
	if change.Status != domain.StatusPending {
		return domain.PendingChange{}, domain.CheckTransition(change.ID, change.Status, domain.StatusApproved)
	}
	return change, nil
}

// ApproveRequest applies a PENDING request to its budget item, marks it
// APPROVED and records a change log entry. The requester must still exist
// when a users store is wired. A failure after the budget write restores the
// previous value: the error is KindRolledBack when every step was undone and
// KindCompensation (fatal) when the budget or the request status could not be.
func (s *Service) ApproveRequest(ctx context.Context, approver *domain.User, requestID int) (domain.PendingChange, error) {
	var approved domain.PendingChange
	fields := append(actorFields(approver), zap.Int("change_id", requestID))
	err := s.run(ctx, "approve", fields, func(log *zap.Logger) error {
		if err := s.auth.CheckApprove(approver); err != nil {
			return err
		}
		s.sagaMu.Lock()
		defer s.sagaMu.Unlock()
		change, err := s.pendingRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if s.users != nil && !s.users.ExistsByID(ctx, change.RequesterID) {
			return domain.NotFoundError("requester %d of change request %d not found", change.RequesterID, change.ID)
		}
		live, err := s.liveItem(ctx, change.BudgetItemYear, change.BudgetItemID)
		if err != nil {
			return err
		}
		// Requests are capped per requester, not per item, so another
		// approval may have moved the value since submission. Reported, not
		// blocked.
		if live.Value != change.OldValue {
			log.Warn("approving request with a stale old value",
				zap.Int("item_id", live.ID),
				zap.Float64("submitted_old_value", change.OldValue),
				zap.Float64("current_value", live.Value))
		}
		previous, err := s.setItemValue(ctx, change.BudgetItemYear, change.BudgetItemID, change.NewValue)
		if err != nil {
			return err
		}
		// Budget written; every failure from here on is compensated.
		approved, err = s.pending.Update(ctx, change.ID, func(c *domain.PendingChange) error {
			return c.Approve()
		})
		if err != nil {
			return s.compensateValue(ctx, log, change, previous, err)
		}
		_, err = s.audit.Record(ctx, domain.ChangeLog{
			BudgetItemID: change.BudgetItemID,
			OldValue:     previous,
			NewValue:     change.NewValue,
			Timestamp:    s.now(),
			ActorName:    approver.FullName,
			ActorID:      approver.ID,
		})
		if err != nil {
			approved = domain.PendingChange{}
			reopenErr := s.reopen(ctx, change.ID)
			compErr := s.compensateValue(ctx, log, change, previous, err)
			if reopenErr == nil {
				return compErr
			}
			log.Error("could not reopen change request, request needs inspection",
				zap.Error(reopenErr), zap.Bool("fatal", true))
			if domain.IsFatal(compErr) {
				return compErr
			}
			// Budget restored but the request stays APPROVED with no change
			// log, and it cannot be retried.
			s.metrics.Compensation(ctx, CompensationFailed)
			return &domain.Error{
				Kind:    domain.KindCompensation,
				Message: fmt.Sprintf("failed to process approved change (%v); request %d left APPROVED", err, change.ID),
				Err:     errors.Join(err, reopenErr),
			}
		}
		return nil
	})
	return approved, err
}

// RejectRequest marks a PENDING request REJECTED. The budget is untouched.
func (s *Service) RejectRequest(ctx context.Context, approver *domain.User, requestID int) (domain.PendingChange, error) {
	var rejected domain.PendingChange
	fields := append(actorFields(approver), zap.Int("change_id", requestID))
	err := s.run(ctx, "reject", fields, func(*zap.Logger) error {
		if err := s.auth.CheckApprove(approver); err != nil {
			return err
		}
		s.sagaMu.Lock()
		defer s.sagaMu.Unlock()
		if _, err := s.pendingRequest(ctx, requestID); err != nil {
			return err
		}
		var err error
		rejected, err = s.pending.Update(ctx, requestID, func(c *domain.PendingChange) error {
			return c.Reject()
		})
		return err
	})
	return rejected, err
}

// setItemValue writes value into the stored item and returns the value it
// replaced.
func (s *Service) setItemValue(ctx context.Context, year, itemID int, value float64) (float64, error) {
	var previous float64
	_, err := s.budgets.Update(ctx, year, func(b *domain.Budget) error {
		old, ok := b.SetItemValue(itemID, value)
		if !ok {
			return domain.NotFoundError("budget item %d does not exist in %d", itemID, year)
		}
		previous = old
		return nil
	})
	return previous, err
}

// compensateValue restores the item value replaced by an approval.
func (s *Service) compensateValue(ctx context.Context, log *zap.Logger, change domain.PendingChange, previous float64, cause error) error {
	log.Error("approval failed after budget write, restoring item",
		zap.Int("item_id", change.BudgetItemID),
		zap.Float64("restore_value", previous),
		zap.Error(cause))
	return s.compensate(ctx, log, cause, func() error {
		_, err := s.setItemValue(ctx, change.BudgetItemYear, change.BudgetItemID, previous)
		return err
	})
}

func (s *Service) compensate(ctx context.Context, log *zap.Logger, cause error, restore func() error) error {
	if rbErr := restore(); rbErr != nil {
		s.metrics.Compensation(ctx, CompensationFailed)
		log.Error("rollback failed, budget needs inspection", zap.Error(rbErr), zap.Bool("fatal", true))
		return &domain.Error{
			Kind:    domain.KindCompensation,
			Message: fmt.Sprintf("failed to process approved change (%v); rollback failed", cause),
			Err:     rbErr,
		}
	}
	s.metrics.Compensation(ctx, CompensationRestored)
	return &domain.Error{
		Kind:    domain.KindRolledBack,
		Message: "failed to process approved change; budget restored",
		Err:     cause,
	}
}

// reopen returns an approved request to PENDING after its audit record could
// not be written, so the approval can be retried. This is the only backwards
// status write and it happens only as compensation.
func (s *Service) reopen(ctx context.Context, requestID int) error {
	_, err := s.pending.Update(ctx, requestID, func(c *domain.PendingChange) error {
		if c.Status != domain.StatusApproved {
			return nil
		}
		c.Status = domain.StatusPending
		return nil
	})
	return err
}

// EditResult reports what UpdateItem did.
type EditResult struct {
	// Direct is true when the value was written without a change request.
	Direct  bool
	Item    domain.BudgetItem
	Request domain.PendingChange
}

// UpdateItem edits an item value. Finance members write directly; other
// government members file a change request; the prime minister cannot edit.
func (s *Service) UpdateItem(ctx context.Context, actor *domain.User, year, itemID int, newValue float64) (EditResult, error) {
	if actor == nil {
		return EditResult{}, domain.WithOp("update_item", domain.ValidationError(RuleRequired, "user cannot be nil"))
	}
	if actor.Role == domain.RolePrimeMinister {
		return EditResult{}, domain.WithOp("update_item", domain.AuthorizationError("the prime minister cannot edit budget items"))
	}
	live, err := s.liveItem(ctx, year, itemID)
	if err != nil {
		return EditResult{}, domain.WithOp("update_item", err)
	}
	if s.auth.CheckEdit(actor, &live) != nil {
		change, err := s.SubmitChangeRequest(ctx, actor, &live, newValue)
		return EditResult{Request: change}, err
	}
	var result EditResult
	fields := append(actorFields(actor), zap.Int("item_id", itemID), zap.Int("year", year))
	err = s.run(ctx, "update_item", fields, func(log *zap.Logger) error {
		s.sagaMu.Lock()
		defer s.sagaMu.Unlock()
		current, err := s.liveItem(ctx, year, itemID)
		if err != nil {
			return err
		}
		updated := current.Clone()
		updated.Value = newValue
		if err := s.validator.ValidateUpdate(&current, &updated); err != nil {
			return err
		}
		if err := s.validator.ValidateDataIntegrity(&updated); err != nil {
			return err
		}
		previous, err := s.setItemValue(ctx, year, itemID, newValue)
		if err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, domain.ChangeLog{
			BudgetItemID: itemID,
			OldValue:     previous,
			NewValue:     newValue,
			Timestamp:    s.now(),
			ActorName:    actor.FullName,
			ActorID:      actor.ID,
		})
		if err != nil {
			return s.compensate(ctx, log, err, func() error {
				_, rbErr := s.setItemValue(ctx, year, itemID, previous)
				return rbErr
			})
		}
		result = EditResult{Direct: true, Item: updated}
		return nil
	})
	return result, err
}

// CreateBudgetItem adds a new item to an existing budget. Finance only.
func (s *Service) CreateBudgetItem(ctx context.Context, actor *domain.User, item domain.BudgetItem) (domain.BudgetItem, error) {
	fields := append(actorFields(actor), zap.Int("item_id", item.ID), zap.Int("year", item.Year))
	err := s.run(ctx, "create_item", fields, func(log *zap.Logger) error {
		if err := s.auth.CheckEdit(actor, &item); err != nil {
			return err
		}
		s.sagaMu.Lock()
		defer s.sagaMu.Unlock()
		if err := s.validator.ValidateDataIntegrity(&item); err != nil {
			return err
		}
		if _, ok := s.budgets.FindByYear(ctx, item.Year); !ok {
			return domain.NotFoundError("budget for year %d does not exist", item.Year)
		}
		if _, err := s.budgets.Update(ctx, item.Year, func(b *domain.Budget) error {
			if err := s.validator.ValidateCreation(&item, b); err != nil {
				return err
			}
			b.Items = append(b.Items, item.Clone())
			b.Recalculate()
			return nil
		}); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, domain.ChangeLog{
			BudgetItemID: item.ID,
			OldValue:     0,
			NewValue:     item.Value,
			Timestamp:    s.now(),
			ActorName:    actor.FullName,
			ActorID:      actor.ID,
		})
		if err != nil {
			return s.compensate(ctx, log, err, func() error {
				_, rbErr := s.budgets.Update(ctx, item.Year, func(b *domain.Budget) error {
					b.RemoveItem(item.ID)
					return nil
				})
				return rbErr
			})
		}
		return nil
	})
	if err != nil {
		return domain.BudgetItem{}, err
	}
	return item, nil
}

// DeleteBudgetItem removes an unprotected item. Finance only.
func (s *Service) DeleteBudgetItem(ctx context.Context, actor *domain.User, year, itemID int) error {
	fields := append(actorFields(actor), zap.Int("item_id", itemID), zap.Int("year", year))
	return s.run(ctx, "delete_item", fields, func(*zap.Logger) error {
		s.sagaMu.Lock()
		defer s.sagaMu.Unlock()
		live, err := s.liveItem(ctx, year, itemID)
		if err != nil {
			return err
		}
		if err := s.auth.CheckEdit(actor, &live); err != nil {
			return err
		}
		_, err = s.budgets.Update(ctx, year, func(b *domain.Budget) error {
			current, ok := b.FindItem(itemID)
			if !ok {
				return domain.NotFoundError("budget item %d does not exist in %d", itemID, year)
			}
			if err := s.validator.ValidateDeletion(&current, b); err != nil {
				return err
			}
			b.RemoveItem(itemID)
			return nil
		})
		return err
	})
}

// CreateBudget stores a new yearly budget with recomputed totals.
func (s *Service) CreateBudget(ctx context.Context, budget domain.Budget) (domain.Budget, error) {
	var created domain.Budget
	err := s.run(ctx, "create_budget", []zap.Field{zap.Int("year", budget.Year)}, func(*zap.Logger) error {
		prepared, err := s.prepareBudget(budget)
		if err != nil {
			return err
		}
		if err := s.budgets.Insert(ctx, prepared); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return domain.ValidationError(RuleDuplicate, "budget for year %d already exists", budget.Year)
			}
			return err
		}
		created = prepared
		return nil
	})
	return created, err
}

// ImportBudgets validates and stores the given budgets in one write,
// replacing any budget for the same year.
func (s *Service) ImportBudgets(ctx context.Context, budgets []domain.Budget) (int, error) {
	err := s.run(ctx, "import_budgets", []zap.Field{zap.Int("count", len(budgets))}, func(*zap.Logger) error {
		seen := make(map[int]bool, len(budgets))
		prepared := make([]domain.Budget, 0, len(budgets))
		for _, budget := range budgets {
			if seen[budget.Year] {
				return domain.ValidationError(RuleDuplicate, "budget for year %d appears twice", budget.Year)
			}
			seen[budget.Year] = true
			p, err := s.prepareBudget(budget)
			if err != nil {
				return err
			}
			prepared = append(prepared, p)
		}
		return s.budgets.SaveAll(ctx, prepared)
	})
	if err != nil {
		return 0, err
	}
	return len(budgets), nil
}

func (s *Service) prepareBudget(budget domain.Budget) (domain.Budget, error) {
	b := budget.Clone()
	if b.Year < s.validator.Limits().MinBudgetYear {
		return domain.Budget{}, domain.ValidationError(RuleIntegrity, "budget year cannot be lower than %d", s.validator.Limits().MinBudgetYear)
	}
	if b.Items == nil {
		b.Items = []domain.BudgetItem{}
	}
	ids := make(map[int]bool, len(b.Items))
	names := make(map[string]bool, len(b.Items))
	for i := range b.Items {
		item := &b.Items[i]
		if item.Year == 0 {
			item.Year = b.Year
		}
		if item.Year != b.Year {
			return domain.Budget{}, domain.ValidationError(RuleYearMismatch, "item %d year %d does not match budget year %d", item.ID, item.Year, b.Year)
		}
		if err := s.validator.ValidateDataIntegrity(item); err != nil {
			return domain.Budget{}, err
		}
		if item.Value < 0 {
			return domain.Budget{}, domain.ValidationError(RuleNonNegative, "item %d amount cannot be negative", item.ID)
		}
		if ids[item.ID] || names[item.Name] {
			return domain.Budget{}, domain.ValidationError(RuleDuplicate, "budget %d has a duplicate item id or name (%d %q)", b.Year, item.ID, item.Name)
		}
		ids[item.ID] = true
		names[item.Name] = true
	}
	b.Recalculate()
	return b, nil
}

// PendingChanges returns change requests ordered by submission time, oldest
// first. With statuses given only requests in those states are returned.
func (s *Service) PendingChanges(ctx context.Context, statuses ...domain.Status) []domain.PendingChange {
	want := make(map[domain.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	changes := s.pending.Filter(ctx, func(c domain.PendingChange) bool {
		return len(want) == 0 || want[c.Status]
	})
	sortBySubmission(changes)
	return changes
}

// PendingChangesFor returns the requests filed by one requester, oldest first.
func (s *Service) PendingChangesFor(ctx context.Context, requesterID int) []domain.PendingChange {
	changes := s.pending.Filter(ctx, func(c domain.PendingChange) bool {
		return c.RequesterID == requesterID
	})
	sortBySubmission(changes)
	return changes
}

func sortBySubmission(changes []domain.PendingChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].SubmittedDate != changes[j].SubmittedDate {
			return changes[i].SubmittedDate < changes[j].SubmittedDate
		}
		return changes[i].ID < changes[j].ID
	})
}

// ChangeLogs returns the audit trail ordered by id.
func (s *Service) ChangeLogs(ctx context.Context) []domain.ChangeLog {
	logs := s.logs.Load(ctx)
	sort.Slice(logs, func(i, j int) bool { return logs[i].ID < logs[j].ID })
	return logs
}

// Budgets returns every budget ordered by year.
func (s *Service) Budgets(ctx context.Context) []domain.Budget {
	budgets := s.budgets.Load(ctx)
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].Year < budgets[j].Year })
	return budgets
}

// Budget returns the budget for year.
func (s *Service) Budget(ctx context.Context, year int) (domain.Budget, error) {
	budget, ok := s.budgets.FindByYear(ctx, year)
	if !ok {
		return domain.Budget{}, domain.NotFoundError("budget not found for year %d", year)
	}
	return budget, nil
}

// CleanupResolved deletes every APPROVED or REJECTED request.
func (s *Service) CleanupResolved(ctx context.Context) (int, error) {
	var removed int
	err := s.run(ctx, "cleanup", nil, func(log *zap.Logger) error {
		var err error
		removed, err = s.pending.DeleteWhere(ctx, func(c domain.PendingChange) bool {
			return c.Status.Terminal()
		})
		if err == nil {
			log.Info("resolved requests removed", zap.Int("removed", removed))
		}
		return err
	})
	return removed, err
}
