package core

import (
	"math"
	"strings"

	"budgetcore/pkg/domain"
)

// Validation rule names carried by validation errors.
const (
	RuleRequired      = "required"
	RuleDuplicate     = "duplicate_item"
	RuleNonNegative   = "non_negative"
	RuleMinistries    = "ministries"
	RuleBalanceLimit  = "balance_change_limit"
	RuleEditLimit     = "edit_change_limit"
	RuleNoop          = "noop_update"
	RuleProtected     = "protected_item"
	RuleIntegrity     = "data_integrity"
	RuleDivideByZero  = "divide_by_zero"
	RuleRequester     = "requester"
	RulePendingCap    = "pending_cap"
	RuleUser          = "user"
	RuleYearMismatch  = "year_mismatch"
	RuleSinglePremier = "single_prime_minister"
)

// Limits are the tunable business thresholds used by Validator and Service.
type Limits struct {
	// EditChangeLimit is the largest relative change allowed on an update.
	EditChangeLimit float64
	// BalanceChangeLimit is the largest relative move of the net result a new
	// item may cause.
	BalanceChangeLimit float64
	// MaxPendingPerRequester caps simultaneous PENDING requests per requester.
	MaxPendingPerRequester int
	MinBudgetYear          int
	ProtectedNames         []string
	// SmallNumber is the magnitude under which a net result counts as zero.
	SmallNumber float64
}

// DefaultLimits returns the stock thresholds.
func DefaultLimits() Limits {
	return Limits{
		EditChangeLimit:        0.25,
		BalanceChangeLimit:     0.10,
		MaxPendingPerRequester: 5,
		MinBudgetYear:          2000,
		ProtectedNames:         []string{"Defense", "Education", "Health"},
		SmallNumber:            0.01,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.EditChangeLimit <= 0 {
		l.EditChangeLimit = def.EditChangeLimit
	}
	if l.BalanceChangeLimit <= 0 {
		l.BalanceChangeLimit = def.BalanceChangeLimit
	}
	if l.MaxPendingPerRequester <= 0 {
		l.MaxPendingPerRequester = def.MaxPendingPerRequester
	}
	if l.MinBudgetYear <= 0 {
		l.MinBudgetYear = def.MinBudgetYear
	}
	if l.ProtectedNames == nil {
		l.ProtectedNames = def.ProtectedNames
	}
	if l.SmallNumber <= 0 {
		l.SmallNumber = def.SmallNumber
	}
	return l
}

// Validator checks proposed item creations, updates and deletions. Its methods
// are pure: they never touch a store.
type Validator struct {
	limits Limits
}

// NewValidator returns a validator; zero-valued limits fall back to defaults.
func NewValidator(limits Limits) Validator {
	return Validator{limits: limits.withDefaults()}
}

// Limits returns the effective limits.
func (v Validator) Limits() Limits { return v.limits }

// ChangePercent returns |final-start|/start. A zero start is a validation
// failure; callers that treat zero as unrestricted must check first.
func ChangePercent(final, start float64) (float64, error) {
	if start == 0 {
		return 0, domain.ValidationError(RuleDivideByZero, "cannot divide by zero")
	}
	return math.Abs((final - start) / start), nil
}

// ValidateCreation checks a new item against the budget of its year.
func (v Validator) ValidateCreation(item *domain.BudgetItem, budget *domain.Budget) error {
	if item == nil {
		return domain.ValidationError(RuleRequired, "budget item cannot be nil")
	}
	if budget == nil {
		return domain.ValidationError(RuleRequired, "budget cannot be nil")
	}
	if budget.Year != item.Year {
		return domain.ValidationError(RuleYearMismatch, "item year %d does not match budget year %d", item.Year, budget.Year)
	}
	for _, existing := range budget.Items {
		if existing.ID == item.ID || existing.Name == item.Name {
			return domain.ValidationError(RuleDuplicate, "budget item with this id or name already exists in %d", item.Year)
		}
	}
	if item.Value < 0 {
		return domain.ValidationError(RuleNonNegative, "amount cannot be negative")
	}
	if err := validateMinistries(item.Ministries); err != nil {
		return err
	}
	return v.checkBalanceChange(item, budget)
}

func validateMinistries(ministries []domain.Ministry) error {
	if len(ministries) == 0 {
		return domain.ValidationError(RuleMinistries, "ministry list cannot be empty")
	}
	for _, m := range ministries {
		if !m.Valid() {
			return domain.ValidationError(RuleMinistries, "unknown ministry %q", m)
		}
	}
	return nil
}

func (v Validator) checkBalanceChange(item *domain.BudgetItem, budget *domain.Budget) error {
	current := budget.NetResult
	if math.Abs(current) <= v.limits.SmallNumber {
		return nil
	}
	projected := current - item.Value
	if item.IsRevenue {
		projected = current + item.Value
	}
	change, err := ChangePercent(projected, current)
	if err != nil {
		return err
	}
	if change > v.limits.BalanceChangeLimit {
		return domain.ValidationError(RuleBalanceLimit,
			"adding this item changes the budget balance by %.2f%%, which exceeds the allowed limit ±%.2f%%",
			change*100, v.limits.BalanceChangeLimit*100)
	}
	return nil
}

// ValidateUpdate checks a value change of an existing item. A zero original
// value accepts any new non-negative value.
func (v Validator) ValidateUpdate(original, updated *domain.BudgetItem) error {
	if original == nil {
		return domain.ValidationError(RuleRequired, "original budget item cannot be nil")
	}
	if updated == nil {
		return domain.ValidationError(RuleRequired, "updated budget item cannot be nil")
	}
	if original.Value == updated.Value {
		return domain.ValidationError(RuleNoop, "update does not change the item value")
	}
	if updated.Value < 0 {
		return domain.ValidationError(RuleNonNegative, "amount cannot be negative")
	}
	if original.Value == 0 {
		return nil
	}
	change, err := ChangePercent(updated.Value, original.Value)
	if err != nil {
		return err
	}
	if change > v.limits.EditChangeLimit {
		return domain.ValidationError(RuleEditLimit,
			"the change in amount (%.2f%%) exceeds the allowed limit ±%.2f%%",
			change*100, v.limits.EditChangeLimit*100)
	}
	return nil
}

// ValidateDeletion rejects removal of protected items.
func (v Validator) ValidateDeletion(item *domain.BudgetItem, budget *domain.Budget) error {
	if item == nil {
		return domain.ValidationError(RuleRequired, "item to delete cannot be nil")
	}
	if budget == nil {
		return domain.ValidationError(RuleRequired, "budget cannot be nil")
	}
	if budget.Items == nil {
		return domain.ValidationError(RuleRequired, "budget has no item collection")
	}
	for _, name := range v.limits.ProtectedNames {
		if strings.EqualFold(strings.TrimSpace(item.Name), name) {
			return domain.ValidationError(RuleProtected, "protected budget item %q cannot be deleted", item.Name)
		}
	}
	return nil
}

// ValidateDataIntegrity is the structural guard applied before persisting an
// item.
func (v Validator) ValidateDataIntegrity(item *domain.BudgetItem) error {
	switch {
	case item == nil:
		return domain.ValidationError(RuleRequired, "budget item cannot be nil")
	case item.ID <= 0:
		return domain.ValidationError(RuleIntegrity, "budget item id must be positive")
	case strings.TrimSpace(item.Name) == "":
		return domain.ValidationError(RuleIntegrity, "budget item name cannot be blank")
	case item.Year < v.limits.MinBudgetYear:
		return domain.ValidationError(RuleIntegrity, "budget item year cannot be lower than %d", v.limits.MinBudgetYear)
	case len(item.Ministries) == 0:
		return domain.ValidationError(RuleIntegrity, "budget item ministries cannot be empty")
	}
	return nil
}

// Username and full name bounds for ValidateNewUser.
const (
	minUsernameLen = 4
	maxUsernameLen = 20
	maxFullNameLen = 50
)

// ValidateNewUser checks a user before registration.
func (v Validator) ValidateNewUser(user *domain.User) error {
	if user == nil {
		return domain.ValidationError(RuleRequired, "user cannot be nil")
	}
	username := strings.TrimSpace(user.Username)
	if username == "" {
		return domain.ValidationError(RuleUser, "username cannot be blank")
	}
	if n := len([]rune(username)); n < minUsernameLen || n > maxUsernameLen {
		return domain.ValidationError(RuleUser, "username must be between %d and %d characters", minUsernameLen, maxUsernameLen)
	}
	fullName := strings.TrimSpace(user.FullName)
	if fullName == "" {
		return domain.ValidationError(RuleUser, "full name cannot be blank")
	}
	if len([]rune(fullName)) > maxFullNameLen {
		return domain.ValidationError(RuleUser, "full name cannot exceed %d characters", maxFullNameLen)
	}
	if !user.Role.Valid() {
		return domain.ValidationError(RuleUser, "unknown role %q", user.Role)
	}
	if user.Role == domain.RoleGovernmentMember {
		if !user.Ministry.Valid() {
			return domain.ValidationError(RuleUser, "government member requires a known ministry")
		}
	} else if user.Ministry != "" {
		return domain.ValidationError(RuleUser, "only government members belong to a ministry")
	}
	return nil
}
