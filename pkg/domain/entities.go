// Package domain defines the persistent budget entities, value types, and
// error kinds shared by the budgetcore packages.
package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Keyed is implemented by every entity held in a collection store. The key is
// the natural identifier used for replace-or-append semantics.
type Keyed interface {
	Key() int
}

// Ministry identifies a government ministry that can own budget items.
type Ministry string

// Known ministries.
const (
	MinistryHealth         Ministry = "Health"
	MinistryEducation      Ministry = "Education"
	MinistryDefense        Ministry = "Defense"
	MinistryFinance        Ministry = "Finance"
	MinistryInfrastructure Ministry = "Infrastructure"
	MinistryForeignAffairs Ministry = "Foreign Affairs"
	MinistryInterior       Ministry = "Interior"
	MinistryDevelopment    Ministry = "Development"
	MinistryLabour         Ministry = "Labour"
	MinistryJustice        Ministry = "Justice"
	MinistryAgriculture    Ministry = "Agriculture"
)

var ministries = []Ministry{
	MinistryHealth,
	MinistryEducation,
	MinistryDefense,
	MinistryFinance,
	MinistryInfrastructure,
	MinistryForeignAffairs,
	MinistryInterior,
	MinistryDevelopment,
	MinistryLabour,
	MinistryJustice,
	MinistryAgriculture,
}

// Ministries returns every known ministry in declaration order.
func Ministries() []Ministry {
	return append([]Ministry(nil), ministries...)
}

// ParseMinistry resolves a ministry from its display name or identifier form
// ("Foreign Affairs", "foreign_affairs", "FOREIGN_AFFAIRS").
func ParseMinistry(raw string) (Ministry, bool) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", " "))
	for _, m := range ministries {
		if strings.ToLower(string(m)) == norm {
			return m, true
		}
	}
	return "", false
}

// Valid reports whether m is a known ministry.
func (m Ministry) Valid() bool {
	for _, known := range ministries {
		if m == known {
			return true
		}
	}
	return false
}

// Role is the capability class of an actor.
type Role string

// Supported roles.
const (
	RoleCitizen          Role = "citizen"
	RoleGovernmentMember Role = "government_member"
	RolePrimeMinister    Role = "prime_minister"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleGovernmentMember, RolePrimeMinister:
		return true
	default:
		return false
	}
}

// User is the acting identity supplied by the identity provider.
type User struct {
	ID       int      `json:"id"`
	Username string   `json:"username"`
	FullName string   `json:"fullName"`
	Role     Role     `json:"role"`
	Ministry Ministry `json:"ministry,omitempty"`
}

// Key implements Keyed.
func (u User) Key() int { return u.ID }

// BudgetItem is a single revenue or expense line of a yearly budget.
type BudgetItem struct {
	ID         int        `json:"id"`
	Year       int        `json:"year"`
	Name       string     `json:"name"`
	Value      float64    `json:"value"`
	IsRevenue  bool       `json:"isRevenue"`
	Ministries []Ministry `json:"ministries"`
}

// Key implements Keyed.
func (i BudgetItem) Key() int { return i.ID }

// HasMinistry reports whether the item is tagged with m.
func (i BudgetItem) HasMinistry(m Ministry) bool {
	for _, owner := range i.Ministries {
		if owner == m {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the item.
func (i BudgetItem) Clone() BudgetItem {
	cp := i
	if i.Ministries != nil {
		cp.Ministries = append([]Ministry(nil), i.Ministries...)
	}
	return cp
}

// Budget holds every item of one year plus derived totals.
type Budget struct {
	Year         int          `json:"year"`
	Items        []BudgetItem `json:"items"`
	TotalRevenue float64      `json:"totalRevenue"`
	TotalExpense float64      `json:"totalExpense"`
	NetResult    float64      `json:"netResult"`
}

// Key implements Keyed.
func (b Budget) Key() int { return b.Year }

// Recalculate recomputes revenue, expense and net totals from the items.
func (b *Budget) Recalculate() {
	revenue := decimal.Zero
	expense := decimal.Zero
	for _, item := range b.Items {
		v := decimal.NewFromFloat(item.Value)
		if item.IsRevenue {
			revenue = revenue.Add(v)
		} else {
			expense = expense.Add(v)
		}
	}
	b.TotalRevenue = revenue.InexactFloat64()
	b.TotalExpense = expense.InexactFloat64()
	b.NetResult = revenue.Sub(expense).InexactFloat64()
}

// TotalsConsistent reports whether the stored totals match a recomputation.
func (b Budget) TotalsConsistent() bool {
	cp := b.Clone()
	cp.Recalculate()
	return cp.TotalRevenue == b.TotalRevenue &&
		cp.TotalExpense == b.TotalExpense &&
		cp.NetResult == b.NetResult
}

// FindItem returns the item with the given id.
func (b Budget) FindItem(id int) (BudgetItem, bool) {
	for _, item := range b.Items {
		if item.ID == id {
			return item.Clone(), true
		}
	}
	return BudgetItem{}, false
}

// FindItemByName returns the item with the given name (exact match).
func (b Budget) FindItemByName(name string) (BudgetItem, bool) {
	for _, item := range b.Items {
		if item.Name == name {
			return item.Clone(), true
		}
	}
	return BudgetItem{}, false
}

// SetItemValue replaces the value of an item and recalculates totals. It
// returns the previous value.
func (b *Budget) SetItemValue(id int, value float64) (float64, bool) {
	for idx := range b.Items {
		if b.Items[idx].ID == id {
			old := b.Items[idx].Value
			b.Items[idx].Value = value
			b.Recalculate()
			return old, true
		}
	}
	return 0, false
}

// RemoveItem drops the item with the given id and recalculates totals.
func (b *Budget) RemoveItem(id int) bool {
	for idx := range b.Items {
		if b.Items[idx].ID == id {
			b.Items = append(b.Items[:idx], b.Items[idx+1:]...)
			b.Recalculate()
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the budget.
func (b Budget) Clone() Budget {
	cp := b
	if b.Items != nil {
		cp.Items = make([]BudgetItem, len(b.Items))
		for i, item := range b.Items {
			cp.Items[i] = item.Clone()
		}
	}
	return cp
}

// PendingChange is a proposed value change awaiting approval. The item name is
// a snapshot taken at submission, not a live reference.
type PendingChange struct {
	ID             int     `json:"id"`
	BudgetItemID   int     `json:"budgetItemId"`
	BudgetItemYear int     `json:"budgetItemYear"`
	BudgetItemName string  `json:"budgetItemName"`
	RequesterName  string  `json:"requesterName"`
	RequesterID    int     `json:"requesterId"`
	OldValue       float64 `json:"oldValue"`
	NewValue       float64 `json:"newValue"`
	Status         Status  `json:"status"`
	SubmittedDate  string  `json:"submittedDate"`
}

// Key implements Keyed.
func (c PendingChange) Key() int { return c.ID }

// Approve moves the change from PENDING to APPROVED.
func (c *PendingChange) Approve() error {
	return c.transition(StatusApproved)
}

// Reject moves the change from PENDING to REJECTED.
func (c *PendingChange) Reject() error {
	return c.transition(StatusRejected)
}

func (c *PendingChange) transition(to Status) error {
	if err := CheckTransition(c.ID, c.Status, to); err != nil {
		return err
	}
	c.Status = to
	return nil
}

// ChangeLog is an immutable audit record of an applied change.
type ChangeLog struct {
	ID           int     `json:"id"`
	BudgetItemID int     `json:"budgetItemId"`
	OldValue     float64 `json:"oldValue"`
	NewValue     float64 `json:"newValue"`
	Timestamp    string  `json:"timestamp"`
	ActorName    string  `json:"actorName"`
	ActorID      int     `json:"actorId"`
}

// Key implements Keyed.
func (l ChangeLog) Key() int { return l.ID }

// TimestampLayout is the format used for submitted dates and audit timestamps.
const TimestampLayout = "2006-01-02 15:04:05"
