package core

import (
	"fmt"

	"budgetcore/pkg/domain"
)

// Authorizer maps an actor's role and ministry to capabilities. Can* methods
// are probes; Check* methods return the failure the orchestrator surfaces.
type Authorizer struct{}

// NewAuthorizer returns the role-based authorizer.
func NewAuthorizer() Authorizer { return Authorizer{} }

// CanSubmit reports whether user may request changes to item.
func (a Authorizer) CanSubmit(user *domain.User, item *domain.BudgetItem) bool {
	return a.CheckSubmit(user, item) == nil
}

// CheckSubmit requires a government member tied to one of the item's
// ministries.
func (Authorizer) CheckSubmit(user *domain.User, item *domain.BudgetItem) error {
	if err := requireActor(user, item); err != nil {
		return err
	}
	if len(item.Ministries) == 0 {
		return domain.ValidationError(RuleMinistries, "budget item must be associated with at least one ministry")
	}
	if user.Role != domain.RoleGovernmentMember {
		return domain.AuthorizationError("only government members can submit change requests")
	}
	if !item.HasMinistry(user.Ministry) {
		return domain.AuthorizationError("ministry %s is not authorized to submit change requests for this item; allowed ministries: %s",
			user.Ministry, fmt.Sprint(item.Ministries))
	}
	return nil
}

// CanApprove reports whether user may approve or reject requests.
func (a Authorizer) CanApprove(user *domain.User) bool {
	return a.CheckApprove(user) == nil
}

// CheckApprove requires the prime minister role.
func (Authorizer) CheckApprove(user *domain.User) error {
	if user == nil {
		return domain.ValidationError(RuleRequired, "user cannot be nil")
	}
	if user.Role != domain.RolePrimeMinister {
		return domain.AuthorizationError("only the prime minister can approve change requests")
	}
	return nil
}

// CanEdit reports whether user may edit item without a change request.
func (a Authorizer) CanEdit(user *domain.User, item *domain.BudgetItem) bool {
	return a.CheckEdit(user, item) == nil
}

// CheckEdit requires a government member of the Finance ministry.
func (Authorizer) CheckEdit(user *domain.User, item *domain.BudgetItem) error {
	if err := requireActor(user, item); err != nil {
		return err
	}
	if user.Role != domain.RoleGovernmentMember {
		return domain.AuthorizationError("only government members can edit budget items")
	}
	if user.Ministry != domain.MinistryFinance {
		return domain.AuthorizationError("only members of the Finance ministry can directly edit budget items")
	}
	return nil
}

func requireActor(user *domain.User, item *domain.BudgetItem) error {
	if user == nil {
		return domain.ValidationError(RuleRequired, "user cannot be nil")
	}
	if item == nil {
		return domain.ValidationError(RuleRequired, "budget item cannot be nil")
	}
	return nil
}
