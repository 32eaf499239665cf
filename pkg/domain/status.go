package domain

import "fmt"

// Status is the lifecycle state of a PendingChange.
type Status string

// Change request states. PENDING is the only non-terminal state.
const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// statusMachine lists the legal transitions for change requests.
type statusMachine struct {
	valid    map[Status]struct{}
	terminal map[Status]struct{}
	edges    map[Status]map[Status]struct{}
}

var changeRequestMachine = statusMachine{
	valid:    toSet(StatusPending, StatusApproved, StatusRejected),
	terminal: toSet(StatusApproved, StatusRejected),
	edges: map[Status]map[Status]struct{}{
		StatusPending: toSet(StatusApproved, StatusRejected),
	},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := changeRequestMachine.valid[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	_, ok := changeRequestMachine.terminal[s]
	return ok
}

// CanTransition reports whether a change request may move from one status to another.
func CanTransition(from, to Status) bool {
	next, ok := changeRequestMachine.edges[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CheckTransition returns an invalid-state error when from→to is illegal.
func CheckTransition(id int, from, to Status) error {
	if !to.Valid() {
		return &Error{Kind: KindInvalidState, Op: "transition", Message: fmt.Sprintf("change request %d cannot move to unknown status %q", id, to)}
	}
	if from.Terminal() {
		return &Error{Kind: KindInvalidState, Op: "transition", Message: fmt.Sprintf("request is not in PENDING status. Current status: %s", from)}
	}
	if !CanTransition(from, to) {
		return &Error{Kind: KindInvalidState, Op: "transition", Message: fmt.Sprintf("change request %d cannot move from %s to %s", id, from, to)}
	}
	return nil
}

func toSet(values ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
