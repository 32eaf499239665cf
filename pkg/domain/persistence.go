package domain

import (
	"context"
	"errors"
)

// Collection names used by the persistence adapters.
const (
	CollectionBudgets        = "budgets"
	CollectionPendingChanges = "pending_changes"
	CollectionChangeLogs     = "change_logs"
	CollectionUsers          = "users"
)

// ErrCollectionNotFound is returned by LoadAll when the backing resource has
// never been written.
var ErrCollectionNotFound = errors.New("collection not found")

// CollectionAdapter is the durable backend behind a collection store. Reads and
// writes always cover the whole collection; adapters never see partial
// updates.
type CollectionAdapter interface {
	Name() string
	LoadAll(ctx context.Context, collection string) ([]byte, error)
	SaveAll(ctx context.Context, collection string, payload []byte) error
	Close() error
}
