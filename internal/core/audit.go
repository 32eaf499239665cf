package core

import (
	"context"

	"budgetcore/pkg/domain"
)

// AuditSink accepts a finished change log record. A returned error makes the
// orchestrator roll back the approval.
type AuditSink interface {
	Record(ctx context.Context, entry domain.ChangeLog) (domain.ChangeLog, error)
}

// StoreAuditSink appends records to the change log collection. It assigns the
// id; the caller supplies the timestamp.
type StoreAuditSink struct {
	logs *CollectionStore[domain.ChangeLog]
}

// NewStoreAuditSink returns a sink over the change log store.
func NewStoreAuditSink(logs *CollectionStore[domain.ChangeLog]) *StoreAuditSink {
	return &StoreAuditSink{logs: logs}
}

// Record implements AuditSink.
func (s *StoreAuditSink) Record(ctx context.Context, entry domain.ChangeLog) (domain.ChangeLog, error) {
	return s.logs.Create(ctx, func(id int) (domain.ChangeLog, error) {
		entry.ID = id
		return entry, nil
	})
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, entry domain.ChangeLog) (domain.ChangeLog, error)

// Record implements AuditSink.
func (f AuditSinkFunc) Record(ctx context.Context, entry domain.ChangeLog) (domain.ChangeLog, error) {
	return f(ctx, entry)
}
