package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"budgetcore/internal/blob"
	"budgetcore/internal/config"
	blobadapter "budgetcore/internal/infra/persistence/blob"
	"budgetcore/internal/infra/persistence/breaker"
	"budgetcore/internal/infra/persistence/memory"
	"budgetcore/internal/infra/persistence/postgres"
	"budgetcore/internal/infra/persistence/sqlite"
	"budgetcore/pkg/domain"
)

// OpenAdapter builds the persistence adapter selected by cfg. Adapters that
// cross the network (postgres, s3-backed blob) sit behind a circuit breaker.
func OpenAdapter(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (domain.CollectionAdapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = config.StorageSQLite
	}
	var (
		adapter domain.CollectionAdapter
		remote  bool
		err     error
	)
	switch driver {
	case config.StorageMemory:
		adapter = memory.NewStore()
	case config.StorageSQLite:
		adapter, err = sqlite.NewStore(cfg.SQLitePath)
	case config.StoragePostgres:
		adapter, err = postgres.NewStore(ctx, cfg.PostgresDSN)
		remote = true
	case config.StorageBlob:
		adapter, err = openBlobAdapter(ctx, cfg.Blob)
		remote = cfg.Blob.Driver == string(blob.DriverS3)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", driver, err)
	}
	if remote {
		adapter = breaker.Wrap(adapter, breaker.DefaultConfig(), logger)
	}
	logger.Info("storage opened", zap.String("driver", driver), zap.String("adapter", adapter.Name()), zap.Bool("breaker", remote))
	return adapter, nil
}

func openBlobAdapter(ctx context.Context, cfg config.BlobConfig) (domain.CollectionAdapter, error) {
	objects, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Driver),
		FSRoot: cfg.FSRoot,
		S3: blob.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		},
	})
	if err != nil {
		return nil, err
	}
	return blobadapter.NewStore(objects, cfg.Prefix)
}

// Stores groups the four collection stores over one adapter.
type Stores struct {
	Budgets *BudgetRepository
	Pending *CollectionStore[domain.PendingChange]
	Logs    *CollectionStore[domain.ChangeLog]
	Users   *CollectionStore[domain.User]
}

// OpenStores builds the collection stores over adapter.
func OpenStores(adapter domain.CollectionAdapter, logger *zap.Logger) Stores {
	return Stores{
		Budgets: NewBudgetRepository(NewCollectionStore[domain.Budget](domain.CollectionBudgets, adapter, logger)),
		Pending: NewCollectionStore[domain.PendingChange](domain.CollectionPendingChanges, adapter, logger),
		Logs:    NewCollectionStore[domain.ChangeLog](domain.CollectionChangeLogs, adapter, logger),
		Users:   NewCollectionStore[domain.User](domain.CollectionUsers, adapter, logger),
	}
}

// Service builds the orchestrator over the stores. Approvals resolve
// requesters against the users store.
func (s Stores) Service(opts ...Option) *Service {
	return NewService(s.Budgets, s.Pending, s.Logs, append([]Option{WithUsers(s.Users)}, opts...)...)
}

// NewInMemoryService returns a service over a fresh in-memory adapter.
func NewInMemoryService(opts ...Option) *Service {
	return OpenStores(memory.NewStore(), nil).Service(opts...)
}
