package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"budgetcore/pkg/domain"
)

// CollectionStore holds one whole collection behind a persistence adapter.
// Every mutating call is a full load-modify-save cycle under the store mutex.
// Stores never reference each other; cross-store ordering belongs to Service.
type CollectionStore[T domain.Keyed] struct {
	name    string
	adapter domain.CollectionAdapter
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewCollectionStore constructs a store for the named collection.
func NewCollectionStore[T domain.Keyed](name string, adapter domain.CollectionAdapter, logger *zap.Logger) *CollectionStore[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectionStore[T]{
		name:    name,
		adapter: adapter,
		logger:  logger.With(zap.String("collection", name)),
	}
}

// Name returns the collection name.
func (s *CollectionStore[T]) Name() string { return s.name }

// Load returns the whole collection. Absent, unreadable or malformed payloads
// yield an empty, non-nil slice.
func (s *CollectionStore[T]) Load(ctx context.Context) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return []T{}
	}
	return items
}

// read decodes the collection. Callers hold s.mu. An absent collection is not
// an error; an I/O failure or a malformed payload is.
func (s *CollectionStore[T]) read(ctx context.Context) ([]T, error) {
	payload, err := s.adapter.LoadAll(ctx, s.name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return []T{}, nil
	}
	if err != nil {
		s.logger.Error("load collection", zap.Error(err))
		return nil, domain.StorageError("load "+s.name, err)
	}
	if len(payload) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		s.logger.Warn("malformed collection payload", zap.Error(err))
		return nil, domain.StorageError("load "+s.name, fmt.Errorf("decode: %w", err))
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (s *CollectionStore[T]) write(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return domain.StorageError("save "+s.name, fmt.Errorf("encode: %w", err))
	}
	if err := s.adapter.SaveAll(ctx, s.name, payload); err != nil {
		s.logger.Error("save collection", zap.Error(err))
		return domain.StorageError("save "+s.name, err)
	}
	return nil
}

// Save replaces the entity with the same key or appends it.
func (s *CollectionStore[T]) Save(ctx context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return err
	}
	return s.write(ctx, upsert(items, entity))
}

// SaveAll replaces or appends every entity in a single write.
func (s *CollectionStore[T]) SaveAll(ctx context.Context, entities []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return err
	}
	for _, entity := range entities {
		items = upsert(items, entity)
	}
	return s.write(ctx, items)
}

// ErrDuplicateKey is returned by Insert when the key is already taken.
var ErrDuplicateKey = errors.New("duplicate key")

// Insert appends entity, failing with ErrDuplicateKey when its key exists.
func (s *CollectionStore[T]) Insert(ctx context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Key() == entity.Key() {
			return fmt.Errorf("%s %d: %w", s.name, entity.Key(), ErrDuplicateKey)
		}
	}
	return s.write(ctx, append(items, entity))
}

func upsert[T domain.Keyed](items []T, entity T) []T {
	for i := range items {
		if items[i].Key() == entity.Key() {
			items[i] = entity
			return items
		}
	}
	return append(items, entity)
}

// Delete removes the entity with the same key. Nothing is written when no
// entity matched.
func (s *CollectionStore[T]) Delete(ctx context.Context, entity T) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	for i := range items {
		if items[i].Key() == entity.Key() {
			items = append(items[:i], items[i+1:]...)
			if err := s.write(ctx, items); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// FindByID returns the entity with the given key.
func (s *CollectionStore[T]) FindByID(ctx context.Context, key int) (T, bool) {
	for _, item := range s.Load(ctx) {
		if item.Key() == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// ExistsByID reports whether an entity with the given key exists.
func (s *CollectionStore[T]) ExistsByID(ctx context.Context, key int) bool {
	_, ok := s.FindByID(ctx, key)
	return ok
}

func nextKey[T domain.Keyed](items []T) int {
	highest := 0
	for _, item := range items {
		if item.Key() > highest {
			highest = item.Key()
		}
	}
	return highest + 1
}

// Create assigns the next id and appends the built entity while holding the
// lock, so concurrent creators never receive the same id.
func (s *CollectionStore[T]) Create(ctx context.Context, build func(id int) (T, error)) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return zero, err
	}
	entity, err := build(nextKey(items))
	if err != nil {
		return zero, err
	}
	if err := s.write(ctx, append(items, entity)); err != nil {
		return zero, err
	}
	return entity, nil
}

// CreateIf is Create with a guard evaluated against the current collection
// under the same lock.
func (s *CollectionStore[T]) CreateIf(ctx context.Context, guard func(items []T) error, build func(id int) (T, error)) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return zero, err
	}
	if guard != nil {
		if err := guard(items); err != nil {
			return zero, err
		}
	}
	entity, err := build(nextKey(items))
	if err != nil {
		return zero, err
	}
	if err := s.write(ctx, append(items, entity)); err != nil {
		return zero, err
	}
	return entity, nil
}

// Update applies mutate to the entity with the given key and writes the
// collection back. A mutate error aborts without writing.
func (s *CollectionStore[T]) Update(ctx context.Context, key int, mutate func(*T) error) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return zero, err
	}
	for i := range items {
		if items[i].Key() != key {
			continue
		}
		if err := mutate(&items[i]); err != nil {
			return zero, err
		}
		if err := s.write(ctx, items); err != nil {
			return zero, err
		}
		return items[i], nil
	}
	return zero, domain.NotFoundError("%s entry %d not found", s.name, key)
}

// Count returns the number of entities matching pred.
func (s *CollectionStore[T]) Count(ctx context.Context, pred func(T) bool) int {
	return len(s.Filter(ctx, pred))
}

// Filter returns the entities matching pred; a nil pred matches everything.
func (s *CollectionStore[T]) Filter(ctx context.Context, pred func(T) bool) []T {
	out := []T{}
	for _, item := range s.Load(ctx) {
		if pred == nil || pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// DeleteWhere removes every entity matching pred and returns how many were
// removed.
func (s *CollectionStore[T]) DeleteWhere(ctx context.Context, pred func(T) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	kept := items[:0]
	removed := 0
	for _, item := range items {
		if pred(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// BudgetRepository adds year and item lookups over the budgets collection.
type BudgetRepository struct {
	*CollectionStore[domain.Budget]
}

// NewBudgetRepository wraps a budgets collection store.
func NewBudgetRepository(store *CollectionStore[domain.Budget]) *BudgetRepository {
	return &BudgetRepository{CollectionStore: store}
}

// FindByYear returns the budget for year.
func (r *BudgetRepository) FindByYear(ctx context.Context, year int) (domain.Budget, bool) {
	return r.FindByID(ctx, year)
}

// FindItem returns an item of the given year's budget.
func (r *BudgetRepository) FindItem(ctx context.Context, year, id int) (domain.BudgetItem, bool) {
	budget, ok := r.FindByYear(ctx, year)
	if !ok {
		return domain.BudgetItem{}, false
	}
	return budget.FindItem(id)
}
