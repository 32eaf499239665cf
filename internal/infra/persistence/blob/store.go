// Package blob persists each collection as a JSON object in a blob store,
// one key per collection.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	objects "budgetcore/internal/blob"
	"budgetcore/pkg/domain"
)

var _ domain.CollectionAdapter = (*Store)(nil)

const contentType = "application/json"

// Store adapts an objects.Store to domain.CollectionAdapter.
type Store struct {
	objects objects.Store
	prefix  string
}

// NewStore writes collections under prefix (may be empty) in store.
func NewStore(store objects.Store, prefix string) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("blob adapter: nil object store")
	}
	return &Store{objects: store, prefix: strings.Trim(prefix, "/")}, nil
}

// Name implements domain.CollectionAdapter.
func (s *Store) Name() string { return "blob-" + string(s.objects.Driver()) }

// Key returns the object key holding collection.
func (s *Store) Key(collection string) string {
	return path.Join(s.prefix, collection+".json")
}

// LoadAll implements domain.CollectionAdapter.
func (s *Store) LoadAll(ctx context.Context, collection string) ([]byte, error) {
	_, rc, err := s.objects.Get(ctx, s.Key(collection))
	if errors.Is(err, objects.ErrNotFound) {
		return nil, domain.ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", collection, err)
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	return payload, nil
}

// SaveAll implements domain.CollectionAdapter.
func (s *Store) SaveAll(ctx context.Context, collection string, payload []byte) error {
	if _, err := s.objects.Put(ctx, s.Key(collection), bytes.NewReader(payload), objects.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put %s: %w", collection, err)
	}
	return nil
}

// Close implements domain.CollectionAdapter. Object stores hold no handles.
func (s *Store) Close() error { return nil }
