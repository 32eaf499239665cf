// Package breaker decorates a collection adapter with a circuit breaker so a
// failing remote backend is rejected quickly instead of timing out on every
// store call.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"budgetcore/pkg/domain"
)

var _ domain.CollectionAdapter = (*Store)(nil)

// Config tunes the breaker. Zero values take the defaults below.
type Config struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts; zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultConfig returns the settings used by storage selection.
func DefaultConfig() Config {
	return Config{MaxRequests: 1, Interval: time.Minute, Timeout: 30 * time.Second, ConsecutiveFailures: 3}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRequests == 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = d.ConsecutiveFailures
	}
	return c
}

// Store wraps inner; loads and saves run through one breaker.
type Store struct {
	inner  domain.CollectionAdapter
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// Wrap decorates inner with a breaker named after the adapter.
func Wrap(inner domain.CollectionAdapter, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	s := &Store{inner: inner, logger: logger}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storage-" + inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("storage circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s
}

// countsAsSuccess keeps absent collections and caller cancellation from
// tripping the breaker.
func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrCollectionNotFound) ||
		errors.Is(err, context.Canceled)
}

// Name implements domain.CollectionAdapter.
func (s *Store) Name() string { return s.inner.Name() }

// State reports the breaker state (closed, half-open, open).
func (s *Store) State() string { return s.cb.State().String() }

// LoadAll implements domain.CollectionAdapter.
func (s *Store) LoadAll(ctx context.Context, collection string) ([]byte, error) {
	out, err := s.cb.Execute(func() (any, error) {
		return s.inner.LoadAll(ctx, collection)
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	payload, _ := out.([]byte)
	return payload, nil
}

// SaveAll implements domain.CollectionAdapter.
func (s *Store) SaveAll(ctx context.Context, collection string, payload []byte) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.inner.SaveAll(ctx, collection, payload)
	})
	return s.wrap(err)
}

// Close implements domain.CollectionAdapter. It bypasses the breaker.
func (s *Store) Close() error { return s.inner.Close() }

func (s *Store) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("storage call rejected by circuit breaker",
			zap.String("adapter", s.inner.Name()), zap.Error(err))
		return fmt.Errorf("storage %s unavailable: %w", s.inner.Name(), err)
	}
	return err
}
