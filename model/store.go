package model

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store holds the active model behind an atomic pointer. Current never
// blocks and always returns a fully-formed bundle (or nil before the first
// swap). Swaps are serialized so version monotonicity holds under
// concurrent swap attempts.
type Store struct {
	active atomic.Pointer[Model]
	swapMu sync.Mutex
	swaps  atomic.Int64
	logger *slog.Logger
}

// NewStore creates an empty Store. The service answers 503 until the
// first successful Swap.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Current returns the active model, or nil when none has been activated.
// The returned bundle is immutable; callers may hold it across requests.
func (s *Store) Current() *Model {
	return s.active.Load()
}

// Swap activates a new model. Invalid bundles and versions that do not
// advance past the active one are rejected, leaving the active model
// untouched.
func (s *Store) Swap(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	if cur := s.active.Load(); cur != nil && m.Version <= cur.Version {
		return fmt.Errorf("%w: version %d does not advance past %d",
			ErrInvalidModel, m.Version, cur.Version)
	}
	s.active.Store(m)
	s.swaps.Add(1)
	s.logger.Info("model: activated",
		"version", m.Version,
		"sample_count", m.SampleCount,
		"trained_at", m.TrainedAt)
	return nil
}

// Swaps returns how many models have been activated.
func (s *Store) Swaps() int64 { return s.swaps.Load() }
