// Package model holds the trained classification bundle and the store that
// hot-swaps it. A Model is immutable once built: readers grab the current
// pointer and never observe a half-replaced bundle. Training happens off
// the request path; the store only ever swaps fully-formed models with
// strictly increasing versions.
package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidModel reports a bundle the store refuses to activate.
var ErrInvalidModel = errors.New("model: invalid model bundle")

// Model is one trained classification bundle: a URL head and an email head
// sharing a version. Treat as immutable after construction.
type Model struct {
	Version     int64       `json:"version"`
	TrainedAt   time.Time   `json:"trained_at"`
	SampleCount int         `json:"sample_count"`
	URL         *NaiveBayes `json:"url"`
	Email       *NaiveBayes `json:"email"`
}

// Validate checks that the bundle is fully formed.
func (m *Model) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil model", ErrInvalidModel)
	}
	if m.Version <= 0 {
		return fmt.Errorf("%w: version %d", ErrInvalidModel, m.Version)
	}
	if m.URL == nil || m.Email == nil {
		return fmt.Errorf("%w: missing head", ErrInvalidModel)
	}
	if m.URL.Samples == 0 || m.Email.Samples == 0 {
		return fmt.Errorf("%w: untrained head", ErrInvalidModel)
	}
	return nil
}
