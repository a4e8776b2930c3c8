// Package feedback stores user corrections awaiting the next retrain.
// Records are appended, never mutated; the whole set is drained to empty
// in one transaction when a retrain cycle starts, so a correction arriving
// mid-drain lands in exactly one batch.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hazyhaar/vigie/dbopen"
	"github.com/hazyhaar/vigie/feature"
	"github.com/hazyhaar/vigie/idgen"
)

// DefaultThreshold is the correction count that triggers a retrain.
const DefaultThreshold = 500

// ErrInvalidRecord reports a correction that fails validation.
var ErrInvalidRecord = errors.New("feedback: invalid record")

// Artifact kinds.
const (
	KindURL   = "url"
	KindEmail = "email"
	KindFile  = "file"
)

// Labels.
const (
	LabelSafe     = "safe"
	LabelPhishing = "phishing"
)

// Record is one user correction: the features the verdict was computed
// from, what the model said, and what the user says.
type Record struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"`
	Features      feature.Vector `json:"features"`
	OriginalLabel string         `json:"original_label"`
	UserLabel     string         `json:"user_label"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Status is the progress snapshot toward the next retrain.
type Status struct {
	Count           int     `json:"count"`
	Threshold       int     `json:"threshold"`
	ProgressPercent float64 `json:"progress_percent"`
}

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
    id             TEXT PRIMARY KEY,
    kind           TEXT NOT NULL CHECK (kind IN ('url','email','file')),
    features       TEXT NOT NULL,
    original_label TEXT NOT NULL,
    user_label     TEXT NOT NULL,
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);
`

// Config holds the settings needed to create a Store.
type Config struct {
	DB        *sql.DB
	Threshold int // <= 0 means DefaultThreshold
	Logger    *slog.Logger
}

// Store is the SQLite-backed correction store. All compound operations run
// in a single transaction, so counts and drains stay consistent under
// concurrent writers.
type Store struct {
	db        *sql.DB
	threshold int
	logger    *slog.Logger
	newID     func() string

	// notify carries one token per threshold crossing. Buffered so a
	// slow consumer never blocks Record.
	notify chan struct{}
}

// NewStore creates a Store and applies the schema.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("feedback: DB is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := cfg.DB.Exec(stmt); err != nil {
			return nil, fmt.Errorf("feedback schema: %w", err)
		}
	}
	return &Store{
		db:        cfg.DB,
		threshold: cfg.Threshold,
		logger:    cfg.Logger,
		newID:     idgen.New,
		notify:    make(chan struct{}, 1),
	}, nil
}

// Threshold returns the retrain trigger count.
func (s *Store) Threshold() int { return s.threshold }

// Notify returns the channel that receives a token when the stored count
// crosses the threshold.
func (s *Store) Notify() <-chan struct{} { return s.notify }

// Record validates and appends one correction, returning the count after
// the insert. Insert and count share a transaction, so concurrent Records
// each observe a distinct count.
func (s *Store) Record(ctx context.Context, rec Record) (int, error) {
	if err := validate(rec); err != nil {
		return 0, err
	}
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	featJSON, err := json.Marshal(rec.Features)
	if err != nil {
		return 0, fmt.Errorf("feedback: encode features: %w", err)
	}

	var after int
	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feedback (id, kind, features, original_label, user_label, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Kind, string(featJSON), rec.OriginalLabel, rec.UserLabel, rec.CreatedAt.Unix(),
		); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&after)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("feedback: recorded correction",
		"kind", rec.Kind, "user_label", rec.UserLabel, "count", after)

	if after == s.threshold {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return after, nil
}

// Count returns the number of stored corrections.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n)
	return n, err
}

// Progress returns the percentage toward the threshold, rounded to one
// decimal. This is the single definition every surface reports.
func Progress(count, threshold int) float64 {
	if threshold <= 0 {
		return 0
	}
	return math.Round(float64(count)/float64(threshold)*1000) / 10
}

// Status returns the retrain progress snapshot.
func (s *Store) Status(ctx context.Context) (Status, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Count:           n,
		Threshold:       s.threshold,
		ProgressPercent: Progress(n, s.threshold),
	}, nil
}

// Drain atomically removes and returns every stored correction, oldest
// first. A Record racing with Drain lands either in the returned batch or
// in the empty table, never both or neither.
func (s *Store) Drain(ctx context.Context) ([]Record, error) {
	var out []Record
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, kind, features, original_label, user_label, created_at
			 FROM feedback ORDER BY created_at, id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				rec      Record
				featJSON string
				created  int64
			)
			if err := rows.Scan(&rec.ID, &rec.Kind, &featJSON, &rec.OriginalLabel, &rec.UserLabel, &created); err != nil {
				return err
			}
			if err := json.Unmarshal([]byte(featJSON), &rec.Features); err != nil {
				return fmt.Errorf("feedback: decode features for %s: %w", rec.ID, err)
			}
			rec.CreatedAt = time.Unix(created, 0).UTC()
			out = append(out, rec)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM feedback`)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("feedback: drained", "records", len(out))
	return out, nil
}

func validate(rec Record) error {
	switch rec.Kind {
	case KindURL, KindEmail, KindFile:
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidRecord, rec.Kind)
	}
	switch rec.UserLabel {
	case LabelSafe, LabelPhishing:
	default:
		return fmt.Errorf("%w: user_label %q", ErrInvalidRecord, rec.UserLabel)
	}
	switch rec.OriginalLabel {
	case LabelSafe, LabelPhishing, "unknown":
	default:
		return fmt.Errorf("%w: original_label %q", ErrInvalidRecord, rec.OriginalLabel)
	}
	if len(rec.Features) == 0 {
		return fmt.Errorf("%w: features are required", ErrInvalidRecord)
	}
	return nil
}
