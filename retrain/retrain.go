// Package retrain runs the background loop that turns accumulated
// corrections into a new model: watch the feedback store, drain it once
// the threshold is reached, train on baseline corpus plus corrections,
// and swap the result into the model store. One cycle in flight at a
// time; a failed cycle keeps the active model and does not restore the
// drained records.
package retrain

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/vigie/feedback"
	"github.com/hazyhaar/vigie/model"
	"github.com/hazyhaar/vigie/watch"
)

// State of the orchestrator loop.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateRetraining
	StateSwapping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateRetraining:
		return "retraining"
	case StateSwapping:
		return "swapping"
	default:
		return "unknown"
	}
}

// Config wires the orchestrator.
type Config struct {
	DB       *sql.DB
	Models   *model.Store
	Feedback *feedback.Store
	Corpus   model.Corpus
	// StatePath, when set, receives a JSON snapshot of each newly
	// activated model.
	StatePath string
	// PollInterval is the fallback poll frequency for missed
	// notifications. Default: 30s.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Orchestrator owns the retrain loop. Create with New, start with Run.
type Orchestrator struct {
	db        *sql.DB
	models    *model.Store
	fb        *feedback.Store
	corpus    model.Corpus
	statePath string
	poll      time.Duration
	logger    *slog.Logger

	state    atomic.Int32
	kicked   chan struct{}
	cycles   atomic.Int64
	failures atomic.Int64
}

// New creates an Orchestrator in the Idle state.
func New(cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		db:        cfg.DB,
		models:    cfg.Models,
		fb:        cfg.Feedback,
		corpus:    cfg.Corpus,
		statePath: cfg.StatePath,
		poll:      cfg.PollInterval,
		logger:    cfg.Logger,
		kicked:    make(chan struct{}, 1),
	}
}

// State returns the current loop state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Cycles returns how many retrain cycles completed successfully.
func (o *Orchestrator) Cycles() int64 { return o.cycles.Load() }

// Failures returns how many cycles failed.
func (o *Orchestrator) Failures() int64 { return o.failures.Load() }

// Run blocks until ctx is cancelled. It reacts to the feedback store's
// threshold notification and, as a safety net, polls the feedback table
// row count so a missed notification (e.g. after a crash with a full
// table) still triggers a cycle.
func (o *Orchestrator) Run(ctx context.Context) {
	o.state.Store(int32(StateWatching))
	o.logger.Info("retrain: watching", "threshold", o.fb.Threshold(), "poll", o.poll)

	w := watch.New(o.db, watch.Options{
		Interval: o.poll,
		Detector: watch.RowCountDetector("feedback"),
		Logger:   o.logger,
	})
	go w.OnChange(ctx, func() error {
		n, err := o.fb.Count(ctx)
		if err != nil {
			return err
		}
		if n >= o.fb.Threshold() {
			o.kick()
		}
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			o.state.Store(int32(StateIdle))
			o.logger.Info("retrain: stopped")
			return
		case <-o.fb.Notify():
			o.cycle(ctx)
		case <-o.kicked:
			o.cycle(ctx)
		}
	}
}

func (o *Orchestrator) kick() {
	select {
	case o.kicked <- struct{}{}:
	default:
	}
}

// Cycle runs one drain-train-swap pass if the threshold is met. It is
// safe to call concurrently with Run: the state transition admits a
// single in-flight cycle and re-entrant triggers return immediately.
func (o *Orchestrator) Cycle(ctx context.Context) error {
	return o.cycle(ctx)
}

func (o *Orchestrator) cycle(ctx context.Context) error {
	prev := int32(StateWatching)
	switch {
	case o.state.CompareAndSwap(int32(StateWatching), int32(StateRetraining)):
	case o.state.CompareAndSwap(int32(StateIdle), int32(StateRetraining)):
		prev = int32(StateIdle)
	default:
		return nil
	}
	defer o.state.Store(prev)

	count, err := o.fb.Count(ctx)
	if err != nil {
		return err
	}
	if count < o.fb.Threshold() {
		// Spurious trigger, keep watching.
		return nil
	}

	records, err := o.fb.Drain(ctx)
	if err != nil {
		o.failures.Add(1)
		o.logger.Error("retrain: drain failed", "error", err)
		return err
	}

	urlSamples, emailSamples := partition(records)
	o.logger.Info("retrain: starting",
		"corrections", len(records), "url", len(urlSamples), "email", len(emailSamples))

	version := int64(1)
	if cur := o.models.Current(); cur != nil {
		version = cur.Version + 1
	}

	m, err := model.Train(version, o.corpus, urlSamples, emailSamples)
	if err != nil {
		// Drained records are gone. Accepted: restoring them would
		// re-trigger the same failing cycle immediately.
		o.failures.Add(1)
		o.logger.Error("retrain: training failed, keeping active model", "error", err)
		return fmt.Errorf("retrain: %w", err)
	}

	o.state.Store(int32(StateSwapping))
	if err := o.models.Swap(m); err != nil {
		o.failures.Add(1)
		o.logger.Error("retrain: swap rejected, keeping active model", "error", err)
		return fmt.Errorf("retrain: %w", err)
	}

	if o.statePath != "" {
		if err := model.SaveState(o.statePath, m); err != nil {
			// The new model is live; a stale snapshot only costs a
			// retrain after the next restart.
			o.logger.Warn("retrain: state snapshot failed", "error", err, "path", o.statePath)
		}
	}

	o.cycles.Add(1)
	o.logger.Info("retrain: completed", "version", m.Version, "samples", m.SampleCount)
	return nil
}

// partition converts corrections into training samples per head.
// File-kind corrections have no trainable head and are dropped.
func partition(records []feedback.Record) (urls, emails []model.Sample) {
	for _, rec := range records {
		s := model.Sample{
			Features: rec.Features,
			Phishing: rec.UserLabel == feedback.LabelPhishing,
		}
		switch rec.Kind {
		case feedback.KindURL:
			urls = append(urls, s)
		case feedback.KindEmail:
			emails = append(emails, s)
		}
	}
	return urls, emails
}
