package retrain

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vigie/dbopen"
	"github.com/hazyhaar/vigie/feature"
	"github.com/hazyhaar/vigie/feedback"
	"github.com/hazyhaar/vigie/model"
)

func testOrchestrator(t *testing.T, threshold int) (*Orchestrator, *feedback.Store, *model.Store, *sql.DB) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	fb, err := feedback.NewStore(feedback.Config{DB: db, Threshold: threshold})
	if err != nil {
		t.Fatal(err)
	}
	models := model.NewStore(nil)
	m, err := model.Train(1, model.Builtin(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := models.Swap(m); err != nil {
		t.Fatal(err)
	}
	o := New(Config{
		DB:           db,
		Models:       models,
		Feedback:     fb,
		Corpus:       model.Builtin(),
		PollInterval: 20 * time.Millisecond,
	})
	return o, fb, models, db
}

func urlCorrection(t *testing.T, raw, userLabel string) feedback.Record {
	t.Helper()
	v, err := feature.ExtractURL(raw)
	if err != nil {
		t.Fatal(err)
	}
	return feedback.Record{
		Kind:          feedback.KindURL,
		Features:      v,
		OriginalLabel: feedback.LabelSafe,
		UserLabel:     userLabel,
	}
}

func addCorrections(t *testing.T, fb *feedback.Store, recs ...feedback.Record) {
	t.Helper()
	for _, rec := range recs {
		if _, err := fb.Record(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCycle_BelowThresholdNoop(t *testing.T) {
	o, fb, models, _ := testOrchestrator(t, 3)
	ctx := context.Background()

	addCorrections(t, fb, urlCorrection(t, "http://10.0.0.1/login", feedback.LabelPhishing))

	if err := o.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if got := models.Current().Version; got != 1 {
		t.Fatalf("version = %d, want 1", got)
	}
	n, err := fb.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1 (below threshold must not drain)", n)
	}
}

func TestCycle_TrainsAndSwaps(t *testing.T) {
	o, fb, models, _ := testOrchestrator(t, 3)
	ctx := context.Background()

	fileRec := feedback.Record{
		Kind:          feedback.KindFile,
		Features:      feature.Vector{1},
		OriginalLabel: feedback.LabelSafe,
		UserLabel:     feedback.LabelPhishing,
	}
	addCorrections(t, fb,
		urlCorrection(t, "http://10.0.0.1/login", feedback.LabelPhishing),
		urlCorrection(t, "http://10.0.0.2/verify", feedback.LabelPhishing),
		fileRec,
	)

	if err := o.Cycle(ctx); err != nil {
		t.Fatal(err)
	}

	m := models.Current()
	if m.Version != 2 {
		t.Fatalf("version = %d, want 2", m.Version)
	}
	corpus := model.Builtin()
	// File corrections have no trainable head: 3 drained, 2 trained on.
	want := len(corpus.URL) + len(corpus.Email) + 2
	if m.SampleCount != want {
		t.Fatalf("sample count = %d, want %d", m.SampleCount, want)
	}
	n, err := fb.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0 after drain", n)
	}
	if o.Cycles() != 1 {
		t.Fatalf("cycles = %d, want 1", o.Cycles())
	}
}

func TestCycle_FailureKeepsActiveModel(t *testing.T) {
	o, fb, models, _ := testOrchestrator(t, 2)
	o.corpus = model.Corpus{} // training has nothing to learn from

	ctx := context.Background()
	addCorrections(t, fb,
		urlCorrection(t, "http://10.0.0.1/login", feedback.LabelPhishing),
		urlCorrection(t, "http://10.0.0.2/verify", feedback.LabelPhishing),
	)

	if err := o.Cycle(ctx); err == nil {
		t.Fatal("expected training error")
	}
	if got := models.Current().Version; got != 1 {
		t.Fatalf("version = %d, want 1 (failed cycle must keep active model)", got)
	}
	if o.Failures() != 1 {
		t.Fatalf("failures = %d, want 1", o.Failures())
	}
	// Drained records are not restored.
	n, err := fb.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestCycle_WritesStateSnapshot(t *testing.T) {
	o, fb, _, _ := testOrchestrator(t, 2)
	o.statePath = filepath.Join(t.TempDir(), "model.json")

	ctx := context.Background()
	addCorrections(t, fb,
		urlCorrection(t, "http://10.0.0.1/login", feedback.LabelPhishing),
		urlCorrection(t, "http://10.0.0.2/verify", feedback.LabelPhishing),
	)
	if err := o.Cycle(ctx); err != nil {
		t.Fatal(err)
	}

	m, err := model.LoadState(o.statePath)
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != 2 {
		t.Fatalf("snapshot version = %d, want 2", m.Version)
	}
}

func TestRun_ThresholdTriggersSingleCycle(t *testing.T) {
	o, fb, models, _ := testOrchestrator(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()
	waitFor(t, func() bool { return o.State() == StateWatching })

	addCorrections(t, fb,
		urlCorrection(t, "http://10.0.0.1/login", feedback.LabelPhishing),
		urlCorrection(t, "http://10.0.0.2/verify", feedback.LabelPhishing),
		urlCorrection(t, "http://10.0.0.3/update", feedback.LabelPhishing),
	)

	waitFor(t, func() bool { return o.Cycles() == 1 })
	if got := models.Current().Version; got != 2 {
		t.Fatalf("version = %d, want 2", got)
	}

	// The poll fallback must not re-fire on the now-empty table.
	time.Sleep(100 * time.Millisecond)
	if o.Cycles() != 1 {
		t.Fatalf("cycles = %d, want exactly 1", o.Cycles())
	}

	cancel()
	<-done
	if o.State() != StateIdle {
		t.Fatalf("state = %s, want idle after stop", o.State())
	}
}
