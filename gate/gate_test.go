package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vigie/classify"
	"github.com/hazyhaar/vigie/dbopen"
	"github.com/hazyhaar/vigie/feedback"
	"github.com/hazyhaar/vigie/model"
	"github.com/hazyhaar/vigie/observability"
)

const phishingURL = "http://192.168.1.1/paypal-login/secure"

func testClassifier(t *testing.T) *classify.Service {
	t.Helper()
	st := model.NewStore(nil)
	m, err := model.Train(1, model.Builtin(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Swap(m); err != nil {
		t.Fatal(err)
	}
	return classify.NewService(st, nil)
}

func testGate(t *testing.T) *Gate {
	t.Helper()
	return New(Config{Classifier: testClassifier(t)})
}

func topLevel(id, url string, tab int64) Navigation {
	return Navigation{ID: id, URL: url, TabID: tab, TopLevel: true}
}

func TestDecide_BlocksPhishing(t *testing.T) {
	g := testGate(t)

	d := g.Decide(context.Background(), topLevel("n1", phishingURL, 1))
	if d.Action != ActionBlock {
		t.Fatalf("action = %s, want block", d.Action)
	}
	if d.Verdict == nil || d.Verdict.Label != classify.LabelPhishing {
		t.Fatalf("verdict = %+v, want phishing", d.Verdict)
	}
	if len(d.Verdict.Reasons) == 0 {
		t.Fatal("blocked decision must carry explanations")
	}
}

func TestDecide_AllowsSafe(t *testing.T) {
	g := testGate(t)

	d := g.Decide(context.Background(), topLevel("n1", "https://github.com/golang/go", 1))
	if d.Action != ActionAllow {
		t.Fatalf("action = %s, want allow", d.Action)
	}
	if d.Verdict == nil || d.Verdict.Label != classify.LabelSafe {
		t.Fatalf("verdict = %+v, want safe", d.Verdict)
	}
}

func TestDecide_SubframeSkipsClassification(t *testing.T) {
	// No classifier wired at all: a subframe decision must not need one.
	g := New(Config{Classifier: nil})

	d := g.Decide(context.Background(), Navigation{ID: "n1", URL: phishingURL, TabID: 1})
	if d.Action != ActionAllow || d.Reason != ReasonSubframe {
		t.Fatalf("decision = %+v, want allow/subframe", d)
	}
}

func TestDecide_BrowserInternalPagesPass(t *testing.T) {
	g := New(Config{Classifier: nil})

	for _, url := range []string{"about:blank", "chrome://settings", "file:///tmp/report.html"} {
		d := g.Decide(context.Background(), topLevel("n1", url, 1))
		if d.Action != ActionAllow || d.Reason != ReasonUnfetchable {
			t.Fatalf("%s: decision = %+v, want allow/unfetchable_scheme", url, d)
		}
	}
}

func TestDecide_FailsOpenWithoutModel(t *testing.T) {
	g := New(Config{Classifier: classify.NewService(model.NewStore(nil), nil)})

	d := g.Decide(context.Background(), topLevel("n1", phishingURL, 1))
	if d.Action != ActionAllow || d.Reason != ReasonFailOpen {
		t.Fatalf("decision = %+v, want allow/fail_open", d)
	}
	if d.Verdict != nil {
		t.Fatalf("fail-open decision must not carry a verdict, got %+v", d.Verdict)
	}
}

func TestBypass_SingleUse(t *testing.T) {
	g := testGate(t)
	ctx := context.Background()

	if err := g.Proceed(ctx, phishingURL); err != nil {
		t.Fatal(err)
	}

	first := g.Decide(ctx, topLevel("n1", phishingURL, 1))
	if first.Action != ActionAllow || first.Reason != ReasonBypass {
		t.Fatalf("first decision = %+v, want allow/bypass", first)
	}

	// The pass is consumed: the same URL is intercepted again.
	second := g.Decide(ctx, topLevel("n2", phishingURL, 1))
	if second.Action != ActionBlock {
		t.Fatalf("second decision = %+v, want block", second)
	}
}

func TestProceed_RecordsSafeCorrection(t *testing.T) {
	db := dbopen.OpenMemory(t)
	fb, err := feedback.NewStore(feedback.Config{DB: db})
	if err != nil {
		t.Fatal(err)
	}
	g := New(Config{Classifier: testClassifier(t), Feedback: fb})

	ctx := context.Background()
	if err := g.Proceed(ctx, phishingURL); err != nil {
		t.Fatal(err)
	}

	recs, err := fb.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Kind != feedback.KindURL || rec.UserLabel != feedback.LabelSafe || rec.OriginalLabel != feedback.LabelPhishing {
		t.Fatalf("record = %+v, want url correction phishing->safe", rec)
	}
}

func TestDecide_RecordsBlockEvent(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := observability.Init(db); err != nil {
		t.Fatal(err)
	}
	g := New(Config{
		Classifier: testClassifier(t),
		Events:     observability.NewEventLogger(db),
	})

	d := g.Decide(context.Background(), topLevel("n1", phishingURL, 1))
	if d.Action != ActionBlock {
		t.Fatalf("action = %s, want block", d.Action)
	}

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM domain_event_logs WHERE event_type = 'navigation_blocked' AND entity_id = ?`,
		phishingURL).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
}

func TestFinish_SupersededAndCleanup(t *testing.T) {
	g := testGate(t)

	g.mu.Lock()
	g.latest[7] = "n2"
	g.mu.Unlock()

	if !g.finish(Navigation{ID: "n1", TabID: 7}) {
		t.Fatal("older navigation in the same tab must be superseded")
	}
	if g.finish(Navigation{ID: "n2", TabID: 7}) {
		t.Fatal("latest navigation must not be superseded")
	}
	g.mu.Lock()
	_, tracked := g.latest[7]
	g.mu.Unlock()
	if tracked {
		t.Fatal("finishing the latest navigation must drop the tab entry")
	}
	if !g.finish(Navigation{ID: "n1", TabID: 8}) {
		t.Fatal("unknown tab has no latest navigation, result is stale")
	}
}

func TestDecide_DropsTabTrackingAfterDecision(t *testing.T) {
	g := testGate(t)
	ctx := context.Background()

	g.Decide(ctx, topLevel("n1", phishingURL, 1))
	g.Decide(ctx, topLevel("n2", "https://github.com/golang/go", 2))

	g.mu.Lock()
	n := len(g.latest)
	g.mu.Unlock()
	if n != 0 {
		t.Fatalf("tracked tabs = %d, want 0 once decisions are returned", n)
	}
}

func TestDecide_AuditsMalformedArtifact(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := observability.Init(db); err != nil {
		t.Fatal(err)
	}
	audit := observability.NewAuditLogger(db, 10)
	g := New(Config{Classifier: testClassifier(t), Audit: audit})

	// Fetchable scheme but no host: extraction fails, navigation is
	// still allowed with an unknown verdict.
	d := g.Decide(context.Background(), topLevel("n1", "http://", 1))
	if d.Action != ActionAllow {
		t.Fatalf("action = %s, want allow", d.Action)
	}
	if err := audit.Close(); err != nil {
		t.Fatal(err)
	}

	status := "error"
	entries, err := audit.Query(context.Background(), &observability.AuditFilter{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("error entries = %d, want 1", len(entries))
	}
	if entries[0].ErrorMessage == "" {
		t.Fatal("audit entry must carry the extraction failure")
	}
}

func TestInspectDownload(t *testing.T) {
	g := testGate(t)
	ctx := context.Background()

	report, err := g.InspectDownload(ctx, "notes.txt", []byte("meeting notes for tuesday"))
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != "safe" {
		t.Fatalf("verdict = %s, want safe", report.Verdict)
	}

	_, err = g.InspectDownload(ctx, "huge.bin", make([]byte, classify.MaxFileSize+1))
	if err == nil {
		t.Fatal("expected scan ceiling error")
	}
}

func testRouter(t *testing.T, g *Gate) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	g.Routes(r)
	return r
}

func TestHandleNavigation(t *testing.T) {
	g := testGate(t)
	r := testRouter(t, g)

	body, _ := json.Marshal(topLevel("n1", phishingURL, 1))
	req := httptest.NewRequest(http.MethodPost, "/gate/navigation", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var d Decision
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionBlock {
		t.Fatalf("action = %s, want block", d.Action)
	}
}

func TestHandleNavigation_MissingURL(t *testing.T) {
	g := testGate(t)
	r := testRouter(t, g)

	req := httptest.NewRequest(http.MethodPost, "/gate/navigation", bytes.NewReader([]byte(`{"navigation_id":"n1"}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleBypass(t *testing.T) {
	g := testGate(t)
	r := testRouter(t, g)

	body := []byte(`{"url":"` + phishingURL + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/gate/bypass", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	d := g.Decide(context.Background(), topLevel("n1", phishingURL, 1))
	if d.Action != ActionAllow || d.Reason != ReasonBypass {
		t.Fatalf("decision = %+v, want allow/bypass", d)
	}
}

func TestHandleDownload(t *testing.T) {
	g := testGate(t)
	r := testRouter(t, g)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("meeting notes for tuesday"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/gate/download", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Verdict string `json:"verdict"`
		Scanned bool   `json:"scanned"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Scanned || resp.Verdict != "safe" {
		t.Fatalf("response = %+v, want scanned safe", resp)
	}
}
