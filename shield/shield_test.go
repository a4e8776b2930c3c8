package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vigie/dbopen"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	// WHAT: Responses carry CSP, X-Frame-Options, X-Content-Type-Options.
	// WHY: The API must be unframeable and unsniffable even behind a local boundary.
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict/url", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestTraceID_HeaderAndLogger(t *testing.T) {
	var sawLogger bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetLogger(r.Context()) != nil {
			sawLogger = true
		}
	})
	rec := httptest.NewRecorder()
	TraceID(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if id := rec.Header().Get("X-Trace-ID"); len(id) != 8 {
		t.Fatalf("X-Trace-ID = %q, want 8 hex chars", id)
	}
	if !sawLogger {
		t.Fatal("per-request logger not injected")
	}
}

func TestMaxJSONBody(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		for {
			if _, err := r.Body.Read(buf); err != nil {
				if err.Error() == "http: request body too large" {
					w.WriteHeader(http.StatusRequestEntityTooLarge)
				}
				return
			}
		}
	})
	h := MaxJSONBody(16)(inner)

	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	if _, err := db.Exec(
		`INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, 2, 60, 1)`,
		"POST /feedback",
	); err != nil {
		t.Fatal(err)
	}

	rl := NewRateLimiter(db)
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/feedback", nil)
		req.RemoteAddr = "10.1.2.3:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/feedback", nil)
	req.RemoteAddr = "10.1.2.3:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestRateLimiter_ExcludedPrefix(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	if _, err := db.Exec(
		`INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, 0, 60, 1)`,
		"GET /healthz",
	); err != nil {
		t.Fatal(err)
	}

	rl := NewRateLimiter(db, "/healthz")
	h := rl.Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("excluded path limited: status = %d", rec.Code)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4455"
	if ip := ExtractIP(req); ip != "192.0.2.7" {
		t.Fatalf("ExtractIP = %q", ip)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := ExtractIP(req); ip != "203.0.113.9" {
		t.Fatalf("ExtractIP with XFF = %q", ip)
	}
}
