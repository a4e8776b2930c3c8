package gate

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vigie/classify"
)

// Routes mounts the gate endpoints on a chi router.
func (g *Gate) Routes(r chi.Router) {
	r.Post("/gate/navigation", g.handleNavigation)
	r.Post("/gate/bypass", g.handleBypass)
	r.Post("/gate/download", g.handleDownload)
}

func (g *Gate) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var nav Navigation
	if err := json.NewDecoder(r.Body).Decode(&nav); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(nav.URL) == "" {
		jsonErr(w, "url is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, g.Decide(r.Context(), nav))
}

func (g *Gate) handleBypass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		jsonErr(w, "url is required", http.StatusBadRequest)
		return
	}
	if err := g.Proceed(r.Context(), req.URL); err != nil {
		// The bypass itself is already granted; only the correction
		// failed.
		g.logger.Warn("gate: proceed feedback failed", "url", req.URL, "error", err)
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (g *Gate) handleDownload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		jsonErr(w, "expected multipart form with a 'file' part", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, "missing 'file' part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, classify.MaxFileSize+1))
	if err != nil {
		jsonErr(w, "failed to read upload", http.StatusInternalServerError)
		return
	}

	report, err := g.InspectDownload(r.Context(), header.Filename, content)
	if err != nil {
		if errors.Is(err, classify.ErrUnscanned) {
			writeJSON(w, map[string]any{
				"verdict": "unscanned",
				"scanned": false,
				"reason":  "file exceeds the 10 MiB scan ceiling",
			})
			return
		}
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"verdict": report.Verdict,
		"scanned": true,
		"report":  report,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
