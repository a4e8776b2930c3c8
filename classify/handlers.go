package classify

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vigie/feature"
)

// Routes mounts the prediction endpoints on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/predict/url", s.handlePredictURL)
	r.Post("/predict/email", s.handlePredictEmail)
	r.Post("/scan/file", s.handleScanFile)
	r.Get("/model", s.handleModel)
}

func (s *Service) handlePredictURL(w http.ResponseWriter, r *http.Request) {
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

	v, err := s.ClassifyURL(r.Context(), req.URL)
	if err != nil {
		writeVerdictError(w, v, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Service) handlePredictEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BodyText string            `json:"body_text"`
		Headers  map[string]string `json:"headers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}

	v, err := s.ClassifyEmail(r.Context(), req.BodyText, req.Headers)
	if err != nil {
		writeVerdictError(w, v.Verdict, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// scanFileReport adds the scanned marker so an unscanned file is never
// mistaken for a clean scan.
type scanFileReport struct {
	Verdict   string   `json:"verdict"`
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"reasons"`
	Scanned   bool     `json:"scanned"`
	Filename  string   `json:"filename,omitempty"`
}

func (s *Service) handleScanFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		jsonErr(w, "expected multipart form upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Read one byte past the ceiling so oversized uploads are detected
	// without buffering arbitrarily large content.
	content, err := io.ReadAll(io.LimitReader(file, MaxFileSize+1))
	if err != nil {
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	report, err := s.ClassifyFile(r.Context(), header.Filename, content)
	if errors.Is(err, ErrUnscanned) {
		writeJSON(w, http.StatusOK, scanFileReport{
			Verdict:   "unscanned",
			RiskScore: 0,
			Reasons:   []string{"File exceeds the 10 MiB scan ceiling and was not inspected."},
			Scanned:   false,
			Filename:  header.Filename,
		})
		return
	}
	if err != nil {
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scanFileReport{
		Verdict:   report.Verdict,
		RiskScore: report.RiskScore,
		Reasons:   report.Reasons,
		Scanned:   true,
		Filename:  report.Filename,
	})
}

func (s *Service) handleModel(w http.ResponseWriter, r *http.Request) {
	info, err := s.ActiveModel()
	if err != nil {
		jsonErr(w, "no active model", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// writeVerdictError maps service errors to responses. Malformed artifacts
// still ship their Unknown verdict in the body; an empty model store is a
// plain 503.
func writeVerdictError(w http.ResponseWriter, v Verdict, err error) {
	switch {
	case errors.Is(err, feature.ErrMalformed):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"prediction":   v.Label,
			"risk_score":   v.RiskScore,
			"explanations": []string{},
			"error":        "artifact could not be parsed",
		})
	case errors.Is(err, ErrUnavailable):
		jsonErr(w, "classifier unavailable", http.StatusServiceUnavailable)
	default:
		jsonErr(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
