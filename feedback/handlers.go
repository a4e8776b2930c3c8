package feedback

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vigie/feature"
)

// Routes mounts the feedback endpoints on a chi router.
func (s *Store) Routes(r chi.Router) {
	r.Post("/feedback", s.handleSubmit)
	r.Get("/feedback/status", s.handleStatus)
}

func (s *Store) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemType      string            `json:"item_type"`
		URL           string            `json:"url"`
		BodyText      string            `json:"body_text"`
		Headers       map[string]string `json:"headers"`
		UserLabel     string            `json:"user_label"`
		PredictionWas string            `json:"prediction_was"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec := Record{
		Kind:          strings.ToLower(strings.TrimSpace(req.ItemType)),
		OriginalLabel: strings.ToLower(strings.TrimSpace(req.PredictionWas)),
		UserLabel:     strings.ToLower(strings.TrimSpace(req.UserLabel)),
	}

	// Features are re-extracted server side so the stored vector always
	// matches the active schema, whatever the client observed.
	var (
		vec feature.Vector
		err error
	)
	switch rec.Kind {
	case KindURL:
		vec, err = feature.ExtractURL(req.URL)
	case KindEmail:
		vec, err = feature.ExtractEmail(req.BodyText)
	default:
		jsonErr(w, "item_type must be 'url' or 'email'", http.StatusBadRequest)
		return
	}
	if err != nil {
		if errors.Is(err, feature.ErrMalformed) {
			jsonErr(w, "artifact could not be parsed", http.StatusBadRequest)
			return
		}
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	rec.Features = vec

	count, err := s.Record(r.Context(), rec)
	if err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			jsonErr(w, err.Error(), http.StatusBadRequest)
			return
		}
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "count": count})
}

func (s *Store) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Status(r.Context())
	if err != nil {
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"feedback_count":    st.Count,
		"retrain_threshold": st.Threshold,
		"progress_percent":  st.ProgressPercent,
	})
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
