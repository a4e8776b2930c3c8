// Package classify orchestrates verdict production: fetch the active
// model, extract features, score, explain. It has no side effects beyond
// reading the model store; writing feedback and deciding navigations
// belong to other packages.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/vigie/feature"
	"github.com/hazyhaar/vigie/filescan"
	"github.com/hazyhaar/vigie/model"
)

// MaxFileSize is the scan ceiling. Files above it are never inspected and
// report as unscanned, which is not the same thing as safe.
const MaxFileSize = 10 << 20

// Sentinel errors.
var (
	// ErrUnavailable means no model is active or the backing capability
	// is down. The gate fails open on it; other callers see the error.
	ErrUnavailable = errors.New("classify: model unavailable")
	// ErrUnscanned means the file exceeded the size ceiling.
	ErrUnscanned = errors.New("classify: file exceeds scan ceiling")
)

// Verdict labels.
const (
	LabelSafe     = "safe"
	LabelPhishing = "phishing"
	LabelUnknown  = "unknown"
)

// Verdict is the outcome of classifying one artifact. Reasons are ordered
// most influential first and only present for phishing verdicts.
type Verdict struct {
	Label     string   `json:"prediction"`
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"explanations"`
}

// EmailVerdict carries the combined verdict plus the two component risks.
type EmailVerdict struct {
	Verdict
	TextRisk   float64 `json:"text_risk"`
	HeaderRisk float64 `json:"header_risk"`
}

// Service produces verdicts against the currently active model.
type Service struct {
	models *model.Store
	logger *slog.Logger

	// flight coalesces concurrent checks of the identical URL, typical
	// when a page fires several navigations at once.
	flight singleflight.Group
}

// NewService creates a Service.
func NewService(models *model.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{models: models, logger: logger}
}

// ModelInfo describes the active model for inspection surfaces.
type ModelInfo struct {
	Version     int64  `json:"version"`
	TrainedAt   string `json:"trained_at"`
	SampleCount int    `json:"sample_count"`
}

// ActiveModel returns metadata for the active model, or ErrUnavailable.
func (s *Service) ActiveModel() (ModelInfo, error) {
	m := s.models.Current()
	if m == nil {
		return ModelInfo{}, ErrUnavailable
	}
	return ModelInfo{
		Version:     m.Version,
		TrainedAt:   m.TrainedAt.Format("2006-01-02T15:04:05Z07:00"),
		SampleCount: m.SampleCount,
	}, nil
}

// ClassifyURL produces a verdict for a URL. A malformed URL yields an
// Unknown verdict together with feature.ErrMalformed; it is never coerced
// to safe. Identical concurrent URLs share one classification.
func (s *Service) ClassifyURL(ctx context.Context, raw string) (Verdict, error) {
	type result struct {
		v   Verdict
		err error
	}
	r, _, _ := s.flight.Do(raw, func() (any, error) {
		v, err := s.classifyURL(raw)
		return result{v, err}, nil
	})
	res := r.(result)
	if err := ctx.Err(); err != nil {
		return Verdict{Label: LabelUnknown}, err
	}
	return res.v, res.err
}

func (s *Service) classifyURL(raw string) (Verdict, error) {
	m := s.models.Current()
	if m == nil {
		return Verdict{Label: LabelUnknown}, ErrUnavailable
	}
	vec, err := feature.ExtractURL(raw)
	if err != nil {
		return Verdict{Label: LabelUnknown}, fmt.Errorf("url %q: %w", raw, err)
	}

	score := m.URL.Score(vec)
	v := Verdict{Label: LabelSafe, RiskScore: round3(score)}
	if score > 0.5 {
		v.Label = LabelPhishing
		v.Reasons = model.Explain(m.URL, vec)
	}
	s.logger.Debug("classify: url", "risk", v.RiskScore, "label", v.Label)
	return v, nil
}

// ClassifyEmail produces a combined verdict from the body text and the
// client-observed headers. Combined risk is the max of the two component
// risks: a fully spoofed sender is dangerous no matter how bland the text.
func (s *Service) ClassifyEmail(ctx context.Context, body string, headers map[string]string) (EmailVerdict, error) {
	m := s.models.Current()
	if m == nil {
		return EmailVerdict{Verdict: Verdict{Label: LabelUnknown}}, ErrUnavailable
	}

	findings := feature.CheckHeaders(headers)

	vec, err := feature.ExtractEmail(body)
	if err != nil {
		return EmailVerdict{
			Verdict:    Verdict{Label: LabelUnknown},
			HeaderRisk: findings.RiskScore,
		}, fmt.Errorf("email body: %w", err)
	}

	textRisk := m.Email.Score(vec)
	combined := max(textRisk, findings.RiskScore)

	v := EmailVerdict{
		Verdict:    Verdict{Label: LabelSafe, RiskScore: round3(combined)},
		TextRisk:   round3(textRisk),
		HeaderRisk: findings.RiskScore,
	}
	if combined > 0.5 {
		v.Label = LabelPhishing
		v.Reasons = append(v.Reasons, findings.Anomalies...)
		if textRisk > 0.5 {
			v.Reasons = append(v.Reasons, model.Explain(m.Email, vec)...)
		}
		if len(v.Reasons) > 5 {
			v.Reasons = v.Reasons[:5]
		}
	}
	s.logger.Debug("classify: email",
		"risk", v.RiskScore, "text_risk", v.TextRisk, "header_risk", v.HeaderRisk, "label", v.Label)
	return v, nil
}

// ClassifyFile scans file content with the static heuristics. The size
// ceiling applies before any inspection; oversized content returns
// ErrUnscanned without touching the bytes.
func (s *Service) ClassifyFile(ctx context.Context, filename string, content []byte) (filescan.Report, error) {
	if len(content) > MaxFileSize {
		return filescan.Report{}, fmt.Errorf("%w: %d bytes", ErrUnscanned, len(content))
	}
	report := filescan.Scan(filename, content)
	s.logger.Debug("classify: file",
		"filename", filename, "risk", report.RiskScore, "verdict", report.Verdict)
	return report, nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
