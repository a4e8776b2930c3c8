// Package gate decides whether a navigation proceeds or gets blocked.
// It sits between the browser extension and the classifier: phishing
// verdicts block, everything else allows, and any classifier failure or
// timeout fails open so the gate never breaks browsing. A user who
// insists on visiting a blocked page gets a one-shot bypass.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/vigie/classify"
	"github.com/hazyhaar/vigie/feature"
	"github.com/hazyhaar/vigie/feedback"
	"github.com/hazyhaar/vigie/filescan"
	"github.com/hazyhaar/vigie/observability"
)

// Decision actions.
const (
	ActionAllow = "allow"
	ActionBlock = "block"
)

// Reasons attached to allow decisions that skipped or discarded the
// verdict.
const (
	ReasonBypass      = "bypass"
	ReasonFailOpen    = "fail_open"
	ReasonSuperseded  = "superseded"
	ReasonSubframe    = "subframe"
	ReasonUnfetchable = "unfetchable_scheme"
)

// Navigation is one page load reported by the extension.
type Navigation struct {
	ID       string `json:"navigation_id"`
	URL      string `json:"url"`
	TabID    int64  `json:"tab_id"`
	TopLevel bool   `json:"top_level"`
}

// Decision is the gate's answer for a navigation.
type Decision struct {
	Action  string            `json:"action"`
	Reason  string            `json:"reason,omitempty"`
	Verdict *classify.Verdict `json:"verdict,omitempty"`
}

// Config wires a Gate.
type Config struct {
	Classifier *classify.Service
	// Feedback, when set, records a safe-label correction each time the
	// user proceeds past a block.
	Feedback *feedback.Store
	// Audit, when set, receives a fire-and-forget entry per decision.
	Audit *observability.AuditLogger
	// Events, when set, records blocks and bypass grants as domain
	// events.
	Events *observability.EventLogger
	// Timeout bounds one classification. Past it the gate allows.
	// Default: 3s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Gate makes allow/block decisions. Safe for concurrent use.
type Gate struct {
	svc     *classify.Service
	fb      *feedback.Store
	audit   *observability.AuditLogger
	events  *observability.EventLogger
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex
	// bypass holds URLs granted exactly one uninspected pass.
	bypass map[string]struct{}
	// latest tracks the newest navigation id per tab so a verdict that
	// arrives after the tab moved on is discarded.
	latest map[int64]string
}

// New creates a Gate.
func New(cfg Config) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gate{
		svc:     cfg.Classifier,
		fb:      cfg.Feedback,
		audit:   cfg.Audit,
		events:  cfg.Events,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		bypass:  make(map[string]struct{}),
		latest:  make(map[int64]string),
	}
}

// Decide evaluates one navigation. Subframe loads pass through
// untouched; top-level loads are classified under the gate's timeout.
// Only a phishing verdict blocks.
func (g *Gate) Decide(ctx context.Context, nav Navigation) Decision {
	if !nav.TopLevel {
		return Decision{Action: ActionAllow, Reason: ReasonSubframe}
	}
	if !fetchable(nav.URL) {
		// Browser-internal pages (about:, chrome:, file:) are not
		// phishing surfaces.
		return Decision{Action: ActionAllow, Reason: ReasonUnfetchable}
	}

	g.mu.Lock()
	g.latest[nav.TabID] = nav.ID
	g.mu.Unlock()

	if g.consumeBypass(nav.URL) {
		g.logger.Info("gate: bypass consumed", "url", nav.URL)
		g.finish(nav)
		return g.record(nav, Decision{Action: ActionAllow, Reason: ReasonBypass}, nil, 0)
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	v, err := g.svc.ClassifyURL(cctx, nav.URL)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, feature.ErrMalformed) {
		// Fail open: a broken or slow classifier must not break
		// browsing.
		g.logger.Warn("gate: failing open", "url", nav.URL, "error", err)
		g.finish(nav)
		return g.record(nav, Decision{Action: ActionAllow, Reason: ReasonFailOpen}, err, elapsed)
	}

	if g.finish(nav) {
		return Decision{Action: ActionAllow, Reason: ReasonSuperseded}
	}

	d := Decision{Action: ActionAllow, Verdict: &v}
	if v.Label == classify.LabelPhishing {
		d.Action = ActionBlock
		g.logger.Info("gate: blocked", "url", nav.URL, "risk", v.RiskScore)
		if g.events != nil {
			g.events.LogEvent(ctx, observability.DomainEvent{
				EventType:   "navigation_blocked",
				ServiceName: "gate",
				EntityType:  "url",
				EntityID:    nav.URL,
				Action:      ActionBlock,
				Success:     true,
			})
		}
	}
	return g.record(nav, d, err, elapsed)
}

// Proceed grants the URL exactly one bypass and records the user's
// implicit safe-label correction.
func (g *Gate) Proceed(ctx context.Context, url string) error {
	g.mu.Lock()
	g.bypass[url] = struct{}{}
	g.mu.Unlock()
	g.logger.Info("gate: bypass granted", "url", url)
	if g.events != nil {
		g.events.LogEvent(ctx, observability.DomainEvent{
			EventType:   "bypass_granted",
			ServiceName: "gate",
			EntityType:  "url",
			EntityID:    url,
			Action:      ActionAllow,
			Success:     true,
		})
	}

	if g.fb == nil {
		return nil
	}
	v, err := feature.ExtractURL(url)
	if err != nil {
		return err
	}
	_, err = g.fb.Record(ctx, feedback.Record{
		Kind:          feedback.KindURL,
		Features:      v,
		OriginalLabel: feedback.LabelPhishing,
		UserLabel:     feedback.LabelSafe,
	})
	return err
}

// InspectDownload scans a finished download and reports its verdict.
// The result is advisory: downloads are never blocked, oversized files
// come back unscanned.
func (g *Gate) InspectDownload(ctx context.Context, filename string, content []byte) (filescan.Report, error) {
	return g.svc.ClassifyFile(ctx, filename, content)
}

func fetchable(url string) bool {
	u := strings.ToLower(url)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func (g *Gate) consumeBypass(url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.bypass[url]; !ok {
		return false
	}
	delete(g.bypass, url)
	return true
}

// finish reports whether the navigation was superseded by a newer one
// in the same tab. When it is still the latest, its tracking entry is
// removed so the per-tab map does not grow with every tab ever seen.
func (g *Gate) finish(nav Navigation) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latest[nav.TabID] != nav.ID {
		return true
	}
	delete(g.latest, nav.TabID)
	return false
}

func (g *Gate) record(nav Navigation, d Decision, err error, elapsed time.Duration) Decision {
	if g.audit != nil {
		g.audit.LogAsync(g.audit.NewAuditEntry("gate", "navigation", nav, d, err, elapsed))
	}
	return d
}
