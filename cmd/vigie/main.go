// Command vigie serves the phishing risk evaluation API: URL/email
// classification, file scanning, the navigation gate, and the feedback
// loop that retrains the model in the background.
package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vigie/classify"
	"github.com/hazyhaar/vigie/dbopen"
	"github.com/hazyhaar/vigie/feedback"
	"github.com/hazyhaar/vigie/gate"
	"github.com/hazyhaar/vigie/model"
	"github.com/hazyhaar/vigie/observability"
	"github.com/hazyhaar/vigie/retrain"
	"github.com/hazyhaar/vigie/shield"
)

func main() {
	cfg, err := LoadConfig(env("VIGIE_CONFIG", ""))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	port := env("PORT", cfg.Server.Port)
	mcpTransport := env("MCP_TRANSPORT", "")

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Feedback DB.
	fbDB, err := dbopen.Open(cfg.Store.FeedbackDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("feedback db", "error", err)
		os.Exit(1)
	}
	defer fbDB.Close()

	// Observability DB: audit log, metrics, shield state.
	obsDB, err := dbopen.Open(cfg.Store.ObservabilityDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		slog.Error("observability init", "error", err)
		os.Exit(1)
	}
	if err := shield.Init(obsDB); err != nil {
		slog.Error("shield init", "error", err)
		os.Exit(1)
	}
	auditLogger := observability.NewAuditLogger(obsDB, 256)
	defer auditLogger.Close()
	events := observability.NewEventLogger(obsDB)
	metrics := observability.NewMetricsManager(obsDB, 256, 10*time.Second)
	defer metrics.Close()

	// Model bootstrap: restore the last snapshot, else train from the
	// builtin corpus (plus the configured CSV dataset if any).
	models := model.NewStore(logger)
	if err := bootstrapModel(models, cfg.Model); err != nil {
		slog.Error("model bootstrap", "error", err)
		os.Exit(1)
	}

	// Feedback store.
	fb, err := feedback.NewStore(feedback.Config{
		DB:        fbDB,
		Threshold: cfg.Retrain.Threshold,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("feedback store", "error", err)
		os.Exit(1)
	}

	// Classification service and gate.
	svc := classify.NewService(models, logger)
	g := gate.New(gate.Config{
		Classifier: svc,
		Feedback:   fb,
		Audit:      auditLogger,
		Events:     events,
		Timeout:    cfg.Gate.Timeout,
		Logger:     logger,
	})

	// Retrain orchestrator.
	orch := retrain.New(retrain.Config{
		DB:           fbDB,
		Models:       models,
		Feedback:     fb,
		Corpus:       trainingCorpus(cfg.Model),
		StatePath:    cfg.Model.StatePath,
		PollInterval: cfg.Retrain.PollInterval,
		Logger:       logger,
	})
	go orch.Run(ctx)

	// Periodic gauges.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := fb.Count(ctx); err == nil {
					metrics.RecordSimple("feedback_pending", float64(n), "records")
				}
				if m := models.Current(); m != nil {
					metrics.RecordSimple("model_version", float64(m.Version), "version")
				}
			}
		}
	}()

	// Optional MCP over stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "vigie",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv, fb)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(obsDB) {
		r.Use(mw)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		if cfg.Server.AuthUser != "" && cfg.Server.AuthPasswordHash != "" {
			r.Use(basicAuth(cfg.Server.AuthUser, cfg.Server.AuthPasswordHash))
		}
		svc.Routes(r)
		fb.Routes(r)
		g.Routes(r)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// bootstrapModel restores the last snapshot or trains version 1 from
// the builtin corpus.
func bootstrapModel(models *model.Store, cfg ModelConfig) error {
	if cfg.StatePath != "" {
		if m, err := model.LoadState(cfg.StatePath); err == nil {
			slog.Info("model restored", "version", m.Version, "path", cfg.StatePath)
			return models.Swap(m)
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("model snapshot unreadable, retraining", "error", err)
		}
	}

	m, err := model.Train(1, trainingCorpus(cfg), nil, nil)
	if err != nil {
		return err
	}
	if err := models.Swap(m); err != nil {
		return err
	}
	slog.Info("model trained", "version", m.Version, "samples", m.SampleCount)
	if cfg.StatePath != "" {
		if err := model.SaveState(cfg.StatePath, m); err != nil {
			slog.Warn("model snapshot failed", "error", err)
		}
	}
	return nil
}

// trainingCorpus is the builtin corpus, extended with the configured
// URL dataset when one is present.
func trainingCorpus(cfg ModelConfig) model.Corpus {
	corpus := model.Builtin()
	if cfg.CorpusCSV == "" {
		return corpus
	}
	samples, err := model.LoadURLCSV(cfg.CorpusCSV)
	if err != nil {
		slog.Warn("corpus csv skipped", "path", cfg.CorpusCSV, "error", err)
		return corpus
	}
	slog.Info("corpus csv loaded", "path", cfg.CorpusCSV, "samples", len(samples))
	corpus.URL = append(corpus.URL, samples...)
	return corpus
}

// basicAuth enforces Basic Auth against a bcrypt password hash.
func basicAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="vigie"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
