// Package shield provides reusable HTTP security middleware for the vigie
// service. It consolidates security headers, body limits, request tracing,
// and rate limiting into a single importable package.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(db) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultStack returns the standard middleware stack for the vigie API.
// Ordered: SecurityHeaders → MaxJSONBody → TraceID → RateLimiter.
// Pass a nil db to run without rate limiting (e.g. in tests).
func DefaultStack(db *sql.DB) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(1 << 20),
		TraceID,
	}
	if db != nil {
		stack = append(stack, NewRateLimiter(db, "/healthz").Middleware)
	}
	return stack
}
