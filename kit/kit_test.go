package kit

import (
	"context"
	"testing"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()

	ctx = WithTraceID(ctx, "abc123")
	if got := GetTraceID(ctx); got != "abc123" {
		t.Fatalf("GetTraceID = %q", got)
	}

	ctx = WithRequestID(ctx, "req_1")
	if got := GetRequestID(ctx); got != "req_1" {
		t.Fatalf("GetRequestID = %q", got)
	}

	ctx = WithRemoteAddr(ctx, "10.0.0.1:9999")
	if got := GetRemoteAddr(ctx); got != "10.0.0.1:9999" {
		t.Fatalf("GetRemoteAddr = %q", got)
	}
}

func TestGetTransport_DefaultsToHTTP(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Fatalf("GetTransport default = %q, want http", got)
	}
	ctx := WithTransport(context.Background(), "mcp_stdio")
	if got := GetTransport(ctx); got != "mcp_stdio" {
		t.Fatalf("GetTransport = %q", got)
	}
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetRequestID(ctx) != "" || GetRemoteAddr(ctx) != "" {
		t.Fatal("unset keys must return empty strings")
	}
}
