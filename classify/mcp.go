package classify

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vigie/feedback"
	"github.com/hazyhaar/vigie/kit"
)

// RegisterMCP registers the classification tools on an MCP server.
// The feedback store is optional; without it the status tool is skipped.
func (s *Service) RegisterMCP(srv *mcp.Server, fb *feedback.Store) {
	s.registerPredictURLTool(srv)
	s.registerPredictEmailTool(srv)
	if fb != nil {
		registerFeedbackStatusTool(srv, fb)
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- predict url ---

type predictURLReq struct {
	URL string `json:"url"`
}

func (s *Service) registerPredictURLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vigie_predict_url",
		Description: "Classify a URL as phishing or safe, with plain-English reasons.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to classify"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*predictURLReq)
		return s.ClassifyURL(ctx, r.URL)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r predictURLReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- predict email ---

type predictEmailReq struct {
	BodyText string            `json:"body_text"`
	Headers  map[string]string `json:"headers"`
}

func (s *Service) registerPredictEmailTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vigie_predict_email",
		Description: "Classify an email body plus headers as phishing or safe.",
		InputSchema: inputSchema(map[string]any{
			"body_text": map[string]any{"type": "string", "description": "Email body text or HTML"},
			"headers":   map[string]any{"type": "object", "description": "Email headers as observed by the client"},
		}, []string{"body_text"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*predictEmailReq)
		return s.ClassifyEmail(ctx, r.BodyText, r.Headers)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r predictEmailReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- feedback status ---

func registerFeedbackStatusTool(srv *mcp.Server, fb *feedback.Store) {
	tool := &mcp.Tool{
		Name:        "vigie_feedback_status",
		Description: "Report accumulated corrections and progress toward the next retrain.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return fb.Status(ctx)
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
