package satlens

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/satlens/satlens/kit"
)

// RegisterMCP registers satlens tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerConvertPriceTool(srv)
	s.registerRewritePageTool(srv)
	s.registerGetRatesTool(srv)
	s.registerGetStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

// --- convert_price ---

type convertPriceRequest struct {
	Text     string `json:"text"`
	Currency string `json:"currency,omitempty"`
}

func (s *Service) registerConvertPriceTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "convert_price",
		Description: "Convert a fiat price string (e.g. \"$25.00\", \"1 234,56 €\", \"$2.5M\") to its Bitcoin equivalent under the stored preferences.",
		InputSchema: inputSchema(map[string]any{
			"text":     map[string]any{"type": "string", "description": "Price text to convert"},
			"currency": map[string]any{"type": "string", "description": "ISO 4217 code overriding the default currency"},
		}, []string{"text"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*convertPriceRequest)
		out, err := s.ConvertPrice(ctx, r.Text, r.Currency)
		if err != nil {
			return nil, err
		}
		return map[string]string{"input": r.Text, "output": out}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r convertPriceRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &r,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithTransport(ctx, "mcp") },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- rewrite_page ---

type rewritePageRequest struct {
	HTML     string `json:"html"`
	URL      string `json:"url,omitempty"`
	Fragment bool   `json:"fragment,omitempty"`
}

func (s *Service) registerRewritePageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "rewrite_page",
		Description: "Annotate every fiat price in an HTML document with its Bitcoin equivalent. Returns the rewritten HTML and the replacement count.",
		InputSchema: inputSchema(map[string]any{
			"html":     map[string]any{"type": "string", "description": "The HTML to rewrite"},
			"url":      map[string]any{"type": "string", "description": "Page URL, used for stats and the per-site disable list"},
			"fragment": map[string]any{"type": "boolean", "description": "Treat the input as a fragment instead of a full document"},
		}, []string{"html"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*rewritePageRequest)
		return s.RewriteHTML(ctx, r.HTML, PageInfo{
			URL:      r.URL,
			Source:   "mcp",
			Fragment: r.Fragment,
		})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r rewritePageRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &r,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithTransport(ctx, "mcp") },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- get_rates ---

type getRatesRequest struct{}

func (s *Service) registerGetRatesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "get_rates",
		Description: "Get the current BTC price table, keyed by ISO 4217 currency code.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Rates(ctx)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &getRatesRequest{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- get_stats ---

type getStatsRequest struct {
	Since int64 `json:"since,omitempty"`
}

func (s *Service) registerGetStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "get_stats",
		Description: "Get per-site conversion totals: passes, replacements, last activity.",
		InputSchema: inputSchema(map[string]any{
			"since": map[string]any{"type": "integer", "description": "Unix timestamp lower bound (0 = all time)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getStatsRequest)
		if s.recorder != nil {
			s.recorder.Flush()
		}
		return s.Stats(ctx, r.Since)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r getStatsRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
