package connectivity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpImpl identifies this router to remote MCP servers.
var mcpImpl = &mcp.Implementation{Name: "satlens-router", Version: "0.1.0"}

// mcpConfig is the per-route config parsed from the routes table JSON
// for MCP transport.
type mcpConfig struct {
	ToolName string `json:"tool_name"`
}

// MCPFactory creates Handlers that dispatch calls as MCP tool invocations
// over streamable HTTP. The payload is unmarshalled as a JSON map of tool
// arguments. The endpoint is the MCP server URL.
//
// The route config JSON must include "tool_name" to specify which MCP tool
// to call. Example config:
//
//	{"tool_name": "rewrite_page"}
//
// Register it with:
//
//	router.RegisterTransport("mcp", connectivity.MCPFactory())
func MCPFactory() TransportFactory {
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		var cfg mcpConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, nil, fmt.Errorf("connectivity/mcp: parse config: %w", err)
			}
		}
		if cfg.ToolName == "" {
			return nil, nil, fmt.Errorf("connectivity/mcp: tool_name required in config")
		}

		client := mcp.NewClient(mcpImpl, nil)
		transport := &mcp.StreamableClientTransport{Endpoint: endpoint}

		// Connect eagerly so we fail fast during Reload.
		session, err := client.Connect(context.Background(), transport, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("connectivity/mcp: connect to %s: %w", endpoint, err)
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			var args map[string]any
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &args); err != nil {
					return nil, fmt.Errorf("connectivity/mcp: unmarshal args: %w", err)
				}
			}

			result, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name:      cfg.ToolName,
				Arguments: args,
			})
			if err != nil {
				return nil, fmt.Errorf("connectivity/mcp: call %s: %w", cfg.ToolName, err)
			}
			if err := result.GetError(); err != nil {
				return nil, fmt.Errorf("connectivity/mcp: tool %s: %w", cfg.ToolName, err)
			}

			for _, c := range result.Content {
				if tc, ok := c.(*mcp.TextContent); ok {
					return []byte(tc.Text), nil
				}
			}
			return nil, nil
		}

		closeFn := func() {
			session.Close()
		}

		return handler, closeFn, nil
	}
}
