package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "escort"
	clientVersion = "0.1.0"
)

// Session is one initialized connection to a tool server. Every call opens a
// fresh session and tears it down afterward; there is no pooling. The latency
// cost buys resilience against half-open and stale connections.
type Session interface {
	// Call invokes a named tool and returns its raw result.
	Call(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error)
	// ListTools returns the names of tools the server advertises.
	ListTools(ctx context.Context) ([]string, error)
	// Close tears down the session. Safe to call on every exit path.
	Close() error
}

// Dialer opens an initialized Session against a server. The invoker uses a
// streamable HTTP dialer by default; tests inject in-memory fakes.
type Dialer func(ctx context.Context, server ServerConfig) (Session, error)

type mcpSession struct {
	client *client.Client
}

// DialMCP opens a streamable HTTP session and performs the capability
// handshake. The returned session is ready for calls.
func DialMCP(ctx context.Context, server ServerConfig) (Session, error) {
	var opts []transport.StreamableHTTPCOption
	if server.Token != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + server.Token,
		}))
	}

	c, err := client.NewStreamableHttpClient(server.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize session: %w", err)
	}

	return &mcpSession{client: c}, nil
}

func (s *mcpSession) Call(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	return s.client.CallTool(ctx, req)
}

func (s *mcpSession) ListTools(ctx context.Context) ([]string, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names, nil
}

func (s *mcpSession) Close() error {
	return s.client.Close()
}

// textContent extracts the first text block from a tool result.
func textContent(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
