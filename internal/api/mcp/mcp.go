// Package mcp exposes the read-only hiring-data tools over the Model
// Context Protocol, so external agents can query the same records the
// assistant sees. Every call is scoped to the authenticated caller.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unroll-ai/unroll/internal/api/ctxkeys"
	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/domain/tool"
)

const serverName = "unroll"

type Config struct {
	// Registry supplies the tools and runs them.
	Registry *tool.Registry

	// Beginner opens the transaction each tool call runs in.
	Beginner scope.Beginner

	// Version is reported in the MCP implementation info.
	Version string

	Logger *slog.Logger
}

type Server struct {
	config  Config
	handler *mcp.StreamableHTTPHandler
}

func NewServer(c Config) (*Server, error) {
	if c.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if c.Beginner == nil {
		return nil, errors.New("transaction beginner is required")
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{config: c}
	// Stateless: every HTTP request gets a server bound to its caller, so no
	// session outlives the request that authenticated it.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			caller, ok := ctxkeys.UserIDFrom(r.Context())
			if !ok {
				return nil
			}
			return s.ForCaller(caller)
		},
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
	return s, nil
}

// Handler returns the streamable HTTP handler. It must run behind the auth
// middleware; requests without a caller are rejected.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ForCaller returns an MCP server whose tools read only caller's records.
func (s *Server) ForCaller(caller int64) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: s.config.Version}, nil)
	for _, schema := range s.config.Registry.Schemas() {
		srv.AddTool(&mcp.Tool{
			Name:        string(schema.Name),
			Description: schema.Description,
			InputSchema: schema.Input,
		}, s.callTool(caller, string(schema.Name)))
	}
	return srv
}

func (s *Server) callTool(caller int64, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sc, err := scope.Open(ctx, s.config.Beginner, caller)
		if err != nil {
			s.config.Logger.ErrorContext(ctx, "mcp tool scope", "error", err, "tool", name)
			return nil, err
		}
		// The tools only read, so the transaction is always rolled back.
		defer func() { _ = sc.Release(false) }()

		res := s.config.Registry.Invoke(ctx, sc, name, req.Params.Arguments)
		s.config.Logger.DebugContext(ctx, "mcp tool call",
			"tool", name, "user_id", caller, "kind", res.Kind)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Content}},
			IsError: res.IsError,
		}, nil
	}
}
