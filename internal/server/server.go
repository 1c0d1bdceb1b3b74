// Package server exposes the tool registry to MCP clients over stdio.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/shellguard/internal/tools"
)

// Caller dispatches a validated tool call. *tools.Registry satisfies it, as
// does the instrumented wrapper in the observability package.
type Caller interface {
	Call(ctx context.Context, name string, params map[string]any) *tools.Result
}

// Server adapts a tools.Registry to the MCP protocol.
type Server struct {
	mcp    *mcpserver.MCPServer
	caller Caller
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCaller routes tool calls through c instead of the registry itself.
func WithCaller(c Caller) Option {
	return func(s *Server) {
		if c != nil {
			s.caller = c
		}
	}
}

// New builds an MCP server advertising every tool in reg.
func New(name, version string, reg *tools.Registry, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		mcp: mcpserver.NewMCPServer(name, version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
		caller: reg,
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}

	for _, t := range reg.All() {
		schema, err := json.Marshal(t.InputSchema())
		if err != nil {
			return nil, fmt.Errorf("encoding schema for %s: %w", t.Name(), err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.handler(t.Name()))
	}
	logger.Debug("mcp tools registered", slog.Int("count", len(reg.All())))
	return s, nil
}

// MCP returns the underlying mcp-go server, e.g. for an in-process client.
func (s *Server) MCP() *mcpserver.MCPServer { return s.mcp }

// handler renders every outcome as the JSON envelope
// {"success":..., "message":..., "data":...}. Failed results are flagged
// IsError so clients can tell them apart without parsing.
func (s *Server) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := s.caller.Call(ctx, name, req.GetArguments())
		if res == nil {
			res = tools.ErrorResult(fmt.Errorf("tool %s returned no result", name))
		}
		if !res.Success {
			s.logger.WarnContext(ctx, "tool call failed",
				slog.String("tool", name),
				slog.String("message", res.Message),
			)
			return mcp.NewToolResultError(res.JSON()), nil
		}
		return mcp.NewToolResultText(res.JSON()), nil
	}
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
// Protocol errors go to the logger, never to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("mcp stdio server listening")
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}
