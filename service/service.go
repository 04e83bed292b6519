// Package service implements a stateless JSON-RPC dispatch layer for the
// MCP tool surface. Handlers are registered into an immutable registry at
// construction time; there is no runtime mutation of the handler table.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mcpguard/mcpguard/internal/jsonrpc"
	"github.com/mcpguard/mcpguard/internal/logctx"
	"github.com/mcpguard/mcpguard/internal/metrics"
	"github.com/mcpguard/mcpguard/mcp"
)

// HandlerFunc handles a single JSON-RPC request and returns its result
// value, or a protocol-level error.
type HandlerFunc func(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error)

// Server dispatches JSON-RPC requests against a fixed handler registry.
// All fields are set during NewServer and never mutated, so a Server is
// safe for concurrent use.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	tools        *ToolSet
	handlers     map[string]HandlerFunc
	log          *slog.Logger
}

// ServerOption configures a Server during construction.
type ServerOption func(*Server)

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets the optional instructions string returned from
// initialize.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) { s.instructions = instructions }
}

// WithTools sets the static tool set served by tools/list and tools/call.
func WithTools(tools *ToolSet) ServerOption {
	return func(s *Server) { s.tools = tools }
}

// WithHandler installs a handler for an additional method. Applied only at
// construction; built-in methods cannot be overridden.
func WithHandler(method string, fn HandlerFunc) ServerOption {
	return func(s *Server) { s.handlers[method] = fn }
}

// WithLogger sets the slog logger used during dispatch.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// NewServer builds the dispatch registry. The returned server speaks the
// stateless subset of the protocol: initialize succeeds without creating a
// session, notifications are acknowledged and dropped, and tool calls carry
// no cross-request state.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		info:     mcp.ImplementationInfo{Name: "mcpguard", Version: "0.0.0"},
		tools:    NewToolSet(),
		handlers: make(map[string]HandlerFunc),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers[mcp.InitializeMethod] = s.handleInitialize
	s.handlers[mcp.PingMethod] = s.handlePing
	s.handlers[mcp.ToolsListMethod] = s.handleToolsList
	s.handlers[mcp.ToolsCallMethod] = s.handleToolsCall
	return s
}

// Dispatch routes a parsed request to its handler and builds the response.
// Notifications return nil: they are acknowledged at the transport level
// and produce no response body.
func (s *Server) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	if req.IsNotification() {
		s.log.InfoContext(ctx, "rpc.notification.ok")
		return nil
	}

	fn, ok := s.handlers[req.Method]
	if !ok {
		s.log.InfoContext(ctx, "rpc.method.unknown")
		metrics.RPCRequests.WithLabelValues(req.Method, "method_not_found").Inc()
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method)
	}

	result, rpcErr := fn(ctx, req)
	if rpcErr != nil {
		s.log.InfoContext(ctx, "rpc.request.fail", slog.String("err", rpcErr.Message))
		metrics.RPCRequests.WithLabelValues(req.Method, "error").Inc()
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: rpcErr, ID: req.ID}
	}

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		s.log.ErrorContext(ctx, "rpc.result.encode.fail", slog.String("err", err.Error()))
		metrics.RPCRequests.WithLabelValues(req.Method, "error").Inc()
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal server error")
	}
	metrics.RPCRequests.WithLabelValues(req.Method, "ok").Inc()
	s.log.InfoContext(ctx, "rpc.request.ok")
	return res
}

func (s *Server) handleInitialize(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "invalid initialize params"}
		}
	}
	return &mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handlePing(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	return struct{}{}, nil
}

func (s *Server) handleToolsList(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	return &mcp.ListToolsResult{Tools: s.tools.Descriptors()}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	var callReq mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &callReq); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "invalid tools/call params"}
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: callReq.Name})

	tool, ok := s.tools.Lookup(callReq.Name)
	if !ok {
		// An unknown tool is a tool-level error result, not a protocol error.
		s.log.InfoContext(ctx, "tool.call.unknown")
		metrics.ToolCalls.WithLabelValues(callReq.Name, "unknown").Inc()
		return &mcp.CallToolResult{
			Content: []mcp.ContentBlock{mcp.TextContent("Unknown tool")},
			IsError: true,
		}, nil
	}

	res, err := tool.Handler(ctx, &callReq)
	if err != nil {
		s.log.ErrorContext(ctx, "tool.call.fail", slog.String("err", err.Error()))
		metrics.ToolCalls.WithLabelValues(callReq.Name, "error").Inc()
		return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInternalError, Message: "internal server error"}
	}
	status := "ok"
	if res.IsError {
		status = "tool_error"
	}
	metrics.ToolCalls.WithLabelValues(callReq.Name, status).Inc()
	s.log.InfoContext(ctx, "tool.call.ok", slog.Bool("is_error", res.IsError))
	return res, nil
}
