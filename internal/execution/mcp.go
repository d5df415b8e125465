package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// JSON-RPC 2.0 error codes used by the envelope.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

const protocolVersion = "2025-06-18"

// rpcRequest is the inbound JSON-RPC envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server answers MCP requests against a tool registry without any transport:
// callers hand it one JSON-RPC envelope at a time and get the response bytes
// back. The agent runtime talks to the registry through this surface so that
// tool calls look the same whether they stay in process or cross a stdio
// boundary.
type Server struct {
	reg *Registry
	log *slog.Logger
}

// NewServer wraps reg in an MCP envelope handler.
func NewServer(reg *Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{reg: reg, log: log.With("component", "mcp")}
}

// Handle processes one JSON-RPC request and returns the encoded response.
// Transport-level failures never escape as Go errors; they come back as
// JSON-RPC error objects.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return encodeError(nil, codeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return encodeError(req.ID, codeInvalidRequest, "invalid request")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return encodeError(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req rpcRequest) []byte {
	return encodeResult(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "kiwi-vehicle-tools",
			"version": "1.0.0",
		},
	})
}

func (s *Server) handleToolsList(req rpcRequest) []byte {
	type toolInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"inputSchema"`
	}

	var tools []toolInfo
	for _, name := range s.reg.List("") {
		t, ok := s.reg.Get(name)
		if !ok {
			continue
		}
		tools = append(tools, toolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: paramSchema(t.Params),
		})
	}
	return encodeResult(req.ID, map[string]any{"tools": tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req rpcRequest) []byte {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return encodeError(req.ID, codeInvalidParams, "invalid params: "+err.Error())
	}
	if params.Name == "" {
		return encodeError(req.ID, codeInvalidParams, "invalid params: missing tool name")
	}

	res, err := s.reg.Execute(ctx, params.Name, params.Arguments)
	switch {
	case errors.Is(err, ErrUnknownTool):
		return encodeError(req.ID, codeMethodNotFound, err.Error())
	case errors.Is(err, ErrInvalidParams):
		return encodeError(req.ID, codeInvalidParams, err.Error())
	case err != nil:
		s.log.Error("tool execution failed", "tool", params.Name, "error", err)
		return encodeError(req.ID, codeInternalError, err.Error())
	}

	text, err := json.Marshal(res)
	if err != nil {
		return encodeError(req.ID, codeInternalError, "encode result: "+err.Error())
	}
	return encodeResult(req.ID, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(text)},
		},
		"isError": !res.Success,
	})
}

func encodeResult(id json.RawMessage, result any) []byte {
	out, err := json.Marshal(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
	if err != nil {
		return encodeError(id, codeInternalError, "encode response: "+err.Error())
	}
	return out
}

func encodeError(id json.RawMessage, code int, msg string) []byte {
	out, _ := json.Marshal(rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: msg},
	})
	return out
}
