package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewSDKServer exposes the registry as an MCP server built on the official
// SDK, so external MCP clients can drive the vehicle tools over stdio.
func NewSDKServer(reg *Registry, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: "kiwi-vehicle-tools", Version: version},
		nil,
	)

	for _, name := range reg.List("") {
		t, ok := reg.Get(name)
		if !ok {
			continue
		}
		schema, err := json.Marshal(paramSchema(t.Params))
		if err != nil {
			continue
		}
		server.AddTool(&mcpsdk.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: json.RawMessage(schema),
		}, sdkHandler(reg, t.Name))
	}
	return server
}

// sdkHandler adapts one registry tool to the SDK's handler signature.
// Validation and handler failures surface as tool results with IsError set,
// not protocol errors, so LLM clients can read them as text.
func sdkHandler(reg *Registry, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args, err := decodeArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res, err := reg.Execute(ctx, name, args)
		if err != nil {
			return errorResult(err.Error()), nil
		}

		text, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("execution: encode result for %s: %w", name, err)
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
			IsError: !res.Success,
		}, nil
	}
}

func decodeArguments(raw any) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}

// RunStdio serves MCP over the process's stdin/stdout until ctx is cancelled.
func RunStdio(ctx context.Context, server *mcpsdk.Server, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log.Info("mcp stdio server started")
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("execution: mcp stdio server: %w", err)
	}
	return nil
}
