package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ExternalServer describes one external MCP tool server launched over stdio.
// Phone bridges, smart-home hubs and similar companions expose their tools
// this way; the assistant imports them next to the built-in catalog.
type ExternalServer struct {
	// Name prefixes every imported tool: a server "phone" exposing "dial"
	// registers as "phone.dial".
	Name string

	// Command and Args launch the server process. Env entries are appended
	// to the inherited environment.
	Command string
	Args    []string
	Env     map[string]string

	// Category the imported tools are filed under. Defaults to
	// [CategoryInformation].
	Category Category
}

// ExternalTools owns the client sessions behind imported MCP tools. Closing
// it disconnects the sessions and reaps the child processes.
type ExternalTools struct {
	log      *slog.Logger
	sessions []*mcpsdk.ClientSession
	count    int
}

// ConnectExternal launches and connects every configured server and imports
// its tool list into reg. A server that fails to connect is skipped with a
// warning: an absent companion must not keep the assistant from starting.
func ConnectExternal(ctx context.Context, reg *Registry, servers []ExternalServer, version string, log *slog.Logger) *ExternalTools {
	if log == nil {
		log = slog.Default()
	}
	ext := &ExternalTools{log: log.With("component", "external_tools")}
	for _, srv := range servers {
		if err := ext.connect(ctx, reg, srv, version); err != nil {
			ext.log.Warn("external tool server unavailable", "server", srv.Name, "error", err)
		}
	}
	return ext
}

// Count reports how many external tools were imported.
func (e *ExternalTools) Count() int { return e.count }

// Close disconnects every session. The SDK reaps the child processes.
func (e *ExternalTools) Close() error {
	var errs []error
	for _, s := range e.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.sessions = nil
	return errors.Join(errs...)
}

func (e *ExternalTools) connect(ctx context.Context, reg *Registry, srv ExternalServer, version string) error {
	if srv.Name == "" || srv.Command == "" {
		return errors.New("name and command are required")
	}

	cmd := exec.Command(srv.Command, srv.Args...)
	env := os.Environ()
	for k, v := range srv.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "kiwi", Version: version}, nil)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	n, err := ImportSession(ctx, reg, srv.Name, srv.Category, session)
	if err != nil {
		session.Close()
		return err
	}
	e.sessions = append(e.sessions, session)
	e.count += n
	e.log.Info("external tools imported", "server", srv.Name, "tools", n)
	return nil
}

// ImportSession lists the session's tools and registers each under reg,
// prefixed with the server name. It returns how many tools were imported;
// on error the tools registered before the failure stay registered.
func ImportSession(ctx context.Context, reg *Registry, server string, category Category, session *mcpsdk.ClientSession) (int, error) {
	if category == "" {
		category = CategoryInformation
	}

	list, err := session.ListTools(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("execution: list tools of %s: %w", server, err)
	}

	imported := 0
	for _, t := range list.Tools {
		tool := Tool{
			Name:        server + "." + t.Name,
			Description: t.Description,
			Category:    category,
			Params:      schemaParams(t.InputSchema),
			Handler:     proxyHandler(session, t.Name),
		}
		if err := reg.Register(tool); err != nil {
			return imported, fmt.Errorf("execution: import %s: %w", tool.Name, err)
		}
		imported++
	}
	return imported, nil
}

// proxyHandler forwards a call to the remote session and folds the reply
// into a registry Result. A remote IsError becomes Success: false rather
// than a Go error, the same way local handlers report domain failures.
func proxyHandler(session *mcpsdk.ClientSession, remote string) HandlerFunc {
	return func(ctx context.Context, _ *StateStore, args map[string]any) (Result, error) {
		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: remote, Arguments: args})
		if err != nil {
			return Result{}, fmt.Errorf("execution: call %s: %w", remote, err)
		}
		return Result{Success: !res.IsError, Message: textContent(res.Content)}, nil
	}
}

// textContent joins the text parts of a tool reply; other content is dropped.
func textContent(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// schemaParams projects the remote JSON schema's top-level properties onto
// the registry's flat parameter model. Non-scalar properties degrade to
// strings; the remote server stays the authority on deep validation.
func schemaParams(schema any) []Param {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}

	var doc struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
			Enum        []any  `json:"enum"`
			Default     any    `json:"default"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}

	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Param, 0, len(names))
	for _, name := range names {
		prop := doc.Properties[name]
		typ := prop.Type
		switch typ {
		case "string", "number", "integer", "boolean":
		default:
			typ = "string"
		}

		p := Param{
			Name:        name,
			Type:        typ,
			Description: prop.Description,
			Required:    slices.Contains(doc.Required, name),
			Default:     prop.Default,
		}
		if typ == "string" {
			for _, e := range prop.Enum {
				s, ok := e.(string)
				if !ok {
					p.Enum = nil
					break
				}
				p.Enum = append(p.Enum, s)
			}
		}
		params = append(params, p)
	}
	return params
}
