// Package mcp wraps mark3labs/mcp-go into the stateless client the recipe
// executor needs: a server descriptor goes in, a tool gets listed or
// called, and the underlying session is closed again before the call
// returns. Per §9 "MCP servers are stateless", there is no connection
// pool here — grounded on the pack's agent_go/pkg/mcpclient, but trimmed
// to the open-call-close lifecycle the spec asks for instead of that
// package's retry/pool machinery.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	gomcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
)

// ToolProvider is the handle llm_generate attaches to a model call so the
// provider adapter can expose the server's tools and route tool-call
// round-trips back through here.
type ToolProvider interface {
	Name() string
	ListTools(ctx context.Context) ([]gomcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (map[string]interface{}, error)
}

// Server is a resolved, not-yet-connected MCP server descriptor.
type Server struct {
	descriptor recipe.MCPServerDescriptor
	name       string
}

// GetMCPServer validates a descriptor and returns a stateless handle bound
// to it. No network connection is made until a call is actually issued.
func GetMCPServer(descriptor recipe.MCPServerDescriptor) (*Server, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	return &Server{descriptor: resolveEnv(descriptor), name: serverName(descriptor)}, nil
}

func serverName(d recipe.MCPServerDescriptor) string {
	if d.IsStdio() {
		return fmt.Sprintf("%s %v", d.Command, d.Args)
	}
	return d.URL
}

// resolveEnv fills empty-string env values from the process environment
// and the already-loaded .env file, per §4.8 / §9.
func resolveEnv(d recipe.MCPServerDescriptor) recipe.MCPServerDescriptor {
	if len(d.Env) == 0 {
		return d
	}
	resolved := make(map[string]string, len(d.Env))
	for k, v := range d.Env {
		if v == "" {
			resolved[k] = config.LookupEnv(k)
		} else {
			resolved[k] = v
		}
	}
	d.Env = resolved
	return d
}

// Name returns a human-readable identity for error messages and debug logs.
func (s *Server) Name() string {
	return s.name
}

// connect opens a fresh session to the server. The caller must Close it.
func (s *Server) connect(ctx context.Context) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	if s.descriptor.IsStdio() {
		env := make([]string, 0, len(s.descriptor.Env))
		for k, v := range s.descriptor.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		c, err = client.NewStdioMCPClient(s.descriptor.Command, env, s.descriptor.Args...)
		if err != nil {
			return nil, rerrors.Wrap(rerrors.ToolCallFailure, err, "failed to start mcp server %q over stdio", s.name)
		}
		return c, nil
	}

	var opts []transport.ClientOption
	if len(s.descriptor.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(s.descriptor.Headers))
	}
	sseTransport, err := transport.NewSSE(s.descriptor.URL, opts...)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.ToolCallFailure, err, "failed to create transport for mcp server %q", s.name)
	}
	c = client.NewClient(sseTransport)
	if err := c.Start(ctx); err != nil {
		return nil, rerrors.Wrap(rerrors.ToolCallFailure, err, "failed to start mcp server %q", s.name)
	}

	if _, err := c.Initialize(ctx, gomcp.InitializeRequest{
		Params: gomcp.InitializeParams{
			ProtocolVersion: gomcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    gomcp.ClientCapabilities{},
			ClientInfo: gomcp.Implementation{
				Name:    "recipe-executor",
				Version: "1.0.0",
			},
		},
	}); err != nil {
		c.Close()
		return nil, rerrors.Wrap(rerrors.ToolCallFailure, err, "failed to initialize mcp server %q", s.name)
	}
	return c, nil
}

// ListTools opens a session, lists tools, and closes the session.
func (s *Server) ListTools(ctx context.Context) ([]gomcp.Tool, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	result, err := c.ListTools(ctx, gomcp.ListToolsRequest{})
	if err != nil {
		return nil, rerrors.Wrap(rerrors.ToolCallFailure, err, "failed to list tools on mcp server %q", s.name)
	}
	return result.Tools, nil
}

// CallTool opens a session, invokes the named tool, normalizes the
// result to a plain mapping, and closes the session.
func (s *Server) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (map[string]interface{}, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	result, err := c.CallTool(ctx, gomcp.CallToolRequest{
		Params: gomcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, rerrors.Wrap(rerrors.ToolCallFailure, err, "tool %q failed on mcp server %q", name, s.name)
	}
	if result.IsError {
		return nil, rerrors.New(rerrors.ToolCallFailure, "tool %q on mcp server %q returned an error result: %s", name, s.name, normalizeContent(result.Content))
	}

	return map[string]interface{}{
		"content":  normalizeContent(result.Content),
		"is_error": result.IsError,
	}, nil
}

// normalizeContent flattens an MCP result's content parts into a single
// string, the way PrintToolResult does for display, generalized to a
// value steps can store in the context.
func normalizeContent(content []gomcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *gomcp.TextContent:
			parts = append(parts, v.Text)
		case *gomcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s]", v.MIMEType))
		case *gomcp.EmbeddedResource:
			parts = append(parts, "[embedded resource]")
		default:
			parts = append(parts, fmt.Sprintf("[unknown content %T]", v))
		}
	}
	return strings.Join(parts, "\n")
}
