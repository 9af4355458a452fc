// Package teradata is the boundary to the Teradata MCP server. The server
// runs as a subprocess speaking MCP over stdio; this client owns the process
// lifecycle, the tool catalog, and tool invocation.
package teradata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	errx "github.com/OmarSamirz/NextBI/internal/core/error"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

const protocolVersion = "2024-11-05"

// Config configures the MCP subprocess.
type Config struct {
	// Command launches the MCP server, e.g. "uvx".
	Command string
	// Args for the command, e.g. ["teradata-mcp-server"].
	Args []string
	// Env is extra environment for the subprocess.
	Env map[string]string
	// Transport is the MCP transport, passed via MCP_TRANSPORT. Only stdio
	// is supported by this client.
	Transport string
	// DatabaseURI is the Teradata connection string, passed via DATABASE_URI.
	DatabaseURI string
}

// Client is a connected MCP backend. Safe for use from a single run at a
// time; the mutex guards the connect/close lifecycle.
type Client struct {
	cfg Config

	mu        sync.Mutex
	mcpClient *client.Client
	tools     []*schema.ToolInfo
	connected bool
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Connect launches the MCP subprocess, performs the handshake, and loads the
// tool catalog. Connection failures are backend-unreachable conditions.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	mcpClient, err := client.NewStdioMCPClient(
		c.cfg.Command,
		c.convertEnv(),
		c.cfg.Args...,
	)
	if err != nil {
		return errx.WrapBackend(fmt.Errorf("create MCP client: %w", err))
	}

	if err := mcpClient.Start(ctx); err != nil {
		return errx.WrapBackend(fmt.Errorf("start MCP client: %w", err))
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "nextbi",
		Version: "0.1.0",
	}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return errx.WrapBackend(fmt.Errorf("initialize MCP: %w", err))
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return errx.WrapBackend(fmt.Errorf("list tools: %w", err))
	}

	tools := make([]*schema.ToolInfo, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools = append(tools, convertToolInfo(t))
	}

	c.mcpClient = mcpClient
	c.tools = tools
	c.connected = true

	logx.Info().
		Str("command", c.cfg.Command).
		Int("tool_count", len(tools)).
		Msg("Connected to Teradata MCP server")
	return nil
}

// ToolInfos returns the catalog discovered at connect time.
func (c *Client) ToolInfos() []*schema.ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*schema.ToolInfo, len(c.tools))
	copy(out, c.tools)
	return out
}

// Invoke calls a backend tool. Transport failures are backend-unreachable;
// tool-level errors come back as a structured observation for the model.
func (c *Client) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	c.mu.Lock()
	mcpClient := c.mcpClient
	connected := c.connected
	c.mu.Unlock()

	if !connected || mcpClient == nil {
		return "", errx.WrapBackend(fmt.Errorf("MCP client not connected"))
	}

	args, err := decodeArguments(argsJSON)
	if err != nil {
		// Malformed model output is a tool-level problem, not a transport one.
		return fmt.Sprintf(`{"status":"error","message":%q}`, "invalid tool arguments: "+err.Error()), nil
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errx.WrapBackend(fmt.Errorf("call tool %s: %w", name, err))
	}

	if resp.IsError {
		msg := "unknown error"
		for _, content := range resp.Content {
			if textContent, ok := content.(mcp.TextContent); ok {
				msg = textContent.Text
				break
			}
		}
		return fmt.Sprintf(`{"status":"error","message":%q}`, msg), nil
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// Close terminates the MCP subprocess.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.mcpClient == nil {
		return nil
	}
	err := c.mcpClient.Close()
	c.mcpClient = nil
	c.connected = false
	return err
}

// convertEnv flattens the configured environment for the subprocess.
func (c *Client) convertEnv() []string {
	env := make([]string, 0, len(c.cfg.Env)+2)
	for k, v := range c.cfg.Env {
		env = append(env, k+"="+v)
	}
	if c.cfg.Transport != "" {
		env = append(env, "MCP_TRANSPORT="+c.cfg.Transport)
	}
	if c.cfg.DatabaseURI != "" {
		env = append(env, "DATABASE_URI="+c.cfg.DatabaseURI)
	}
	return env
}

// decodeArguments tolerantly parses the model's argument JSON. Empty input is
// an empty argument map.
func decodeArguments(argsJSON string) (map[string]any, error) {
	argsJSON = strings.TrimSpace(argsJSON)
	if argsJSON == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// convertToolInfo maps an MCP tool description onto the Eino tool schema.
// Only the top-level properties are mapped; nested schemas stay opaque to the
// model binding, which is enough for the backend's flat tool signatures.
func convertToolInfo(t mcp.Tool) *schema.ToolInfo {
	required := make(map[string]bool, len(t.InputSchema.Required))
	for _, name := range t.InputSchema.Required {
		required[name] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(t.InputSchema.Properties))
	for name, raw := range t.InputSchema.Properties {
		p := &schema.ParameterInfo{
			Type:     schema.String,
			Required: required[name],
		}
		if m, ok := raw.(map[string]any); ok {
			if ty, ok := m["type"].(string); ok {
				p.Type = convertDataType(ty)
			}
			if desc, ok := m["description"].(string); ok {
				p.Desc = desc
			}
		}
		params[name] = p
	}

	return &schema.ToolInfo{
		Name:        t.Name,
		Desc:        t.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func convertDataType(t string) schema.DataType {
	switch t {
	case "string":
		return schema.String
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}
