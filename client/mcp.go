package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	serena "github.com/llmdo/serena-mcp"
)

// ClientInfo identifies this client in the initialize handshake.
var ClientInfo = mcp.Implementation{Name: "serena-mcp-client", Version: serena.ServerVersion}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    struct{}           `json:"capabilities"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Initialize performs the handshake and sends notifications/initialized.
func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	var res mcp.InitializeResult
	err := c.callInto(ctx, serena.MethodInitialize, initializeParams{
		ProtocolVersion: serena.ProtocolVersion,
		ClientInfo:      ClientInfo,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := c.Notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}
	return &res, nil
}

func (c *Client) ToolsList(ctx context.Context) (*mcp.ListToolsResult, error) {
	var res mcp.ListToolsResult
	if err := c.callInto(ctx, serena.MethodToolsList, struct{}{}, &res); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	return &res, nil
}

// ToolsCall invokes a tool. Tool failures arrive as a result with IsError
// set, not as an error.
func (c *Client) ToolsCall(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var res mcp.CallToolResult
	if err := c.callInto(ctx, serena.MethodToolsCall, callToolParams{Name: name, Arguments: args}, &res); err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	return &res, nil
}

func (c *Client) callInto(ctx context.Context, method string, params, out any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w\nraw: %s", err, resp.Result)
	}
	return nil
}

// Text concatenates the text content of res.
func Text(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
