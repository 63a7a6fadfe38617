package serena

import (
	"encoding/json"
	"fmt"
)

/* =========================
   MCP method payloads
   ========================= */

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "serena-mcp"
	ServerVersion   = "1.0.0"
)

const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsCapability is advertised empty: tools are supported, nothing else is.
type ToolsCapability struct{}

type Capabilities struct {
	Tools ToolsCapability `json:"tools"`
}

type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

type ParameterObject struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is advertised to clients as-is. Nothing checks incoming
// arguments against it.
type InputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]ParameterObject `json:"properties"`
	Required   []string                   `json:"required"`
}

type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type ToolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the payload of a tools/call reply. IsError is only set for
// handler failures.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

func TextResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func ErrorResult(text string) ToolResult {
	res := TextResult(text)
	res.IsError = true
	return res
}

// Text joins the text of all content blocks.
func (r ToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	return out
}

// Arguments are the tool arguments of a tools/call request.
type Arguments map[string]any

// String returns the argument under key rendered as text. Missing keys and
// null values give "".
func (a Arguments) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// CallParams are the params of tools/call. Name is whatever the client put in
// "name", rendered as text; Arguments is empty when "arguments" is missing or
// not an object.
type CallParams struct {
	Name      string
	Arguments Arguments
}

func decodeCallParams(params json.RawMessage) (CallParams, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(params, &fields); err != nil {
		return CallParams{}, err
	}
	cp := CallParams{Arguments: Arguments{}}
	if raw, ok := fields["name"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &cp.Name); err != nil {
			cp.Name = string(raw)
		}
	}
	if raw, ok := fields["arguments"]; ok && !isNull(raw) {
		var args Arguments
		if err := json.Unmarshal(raw, &args); err == nil {
			cp.Arguments = args
		}
	}
	return cp, nil
}
