// Package tools holds the reference tool handlers served by default. Both are
// pure text renderers: they never open the files they are pointed at.
package tools

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	serena "github.com/llmdo/serena-mcp"
)

// Default returns the tools registered at startup, in advertised order.
func Default() []serena.Tool {
	return []serena.Tool{AnalyzeCode, GenerateTest}
}

// NewDefaultRegistry returns a registry holding Default().
func NewDefaultRegistry() (*serena.Registry, error) {
	return serena.NewRegistry(Default()...)
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text))
}

// render executes tmpl over the tool arguments. Every key the template uses is
// read through Arguments.String, so a missing argument renders empty.
func render(tmpl *template.Template, args serena.Arguments, keys ...string) (serena.ToolResult, error) {
	data := make(map[string]string, len(keys))
	for _, k := range keys {
		data[k] = args.String(k)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return serena.ToolResult{}, fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return serena.TextResult(buf.String()), nil
}
