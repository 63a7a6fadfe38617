package tools

import (
	"context"

	serena "github.com/llmdo/serena-mcp"
)

var analyzeCodeTmpl = mustTemplate("serena_analyze_code", `
## Code analysis: {{ .file_path }}

### Analysis type: {{ .analysis_type }}

### Suggestions:
1. **Code quality**: improve readability
2. **Performance**: look for optimization opportunities
3. **Security**: review for vulnerabilities
4. **Architecture**: apply suitable design patterns

### Recommended actions:
- Raise test coverage
- Strengthen error handling
- Add documentation
`)

var AnalyzeCode = serena.ToolFunc{
	Desc: serena.ToolDescriptor{
		Name:        "serena_analyze_code",
		Description: "Analyze code and generate improvement suggestions",
		InputSchema: serena.InputSchema{
			Type: "object",
			Properties: map[string]serena.ParameterObject{
				"file_path": {
					Type:        "string",
					Description: "Path of the file to analyze",
				},
				"analysis_type": {
					Type:        "string",
					Description: "Kind of analysis",
					Enum:        []string{"quality", "performance", "security", "architecture"},
				},
			},
			Required: []string{"file_path", "analysis_type"},
		},
	},
	Fn: func(_ context.Context, args serena.Arguments) (serena.ToolResult, error) {
		return render(analyzeCodeTmpl, args, "file_path", "analysis_type")
	},
}
