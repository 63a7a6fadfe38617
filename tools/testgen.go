package tools

import (
	"context"

	serena "github.com/llmdo/serena-mcp"
)

var generateTestTmpl = mustTemplate("serena_generate_test", `
// {{ .test_framework | default "unspecified" }} test cases
// File: {{ .file_path }}

describe('Generated Tests', () => {
  test('should handle basic functionality', () => {
    // test implementation
    expect(true).toBe(true);
  });

  test('should handle edge cases', () => {
    // edge case tests
    expect(() => {}).not.toThrow();
  });
});
`)

var GenerateTest = serena.ToolFunc{
	Desc: serena.ToolDescriptor{
		Name:        "serena_generate_test",
		Description: "Generate test cases from code",
		InputSchema: serena.InputSchema{
			Type: "object",
			Properties: map[string]serena.ParameterObject{
				"file_path": {
					Type:        "string",
					Description: "Path of the file under test",
				},
				"test_framework": {
					Type:        "string",
					Description: "Test framework",
					Enum:        []string{"jest", "pytest", "junit", "vitest"},
				},
			},
			Required: []string{"file_path", "test_framework"},
		},
	},
	Fn: func(_ context.Context, args serena.Arguments) (serena.ToolResult, error) {
		return render(generateTestTmpl, args, "file_path", "test_framework")
	},
}
