package serena_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	serena "github.com/llmdo/serena-mcp"
	"github.com/llmdo/serena-mcp/tools"
)

type reply struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *serena.RPCError `json:"error"`
}

func newTestDispatcher(t *testing.T, opts *serena.Options, extra ...serena.Tool) (*serena.Dispatcher, *bytes.Buffer) {
	t.Helper()
	reg, err := serena.NewRegistry(append(tools.Default(), extra...)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	var logs bytes.Buffer
	if opts == nil {
		opts = &serena.Options{}
	}
	opts.Logger = log.New(&logs, "", 0)
	return serena.NewDispatcher(reg, opts), &logs
}

func handle(t *testing.T, d *serena.Dispatcher, line string) (reply, []byte) {
	t.Helper()
	out := d.Handle(context.Background(), []byte(line))
	if out == nil {
		return reply{}, nil
	}
	if !bytes.HasSuffix(out, []byte("\n")) || bytes.Count(out, []byte("\n")) != 1 {
		t.Fatalf("reply must be exactly one line, got %q", out)
	}
	var r reply
	if err := json.Unmarshal(out, &r); err != nil {
		t.Fatalf("reply is not JSON: %v: %s", err, out)
	}
	testboil.FailTestIfDiff(t, r.JSONRPC, "2.0")
	return r, out
}

func callText(t *testing.T, r reply) serena.ToolResult {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("expected result, got error %+v", r.Error)
	}
	var res serena.ToolResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	return res
}

func TestDispatcher_Initialize(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	r, out := handle(t, d, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	testboil.FailTestIfDiff(t, string(r.ID), "1")
	testboil.AssertStringContains(t, string(out), `"serverInfo"`)
	testboil.AssertStringContains(t, string(out), `"protocolVersion":"2024-11-05"`)

	var res serena.InitializeResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	testboil.FailTestIfDiff(t, res.ServerInfo.Name, "serena-mcp")
	testboil.FailTestIfDiff(t, res.ServerInfo.Version, "1.0.0")
	testboil.AssertStringContains(t, string(r.Result), `"capabilities":{"tools":{}}`)
}

func TestDispatcher_ToolsList(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	r, first := handle(t, d, `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`)

	var res serena.ToolsListResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	testboil.FailTestIfDiff(t, len(res.Tools), 2)
	testboil.FailTestIfDiff(t, res.Tools[0].Name, "serena_analyze_code")
	testboil.FailTestIfDiff(t, res.Tools[1].Name, "serena_generate_test")

	_, second := handle(t, d, `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`)
	if !bytes.Equal(first, second) {
		t.Errorf("tools/list is not idempotent:\n%s\n%s", first, second)
	}
}

func TestDispatcher_ToolsCall(t *testing.T) {
	failing := serena.ToolFunc{
		Desc: serena.ToolDescriptor{Name: "failing", Description: "always fails"},
		Fn: func(context.Context, serena.Arguments) (serena.ToolResult, error) {
			return serena.ToolResult{}, errors.New("cannot read file")
		},
	}
	panicking := serena.ToolFunc{
		Desc: serena.ToolDescriptor{Name: "panicking", Description: "always panics"},
		Fn: func(context.Context, serena.Arguments) (serena.ToolResult, error) {
			var m map[string]int
			m["x"] = 1
			return serena.ToolResult{}, nil
		},
	}
	d, logs := newTestDispatcher(t, nil, failing, panicking)

	t.Run("analyze code", func(t *testing.T) {
		r, _ := handle(t, d, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"serena_analyze_code","arguments":{"file_path":"test.py","analysis_type":"quality"}}}`)
		res := callText(t, r)
		testboil.FailTestIfDiff(t, len(res.Content), 1)
		testboil.FailTestIfDiff(t, res.Content[0].Type, "text")
		testboil.AssertStringContains(t, res.Content[0].Text, "test.py")
		testboil.AssertStringContains(t, res.Content[0].Text, "quality")
	})

	t.Run("unknown tool is a result", func(t *testing.T) {
		r, out := handle(t, d, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"does_not_exist","arguments":{}}}`)
		if strings.Contains(string(out), `"error"`) {
			t.Fatalf("unknown tool must not be a JSON-RPC error: %s", out)
		}
		testboil.AssertStringContains(t, callText(t, r).Text(), "does_not_exist")
	})

	t.Run("handler error", func(t *testing.T) {
		r, _ := handle(t, d, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"failing"}}`)
		res := callText(t, r)
		if !strings.HasPrefix(res.Text(), "Error:") {
			t.Errorf("want Error: prefix, got %q", res.Text())
		}
		testboil.FailTestIfDiff(t, res.IsError, true)
	})

	t.Run("handler panic", func(t *testing.T) {
		r, _ := handle(t, d, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"panicking"}}`)
		res := callText(t, r)
		if !strings.HasPrefix(res.Text(), "Error:") {
			t.Errorf("want Error: prefix, got %q", res.Text())
		}
		testboil.AssertStringContains(t, logs.String(), "tool panicking panicked")
	})

	t.Run("missing arguments", func(t *testing.T) {
		r, _ := handle(t, d, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"serena_generate_test"}}`)
		testboil.AssertStringContains(t, callText(t, r).Text(), "describe('Generated Tests'")
	})
}

func TestDispatcher_Silence(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	tests := []struct {
		name string
		line string
	}{
		{"unknown method with id", `{"jsonrpc":"2.0","id":9,"method":"unknown/method","params":{}}`},
		{"notification of known method", `{"jsonrpc":"2.0","method":"tools/list","params":{}}`},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"initialize","params":{}}`},
		{"initialized notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`},
		{"malformed without id", `{"jsonrpc":"2.0","method":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if out := d.Handle(context.Background(), []byte(tc.line)); out != nil {
				t.Errorf("expected no reply, got %s", out)
			}
		})
	}
}

func TestDispatcher_DecodeFailure(t *testing.T) {
	d, logs := newTestDispatcher(t, nil)

	r, _ := handle(t, d, `{"jsonrpc":"2.0","id":11,"method":"tools/call","params":`)
	if r.Error == nil {
		t.Fatal("expected error reply")
	}
	testboil.FailTestIfDiff(t, string(r.ID), "11")
	testboil.FailTestIfDiff(t, r.Error.Code, -1)
	if r.Error.Message == "" {
		t.Error("error message should carry the decode failure")
	}
	testboil.AssertStringContains(t, logs.String(), "error processing request")

	r, _ = handle(t, d, `{"jsonrpc":"2.0","id":"s","method":"tools/call","params":[1]}`)
	testboil.FailTestIfDiff(t, string(r.ID), `"s"`)
	testboil.FailTestIfDiff(t, r.Error.Code, -1)
}

func TestDispatcher_IDsEchoedVerbatim(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	for _, id := range []string{`0`, `"0"`, `"req-1"`, `-3`, `12345678901234567890`} {
		r, _ := handle(t, d, `{"jsonrpc":"2.0","id":`+id+`,"method":"tools/list"}`)
		testboil.FailTestIfDiff(t, string(r.ID), id)
	}
}

func TestDispatcher_MethodNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t, &serena.Options{MethodNotFound: true})

	r, _ := handle(t, d, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	if r.Error == nil {
		t.Fatal("expected error reply")
	}
	testboil.FailTestIfDiff(t, r.Error.Code, serena.CodeMethodNotFound)

	if out := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"resources/list"}`)); out != nil {
		t.Errorf("notifications never get a reply, got %s", out)
	}
}

func TestDispatcher_OnMessage(t *testing.T) {
	var seen []string
	d, _ := newTestDispatcher(t, &serena.Options{OnMessage: func(b []byte) { seen = append(seen, string(b)) }})
	d.Handle(context.Background(), []byte(`{"id":1,"method":"initialize"}`))
	d.Handle(context.Background(), []byte(`garbage`))
	testboil.FailTestIfDiff(t, len(seen), 2)
}

func TestDispatcher_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	d, _ := newTestDispatcher(t, &serena.Options{Tracer: tp.Tracer("test")})

	d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"serena_analyze_code"}}`))
	d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))

	spans := rec.Ended()
	testboil.FailTestIfDiff(t, len(spans), 2)
	testboil.FailTestIfDiff(t, spans[0].Name(), "jsonrpc tools/call")
	testboil.FailTestIfDiff(t, spans[1].Name(), "jsonrpc notifications/initialized")

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	testboil.FailTestIfDiff(t, attrs["mcp.tool"], "serena_analyze_code")
	testboil.FailTestIfDiff(t, attrs["rpc.notification"], "false")
}
