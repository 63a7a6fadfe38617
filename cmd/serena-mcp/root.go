package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/spf13/cobra"

	serena "github.com/llmdo/serena-mcp"
	"github.com/llmdo/serena-mcp/telemetry"
	"github.com/llmdo/serena-mcp/tools"
)

type serveFlags struct {
	transport      string
	addr           string
	trace          bool
	methodNotFound bool
}

func newRootCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serena-mcp",
		Short: "MCP server speaking line-delimited JSON-RPC on stdin/stdout",
		Long: `serena-mcp answers initialize, tools/list and tools/call.

By default it reads one JSON-RPC request per line on stdin and writes one
reply per line on stdout. Logs go to stderr.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.transport, "transport", serena.EnvStr("SERENA_MCP_TRANSPORT", "stdio"),
		"transport to serve: stdio or ws")
	flags.StringVar(&f.addr, "addr", serena.EnvStr("SERENA_MCP_ADDR", ":8081"),
		"listen address for the ws transport")
	flags.BoolVar(&f.trace, "trace", misc.Truthy(os.Getenv("SERENA_MCP_TRACE")),
		"export one OpenTelemetry span per request to stderr")
	flags.BoolVar(&f.methodNotFound, "method-not-found", false,
		"reply -32601 to unknown methods instead of ignoring them")

	cmd.AddCommand(newProbeCmd(), newVersionCmd())
	return cmd
}

func runServe(ctx context.Context, f *serveFlags) error {
	opts := &serena.Options{
		Logger:         serena.NewLogger(os.Stderr),
		Debug:          misc.Truthy(os.Getenv("DEBUG")),
		MethodNotFound: f.methodNotFound,
	}

	if f.trace {
		tp, err := telemetry.InitTracer(os.Stderr, serena.ServerName, serena.ServerVersion)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts.Tracer = tp.Tracer(serena.ServerName)
	}

	reg, err := tools.NewDefaultRegistry()
	if err != nil {
		return err
	}
	d := serena.NewDispatcher(reg, opts)

	switch f.transport {
	case "stdio":
		err := serena.NewStdioServer(d, os.Stdin, os.Stdout).Serve(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case "ws":
		ancli.Okf("serving %s on ws://%s%s\n", serena.ServerName, f.addr, serena.WebSocketPath)
		err := serena.ListenAndServeWebSocket(ctx, f.addr, d, opts)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown transport %q, want stdio or ws", f.transport)
	}
}
