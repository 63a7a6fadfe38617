package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmdo/serena-mcp/client"
)

func newProbeCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe [-- server args...]",
		Short: "Start a server and send it initialize, tools/list and one tools/call",
		Long: `probe spawns a server, by default this binary, and talks to it over its
stdin and stdout. Every line the server writes back is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				self, err := os.Executable()
				if err != nil {
					return err
				}
				server = self
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runProbe(ctx, cmd.OutOrStdout(), server, args)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server executable to spawn (default: this binary)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall deadline for the probe")
	return cmd
}

func runProbe(ctx context.Context, out io.Writer, server string, args []string) error {
	t, err := client.NewStdioSubprocess(server, args, &client.DialOptions{
		OnMessage: func(line []byte) { fmt.Fprintf(out, "Response: %s\n", line) },
	})
	if err != nil {
		return fmt.Errorf("start %s: %w", server, err)
	}
	return probe(ctx, out, client.New(t, nil, nil))
}

func probe(ctx context.Context, out io.Writer, c *client.Client) (err error) {
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()

	fmt.Fprintln(out, "Sending initialize request...")
	if _, err := c.Initialize(ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "Sending tools/list request...")
	if _, err := c.ToolsList(ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "Sending tools/call request...")
	_, err = c.ToolsCall(ctx, "serena_analyze_code", map[string]any{
		"file_path":     "test.py",
		"analysis_type": "quality",
	})
	return err
}
