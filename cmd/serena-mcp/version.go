package main

import (
	"fmt"

	"github.com/spf13/cobra"

	serena "github.com/llmdo/serena-mcp"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version and MCP protocol version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (protocol %s)\n",
				serena.ServerName, serena.ServerVersion, serena.ProtocolVersion)
		},
	}
}
