package main

import (
	"context"
	"fmt"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { shutdown.Monitor(cancel) }()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		ancli.PrintErr(fmt.Sprintf("serena-mcp: %v\n", err))
		os.Exit(1)
	}
}
