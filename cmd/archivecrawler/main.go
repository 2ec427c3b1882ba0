// Command archivecrawler searches a historical newspaper archive, extracts
// and corrects article text, and stores versioned JSON records on disk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultDeps()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "archivecrawler: %v\n", err)
		stop()
		os.Exit(1)
	}
}
