// Command tap-loopreturns extracts returns from the Loop Returns API as a
// Singer JSON-lines stream on stdout. Logs are written to stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("tap-loopreturns failed")
		stop()
		os.Exit(1)
	}
}
