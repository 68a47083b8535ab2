// Command ledgerctl runs operator checks and maintenance against the ledger store.
//
//	ledgerctl verify-trial-balance <tenant>
//	ledgerctl verify-audit-integrity <tenant> <from>/<to>
//	ledgerctl rebuild-journal <tenant> [transaction]
//	ledgerctl purge-audit [--retention 2160h]
//	ledgerctl run-detection
//	ledgerctl migrate
//
// A passing check prints its summary on stdout and exits 0. A discrepancy prints
// the summary on stderr and exits 1; usage and runtime errors exit 2.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SscSPs/fx_ledger/internal/platform/bootstrap"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     logger,
		loadConfig: config.LoadConfig,
		open: func(ctx context.Context, cfg *config.Config) (*bootstrap.Runtime, error) {
			return bootstrap.Open(ctx, cfg, logger, bootstrap.Options{})
		},
		now: time.Now,
	}
	os.Exit(a.run(ctx, os.Args[1:]))
}
