// Command reconcile detects and corrects stock inconsistencies from the
// command line. Findings and outcomes are printed as JSON lines on stdout;
// logs go to stderr.
//
//	reconcile --farm=<id>                          list findings
//	reconcile --farm=<id> --preview                show the correction of each finding
//	reconcile --farm=<id> --apply --kind=<kind>    apply every finding of a kind
//	reconcile --restore-type=purchase --restore-id=<id>
//	reconcile --rollback=<audit entry id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/farmerp/backend/internal/infrastructure/bootstrap"
	"github.com/farmerp/backend/internal/infrastructure/config"
	"github.com/farmerp/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitFailed
	}

	log, err := logger.New(&logger.Config{
		Level:      opts.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
		Service:    "reconcile",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitFailed
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	// an interrupted batch keeps the fixes it already committed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return exitFailed
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	integrityEngine, err := bootstrap.NewIntegrity(ctx, cfg, db.DB, log, nil)
	if err != nil {
		log.Error("Failed to initialize integrity engine", zap.Error(err))
		return exitFailed
	}
	defer func() {
		_ = integrityEngine.Close()
	}()

	return run(ctx, integrityEngine.Service, opts, os.Stdout, log)
}
