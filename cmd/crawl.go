package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/thread-harvester/internal/app"
	"github.com/JakeFAU/thread-harvester/internal/config"
	"github.com/JakeFAU/thread-harvester/internal/logging"
)

const shutdownTimeout = 15 * time.Second

// newCrawlCmd creates the 'crawl' subcommand, which harvests one subject
// until its history is exhausted, a record limit is reached or the process is
// interrupted.
func newCrawlCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <subject>",
		Short: "Harvest one subject, resuming from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts, args[0])
		},
	}
	flags := cmd.Flags()
	flags.Int("max", 0, "stop once the collection holds this many records (0 means unbounded)")
	flags.String("storage", "", "checkpoint backend: local, gcs or memory")
	flags.String("metrics-addr", "", "listen address for /healthz, /metrics, /status and /runs")

	for key, flag := range map[string]string{
		"crawl.max_records": "max",
		"storage.backend":   "storage",
		"server.addr":       "metrics-addr",
	} {
		if err := opts.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *rootOptions, subject string) error {
	cfg, err := config.FromViper(opts.v, opts.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialize services failed", zap.Error(err))
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if cerr := services.Close(closeCtx); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServer()
	if cfg.Server.Addr != "" {
		srv, err := services.Server()
		if err != nil {
			return err
		}
		go func() {
			if serr := srv.Serve(serverCtx, cfg.Server.Addr); serr != nil {
				logger.Error("status server failed", zap.Error(serr))
			}
		}()
	}

	report, err := services.Harvest(ctx, subject)
	if err != nil {
		logger.Error("harvest failed", zap.String("subject", subject), zap.Error(err))
		return err
	}
	logger.Info("harvest finished",
		zap.String("subject", subject),
		zap.Stringer("run_id", report.RunID),
		zap.String("state", string(report.State)),
		zap.Int("total", report.Collection.Len()),
		zap.String("export", report.ExportURI),
	)
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("interrupted; rerun the same command to resume")
	}
	return nil
}
