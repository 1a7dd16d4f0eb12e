package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"log/slog"

	"github.com/frostline/rehydrate/internal/alert"
	"github.com/frostline/rehydrate/internal/archive"
	"github.com/frostline/rehydrate/internal/archiver"
	"github.com/frostline/rehydrate/internal/config"
	"github.com/frostline/rehydrate/internal/copier"
	"github.com/frostline/rehydrate/internal/destination"
	"github.com/frostline/rehydrate/internal/events"
	"github.com/frostline/rehydrate/internal/executor"
	"github.com/frostline/rehydrate/internal/initiator"
	"github.com/frostline/rehydrate/internal/intake"
	pgledger "github.com/frostline/rehydrate/internal/ledger/postgres"
	"github.com/frostline/rehydrate/internal/notify"
	"github.com/frostline/rehydrate/internal/orchestrator"
	"github.com/frostline/rehydrate/internal/server"
	"github.com/frostline/rehydrate/internal/status"
	"github.com/frostline/rehydrate/internal/sweeper"
	"github.com/frostline/rehydrate/internal/telemetry"
	"github.com/frostline/rehydrate/pkg/types"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the rehydrate API server and workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Ledger
	led, err := newLedger(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := led.Start(ctx); err != nil {
		return fmt.Errorf("connecting to ledger: %w", err)
	}

	// Logger
	logger := slog.Default()

	// Telemetry
	var telemetryShutdown func(context.Context) error
	if cfg.Telemetry != nil {
		telemetryShutdown, err = telemetry.Setup(ctx, *cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("setting up telemetry: %w", err)
		}
	}

	// Alerts
	dispatcher, err := alert.NewDispatcher(cfg.Alerts)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}

	// Status change notifications
	var statusFn func(types.StatusChangeEvent)
	if cfg.Notify != nil {
		pub, err := notify.New(*cfg.Notify)
		if err != nil {
			return fmt.Errorf("creating status publisher: %w", err)
		}
		statusFn = pub.StatusFunc()
	}

	// Destinations
	resolver, err := destination.NewResolver(cfg.Destination)
	if err != nil {
		return fmt.Errorf("compiling destination config: %w", err)
	}

	// Archive and copy clients
	archCfg := cfg.Archive
	if archCfg == nil {
		archCfg = &types.ArchiveConfig{}
	}
	arch, err := archive.New(archCfg)
	if err != nil {
		return fmt.Errorf("creating archive client: %w", err)
	}
	copyCfg := cfg.Copy
	if copyCfg == nil {
		copyCfg = &types.CopyConfig{}
	}
	cp, err := copier.New(copyCfg)
	if err != nil {
		return fmt.Errorf("creating copy client: %w", err)
	}

	// Copy executor
	var execCfg types.ExecutorConfig
	if cfg.Executor != nil {
		execCfg = *cfg.Executor
	}
	exec := executor.New(led, cp, execCfg, cfg.Retry, statusFn)
	exec.Start(ctx)

	// Orchestrator
	ini := initiator.New(led, arch, resolver, cfg.Deadlines, statusFn)
	orch := orchestrator.New(led, ini, resolver, statusFn)

	// Completion listener
	var lis *events.Listener
	if cfg.Listener != nil {
		handler := events.NewHandler(led, exec.Enqueue, statusFn)
		lis, err = events.NewListener(*cfg.Listener, handler)
		if err != nil {
			return fmt.Errorf("creating completion listener: %w", err)
		}
		lis.Start(ctx)
	}

	// Queue intake
	var con *intake.Consumer
	if cfg.Intake != nil {
		con, err = intake.NewConsumer(*cfg.Intake, orch)
		if err != nil {
			return fmt.Errorf("creating intake consumer: %w", err)
		}
		con.Start(ctx)
	}

	// Sweeper
	var sw *sweeper.Sweeper
	if cfg.Sweeper != nil && cfg.Sweeper.Enabled {
		sw = sweeper.New(led, *cfg.Sweeper, dispatcher.AlertFunc(), exec.Enqueue, logger)
		sw.Start(ctx)
	}

	// Archiver
	var (
		arc     *archiver.Archiver
		arcDest *pgledger.PostgresLedger
	)
	if cfg.Archiver != nil && cfg.Archiver.Enabled {
		arcDest = pgledger.New(&types.PostgresConfig{DSN: cfg.Archiver.DSN})
		if err := arcDest.Start(ctx); err != nil {
			return fmt.Errorf("connecting to Postgres: %w", err)
		}
		interval := 5 * time.Minute
		if cfg.Archiver.Interval != "" {
			if d, err := time.ParseDuration(cfg.Archiver.Interval); err == nil && d > 0 {
				interval = d
			}
		}
		arc = archiver.New(led, arcDest, interval, logger)
		arc.Start(ctx)
	}

	// Server
	addr := ":3000"
	var apiKey string
	var maxBody int64
	if cfg.Server != nil {
		if cfg.Server.Addr != "" {
			addr = cfg.Server.Addr
		}
		apiKey = cfg.Server.APIKey
		maxBody = cfg.Server.MaxRequestBody
	}
	srv := server.New(addr, orch, status.New(led), led, apiKey, maxBody)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if lis != nil {
			lis.Stop(shutdownCtx)
		}
		if con != nil {
			con.Stop(shutdownCtx)
		}
		if sw != nil {
			sw.Stop(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		exec.Stop(shutdownCtx)
		if arc != nil {
			arc.Stop(shutdownCtx)
			_ = arcDest.Stop(shutdownCtx)
		}
		if telemetryShutdown != nil {
			_ = telemetryShutdown(shutdownCtx)
		}
		_ = led.Stop(shutdownCtx)
		color.Green("Server stopped gracefully")
		return nil
	}
}
