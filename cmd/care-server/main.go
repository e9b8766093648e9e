package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carehq/care/internal/config"
	"github.com/carehq/care/internal/domain/summary"
	"github.com/carehq/care/internal/platform/db"
	"github.com/carehq/care/internal/platform/scheduler"
	"github.com/carehq/care/internal/platform/telemetry"
	"github.com/carehq/care/migrations"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "care-server",
		Short:         "Hospital care records API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(summariseCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the summary scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	shutdownTracing, err := telemetry.Init(ctx, telemetryConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown failed")
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Traced:   cfg.OTelEnabled,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	app, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(cfg, app.job, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := app.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.echo.Shutdown(sctx)
	})
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newScheduler registers the hourly summary job, or returns nil when the
// in-process scheduler is disabled.
func newScheduler(cfg *config.Config, job *summary.Job, logger zerolog.Logger) (*scheduler.Scheduler, error) {
	if !cfg.SummarySchedulerEnabled {
		logger.Info().Msg("summary scheduler disabled")
		return nil, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(loc, logger)
	err = sched.Add("patient_summary", cfg.SummarySchedule, func(ctx context.Context) error {
		_, err := job.Run(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	return telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "care-server",
		Environment: cfg.Env,
		Version:     version,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
		Stdout:      os.Stdout,
	}
}

func summariseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarise",
		Short: "Run the patient summary job once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			shutdownTracing, err := telemetry.Init(ctx, telemetryConfig(cfg), logger)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracing(context.Background()) }()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, jobPoolOptions(cfg))
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			job, err := newStandaloneJob(ctx, cfg, pool, logger)
			if err != nil {
				return err
			}
			defer job.Close()

			res, err := job.Run(ctx)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Println("Another summary run holds the lock; nothing done.")
				return nil
			}
			fmt.Printf("Summarised %d facilities: %d inserted, %d updated, %d unchanged.\n",
				res.Facilities, res.Inserted, res.Updated, res.Unchanged)
			return nil
		},
	}
}

// migrationSource returns the embedded migrations unless dir is set.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("dir", "", "Path to a migrations directory (default: embedded migrations)")

	openMigrator := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		dir, _ := cmd.Flags().GetString("dir")
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, db.PoolOptions{MaxConns: 2})
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrationSource(dir)), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				state, at := "pending", ""
				if s.Applied {
					state = "applied"
					if s.AppliedAt != nil {
						at = s.AppliedAt.Format(time.RFC3339)
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, state, at)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}
