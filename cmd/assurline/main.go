package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	"github.com/assurline/assurline/internal/contract"
	"github.com/assurline/assurline/internal/migration"
	"github.com/assurline/assurline/internal/observability"
	"github.com/assurline/assurline/internal/payment"
	"github.com/assurline/assurline/internal/payment/adapters"
	"github.com/assurline/assurline/internal/payment/webhook"
	"github.com/assurline/assurline/internal/quote"
	"github.com/assurline/assurline/internal/scheduler"
	"github.com/assurline/assurline/internal/server"
	"github.com/assurline/assurline/internal/tariff"
	"github.com/assurline/assurline/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "assurline",
		Short:   "Assurline CLI",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSweeperCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the quotation and payment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newSweeperCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweeper",
		Short: "Run the background quote expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			runSweeper()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API server and the sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runMonolith()
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(append(coreModules(), server.Module)...)
	app.Run()
}

func runSweeper() {
	app := fx.New(append(coreModules(),
		scheduler.Module,
		fx.Invoke(startScheduler),
	)...)
	app.Run()
}

func runMonolith() {
	app := fx.New(append(coreModules(),
		server.Module,
		scheduler.Module,
		fx.Invoke(startScheduler),
	)...)
	app.Run()
}

func coreModules() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		tariff.Module,
		quote.Module,
		adapters.Module,
		payment.Module,
		webhook.Module,
		contract.Module,
	}
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
