package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/db"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/logging"
)

const (
	serviceName = "providertrust"
	version     = "1.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "Provider insurance acceptance verification service",
	SilenceUsage: true,
}

// loadConfig reads the config file named by --config, falling back to
// CONFIG_FILE. Environment variables override file values.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.LogLevel, serviceName), nil
}

// openPool connects to Postgres. The caller must close the pool.
func openPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a TOML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(decayCmd)
	decayCmd.Flags().Bool("dry-run", false, "Report changes without writing them")
	decayCmd.Flags().IntP("limit", "n", 0, "Maximum number of aggregates to process (0 = all)")
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().Bool("dry-run", false, "Count expired verifications without deleting them")
}
