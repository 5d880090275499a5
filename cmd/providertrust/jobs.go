package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/db"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/service"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := openPool(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		v, err := db.MigrationVersion(ctx, pool)
		if err != nil {
			return fmt.Errorf("reading migration version: %w", err)
		}

		fmt.Printf("Database at migration version %d\n", v)
		return nil
	},
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Recompute confidence for every acceptance aggregate",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := openPool(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Jobs run without Redis; stale cached aggregates expire on their own.
		w := service.NewDecayWorker(repository.NewPostgresStore(pool), service.NewConfidenceService(),
			service.NewCacheService(nil), cfg.Decay, cfg.Verification.TTL, clock.Real{}, log)

		stats, err := w.Run(ctx, service.DecayOptions{DryRun: dryRun, Limit: limit})
		if err != nil {
			return fmt.Errorf("decay: %w", err)
		}
		return printJSON(stats)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete verifications past their TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := openPool(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		w := service.NewCleanupWorker(repository.NewPostgresStore(pool), cfg.Cleanup, clock.Real{}, log)
		stats, err := w.Run(ctx, dryRun)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		return printJSON(stats)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
