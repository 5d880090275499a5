package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/captcha"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/db"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/handler"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/ratelimit"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/router"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	// A nil *redis.Client must not reach the interface-typed consumers.
	rdb := db.NewRedis(ctx, cfg.RedisURL, log)
	var shared redis.UniversalClient
	if rdb != nil {
		shared = rdb
		defer rdb.Close()
	}

	metrics.Register(prometheus.DefaultRegisterer, pool)

	clk := clock.Real{}
	limiter := ratelimit.NewLimiter(
		ratelimit.NewStore(shared, clk, log),
		ratelimit.RulesFromConfig(cfg.RateLimits, cfg.Captcha),
		clk, log,
	)
	defer limiter.Close()

	var verifier captcha.Verifier
	if cfg.Captcha.SecretKey != "" {
		verifier = captcha.NewHTTPVerifier(cfg.Captcha.VerifyURL, cfg.Captcha.SecretKey, cfg.Captcha.Timeout)
	} else {
		log.Warn().Msg("captcha disabled: no secret key configured")
	}
	guard := captcha.NewGuard(verifier, cfg.Captcha, limiter, log)

	store := repository.NewPostgresStore(pool)
	scorer := service.NewConfidenceService()
	cache := service.NewCacheService(shared)
	svc := service.NewVerificationService(store, scorer, cache, cfg.Verification, cfg.IPHashSalt, clk, log)
	decay := service.NewDecayWorker(store, scorer, cache, cfg.Decay, cfg.Verification.TTL, clk, log)
	cleanup := service.NewCleanupWorker(store, cfg.Cleanup, clk, log)

	app := router.NewApp(log)
	router.Setup(app, &router.Handlers{
		Verification: handler.NewVerificationHandler(svc),
		Admin:        handler.NewAdminHandler(decay, cleanup),
		Health:       handler.NewHealthHandler(pool, rdb, version),
	}, router.Gates{
		Limiter:     limiter,
		Captcha:     guard,
		AdminSecret: cfg.AdminSecret,
		CORSOrigins: cfg.CORSOrigins,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Environment).
			Str("version", version).
			Msg("server starting")
		if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Decay.Enabled {
		g.Go(func() error {
			decay.Start(gctx)
			return nil
		})
	}
	if cfg.Cleanup.Enabled {
		g.Go(func() error {
			cleanup.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		decay.Stop()
		cleanup.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
