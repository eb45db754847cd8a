package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"proofline/internal/analysis"
	"proofline/internal/app"
	"proofline/internal/cache"
	"proofline/internal/config"
)

type ServeCmd struct {
	flags *Flags

	addr string
}

func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

func (cmd *ServeCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the document API",
		UsageText: "proofline serve [--addr :8787]",
		Description: `Serves the document API. Configuration is read from the environment;
REDIS_URL enables the analysis cache. PROOFLINE_ANALYZER_URL enables the
analyze endpoint; PROOFLINE_ENGAGE_URL and PROOFLINE_PROMO_URL enable its
engage and promo kinds.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides PROOFLINE_ADDR)",
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := config.Load()
	if cmd.addr != "" {
		cfg.Addr = cmd.addr
	}
	logger := log.With().Str("component", "api").Logger()

	styles, err := config.LoadStyles(cfg.StylesFile)
	if err != nil {
		return fmt.Errorf("load styles: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := app.Dependencies{
		Styles:   styles,
		Registry: registry,
		Logger:   logger,
	}

	var redisStore *cache.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = cache.NewRedisStore(cfg.RedisURL,
			cache.WithTTL(cfg.CacheTTL),
			cache.WithLimits(cfg.MinAnalysisChars, cfg.MaxCacheChars),
		)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisStore.Close()
		deps.Cache = redisStore
		logger.Info().Msg("analysis cache enabled")
	}

	if cfg.AnalyzerURL != "" {
		opts := []analysis.CachedOption{
			analysis.WithMinChars(cfg.MinAnalysisChars),
			analysis.WithLogger(logger),
		}
		if redisStore != nil {
			opts = append(opts, analysis.WithCache(redisStore, cfg.CacheVersion))
		}
		deps.Analyzer = analysis.NewCachedAnalyzer(analysis.NewHTTPAnalyzer(cfg.AnalyzerURL, cfg.AnalyzerTimeout), opts...)
	}
	// Engagement and promo results are not cached; they share document ids
	// and text with the suggestion cache keys.
	if cfg.EngageURL != "" {
		deps.Engager = analysis.NewEngagementAnalyzer(cfg.EngageURL, cfg.AnalyzerTimeout)
	}
	if cfg.PromoURL != "" {
		deps.Promoter = analysis.NewPromoAnalyzer(cfg.PromoURL, cfg.AnalyzerTimeout)
	}

	service := app.New(cfg, deps)
	defer service.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.AnalyzerTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("proofline api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown error")
	}
	return nil
}
