package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inkvault/api/internal/app"
	"inkvault/api/internal/config"
	"inkvault/api/internal/email"
	"inkvault/api/internal/export"
	"inkvault/api/internal/history"
	"inkvault/api/internal/metrics"
	"inkvault/api/internal/search"
	"inkvault/api/internal/session"
	"inkvault/api/internal/store"
)

const sessionSweepInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	deps := app.Dependencies{
		Metrics:    metrics.New(),
		Logger:     logger,
		SessionTTL: cfg.SessionTTL,
		BcryptCost: cfg.BcryptCost,
	}

	var (
		db *sql.DB
		pg *store.PostgresStore
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{})
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("applied", applied).Msg("migrations applied")
		}
		pg = store.NewPostgresStore(db)
		deps.Store = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set; notes are kept in memory")
		deps.Store = store.NewMemoryStore()
	}

	switch {
	case strings.TrimSpace(cfg.RedisURL) != "":
		logger.Info().Msg("using redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	case pg != nil:
		logger.Info().Msg("using postgres for session storage")
		deps.Sessions = pg
		go sweepSessions(ctx, logger, func() (int64, error) {
			return pg.PurgeExpiredSessions(ctx, time.Now())
		})
	default:
		mem := session.NewMemoryStore()
		deps.Sessions = mem
		go sweepSessions(ctx, logger, func() (int64, error) {
			return int64(mem.Sweep()), nil
		})
	}

	var (
		index    search.Index
		fallback search.Searcher
		pgfts    *search.PgFTS
	)
	if db != nil {
		pgfts = search.NewPgFTS(db)
		fallback = pgfts
	}
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		index = meili
	}
	searchService := search.NewService(index, fallback, logger)
	defer searchService.Close()
	deps.Search = searchService
	if pgfts != nil {
		go searchService.ReindexAll(ctx, pgfts)
	}

	if cfg.HistoryDir != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
		deps.History = history.New(cfg.HistoryDir)
	} else {
		logger.Info().Msg("NOTES_HISTORY_DIR not set; version history disabled")
	}

	if pdf, err := export.NewChromePDF(30 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("pdf export disabled")
		deps.Export = export.NewService(nil)
	} else {
		deps.Export = export.NewService(pdf)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		AppURL:   cfg.AppURL,
	})
	if !mailer.IsConfigured() {
		logger.Info().Msg("SMTP not configured; collaborator invites are not emailed")
	}
	deps.Email = mailer

	service := app.New(deps)
	httpServer := app.NewHTTPServer(service, app.HTTPConfig{
		CORSOrigin:   cfg.CORSOrigin,
		ErrorDocsURL: cfg.ErrorDocsURL,
		Metrics:      deps.Metrics,
		Logger:       logger,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("inkvault API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	service.Wait()
	return nil
}

// sweepSessions drops expired sessions until ctx is cancelled.
func sweepSessions(ctx context.Context, logger zerolog.Logger, purge func() (int64, error)) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge()
			if err != nil {
				logger.Error().Err(err).Msg("purge expired sessions")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("removed", n).Msg("purged expired sessions")
			}
		}
	}
}
