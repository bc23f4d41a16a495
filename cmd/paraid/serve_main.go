package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/paraid/paraid/internal/config"
	"github.com/paraid/paraid/internal/engine"
	"github.com/paraid/paraid/internal/refdata"
	"github.com/paraid/paraid/internal/server"
)

// runServe starts the scoring API server and blocks until a shutdown
// signal arrives.
func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rules, err := loadRules(cfg.Rules.Path)
	if err != nil {
		return err
	}
	scorer := engine.NewScorer(rules)

	source, closeSource, err := buildSource(cfg, rules)
	if err != nil {
		return err
	}
	defer closeSource()

	store := refdata.NewStore(source)
	loadCtx, loadCancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer loadCancel()
	if err := store.Reload(loadCtx); err != nil {
		return fmt.Errorf("initial reference load failed: %w", err)
	}

	var cache *server.ResultCache
	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		defer client.Close()
		cache = server.NewResultCache(client, cfg.Cache.TTL)
		log.Info().Str("addr", cfg.Cache.Addr).Dur("ttl", cfg.Cache.TTL).Msg("Result cache enabled")
	}

	srv := server.New(*cfg, store, scorer, cache)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}

// buildSource constructs the configured reference table source. The
// returned closer releases the database handle for the postgres case.
func buildSource(cfg *config.Config, rules *engine.RuleSet) (refdata.Source, func(), error) {
	switch cfg.Reference.Source {
	case "csv":
		log.Info().Str("path", cfg.Reference.Path).Msg("Using CSV reference source")
		return refdata.NewCSVSource(cfg.Reference.Path), func() {}, nil

	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Reference.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Info().Msg("Using Postgres reference source")
		source := refdata.NewPostgresSource(db, rules.MatchableFields(), cfg.Reference.QueryTimeout)
		return source, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown reference source %q", cfg.Reference.Source)
	}
}
