package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jstrand/prospectcall/internal/audiocache"
	"github.com/jstrand/prospectcall/internal/eventlog"
	"github.com/jstrand/prospectcall/internal/httpapi"
	"github.com/jstrand/prospectcall/internal/store"
)

// App wires the shared dependencies: database pool, store, event log
// and the Redis-backed audio clip cache.
type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	rdb      *redis.Client
	store    *store.Store
	eventLog *eventlog.Logger
	clips    *audiocache.Cache
}

func New(ctx context.Context, cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := db.Ping(dbCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store.New(db),
		eventLog: eventlog.New(db),
	}

	// The clip cache is optional: without Redis the voice handlers fall
	// back to synthesized <Say> verbs instead of <Play> URLs.
	if cfg.RedisURL != "" {
		rdb, err := audiocache.Open(ctx, cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.rdb = rdb
		a.clips = audiocache.New(rdb)
	} else {
		logger.Println("REDIS_URL not set, audio clip cache disabled")
	}

	return a, nil
}

func (a *App) Router(sessions *httpapi.SessionRegistry) http.Handler {
	return httpapi.NewRouter(httpapi.RouterConfig{
		PublicBaseURL:     a.cfg.PublicBaseURL,
		OpenAIAPIKey:      a.cfg.OpenAIAPIKey,
		ElevenLabsAPIKey:  a.cfg.ElevenLabsAPIKey,
		TTSVoiceID:        a.cfg.TTSVoiceID,
		TTSStability:      a.cfg.TTSStability,
		TTSSimilarity:     a.cfg.TTSSimilarity,
		JWTSecret:         a.cfg.JWTSecret,
		DiscordWebhookURL: a.cfg.DiscordWebhookURL,
		APNsKeyPath:       a.cfg.APNsKeyPath,
		APNsKeyID:         a.cfg.APNsKeyID,
		APNsTeamID:        a.cfg.APNsTeamID,
		APNsBundleID:      a.cfg.APNsBundleID,
		APNsProduction:    a.cfg.APNsProduction,
	}, a.logger, a.store, a.eventLog, a.clips, sessions)
}

func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Printf("redis close: %v", err)
		}
	}
	a.db.Close()
}
