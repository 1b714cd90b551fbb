// Package app wires the gig service from configuration: store, cache, event
// sinks, services and the HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-gigs/internal/analytics"
	"ms-gigs/internal/api"
	"ms-gigs/internal/auth"
	"ms-gigs/internal/booking"
	"ms-gigs/internal/cancellation"
	"ms-gigs/internal/config"
	"ms-gigs/internal/database/migrations"
	"ms-gigs/internal/events"
	"ms-gigs/internal/gigs"
	"ms-gigs/internal/kafka"
	"ms-gigs/internal/logger"
	"ms-gigs/internal/store"
	"ms-gigs/internal/tickets/pass"
)

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *bun.DB
	Redis    *redis.Client
	Producer *kafka.Producer

	Gigs         *gigs.Service
	Bookings     *booking.Service
	Cancellation *cancellation.Service
	Analytics    *analytics.Service
	Passes       *pass.Generator
}

// OpenDB connects to PostgreSQL, retrying the ping while the database starts.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	attempts := max(cfg.ConnectRetries, 1)
	for i := 1; i <= attempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i, attempts))
		if err = sqldb.PingContext(ctx); err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < attempts {
			select {
			case <-ctx.Done():
				sqldb.Close()
				return nil, ctx.Err()
			case <-time.After(cfg.ConnectInterval):
			}
		}
	}
	if err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", attempts, err)
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// Build connects everything the configuration asks for. Redis and Kafka are
// optional; when they cannot be reached the service runs without them.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	db, err := OpenDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if cfg.Migrations.AutoMigrate {
		// the runner is not closed: closing it would close the shared pool
		runner := migrations.NewRunner(db, migrations.MigrateOptions{
			MigrationsDir: cfg.Migrations.Dir,
			AutoMigrate:   true,
			SeedData:      cfg.Migrations.SeedData,
		}, log)
		if err := runner.RunMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	var cache *analytics.RedisCache
	if cfg.Redis.Addr != "" {
		client, err := analytics.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warn("CACHE", fmt.Sprintf("Report cache disabled: %v", err))
		} else {
			a.Redis = client
			cache = analytics.NewRedisCache(client, cfg.Redis.TTL, log)
		}
	}

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		a.Producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		log.Info("KAFKA", fmt.Sprintf("Publishing gig events to %v", cfg.Kafka.Brokers))
	}

	if cfg.Pass.Secret != "" {
		passes, err := pass.NewGenerator(cfg.Pass.Secret)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating ticket pass generator: %w", err)
		}
		a.Passes = passes
	}

	gw := store.NewBunGateway(db, log)
	pub := publisher(cache, a.Producer)

	a.Gigs = gigs.NewService(gw, pub, log)
	a.Bookings = booking.NewService(gw, pub, log)
	a.Cancellation = cancellation.NewService(gw, pub, log)
	if cache != nil {
		a.Analytics = analytics.NewService(gw, cache, log)
	} else {
		a.Analytics = analytics.NewService(gw, nil, log)
	}
	return a, nil
}

// publisher fans events out to the cache and Kafka, whichever are present.
func publisher(cache *analytics.RedisCache, producer *kafka.Producer) events.Publisher {
	var sinks events.Multi
	if cache != nil {
		sinks = append(sinks, cache)
	}
	if producer != nil {
		sinks = append(sinks, producer)
	}
	if len(sinks) == 0 {
		return events.Nop{}
	}
	return sinks
}

func (a *App) Router() http.Handler {
	handler := &api.Handler{
		Gigs:         a.Gigs,
		Bookings:     a.Bookings,
		Cancellation: a.Cancellation,
		Projections:  a.Analytics,
		Passes:       a.Passes,
		Logger:       a.Logger,
	}
	authn := auth.Middleware(a.Config.Auth.JWTSecret, a.Config.Auth.Issuer, a.Logger)
	if a.Config.Auth.JWTSecret == "" {
		a.Logger.Warn("AUTH", "AUTH_JWT_SECRET not set, mutating routes are unauthenticated")
	}
	return api.NewRouter(handler, authn, a.Config.Server.AllowedOrigins, a.Logger)
}

func (a *App) Close() error {
	var errs []error
	if a.Producer != nil {
		errs = append(errs, a.Producer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
