package cli

import (
	"context"
	"fmt"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/config"
	"competition-service/internal/infra/fs"
	"competition-service/internal/infra/kafka"
	"competition-service/internal/infra/memory"
	"competition-service/internal/infra/postgres"
	infraredis "competition-service/internal/infra/redis"
	"competition-service/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
)

// runtime bundles the wired service with the resources that must be released.
type runtime struct {
	service *app.Service
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{}

	store, err := openStore(ctx, cfg, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	catalog, err := app.NewCatalogProvider(ctx, fs.NewLoader(cfg.Competitions.Dir), cfg.Competitions.Default)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("load competitions: %w", err)
	}

	cacheTTL := config.TTLDuration(cfg.Leaderboard.CacheTTL, 5*time.Second)
	var cache app.LeaderboardCache = memory.NewLeaderboardCache(cacheTTL)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		cache = infraredis.NewLeaderboardCache(client, config.TTLDuration(cfg.Redis.TTL, cacheTTL))
		log.Infof("leaderboard cache: redis at %s", cfg.Redis.Addr)
	}

	var events app.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		rt.closers = append(rt.closers, func() { _ = publisher.Close() })
		events = publisher
		log.Infof("publishing events to kafka topic %s", cfg.Kafka.Topic)
	}

	rt.service = app.NewService(store, catalog, cache, events)
	if err := rt.service.Bootstrap(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func openStore(ctx context.Context, cfg config.Config, rt *runtime) (app.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warnf("using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = store.Close() })
		log.Infof("storage: sqlite at %s", cfg.SQLite.Path)
		return store, nil
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		log.Infof("storage: postgres")
		return postgres.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
