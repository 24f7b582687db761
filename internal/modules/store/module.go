package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/postgres"
	"trade_engine/internal/modules/store/service"
)

func newStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (service.Store, error) {
	log = log.Named("store")
	switch cfg.Store.Kind {
	case "postgres":
		tm, err := postgres.Connect(context.Background(), cfg.DB)
		if err != nil {
			return nil, errors.Wrap(err, "connect postgres")
		}
		pg := service.NewPostgres(tm)
		lc.Append(fx.Hook{
			OnStart: pg.Migrate,
			OnStop: func(context.Context) error {
				tm.Close()
				return nil
			},
		})
		log.Info("postgres store")
		return pg, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return rdb.Close()
			},
		})
		log.Info("redis store", zap.String("addr", cfg.Store.RedisAddr), zap.Duration("ttl", cfg.Store.TTL))
		return service.NewRedis(rdb, cfg.Store.TTL), nil
	default:
		log.Warn("memory store: state is lost on restart")
		return service.NewMemory(), nil
	}
}

func Module() fx.Option {
	return fx.Module("store",
		fx.Provide(newStore),
	)
}
