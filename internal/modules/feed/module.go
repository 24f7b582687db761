package feed

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/feed/service"
	health "trade_engine/internal/modules/health/service"
)

func baseTimeframe(cfg *config.Config) string {
	if cfg.Engine.BaseTimeframe != "" {
		return cfg.Engine.BaseTimeframe
	}
	return cfg.Engine.Timeframe
}

func newResampler(cfg *config.Config) (*service.Resampler, error) {
	return service.NewResampler(baseTimeframe(cfg), cfg.Engine.Timeframe)
}

func newStream(cfg *config.Config, state *health.State, log *zap.Logger) (*service.Stream, error) {
	return service.NewStream(service.StreamConfig{
		URL:          cfg.Feed.URL,
		InstID:       cfg.Feed.InstID,
		Symbol:       cfg.Engine.Symbol,
		Timeframe:    baseTimeframe(cfg),
		PingInterval: cfg.Feed.PingInterval,
	}, state, log)
}

// newEvents: общий буфер свечей и тиков, читатель WS пишет, цикл движка читает.
func newEvents(lc fx.Lifecycle, cfg *config.Config, s *service.Stream) <-chan models.Event {
	out := make(chan models.Event, cfg.Feed.Buffer)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.Pump(ctx, out)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return out
}

// Module поднимает стример базовых свечей и тиков.
func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			newResampler,
			newStream,
			newEvents,
		),
	)
}
