package backtest

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/modules/backtest/service"
	"trade_engine/internal/modules/config"
)

func newResultStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*service.ResultStore, error) {
	rs, err := service.OpenResultStore(cfg.Backtest.ResultsDB)
	if err != nil {
		return nil, err
	}
	log.Info("sweep results", zap.String("path", cfg.Backtest.ResultsDB))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return rs.Close() },
	})
	return rs, nil
}

func newSweeper(r *service.Runner, rs *service.ResultStore, cfg *config.Config, log *zap.Logger) *service.Sweeper {
	return service.NewSweeper(r, cfg.Sweep, rs, log)
}

func Module() fx.Option {
	return fx.Module("backtest",
		fx.Provide(
			service.NewRunner,
			newResultStore,
			newSweeper,
		),
	)
}
