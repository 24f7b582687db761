package features

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/features/service"
)

func newEngine(cfg *config.Config, reg *service.Registry, log *zap.Logger) (*service.Engine, error) {
	eng, err := service.NewEngine(cfg.Indicators, reg)
	if err != nil {
		return nil, err
	}
	log.Info("feature engine ready",
		zap.Int("indicators", len(cfg.Indicators)),
		zap.Int("lookback", eng.Lookback()),
	)
	return eng, nil
}

func Module() fx.Option {
	return fx.Module("features",
		fx.Provide(
			service.NewRegistry,
			newEngine,
		),
	)
}
