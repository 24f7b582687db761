package regime

import (
	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/regime/service"
)

func Module() fx.Option {
	return fx.Module("regime",
		fx.Provide(
			func(cfg *config.Config) *service.Classifier {
				return service.NewClassifier(cfg.Regime)
			},
		),
	)
}
