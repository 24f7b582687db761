package risk

import (
	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/risk/service"
)

func Module() fx.Option {
	return fx.Module("risk",
		fx.Provide(
			func(cfg *config.Config) *service.Manager {
				return service.NewManager(cfg.Risk)
			},
		),
	)
}
