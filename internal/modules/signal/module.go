package signal

import (
	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/signal/service"
)

func Module() fx.Option {
	return fx.Module("signal",
		fx.Provide(
			service.NewRegistry,
			func(cfg *config.Config, reg *service.Registry) (*service.Generator, error) {
				return service.NewGenerator(cfg.Signal, reg)
			},
		),
	)
}
