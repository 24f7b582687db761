package monitor

import (
	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/monitor/service"
)

func Module() fx.Option {
	return fx.Module("monitor",
		fx.Provide(
			func(cfg *config.Config) *service.Monitor {
				return service.NewMonitor(cfg.Trailing)
			},
		),
	)
}
