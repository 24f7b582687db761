package execution

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/execution/service"
)

func newPaperBroker(cfg *config.Config) *service.PaperBroker {
	return service.NewPaperBroker(cfg.Engine.Symbol, cfg.Execution)
}

// newExecutor: живой адаптер биржи вне объёма, ордера идут в paper broker.
func newExecutor(cfg *config.Config, b *service.PaperBroker, log *zap.Logger) *service.RetryingExecutor {
	log.Info("paper execution",
		zap.Float64("balance", cfg.Execution.InitialBalance),
		zap.Float64("fee_rate", cfg.Execution.FeeRate),
		zap.Float64("leverage", cfg.Execution.Leverage),
	)
	return service.NewRetryingExecutor(b, cfg.Execution, log)
}

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			newPaperBroker,
			newExecutor,
		),
	)
}
