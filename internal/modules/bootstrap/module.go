package bootstrap

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	bootstrap "trade_engine/internal/modules/bootstrap/service"
	"trade_engine/internal/modules/config"
	feed "trade_engine/internal/modules/feed/service"
	"trade_engine/internal/notify"
)

func newWarmuper(cfg *config.Config, rs *feed.Resampler, n notify.Notifier, log *zap.Logger) *bootstrap.Warmuper {
	base := cfg.Engine.BaseTimeframe
	if base == "" {
		base = cfg.Engine.Timeframe
	}
	return bootstrap.NewWarmuper(bootstrap.Config{
		File:          cfg.Feed.HistoryFile,
		Symbol:        cfg.Engine.Symbol,
		BaseTimeframe: base,
		Bars:          cfg.Feed.WarmupBars,
	}, rs, n, log)
}

// Module: прогрев окна движка из истории, запуск в цикле движка.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(newWarmuper),
	)
}
