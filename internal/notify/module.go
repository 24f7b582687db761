package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/modules/config"
)

func newTelegram(cfg *config.Config, log *zap.Logger) (*Telegram, error) {
	return NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			newTelegram,
			// адаптер: *Telegram -> Notifier
			func(t *Telegram) Notifier { return t },
		),
		fx.Invoke(func(lc fx.Lifecycle, t *Telegram) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					t.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					t.Stop()
					return nil
				},
			})
		}),
	)
}
