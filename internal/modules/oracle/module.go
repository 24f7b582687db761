package oracle

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/oracle/service"
	"trade_engine/internal/notify"
)

func newClient(lc fx.Lifecycle, cfg *config.Config, tg *notify.Telegram) (service.Client, error) {
	if !cfg.Oracle.Enabled {
		return nil, nil
	}
	switch cfg.Oracle.Kind {
	case "grpc":
		c, err := service.DialGRPC(cfg.Oracle.Endpoint, cfg.Oracle.Method)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return c.Close() },
		})
		return c, nil
	case "telegram":
		return service.NewTelegramClient(tg), nil
	default:
		return service.NewHTTPClient(cfg.Oracle.Endpoint, &http.Client{}), nil
	}
}

func newGate(c service.Client, cfg *config.Config, log *zap.Logger) *service.Gate {
	if cfg.Oracle.Enabled {
		log.Info("oracle enabled",
			zap.String("kind", cfg.Oracle.Kind),
			zap.Duration("timeout", cfg.Oracle.Timeout),
			zap.Float64("min_approve_confidence", cfg.Oracle.MinApproveConfidence),
			zap.Float64("min_reject_confidence", cfg.Oracle.MinRejectConfidence),
		)
	}
	return service.NewGate(c, cfg.Oracle, log)
}

func Module() fx.Option {
	return fx.Module("oracle",
		fx.Provide(
			newClient,
			newGate,
		),
	)
}
