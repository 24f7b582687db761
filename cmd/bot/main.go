package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"trade_engine/internal/modules/bootstrap"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/engine"
	"trade_engine/internal/modules/execution"
	"trade_engine/internal/modules/features"
	"trade_engine/internal/modules/feed"
	"trade_engine/internal/modules/health"
	"trade_engine/internal/modules/monitor"
	"trade_engine/internal/modules/oracle"
	"trade_engine/internal/modules/regime"
	"trade_engine/internal/modules/risk"
	"trade_engine/internal/modules/signal"
	"trade_engine/internal/modules/store"
	"trade_engine/internal/notify"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	tracing.SetServiceName(cfg.Service.Name)
	return logger.New(cfg.Service.Name, cfg.Service.Debug)
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	_, closer, err := tracing.InitTracer(tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port})
	if err != nil {
		return err
	}
	log.Info("jaeger tracing enabled", zap.String("host", cfg.Tracing.Host), zap.Int("port", cfg.Tracing.Port))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}

func main() {
	app := fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		config.Module(),
		fx.Provide(newLogger),
		fx.Invoke(initTracing),
		notify.Module(),
		store.Module(),
		execution.Module(),
		feed.Module(),
		oracle.Module(),
		bootstrap.Module(),
		features.Module(),
		regime.Module(),
		signal.Module(),
		risk.Module(),
		monitor.Module(),
		health.Module(),
		engine.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
