package engine

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/models"
	bootstrap "trade_engine/internal/modules/bootstrap/service"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/engine/service"
	execution "trade_engine/internal/modules/execution/service"
	features "trade_engine/internal/modules/features/service"
	feed "trade_engine/internal/modules/feed/service"
	health "trade_engine/internal/modules/health/service"
	monitor "trade_engine/internal/modules/monitor/service"
	oracle "trade_engine/internal/modules/oracle/service"
	regime "trade_engine/internal/modules/regime/service"
	risk "trade_engine/internal/modules/risk/service"
	signal "trade_engine/internal/modules/signal/service"
	store "trade_engine/internal/modules/store/service"
	"trade_engine/internal/notify"
)

type params struct {
	fx.In

	Cfg      *config.Config
	Log      *zap.Logger
	Features *features.Engine
	Regime   *regime.Classifier
	Signals  *signal.Generator
	Risk     *risk.Manager
	Monitor  *monitor.Monitor
	Executor *execution.RetryingExecutor
	Store    store.Store
	Gate     *oracle.Gate
	Notifier notify.Notifier
}

func newEngine(p params) (*service.Engine, error) {
	c := service.Components{
		Features: p.Features,
		Regime:   p.Regime,
		Signals:  p.Signals,
		Risk:     p.Risk,
		Monitor:  p.Monitor,
		Executor: p.Executor,
		Store:    p.Store,
		Notifier: p.Notifier,
		Log:      p.Log,
	}
	// без оракула вход решают только правила
	if p.Cfg.Oracle.Enabled {
		c.Oracle = p.Gate
	}
	return service.New(p.Cfg.Settings, p.Cfg.StateKey(), c)
}

func newDriver(eng *service.Engine, rs *feed.Resampler) *service.Driver {
	return service.NewLiveDriver(eng, rs)
}

// asController exposes the engine to the control API.
func asController(eng *service.Engine) health.Controller { return eng }

// attachChat lets chat commands reach the engine. Set after construction,
// the engine itself notifies through the same bot.
func attachChat(t *notify.Telegram, eng *service.Engine) { t.Attach(eng) }

type loopParams struct {
	fx.In

	LC       fx.Lifecycle
	Cfg      *config.Config
	Log      *zap.Logger
	Engine   *service.Engine
	Driver   *service.Driver
	Events   <-chan models.Event
	Warmuper *bootstrap.Warmuper
	State    *health.State
}

// runLoop is the single cycle goroutine: bars and ticks come from the
// buffered feed channel in order, so the reader never waits on a cycle.
func runLoop(p loopParams) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	log := p.Log.Named("loop")

	p.LC.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := p.Engine.Start(startCtx); err != nil {
				return err
			}
			if n, err := p.Warmuper.Warmup(startCtx, p.Engine); err != nil {
				log.Warn("warm-up failed", zap.Error(err))
			} else {
				log.Info("warm-up done", zap.Int("bars", n))
			}
			p.State.SetReady(true)

			go func() {
				defer close(done)
				log.Info("cycle loop started", zap.String("symbol", p.Cfg.Engine.Symbol))
				for {
					select {
					case <-ctx.Done():
						log.Info("cycle loop stopped")
						return
					case ev, ok := <-p.Events:
						if !ok {
							log.Warn("feed channel closed")
							return
						}
						reps, err := dispatch(ctx, p, ev)
						if err != nil {
							log.Error("cycle failed", zap.String("event", ev.Kind.String()), zap.Error(err))
							continue
						}
						for _, rep := range reps {
							log.Debug("cycle",
								zap.String("action", string(rep.Action)),
								zap.String("state", string(rep.State)),
								zap.String("reason", string(rep.Reason)),
							)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			p.State.SetReady(false)
			err := p.Engine.Stop(stopCtx)
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return err
		},
	})
}

// dispatch: тики идут прямо в монитор, закрытые свечи через агрегатор.
func dispatch(ctx context.Context, p loopParams, ev models.Event) ([]models.CycleReport, error) {
	switch ev.Kind {
	case models.EventTick:
		p.State.TouchTick(ev.Tick.At)
		rep, err := p.Driver.OnTick(ctx, ev.Tick)
		if err != nil || rep.Action == models.ActionNone {
			return nil, err
		}
		return []models.CycleReport{rep}, nil
	case models.EventBar:
		p.State.TouchTick(ev.Bar.End)
		return p.Driver.OnBaseBar(ctx, ev.Bar)
	}
	return nil, nil
}

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			newEngine,
			newDriver,
			asController,
		),
		fx.Invoke(attachChat, runLoop),
	)
}
