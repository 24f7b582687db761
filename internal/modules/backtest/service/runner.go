package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
	engine "trade_engine/internal/modules/engine/service"
	execution "trade_engine/internal/modules/execution/service"
	feed "trade_engine/internal/modules/feed/service"
	store "trade_engine/internal/modules/store/service"
)

// EndOfData is the reason on the exit that closes a position left open
// after the last bar.
const EndOfData = "end of data"

type Report struct {
	Symbol     string                    `json:"symbol"`
	Timeframe  string                    `json:"timeframe"`
	From       time.Time                 `json:"from"`
	To         time.Time                 `json:"to"`
	BaseBars   int                       `json:"base_bars"`
	Signals    int                       `json:"signals"`
	Entries    int                       `json:"entries"`
	Rejections map[models.ReasonCode]int `json:"rejections,omitempty"`
	Trades     []models.Trade            `json:"trades"`
	Metrics    Metrics                   `json:"metrics"`
	Final      models.Status             `json:"final"`
}

// Runner replays base bars through the same engine and driver as live
// trading, against a paper broker and an in-memory store.
type Runner struct {
	log *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// simClock: время симуляции, конец последнего поданного бара.
type simClock struct{ t time.Time }

func (c *simClock) now() time.Time { return c.t }

// Run builds fresh components from set, so concurrent runs share nothing
// but the read-only bars.
func (r *Runner) Run(ctx context.Context, set models.Settings, bars []models.Bar) (Report, error) {
	rep := Report{
		Symbol:     set.Engine.Symbol,
		Timeframe:  set.Engine.Timeframe,
		Rejections: make(map[models.ReasonCode]int),
	}
	if len(bars) == 0 {
		return rep, errors.New("backtest: no bars")
	}
	rep.From, rep.To = bars[0].Start, bars[len(bars)-1].End

	base := set.Engine.BaseTimeframe
	if base == "" {
		base = set.Engine.Timeframe
	}
	rs, err := feed.NewResampler(base, set.Engine.Timeframe)
	if err != nil {
		return rep, err
	}

	comps, err := engine.NewPipeline(set)
	if err != nil {
		return rep, err
	}
	clock := &simClock{t: bars[0].Start}
	broker := execution.NewPaperBroker(set.Engine.Symbol, set.Execution)
	comps.Executor = broker
	comps.Store = store.NewMemory()
	comps.Log = r.log
	comps.Clock = clock.now

	eng, err := engine.New(set, "backtest:"+set.Engine.Symbol, comps)
	if err != nil {
		return rep, err
	}
	eng.OnTrade(func(tr models.Trade) { rep.Trades = append(rep.Trades, tr) })
	if err := eng.Start(ctx); err != nil {
		return rep, err
	}
	drv := engine.NewDriver(eng, rs)

	for _, b := range bars {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.BaseBars++
		clock.t = b.End
		reps, err := drv.OnBaseBar(ctx, b)
		if err != nil {
			return rep, errors.Wrapf(err, "bar %s", b.Start.Format(time.RFC3339))
		}
		for _, cr := range reps {
			if cr.Signal != nil && cr.Signal.Valid() {
				rep.Signals++
			}
			switch cr.Action {
			case models.ActionEntered:
				rep.Entries++
			case models.ActionRejected:
				rep.Rejections[cr.Reason]++
			}
		}
	}

	if eng.GetStatus().Position != nil {
		if _, err := eng.ForceExit(ctx, EndOfData); err != nil {
			r.log.Warn("end of data exit failed", zap.Error(err))
		}
	}

	bal, err := broker.GetBalance(ctx)
	if err != nil {
		return rep, err
	}
	rep.Final = eng.GetStatus()
	rep.Metrics = ComputeMetrics(rep.Trades, set.Execution.InitialBalance)
	if diff := rep.Metrics.FinalBalance - bal; diff > 1e-6 || diff < -1e-6 {
		r.log.Debug("ledger differs from trade sum", zap.Float64("ledger", bal), zap.Float64("trades", rep.Metrics.FinalBalance))
	}
	return rep, nil
}
