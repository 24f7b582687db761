package service

import (
	"context"
	"math"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
	"trade_engine/pkg/tracing"
)

// RunCycle processes one event. Expected outcomes (skips, rejections,
// fallbacks) come back in the report; errors are reserved for the engine not
// being able to run the cycle at all.
func (e *Engine) RunCycle(ctx context.Context, ev models.Event) (rep models.CycleReport, err error) {
	span, ctx := tracing.StartSpan(ctx, "engine.cycle",
		opentracing.Tag{Key: "symbol", Value: e.set.Engine.Symbol},
		opentracing.Tag{Key: "event", Value: ev.Kind.String()},
	)
	defer func() { tracing.Finish(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return models.CycleReport{State: e.state}, models.ErrNotStarted
	}
	e.cycles++
	defer e.afterCycle(ctx, &rep)

	// кооперативная остановка проверяется в начале каждого цикла
	if e.stopRequested.Load() && e.state != models.StateStopped && e.state != models.StateErrorLock {
		e.applyStop(ctx)
	}
	e.applyPendingKill(ctx)

	if e.state == models.StateErrorLock {
		return e.onLocked(ctx, ev), nil
	}

	switch ev.Kind {
	case models.EventBar:
		return e.onBar(ctx, ev.Bar), nil
	case models.EventTick:
		return e.onTick(ctx, ev.Tick), nil
	case models.EventFill:
		return e.onFill(ctx, ev.Fill), nil
	}
	return e.report(models.ActionNone, models.ReasonNone), nil
}

// onLocked: в ERROR_LOCK входы запрещены, но открытая позиция по-прежнему
// закрывается по стопу, цели и трейлингу.
func (e *Engine) onLocked(ctx context.Context, ev models.Event) models.CycleReport {
	guard := e.lockExits && e.pos != nil
	switch ev.Kind {
	case models.EventBar:
		b := ev.Bar
		if !b.End.After(e.lastBarEnd) || b.Validate() != nil {
			break
		}
		e.appendBar(b)
		e.rollDay(ctx, b.End)
		if guard && (b.Symbol == "" || b.Symbol == e.set.Engine.Symbol) {
			return e.monitorBar(ctx, b)
		}
	case models.EventTick:
		if guard {
			return e.onTick(ctx, ev.Tick)
		}
	case models.EventFill:
		if guard && e.pendingExit != nil && ev.Fill.OrderID == e.pendingExit.orderID {
			return e.onFill(ctx, ev.Fill)
		}
	}
	return e.report(models.ActionSkipped, models.ReasonErrorLock)
}

func (e *Engine) afterCycle(ctx context.Context, rep *models.CycleReport) {
	e.applyPendingKill(ctx)
	rep.State = e.state
	if rep.Reason != models.ReasonNone {
		e.lastReason = rep.Reason
	}
	e.persist(ctx)
	e.publish()
}

func (e *Engine) applyPendingKill(ctx context.Context) {
	if r := e.pendingKill.Swap(nil); r != nil {
		e.trip(ctx, *r)
	}
}

func (e *Engine) report(a models.CycleAction, r models.ReasonCode) models.CycleReport {
	return models.CycleReport{Action: a, State: e.state, Reason: r}
}

func (e *Engine) onBar(ctx context.Context, b models.Bar) models.CycleReport {
	if err := b.Validate(); err != nil {
		e.log.Warn("bar skipped", zap.String("reason", string(models.ReasonDataQuality)), zap.Error(err))
		return e.report(models.ActionSkipped, models.ReasonDataQuality)
	}
	if b.Symbol != "" && b.Symbol != e.set.Engine.Symbol {
		return e.report(models.ActionSkipped, models.ReasonSymbolMismatch)
	}
	if !b.End.After(e.lastBarEnd) {
		e.log.Debug("bar skipped", zap.String("reason", string(models.ReasonDuplicateBar)), zap.Time("end", b.End))
		return e.report(models.ActionSkipped, models.ReasonDuplicateBar)
	}
	e.appendBar(b)
	e.rollDay(ctx, b.End)

	if e.pos != nil {
		return e.monitorBar(ctx, b)
	}
	if e.set.Engine.MaxBarAge > 0 && e.now().Sub(b.End) > e.set.Engine.MaxBarAge {
		e.log.Warn("bar skipped", zap.String("reason", string(models.ReasonStaleBar)), zap.Time("end", b.End))
		return e.report(models.ActionSkipped, models.ReasonStaleBar)
	}
	return e.analyze(ctx, b)
}

// rollDay starts a new risk day on the first bar, tick or fill of a UTC day.
func (e *Engine) rollDay(ctx context.Context, at time.Time) {
	if at.IsZero() {
		return
	}
	d, rolled := e.daily.Roll(at, e.balance)
	if !rolled {
		return
	}
	e.daily = d
	e.dirty = true
	if e.killed.Load() && e.set.Engine.KillSwitchAutoReset && e.killReason == string(models.ReasonDailyLossLimit) {
		e.log.Info("kill switch auto-reset on new day", zap.String("day", d.Day))
		e.clearKill()
	}
}

func (e *Engine) clearKill() {
	e.killed.Store(false)
	e.killReason = ""
	e.dirty = true
	if e.state == models.StateStopped && !e.stopRequested.Load() {
		if e.pos != nil {
			e.setState(models.StateInPosition)
		} else {
			e.setState(models.StateAnalyzing)
		}
	}
}

func (e *Engine) monitorBar(ctx context.Context, b models.Bar) models.CycleReport {
	res := e.c.Monitor.Update(e.pos, models.Tick{Symbol: b.Symbol, Price: b.Close, At: b.End})
	if !res.ShouldExit && e.retryExit != nil {
		res = e.c.Monitor.ManualExit(e.pos, b.Close, b.End, e.retryExit.Kind, e.retryExit.Reason)
	}
	if !res.ShouldExit && e.set.Engine.ExitOnReversal && e.pendingExit == nil {
		fs := e.c.Features.Compute(e.window)
		sig := e.c.Signals.Generate(fs, e.c.Regime.Classify(fs))
		if sig.Valid() && sig.Direction == e.pos.Side.Opposite() {
			res = e.c.Monitor.ManualExit(e.pos, b.Close, b.End, models.ExitSignalReversal, "opposite signal")
		}
	}
	if res.ShouldExit {
		return e.submitExit(ctx, res)
	}
	e.dirty = true
	return e.report(models.ActionUpdated, models.ReasonNone)
}

func (e *Engine) onTick(ctx context.Context, t models.Tick) models.CycleReport {
	if e.pos == nil {
		return e.report(models.ActionNone, models.ReasonNone)
	}
	if t.Symbol != "" && t.Symbol != e.set.Engine.Symbol {
		return e.report(models.ActionSkipped, models.ReasonSymbolMismatch)
	}
	prevStop := e.pos.StopLoss
	res := e.c.Monitor.Update(e.pos, t)
	if !res.ShouldExit && e.retryExit != nil {
		res = e.c.Monitor.ManualExit(e.pos, t.Price, t.At, e.retryExit.Kind, e.retryExit.Reason)
	}
	if res.ShouldExit {
		return e.submitExit(ctx, res)
	}
	if e.pos.StopLoss != prevStop {
		e.dirty = true
		e.log.Debug("stop tightened", zap.Float64("from", prevStop), zap.Float64("to", e.pos.StopLoss))
		return e.report(models.ActionUpdated, models.ReasonNone)
	}
	return e.report(models.ActionNone, models.ReasonNone)
}

func (e *Engine) analyze(ctx context.Context, b models.Bar) models.CycleReport {
	switch {
	case e.pendingEntry != nil:
		return e.report(models.ActionSkipped, models.ReasonPendingOrder)
	case e.killed.Load():
		return e.report(models.ActionRejected, models.ReasonKillSwitch)
	case e.state == models.StateStopped:
		return e.report(models.ActionRejected, models.ReasonStopRequested)
	}

	e.setState(models.StateAnalyzing)
	fs := e.c.Features.Compute(e.window)
	lbl := e.c.Regime.Classify(fs)
	sig := e.c.Signals.Generate(fs, lbl)
	sig.Symbol = e.set.Engine.Symbol

	rep := e.report(models.ActionNone, sig.Reason)
	rep.Signal = &sig
	if !sig.Valid() {
		return rep
	}

	e.setState(models.StateCheckingConditions)
	defer func() {
		if e.state == models.StateCheckingConditions {
			e.setState(models.StateAnalyzing)
		}
	}()

	if e.c.Oracle != nil {
		out := e.c.Oracle.Decide(ctx, models.OracleRequest{Signal: sig.Clone(), Features: fs.Values()})
		rep.Oracle = &out
		if out.Fallback {
			e.log.Info("oracle fallback",
				zap.String("reason", string(models.ReasonOracleFallback)), zap.String("error", out.Error))
		}
		if !out.Proceed {
			e.log.Info("entry rejected", zap.String("reason", string(models.ReasonOracleRejected)),
				zap.Float64("confidence", out.Decision.Confidence), zap.String("reasoning", out.Decision.Reasoning))
			rep.Action, rep.Reason = models.ActionRejected, models.ReasonOracleRejected
			return rep
		}
	}

	calc, err := e.c.Risk.Calculate(sig, e.balance, e.set.Engine.StopMode)
	if err != nil {
		e.log.Warn("entry rejected", zap.String("reason", string(models.ReasonInvalidRisk)), zap.Error(err))
		rep.Action, rep.Reason = models.ActionRejected, models.ReasonInvalidRisk
		return rep
	}
	rep.Calc = &calc
	if ok, reason := e.c.Risk.Validate(calc, e.daily); !ok {
		e.log.Info("entry rejected", zap.String("reason", string(reason)),
			zap.Float64("daily_pnl", e.daily.RealizedPnL), zap.Float64("rr", calc.RiskReward))
		rep.Action, rep.Reason = models.ActionRejected, reason
		if reason == models.ReasonDailyLossLimit {
			e.trip(ctx, string(reason))
		}
		return rep
	}

	// kill switch может сработать посреди цикла
	if e.killed.Load() || e.pendingKill.Load() != nil {
		rep.Action, rep.Reason = models.ActionRejected, models.ReasonKillSwitch
		return rep
	}
	return e.enter(ctx, b, sig, calc, rep)
}

func (e *Engine) enter(ctx context.Context, b models.Bar, sig models.Signal, calc models.RiskCalculation, rep models.CycleReport) models.CycleReport {
	if e.pos != nil {
		rep.Action, rep.Reason = models.ActionRejected, models.ReasonPendingOrder
		return rep
	}
	req := models.OrderRequest{
		ClientID: newID(),
		Symbol:   e.set.Engine.Symbol,
		Side:     models.OrderSide(calc.Direction, false),
		Type:     models.OrderMarket,
		Quantity: calc.Quantity,
		Price:    sig.Entry,
		Stop:     calc.Stop,
		At:       b.End,
	}
	ack, err := e.c.Executor.SubmitOrder(ctx, req)
	if err != nil {
		reason := models.ReasonOrderFailed
		if errors.Is(err, models.ErrMarginRejected) {
			reason = models.ReasonMarginRejected
		}
		e.log.Error("entry order failed", zap.String("reason", string(reason)), zap.Error(err))
		rep.Action, rep.Reason = models.ActionRejected, reason
		return rep
	}

	switch ack.Status {
	case models.OrderFilled:
		fill := fillFromAck(e.set.Engine.Symbol, req.Side, ack)
		e.markFill(fill.FillID)
		if err := e.openPosition(ctx, fill, calc); err != nil {
			rep.Action, rep.Reason = models.ActionRejected, models.ReasonErrorLock
			return rep
		}
		rep.Action = models.ActionEntered
	case models.OrderAccepted:
		e.pendingEntry = &pendingOrder{orderID: ack.OrderID, calc: calc}
		e.dirty = true
		rep.Action, rep.Reason = models.ActionPending, models.ReasonPendingOrder
	default:
		e.log.Warn("entry order rejected by venue", zap.String("order", ack.OrderID))
		rep.Action, rep.Reason = models.ActionRejected, models.ReasonOrderFailed
	}
	return rep
}

func fillFromAck(symbol string, side models.Side, ack models.OrderAck) models.Fill {
	return models.Fill{
		FillID:   ack.OrderID,
		OrderID:  ack.OrderID,
		Symbol:   symbol,
		Side:     side,
		Quantity: ack.FilledQty,
		Price:    ack.AvgPrice,
		Fee:      ack.Fee,
		At:       ack.At,
	}
}

func (e *Engine) openPosition(ctx context.Context, f models.Fill, calc models.RiskCalculation) error {
	if e.pos != nil {
		e.lock(ctx, "fill "+f.FillID+" would open a second position")
		return errors.Wrap(models.ErrPositionExists, f.FillID)
	}
	p := &models.Position{
		ID:           newID(),
		Symbol:       e.set.Engine.Symbol,
		Side:         calc.Direction,
		EntryOrderID: f.OrderID,
		EntryPrice:   f.Price,
		EntryTime:    f.At,
		EntryFee:     f.Fee,
		Quantity:     f.Quantity,
		StopLoss:     calc.Stop,
		TakeProfit:   calc.Target,
		ATR:          calc.ATR,
	}
	e.c.Monitor.Open(p)
	e.pos = p
	e.pendingEntry = nil
	e.refreshBalance(ctx)
	if !e.killed.Load() {
		e.setState(models.StateInPosition)
	}
	e.dirty = true

	e.log.Info("position opened",
		zap.String("id", p.ID), zap.String("side", string(p.Side)),
		zap.Float64("entry", p.EntryPrice), zap.Float64("qty", p.Quantity),
		zap.Float64("stop", p.StopLoss), zap.Float64("target", p.TakeProfit),
	)
	e.notifyf(ctx, "📈 %s %s qty=%.6f @ %.6f SL=%.6f TP=%.6f",
		e.set.Engine.Symbol, p.Side, p.Quantity, p.EntryPrice, p.StopLoss, p.TakeProfit)
	return nil
}

func (e *Engine) submitExit(ctx context.Context, res models.ExitResult) models.CycleReport {
	rep := e.report(models.ActionNone, models.ReasonNone)
	rep.Exit = &res
	if e.pendingExit != nil {
		rep.Action, rep.Reason = models.ActionPending, models.ReasonPendingOrder
		return rep
	}
	req := models.OrderRequest{
		ClientID:   newID(),
		Symbol:     e.set.Engine.Symbol,
		Side:       models.OrderSide(e.pos.Side, true),
		Type:       models.OrderMarket,
		Quantity:   e.pos.Quantity,
		Price:      res.FillReference(),
		ReduceOnly: true,
		At:         res.At,
	}
	ack, err := e.c.Executor.SubmitOrder(ctx, req)
	if err != nil || ack.Status == models.OrderRejected {
		// позиция остаётся, выход повторим на следующей цене
		e.retryExit = &res
		e.log.Error("exit order failed, will retry",
			zap.String("kind", string(res.Kind)), zap.String("order", ack.OrderID), zap.Error(err))
		rep.Action, rep.Reason = models.ActionRejected, models.ReasonOrderFailed
		return rep
	}
	if ack.Status == models.OrderAccepted {
		e.pendingExit = &pendingOrder{orderID: ack.OrderID, exit: res}
		e.retryExit = nil
		e.dirty = true
		rep.Action, rep.Reason = models.ActionPending, models.ReasonPendingOrder
		return rep
	}
	fill := fillFromAck(e.set.Engine.Symbol, req.Side, ack)
	e.markFill(fill.FillID)
	e.closePosition(ctx, fill, res)
	rep.Action = models.ActionExited
	return rep
}

func (e *Engine) closePosition(ctx context.Context, f models.Fill, res models.ExitResult) {
	p := e.pos
	qty := math.Min(f.Quantity, p.Quantity)
	if qty <= 0 {
		qty = p.Quantity
	}
	gross := (f.Price - p.EntryPrice) * qty * p.Side.Sign()
	fees := p.EntryFee + f.Fee
	pnl := gross - fees

	// сделка относится к дню выхода, даже если бар нового дня ещё не пришёл
	e.rollDay(ctx, f.At)
	e.daily = e.daily.Record(pnl)
	if !e.refreshBalance(ctx) {
		e.balance += gross - f.Fee
	}

	tr := models.Trade{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryTime:  p.EntryTime,
		ExitTime:   f.At,
		EntryPrice: p.EntryPrice,
		ExitPrice:  f.Price,
		Quantity:   qty,
		Fees:       fees,
		PnL:        pnl,
		ExitKind:   res.Kind,
		Balance:    e.balance,
	}
	if risk := math.Abs(p.EntryPrice-p.InitialStop) * qty; risk > 0 {
		tr.RMultiple = pnl / risk
	}

	p.State = models.PositionClosed
	e.pos = nil
	e.pendingExit = nil
	e.retryExit = nil
	e.dirty = true
	switch {
	case e.state == models.StateErrorLock:
		// выход не снимает lock, его снимает только ClearErrorLock
	case e.killed.Load() || e.stopRequested.Load():
		e.setState(models.StateStopped)
	default:
		e.setState(models.StateAnalyzing)
	}

	e.log.Info("position closed",
		zap.String("id", tr.ID), zap.String("kind", string(res.Kind)),
		zap.Float64("exit", tr.ExitPrice), zap.Float64("pnl", tr.PnL),
		zap.Float64("daily_pnl", e.daily.RealizedPnL), zap.String("reason", res.Reason),
	)
	e.notifyf(ctx, "📉 %s %s closed %s @ %.6f PnL=%.2f (day %.2f)",
		tr.Symbol, tr.Side, tr.ExitKind, tr.ExitPrice, tr.PnL, e.daily.RealizedPnL)
	if e.onTrade != nil {
		e.onTrade(tr)
	}
}

// refreshBalance reads the venue balance; on failure the cached one stays.
func (e *Engine) refreshBalance(ctx context.Context) bool {
	bal, err := e.c.Executor.GetBalance(ctx)
	if err != nil {
		e.log.Warn("balance refresh failed", zap.Error(err))
		return false
	}
	e.balance = bal
	return true
}

func (e *Engine) onFill(ctx context.Context, f models.Fill) models.CycleReport {
	if f.FillID == "" {
		f.FillID = f.OrderID
	}
	if !e.markFill(f.FillID) {
		e.log.Debug("duplicate fill ignored", zap.String("fill", f.FillID))
		return e.report(models.ActionNone, models.ReasonDuplicateFill)
	}
	switch {
	case e.pendingEntry != nil && f.OrderID == e.pendingEntry.orderID:
		if err := e.openPosition(ctx, f, e.pendingEntry.calc); err != nil {
			return e.report(models.ActionRejected, models.ReasonErrorLock)
		}
		return e.report(models.ActionEntered, models.ReasonNone)
	case e.pendingExit != nil && e.pos != nil && f.OrderID == e.pendingExit.orderID:
		res := e.pendingExit.exit
		e.closePosition(ctx, f, res)
		rep := e.report(models.ActionExited, models.ReasonNone)
		rep.Exit = &res
		return rep
	case e.pos != nil && f.OrderID == e.pos.EntryOrderID:
		// повтор входного филла под другим ID
		return e.report(models.ActionNone, models.ReasonDuplicateFill)
	}
	e.lock(ctx, "unexpected fill "+f.FillID+" for order "+f.OrderID)
	return e.report(models.ActionRejected, models.ReasonErrorLock)
}
