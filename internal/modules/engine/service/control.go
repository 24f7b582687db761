package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

// ForceExit closes the open position at the last seen price.
func (e *Engine) ForceExit(ctx context.Context, reason string) (models.CycleReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return models.CycleReport{State: e.state}, models.ErrNotStarted
	}
	var rep models.CycleReport
	defer e.afterCycle(ctx, &rep)
	if e.pos == nil {
		rep = e.report(models.ActionNone, models.ReasonNone)
		return rep, models.ErrNoPosition
	}
	if reason == "" {
		reason = "manual"
	}
	res := e.c.Monitor.ManualExit(e.pos, e.pos.LastPrice, e.now(), models.ExitManual, reason)
	rep = e.submitExit(ctx, res)
	if rep.Action == models.ActionRejected {
		return rep, errors.Wrap(models.ErrOrderSubmission, "force exit")
	}
	return rep, nil
}

// Stop requests a cooperative stop. The in-flight cycle, if any, finishes
// first; entries are blocked afterwards.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopRequested.Store(true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		e.setState(models.StateStopped)
		e.publish()
		return nil
	}
	var rep models.CycleReport
	defer e.afterCycle(ctx, &rep)
	if e.state != models.StateStopped && e.state != models.StateErrorLock {
		e.applyStop(ctx)
	}
	return nil
}

func (e *Engine) applyStop(ctx context.Context) {
	e.log.Info("stop requested", zap.Bool("position", e.pos != nil), zap.Bool("close_on_stop", e.set.Engine.CloseOnStop))
	if e.pos != nil && e.set.Engine.CloseOnStop {
		res := e.c.Monitor.ManualExit(e.pos, e.pos.LastPrice, e.now(), models.ExitShutdown, string(models.ReasonStopRequested))
		e.submitExit(ctx, res)
	}
	e.setState(models.StateStopped)
	e.lastReason = models.ReasonStopRequested
}

// Kill engages the kill switch. It's safe to call from any goroutine while a
// cycle runs: the flag is atomic and the entry path re-checks it right
// before sending an order.
func (e *Engine) Kill(reason string) {
	if reason == "" {
		reason = "manual kill"
	}
	e.killed.Store(true)
	e.pendingKill.Store(&reason)
	if e.mu.TryLock() {
		defer e.mu.Unlock()
		e.applyPendingKill(context.Background())
		e.persist(context.Background())
		e.publish()
	}
}

// ResetKillSwitch clears the kill switch. Entries resume unless a stop was requested.
func (e *Engine) ResetKillSwitch(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingKill.Store(nil)
	if !e.killed.Load() {
		return nil
	}
	e.log.Info("kill switch reset", zap.String("was", e.killReason))
	e.clearKill()
	e.persist(ctx)
	e.publish()
	return nil
}

// ClearErrorLock re-runs venue reconciliation and leaves ERROR_LOCK only when
// it passes.
func (e *Engine) ClearErrorLock(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.StateErrorLock {
		return nil
	}
	e.pendingEntry = nil
	e.pendingExit = nil
	if reason := e.reconcile(ctx); reason != "" {
		e.lockReason = reason
		e.lockExits = false
		e.publish()
		return errors.Wrap(models.ErrErrorLock, reason)
	}
	e.log.Info("error lock cleared", zap.String("was", e.lockReason))
	e.lockReason = ""
	switch {
	case e.killed.Load() || e.stopRequested.Load():
		e.setState(models.StateStopped)
	case e.pos != nil:
		e.setState(models.StateInPosition)
	default:
		e.setState(models.StateAnalyzing)
	}
	e.persist(ctx)
	e.publish()
	return nil
}
