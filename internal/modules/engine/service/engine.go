package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

const (
	recordVersion = 1
	maxSeenFills  = 1024
)

type pendingOrder struct {
	orderID string
	calc    models.RiskCalculation
	exit    models.ExitResult
}

// Engine is the per-symbol orchestrator. RunCycle and the control calls are
// serialised by mu; GetStatus reads an atomically published snapshot.
type Engine struct {
	log *zap.Logger
	set models.Settings
	key string
	c   Components
	now func() time.Time

	mu           sync.Mutex
	started      bool
	state        models.EngineState
	pos          *models.Position
	daily        models.DailyRiskState
	balance      float64
	window       []models.Bar
	lastBarEnd   time.Time
	pendingEntry *pendingOrder
	pendingExit  *pendingOrder
	retryExit    *models.ExitResult
	seenFills    map[string]struct{}
	fillOrder    []string
	lockReason   string
	// lockExits: в ERROR_LOCK стопы и цели локальной позиции продолжают
	// работать. Ложно, когда площадка не совпадает с локальной записью.
	lockExits    bool
	killReason   string
	degraded     bool
	dirty        bool
	lastReason   models.ReasonCode
	cycles       int64
	onTrade      func(models.Trade)

	killed        atomic.Bool
	pendingKill   atomic.Pointer[string]
	stopRequested atomic.Bool
	status        atomic.Pointer[models.Status]
}

func New(set models.Settings, key string, c Components) (*Engine, error) {
	if c.Features == nil || c.Regime == nil || c.Signals == nil || c.Risk == nil || c.Monitor == nil {
		return nil, errors.New("engine: analysis components are required")
	}
	if c.Executor == nil {
		return nil, errors.New("engine: executor is required")
	}
	if set.Engine.Symbol == "" {
		return nil, errors.New("engine: symbol is required")
	}
	if set.Engine.WindowSize < c.Features.Lookback() {
		return nil, errors.Errorf("engine: window %d shorter than indicator lookback %d",
			set.Engine.WindowSize, c.Features.Lookback())
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if key == "" {
		key = "engine:" + set.Engine.Symbol
	}
	e := &Engine{
		log:       c.Log.With(zap.String("symbol", set.Engine.Symbol)),
		set:       set,
		key:       key,
		c:         c,
		now:       c.Clock,
		state:     models.StateIdle,
		window:    make([]models.Bar, 0, set.Engine.WindowSize),
		seenFills: make(map[string]struct{}),
	}
	e.publish()
	return e, nil
}

// OnTrade registers a callback for closed trades. Call before Start.
func (e *Engine) OnTrade(fn func(models.Trade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade = fn
}

// Start restores persisted state, reconciles it with the venue and moves the
// engine out of IDLE.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	e.setState(models.StateInitializing)
	e.publish()

	bal, err := e.c.Executor.GetBalance(ctx)
	if err != nil {
		e.setState(models.StateIdle)
		e.publish()
		return errors.Wrap(err, "get balance")
	}
	e.balance = bal

	var rec *models.EngineRecord
	if e.c.Store != nil {
		rec, err = e.c.Store.Load(ctx, e.key)
		if err != nil {
			e.degraded = true
			e.log.Warn("state load failed, starting from scratch",
				zap.Error(errors.Wrap(models.ErrPersistence, err.Error())))
			rec = nil
		}
	}
	if rec != nil {
		e.daily = rec.Daily
		e.lastBarEnd = rec.LastBarEnd
		if rec.KillSwitch {
			e.killed.Store(true)
			e.killReason = rec.KillReason
			if e.killReason == "" {
				e.killReason = "restored"
			}
		}
		if rec.Position != nil && rec.Position.State != models.PositionClosed {
			e.pos = rec.Position
		}
		if rec.State == models.StateErrorLock {
			e.lockReason = "restored in error lock"
		}
		e.log.Info("state restored",
			zap.Bool("position", e.pos != nil),
			zap.Bool("kill_switch", rec.KillSwitch),
			zap.String("day", rec.Daily.Day),
		)
	}

	if reason := e.reconcile(ctx); reason != "" {
		e.lockReason = reason
		e.lockExits = false
	} else if e.lockReason != "" {
		// восстановленный lock, площадка согласна с локальной позицией
		e.lockExits = true
	}

	e.started = true
	switch {
	case e.lockReason != "":
		e.setState(models.StateErrorLock)
		e.log.Error("engine locked at start", zap.String("reason", e.lockReason))
		e.notifyf(ctx, "⛔ %s: ERROR_LOCK at start: %s", e.set.Engine.Symbol, e.lockReason)
	case e.killed.Load():
		e.setState(models.StateStopped)
	case e.pos != nil:
		e.setState(models.StateInPosition)
	default:
		e.setState(models.StateAnalyzing)
	}
	e.dirty = true
	e.persist(ctx)
	e.publish()
	return nil
}

// reconcile compares the local position with the venue. It returns a lock
// reason when they can't be matched.
func (e *Engine) reconcile(ctx context.Context) string {
	vp, err := e.c.Executor.GetPosition(ctx, e.set.Engine.Symbol)
	if err != nil {
		// без площадки продолжаем с локальной позицией, стопы всё равно на нас
		e.degraded = true
		e.log.Warn("venue position query failed", zap.Error(err))
		return ""
	}
	venueFlat := vp == nil || vp.Quantity <= 0
	switch {
	case e.pos == nil && venueFlat:
		return ""
	case e.pos == nil:
		return "venue holds a position with no local record"
	case venueFlat:
		e.log.Warn("venue is flat, dropping restored position", zap.String("position", e.pos.ID))
		e.pos = nil
		return ""
	case vp.Side != e.pos.Side:
		return "venue position side differs from local record"
	}
	if vp.Quantity != e.pos.Quantity {
		e.log.Warn("adopting venue quantity",
			zap.Float64("local", e.pos.Quantity), zap.Float64("venue", vp.Quantity))
		e.pos.Quantity = vp.Quantity
	}
	return ""
}

// Warmup fills the bar window without trading.
func (e *Engine) Warmup(bars []models.Bar) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, b := range bars {
		if b.Validate() != nil || !b.End.After(e.lastBarEnd) {
			continue
		}
		e.appendBar(b)
		n++
	}
	e.publish()
	return n
}

func (e *Engine) appendBar(b models.Bar) {
	e.window = append(e.window, b)
	if over := len(e.window) - e.set.Engine.WindowSize; over > 0 {
		e.window = append(e.window[:0], e.window[over:]...)
	}
	e.lastBarEnd = b.End
}

// GetStatus returns a snapshot that shares nothing with the engine.
func (e *Engine) GetStatus() models.Status {
	return e.status.Load().Clone()
}

func (e *Engine) setState(s models.EngineState) {
	if e.state != s {
		e.log.Debug("state", zap.String("from", string(e.state)), zap.String("to", string(s)))
		e.state = s
		e.dirty = true
	}
}

// publish swaps in a fresh snapshot. Caller holds mu.
func (e *Engine) publish() {
	st := &models.Status{
		Symbol:     e.set.Engine.Symbol,
		State:      e.state,
		Position:   e.pos.Snapshot(),
		Daily:      e.daily,
		Balance:    e.balance,
		KillSwitch: e.killed.Load(),
		KillReason: e.killReason,
		LockReason: e.lockReason,
		Degraded:   e.degraded,
		LastBarAt:  e.lastBarEnd,
		LastReason: e.lastReason,
		Cycles:     e.cycles,
		UpdatedAt:  e.now(),
	}
	e.status.Store(st)
}

func (e *Engine) record() models.EngineRecord {
	return models.EngineRecord{
		Version:    recordVersion,
		Symbol:     e.set.Engine.Symbol,
		State:      e.state,
		Position:   e.pos.Snapshot(),
		Daily:      e.daily,
		KillSwitch: e.killed.Load(),
		KillReason: e.killReason,
		LastBarEnd: e.lastBarEnd,
		SavedAt:    e.now(),
	}
}

// persist writes the record when something changed. Failures mark the
// engine degraded and are otherwise ignored.
func (e *Engine) persist(ctx context.Context) {
	if !e.dirty || e.c.Store == nil {
		return
	}
	if err := e.c.Store.Save(ctx, e.key, e.record()); err != nil {
		if !e.degraded {
			e.log.Warn("state save failed, continuing in memory",
				zap.Error(errors.Wrap(models.ErrPersistence, err.Error())))
		}
		e.degraded = true
		return
	}
	e.dirty = false
}

// lock enters ERROR_LOCK on a fill anomaly. The local position is still
// the venue's, so its exits keep running.
func (e *Engine) lock(ctx context.Context, reason string) {
	e.lockReason = reason
	e.lockExits = true
	e.setState(models.StateErrorLock)
	e.log.Error("error lock", zap.String("reason", reason), zap.Error(models.ErrInvariant))
	e.notifyf(ctx, "⛔ %s: ERROR_LOCK: %s", e.set.Engine.Symbol, reason)
}

// trip engages the kill switch. Caller holds mu.
func (e *Engine) trip(ctx context.Context, reason string) {
	e.killed.Store(true)
	if e.state != models.StateErrorLock {
		e.setState(models.StateStopped)
	}
	if e.killReason != "" {
		return
	}
	e.killReason = reason
	e.dirty = true
	e.log.Warn("kill switch engaged", zap.String("reason", reason))
	e.notifyf(ctx, "🛑 %s: kill switch: %s", e.set.Engine.Symbol, reason)
}

func (e *Engine) notifyf(ctx context.Context, format string, args ...any) {
	if e.c.Notifier != nil {
		e.c.Notifier.SendService(ctx, format, args...)
	}
}

func (e *Engine) markFill(id string) bool {
	if _, ok := e.seenFills[id]; ok {
		return false
	}
	e.seenFills[id] = struct{}{}
	e.fillOrder = append(e.fillOrder, id)
	if len(e.fillOrder) > maxSeenFills {
		delete(e.seenFills, e.fillOrder[0])
		e.fillOrder = e.fillOrder[1:]
	}
	return true
}

func newID() string { return uuid.NewString() }
