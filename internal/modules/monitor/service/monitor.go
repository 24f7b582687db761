package service

import (
	"fmt"
	"math"
	"time"

	"trade_engine/internal/models"
)

// Monitor enforces stop, target, max-hold and trailing for one position.
// It holds no position state: everything lives in the *Position it is given,
// so a position restored from storage resumes exactly where it stopped.
type Monitor struct {
	s models.TrailingSettings
}

func NewMonitor(s models.TrailingSettings) *Monitor {
	return &Monitor{s: s}
}

// Open prepares a freshly filled position.
func (m *Monitor) Open(p *models.Position) {
	p.InitialStop = p.StopLoss
	p.HighestPrice = p.EntryPrice
	p.LowestPrice = p.EntryPrice
	p.LastPrice = p.EntryPrice
	p.LastUpdate = p.EntryTime
	p.TrailingActive = false
	p.State = models.PositionOpen
	if m.s.Enabled {
		p.State = models.PositionTrailingInactive
	}
}

// Update applies one price. Must be called for every tick the feed delivers.
func (m *Monitor) Update(p *models.Position, t models.Tick) models.ExitResult {
	if p == nil || p.State == models.PositionClosed {
		return models.ExitResult{}
	}
	price := t.Price
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.ExitResult{}
	}
	long := p.Side == models.DirLong

	// 1) экстремумы и PnL
	if price > p.HighestPrice || p.HighestPrice == 0 {
		p.HighestPrice = price
	}
	if price < p.LowestPrice || p.LowestPrice == 0 {
		p.LowestPrice = price
	}
	p.LastPrice = price
	if t.At.After(p.LastUpdate) {
		p.LastUpdate = t.At
	}
	p.UnrealizedPnL = p.PnL(price)

	// 2) немедленные выходы
	if p.StopLoss > 0 && ((long && price <= p.StopLoss) || (!long && price >= p.StopLoss)) {
		kind := models.ExitStopLoss
		reason := "stop loss hit"
		if p.StopLoss != p.InitialStop {
			reason = "trailed stop hit"
			if m.s.DistinctExitKind {
				kind = models.ExitTrailingStop
			}
		}
		return exit(kind, p.StopLoss, t, reason)
	}
	if p.TakeProfit > 0 && ((long && price >= p.TakeProfit) || (!long && price <= p.TakeProfit)) {
		return exit(models.ExitTakeProfit, p.TakeProfit, t, "take profit hit")
	}
	if m.s.MaxHold > 0 && !p.EntryTime.IsZero() && t.At.Sub(p.EntryTime) >= m.s.MaxHold {
		return exit(models.ExitTime, price, t, fmt.Sprintf("held longer than %s", m.s.MaxHold))
	}

	// 3) трейлинг
	if m.s.Enabled {
		m.trail(p, price)
	}
	return models.ExitResult{}
}

func (m *Monitor) trail(p *models.Position, price float64) {
	if !p.TrailingActive && p.ProfitPct(price) >= m.s.ActivationPct {
		p.TrailingActive = true
		p.State = models.PositionTrailingActive
	}
	if !p.TrailingActive {
		return
	}
	long := p.Side == models.DirLong
	extreme := p.LowestPrice
	if long {
		extreme = p.HighestPrice
	}
	dist := m.distance(p, extreme)
	if dist <= 0 {
		return
	}
	if long {
		if cand := extreme - dist; cand > p.StopLoss {
			p.StopLoss = cand
		}
		return
	}
	if cand := extreme + dist; p.StopLoss <= 0 || cand < p.StopLoss {
		p.StopLoss = cand
	}
}

func (m *Monitor) distance(p *models.Position, extreme float64) float64 {
	if m.s.Mode == models.StopModeATR && p.ATR > 0 && m.s.ATRMult > 0 {
		return m.s.ATRMult * p.ATR
	}
	return extreme * m.s.DistancePct / 100
}

// ManualExit builds an exit that is not triggered by a level: force exit,
// shutdown, reversal, daily limit.
func (m *Monitor) ManualExit(p *models.Position, price float64, at time.Time, kind models.ExitKind, reason string) models.ExitResult {
	if p == nil || p.State == models.PositionClosed {
		return models.ExitResult{}
	}
	if price <= 0 {
		price = p.LastPrice
	}
	return models.ExitResult{ShouldExit: true, Kind: kind, TriggerPrice: price, Price: price, At: at, Reason: reason}
}

func exit(kind models.ExitKind, level float64, t models.Tick, reason string) models.ExitResult {
	return models.ExitResult{
		ShouldExit:   true,
		Kind:         kind,
		TriggerPrice: level,
		Price:        t.Price,
		At:           t.At,
		Intrabar:     t.Intrabar,
		Reason:       reason,
	}
}
