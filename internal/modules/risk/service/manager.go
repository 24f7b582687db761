package service

import (
	"math"

	"github.com/pkg/errors"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

// Manager sizes and vets trades. It keeps no state between calls.
type Manager struct {
	s models.RiskSettings
}

func NewManager(s models.RiskSettings) *Manager {
	return &Manager{s: s}
}

func (m *Manager) Settings() models.RiskSettings { return m.s }

// Calculate derives stop, target and quantity for a valid signal.
// An empty mode falls back to the configured stop mode.
func (m *Manager) Calculate(sig models.Signal, balance float64, mode models.StopMode) (models.RiskCalculation, error) {
	if !sig.Valid() {
		return models.RiskCalculation{}, errors.Wrap(models.ErrRiskRejected, "signal has no direction")
	}
	entry := sig.Entry
	if entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		return models.RiskCalculation{}, errors.Wrapf(models.ErrRiskRejected, "bad entry %v", entry)
	}
	if balance < 0 || math.IsNaN(balance) {
		return models.RiskCalculation{}, errors.Wrapf(models.ErrRiskRejected, "bad balance %v", balance)
	}
	if mode == "" {
		mode = m.s.StopMode
	}

	var stopDist, targetDist float64
	switch mode {
	case models.StopModeATR:
		if sig.ATR <= 0 {
			return models.RiskCalculation{}, errors.Wrap(models.ErrRiskRejected, "atr mode without atr")
		}
		stopDist = m.s.StopATRMult * sig.ATR
		targetDist = m.s.TargetATRMult * sig.ATR
	case models.StopModePercent:
		stopDist = entry * m.s.StopPct / 100
		targetDist = entry * m.s.TakeProfitPct / 100
	default:
		return models.RiskCalculation{}, errors.Wrapf(models.ErrRiskRejected, "unknown stop mode %q", mode)
	}
	if stopDist <= 0 {
		return models.RiskCalculation{}, errors.Wrap(models.ErrRiskRejected, "stop distance must be positive")
	}

	sign := sig.Direction.Sign()
	long := sig.Direction == models.DirLong

	// округляем "в безопасную сторону": стоп дальше от входа
	stop := entry - sign*stopDist
	if long {
		stop = helper.RoundDownToTick(stop, m.s.TickSize)
	} else {
		stop = helper.RoundUpToTick(stop, m.s.TickSize)
	}
	if stop <= 0 {
		return models.RiskCalculation{}, errors.Wrapf(models.ErrRiskRejected, "stop %v below zero", stop)
	}
	dist := math.Abs(entry - stop)
	if dist <= 0 {
		return models.RiskCalculation{}, errors.Wrap(models.ErrRiskRejected, "zero stop distance after rounding")
	}

	// TP от фактического 1R, если процент не задан
	if targetDist <= 0 {
		targetDist = m.s.TakeProfitRR * dist
	}
	if targetDist <= 0 {
		return models.RiskCalculation{}, errors.Wrap(models.ErrRiskRejected, "target distance must be positive")
	}
	target := entry + sign*targetDist
	if long {
		target = helper.RoundUpToTick(target, m.s.TickSize)
	} else {
		target = helper.RoundDownToTick(target, m.s.TickSize)
	}

	calc := models.RiskCalculation{
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		Mode:         mode,
		Entry:        entry,
		Stop:         stop,
		Target:       target,
		ATR:          sig.ATR,
		Balance:      balance,
		RiskBudget:   balance * m.s.RiskPct / 100,
		StopDistance: dist,
		RiskReward:   math.Abs(target-entry) / dist,
	}

	qty := calc.RiskBudget / dist
	if m.s.MaxPositionSize > 0 && qty > m.s.MaxPositionSize {
		qty = m.s.MaxPositionSize
		calc.Capped = true
	}
	// margin cap: notional can't exceed balance * leverage
	if m.s.Leverage > 0 {
		if maxQty := balance * m.s.Leverage / entry; qty > maxQty {
			qty = maxQty
			calc.Capped = true
		}
	}
	qty = helper.RoundDownToStep(qty, m.s.LotSize)

	calc.Quantity = qty
	calc.Notional = qty * entry
	calc.RiskAmount = qty * dist
	return calc, nil
}

// DailyLimitReached reports whether the day's realised loss hit the limit.
func (m *Manager) DailyLimitReached(d models.DailyRiskState) bool {
	if m.s.DailyLossLimitPct <= 0 || d.StartBalance <= 0 {
		return false
	}
	limit := d.StartBalance * m.s.DailyLossLimitPct / 100
	return -d.RealizedPnL >= limit-1e-9
}

// Validate gates a calculation against the daily state. ok=false carries the reason.
func (m *Manager) Validate(calc models.RiskCalculation, daily models.DailyRiskState) (bool, models.ReasonCode) {
	if m.DailyLimitReached(daily) {
		return false, models.ReasonDailyLossLimit
	}
	if m.s.MaxTradesPerDay > 0 && daily.Trades >= m.s.MaxTradesPerDay {
		return false, models.ReasonMaxTrades
	}
	if m.s.MaxConsecutiveLosses > 0 && daily.ConsecutiveLosses >= m.s.MaxConsecutiveLosses {
		return false, models.ReasonConsecutiveLosses
	}
	if calc.StopDistance <= 0 || calc.RiskAmount > calc.RiskBudget+1e-9 {
		return false, models.ReasonInvalidRisk
	}
	if m.s.MaxPositionSize > 0 && calc.Quantity > m.s.MaxPositionSize+1e-12 {
		return false, models.ReasonInvalidRisk
	}
	if calc.RiskReward+1e-9 < m.s.MinRiskReward {
		return false, models.ReasonRiskReward
	}
	if calc.Quantity <= 0 || calc.Quantity < m.s.MinQty {
		return false, models.ReasonInsufficientBalance
	}
	return true, models.ReasonNone
}
