package models

import "time"

type StopMode string

const (
	StopModePercent StopMode = "percent"
	StopModeATR     StopMode = "atr"
)

func (m StopMode) Valid() bool { return m == StopModePercent || m == StopModeATR }

// RiskCalculation: уровни и размер позиции для валидного сигнала.
type RiskCalculation struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Mode      StopMode  `json:"mode"`

	Entry  float64 `json:"entry"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`
	ATR    float64 `json:"atr,omitempty"`

	Quantity     float64 `json:"quantity"`
	Notional     float64 `json:"notional"`
	Balance      float64 `json:"balance"`
	RiskBudget   float64 `json:"risk_budget"`
	RiskAmount   float64 `json:"risk_amount"`
	StopDistance float64 `json:"stop_distance"`
	RiskReward   float64 `json:"risk_reward"`
	Capped       bool    `json:"capped,omitempty"`
}

// DailyRiskState: итоги торгового дня (UTC).
type DailyRiskState struct {
	Day               string  `json:"day"`
	StartBalance      float64 `json:"start_balance"`
	RealizedPnL       float64 `json:"realized_pnl"`
	Trades            int     `json:"trades"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Roll starts a new day when at falls on a later UTC day. balance becomes
// the new start balance. The bool reports whether a rollover happened; an
// earlier day never rolls back.
func (d DailyRiskState) Roll(at time.Time, balance float64) (DailyRiskState, bool) {
	key := DayKey(at)
	if d.Day == key || (d.Day != "" && key < d.Day) {
		return d, false
	}
	return DailyRiskState{Day: key, StartBalance: balance}, true
}

// Record applies one closed trade.
func (d DailyRiskState) Record(pnl float64) DailyRiskState {
	d.RealizedPnL += pnl
	d.Trades++
	if pnl < 0 {
		d.Losses++
		d.ConsecutiveLosses++
	} else {
		d.Wins++
		d.ConsecutiveLosses = 0
	}
	return d
}

// LossPct is the realised daily loss as a percent of the start balance (0 when in profit).
func (d DailyRiskState) LossPct() float64 {
	if d.StartBalance <= 0 || d.RealizedPnL >= 0 {
		return 0
	}
	return -d.RealizedPnL / d.StartBalance * 100
}
