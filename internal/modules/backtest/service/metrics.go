package service

import (
	"math"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

// maxProfitFactor stands in for an infinite profit factor (no losing trades),
// so it stays comparable and storable.
const maxProfitFactor = 999

type Metrics struct {
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"` // %
	NetProfit      float64 `json:"net_profit"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"` // положительное число
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	Sharpe         float64 `json:"sharpe"` // по сделкам, без годовой нормировки
	Expectancy     float64 `json:"expectancy"`
	AvgR           float64 `json:"avg_r"`
	Fees           float64 `json:"fees"`
	FinalBalance   float64 `json:"final_balance"`
	ReturnPct      float64 `json:"return_pct"`
}

// ComputeMetrics summarises closed trades in order of exit.
func ComputeMetrics(trades []models.Trade, initial float64) Metrics {
	m := Metrics{Trades: len(trades), FinalBalance: initial}
	if len(trades) == 0 {
		return m
	}

	equity, peak := initial, initial
	returns := make([]float64, 0, len(trades))
	var sumR float64
	for _, tr := range trades {
		if equity > 0 {
			returns = append(returns, tr.PnL/equity)
		}
		equity += tr.PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > m.MaxDrawdownPct {
				m.MaxDrawdownPct = dd
			}
		}

		switch {
		case tr.PnL > 0:
			m.Wins++
			m.GrossProfit += tr.PnL
		case tr.PnL < 0:
			m.Losses++
			m.GrossLoss -= tr.PnL
		}
		m.Fees += tr.Fees
		sumR += tr.RMultiple
	}

	m.NetProfit = m.GrossProfit - m.GrossLoss
	m.FinalBalance = initial + m.NetProfit
	if initial > 0 {
		m.ReturnPct = m.NetProfit / initial * 100
	}
	m.WinRate = float64(m.Wins) / float64(m.Trades) * 100
	m.Expectancy = m.NetProfit / float64(m.Trades)
	m.AvgR = sumR / float64(m.Trades)

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = math.Min(m.GrossProfit/m.GrossLoss, maxProfitFactor)
	case m.GrossProfit > 0:
		m.ProfitFactor = maxProfitFactor
	}
	m.Sharpe = sharpe(returns)
	return m
}

func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(n-1))
	if std == 0 {
		return 0
	}
	return mean / std
}

// Objective picks the number a sweep maximises.
func Objective(name string) (func(Metrics) float64, error) {
	switch name {
	case "", "net_profit":
		return func(m Metrics) float64 { return m.NetProfit }, nil
	case "sharpe":
		return func(m Metrics) float64 { return m.Sharpe }, nil
	case "profit_factor":
		return func(m Metrics) float64 { return m.ProfitFactor }, nil
	case "win_rate":
		return func(m Metrics) float64 { return m.WinRate }, nil
	case "expectancy":
		return func(m Metrics) float64 { return m.Expectancy }, nil
	case "return_over_drawdown":
		return func(m Metrics) float64 {
			if m.MaxDrawdownPct == 0 {
				return m.ReturnPct
			}
			return m.ReturnPct / m.MaxDrawdownPct
		}, nil
	}
	return nil, errors.Errorf("unknown objective %q", name)
}
