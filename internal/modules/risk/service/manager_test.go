package service

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

func longSignal(entry, atr float64) models.Signal {
	return models.Signal{Symbol: "BTCUSDT", Direction: models.DirLong, Score: 4, Total: 5, MinScore: 3, Entry: entry, ATR: atr}
}

func TestCalculateATRLong(t *testing.T) {
	m := NewManager(models.DefaultSettings().Risk)
	calc, err := m.Calculate(longSignal(100, 1.33), 10000, models.StopModeATR)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if math.Abs(calc.Stop-98.005) > 1e-9 {
		t.Fatalf("stop = %v want 98.005", calc.Stop)
	}
	if math.Abs(calc.Target-103.99) > 1e-9 {
		t.Fatalf("target = %v want 103.99", calc.Target)
	}
	if math.Abs(calc.RiskBudget-100) > 1e-9 {
		t.Fatalf("budget = %v", calc.RiskBudget)
	}
	// 100 / 1.995 without lot rounding
	if math.Abs(calc.Quantity-100/1.995) > 1e-9 {
		t.Fatalf("qty = %v", calc.Quantity)
	}
	if math.Abs(calc.RiskReward-2) > 1e-9 {
		t.Fatalf("rr = %v", calc.RiskReward)
	}
	if ok, reason := m.Validate(calc, models.DailyRiskState{StartBalance: 10000}); !ok {
		t.Fatalf("rejected: %s", reason)
	}
}

func TestCalculatePercentShort(t *testing.T) {
	s := models.DefaultSettings().Risk
	s.StopPct = 2
	s.TakeProfitPct = 0
	s.TakeProfitRR = 3
	s.TickSize = 0.5
	s.LotSize = 0.01
	m := NewManager(s)

	sig := longSignal(201.3, 0)
	sig.Direction = models.DirShort
	calc, err := m.Calculate(sig, 5000, models.StopModePercent)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// raw stop 205.326 rounds up to 205.5, target 201.3 - 3*4.2 = 188.7 rounds down to 188.5
	if calc.Stop != 205.5 {
		t.Fatalf("stop = %v", calc.Stop)
	}
	if math.Abs(calc.Target-188.5) > 1e-9 {
		t.Fatalf("target = %v", calc.Target)
	}
	if calc.Stop <= calc.Entry || calc.Target >= calc.Entry {
		t.Fatalf("short levels on the wrong side: %+v", calc)
	}
	if math.Abs(calc.Quantity-11.9) > 1e-9 { // 50 / 4.2 = 11.904 -> 11.90
		t.Fatalf("qty = %v", calc.Quantity)
	}
}

func TestCalculateCaps(t *testing.T) {
	s := models.DefaultSettings().Risk
	s.MaxPositionSize = 10
	m := NewManager(s)
	calc, err := m.Calculate(longSignal(100, 0.01), 10000, models.StopModeATR)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !calc.Capped || calc.Quantity != 10 {
		t.Fatalf("qty = %v capped=%v", calc.Quantity, calc.Capped)
	}

	s.MaxPositionSize = 0
	s.Leverage = 2
	m = NewManager(s)
	calc, err = m.Calculate(longSignal(100, 0.01), 10000, models.StopModeATR)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !calc.Capped || math.Abs(calc.Notional-20000) > 1e-6 {
		t.Fatalf("notional = %v capped=%v", calc.Notional, calc.Capped)
	}
}

func TestCalculateErrors(t *testing.T) {
	m := NewManager(models.DefaultSettings().Risk)
	cases := []struct {
		name string
		sig  models.Signal
		mode models.StopMode
	}{
		{"no direction", models.Signal{Entry: 100, ATR: 1}, models.StopModeATR},
		{"zero entry", longSignal(0, 1), models.StopModeATR},
		{"atr missing", longSignal(100, 0), models.StopModeATR},
		{"unknown mode", longSignal(100, 1), "fixed"},
		{"stop below zero", longSignal(1, 10), models.StopModeATR},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Calculate(tc.sig, 1000, tc.mode)
			if !errors.Is(err, models.ErrRiskRejected) {
				t.Fatalf("err = %v, want ErrRiskRejected", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s := models.DefaultSettings().Risk
	s.MinQty = 0.01
	s.MaxTradesPerDay = 5
	s.MaxConsecutiveLosses = 3
	m := NewManager(s)

	good, err := m.Calculate(longSignal(100, 1.33), 10000, models.StopModeATR)
	if err != nil {
		t.Fatal(err)
	}
	lowRR := good
	lowRR.RiskReward = 1.2
	tiny := good
	tiny.Quantity = 0.001
	tiny.RiskAmount = tiny.Quantity * tiny.StopDistance
	oversized := good
	oversized.RiskAmount = oversized.RiskBudget * 2

	day := models.DailyRiskState{Day: "2024-01-01", StartBalance: 10000}
	cases := []struct {
		name   string
		calc   models.RiskCalculation
		daily  models.DailyRiskState
		ok     bool
		reason models.ReasonCode
	}{
		{"ok", good, day, true, models.ReasonNone},
		{"loss under limit", good, models.DailyRiskState{StartBalance: 10000, RealizedPnL: -299}, true, models.ReasonNone},
		{"daily loss limit", good, models.DailyRiskState{StartBalance: 10000, RealizedPnL: -300}, false, models.ReasonDailyLossLimit},
		{"trade cap", good, models.DailyRiskState{StartBalance: 10000, Trades: 5}, false, models.ReasonMaxTrades},
		{"loss streak", good, models.DailyRiskState{StartBalance: 10000, ConsecutiveLosses: 3}, false, models.ReasonConsecutiveLosses},
		{"risk reward", lowRR, day, false, models.ReasonRiskReward},
		{"insufficient balance", tiny, day, false, models.ReasonInsufficientBalance},
		{"risk over budget", oversized, day, false, models.ReasonInvalidRisk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := m.Validate(tc.calc, tc.daily)
			if ok != tc.ok || reason != tc.reason {
				t.Fatalf("got (%v, %q) want (%v, %q)", ok, reason, tc.ok, tc.reason)
			}
		})
	}
}

// Two losses totalling 320 on 10,000 with a 3% limit block the third signal.
func TestDailyLossScenario(t *testing.T) {
	m := NewManager(models.DefaultSettings().Risk)
	day, _ := models.DailyRiskState{}.Roll(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 10000)
	day = day.Record(-150)
	day = day.Record(-170)
	if math.Abs(day.LossPct()-3.2) > 1e-9 {
		t.Fatalf("loss pct = %v", day.LossPct())
	}

	calc, err := m.Calculate(longSignal(100, 1.33), 9680, models.StopModeATR)
	if err != nil {
		t.Fatal(err)
	}
	ok, reason := m.Validate(calc, day)
	if ok || reason != models.ReasonDailyLossLimit || string(reason) != "daily loss limit reached" {
		t.Fatalf("got (%v, %q)", ok, reason)
	}
}

func TestSizingInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		s := models.DefaultSettings().Risk
		s.RiskPct = 0.1 + rnd.Float64()*4
		s.LotSize = []float64{0, 0.001, 0.01, 1}[rnd.Intn(4)]
		s.TickSize = []float64{0, 0.01, 0.5}[rnd.Intn(3)]
		s.StopATRMult = 0.5 + rnd.Float64()*3
		if rnd.Intn(3) == 0 {
			s.MaxPositionSize = rnd.Float64() * 50
		}
		m := NewManager(s)

		entry := 10 + rnd.Float64()*50000
		sig := longSignal(entry, entry*(0.001+rnd.Float64()*0.02))
		if rnd.Intn(2) == 0 {
			sig.Direction = models.DirShort
		}
		balance := 100 + rnd.Float64()*100000

		calc, err := m.Calculate(sig, balance, models.StopModeATR)
		if err != nil {
			continue
		}
		budget := balance * s.RiskPct / 100
		if calc.RiskAmount > budget*(1+1e-9) {
			t.Fatalf("risk %v exceeds budget %v (%+v)", calc.RiskAmount, budget, calc)
		}
		if s.MaxPositionSize > 0 && calc.Quantity > s.MaxPositionSize*(1+1e-12) {
			t.Fatalf("qty %v above max %v", calc.Quantity, s.MaxPositionSize)
		}
		got := calc.Quantity * math.Abs(calc.Entry-calc.Stop)
		if math.Abs(got-calc.RiskAmount) > 1e-6*math.Max(1, calc.RiskAmount) {
			t.Fatalf("qty*dist %v != risk amount %v", got, calc.RiskAmount)
		}
		// without caps, lot rounding is the only thing between budget and risk
		if !calc.Capped && budget-calc.RiskAmount > s.LotSize*calc.StopDistance+1e-6 {
			t.Fatalf("risk %v too far below budget %v", calc.RiskAmount, budget)
		}
		if (sig.Direction == models.DirLong) != (calc.Stop < calc.Entry) {
			t.Fatalf("stop on wrong side: %+v", calc)
		}
	}
}
