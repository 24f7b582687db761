package service

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"trade_engine/internal/models"
	features "trade_engine/internal/modules/features/service"
)

// bullish: every default condition passes for long only.
func bullish() map[string]float64 {
	return map[string]float64{
		"open": 99, "close": 100, "volume": 150, "volume_ma": 100,
		"ema_fast": 99.5, "ema_slow": 99, "ema_trend": 97,
		"rsi": 60, "macd_hist": 0.4,
		"adx": 30, "adx_plus_di": 28, "adx_minus_di": 12,
		"atr": 1.33,
	}
}

func fs(vals map[string]float64) models.FeatureSet {
	f := models.NewFeatureSet("BTCUSDT", time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC))
	for k, v := range vals {
		f.Set(k, v)
	}
	return f
}

func newGen(t *testing.T, mut func(s *models.SignalSettings)) *Generator {
	t.Helper()
	s := models.DefaultSettings().Signal
	if mut != nil {
		mut(&s)
	}
	g, err := NewGenerator(s, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerateLong(t *testing.T) {
	g := newGen(t, nil)
	sig := g.Generate(fs(bullish()), models.RegimeLabel{Kind: models.RegimeTrend, Trend: models.DirLong})

	if sig.Direction != models.DirLong || sig.Score != 5 || sig.Total != 5 {
		t.Fatalf("sig = %+v", sig)
	}
	if len(sig.Passed) != 5 || len(sig.Failed) != 0 {
		t.Fatalf("passed=%v failed=%v", sig.Passed, sig.Failed)
	}
	if math.Abs(sig.SuggestedStop-(100-1.5*1.33)) > 1e-9 || math.Abs(sig.SuggestedTarget-(100+3*1.33)) > 1e-9 {
		t.Fatalf("stop=%v target=%v", sig.SuggestedStop, sig.SuggestedTarget)
	}
	if !sig.Valid() {
		t.Fatalf("expected valid signal")
	}
}

func TestGenerateNone(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(v map[string]float64)
		reason models.ReasonCode
	}{
		{"missing input", func(v map[string]float64) { delete(v, "adx") }, models.ReasonInsufficientHistory},
		{
			"below min score",
			func(v map[string]float64) {
				// only trend_alignment and momentum hold for long
				v["rsi"] = 80
				v["adx"] = 10
				v["volume"] = 50
			},
			models.ReasonBelowMinScore,
		},
		{
			"tie",
			func(v map[string]float64) {
				// long: trend_alignment, momentum; short: rsi zone, volume (red candle)
				v["rsi"] = 40
				v["adx"] = 10
				v["open"] = 101
			},
			models.ReasonTie,
		},
	}
	g := newGen(t, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := bullish()
			tc.mutate(v)
			sig := g.Generate(fs(v), models.RegimeLabel{Kind: models.RegimeNeutral})
			if sig.Direction != models.DirNone {
				t.Fatalf("direction = %s, want none", sig.Direction)
			}
			if sig.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q (long=%d short=%d)", sig.Reason, tc.reason, sig.LongScore, sig.ShortScore)
			}
		})
	}
}

func TestRegimeFilter(t *testing.T) {
	g := newGen(t, func(s *models.SignalSettings) {
		s.BlockedRegimes = []models.RegimeKind{models.RegimeVolatile}
		s.CounterTrendFilter = true
	})
	if sig := g.Generate(fs(bullish()), models.RegimeLabel{Kind: models.RegimeVolatile}); sig.Reason != models.ReasonRegimeFilter {
		t.Fatalf("blocked regime: %+v", sig)
	}
	if sig := g.Generate(fs(bullish()), models.RegimeLabel{Kind: models.RegimeStrongTrend, Trend: models.DirShort}); sig.Reason != models.ReasonRegimeFilter {
		t.Fatalf("counter trend: %+v", sig)
	}
	if sig := g.Generate(fs(bullish()), models.RegimeLabel{Kind: models.RegimeRange}); !sig.Valid() {
		t.Fatalf("range should pass: %+v", sig)
	}
}

func TestScoreBoundsAndMinimum(t *testing.T) {
	g := newGen(t, nil)
	rnd := rand.New(rand.NewSource(7))
	names := []string{"open", "close", "volume", "volume_ma", "ema_fast", "ema_slow", "ema_trend",
		"rsi", "macd_hist", "adx", "adx_plus_di", "adx_minus_di"}
	for i := 0; i < 2000; i++ {
		v := make(map[string]float64, len(names))
		for _, n := range names {
			v[n] = rnd.Float64() * 100
		}
		v["macd_hist"] -= 50
		sig := g.Generate(fs(v), models.RegimeLabel{Kind: models.RegimeNeutral})
		if sig.Score < 0 || sig.Score > sig.Total {
			t.Fatalf("score %d outside [0..%d]", sig.Score, sig.Total)
		}
		if sig.Score < sig.MinScore && sig.Direction != models.DirNone {
			t.Fatalf("score %d below min but direction %s", sig.Score, sig.Direction)
		}
		if sig.Direction != models.DirNone && len(sig.Passed) != sig.Score {
			t.Fatalf("passed %v does not match score %d", sig.Passed, sig.Score)
		}
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	cases := []struct {
		name string
		mut  func(s *models.SignalSettings)
		want string
	}{
		{"min score too high", func(s *models.SignalSettings) { s.MinScore = 6 }, "min_score"},
		{"unknown type", func(s *models.SignalSettings) {
			s.Conditions = append(s.Conditions, models.ConditionSpec{ID: "x", Type: "astrology"})
		}, "unknown type"},
		{"bad param", func(s *models.SignalSettings) {
			s.Conditions[1].Params = []models.Param{{Name: "long_min", Value: 120}}
		}, "out of"},
		{"inverted zone", func(s *models.SignalSettings) {
			s.Conditions[1].Params = []models.Param{{Name: "long_min", Value: 80}}
		}, "min must be below max"},
		{"duplicate id", func(s *models.SignalSettings) {
			s.Conditions = append(s.Conditions, s.Conditions[0])
		}, "duplicate"},
		{"empty", func(s *models.SignalSettings) { s.Conditions = nil }, "no conditions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := models.DefaultSettings().Signal
			tc.mut(&s)
			_, err := NewGenerator(s, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

type alwaysLong struct{}

func (alwaysLong) ID() string                              { return "always" }
func (alwaysLong) Inputs() []string                        { return nil }
func (alwaysLong) Evaluate(models.FeatureSet) (bool, bool) { return true, false }

func TestRegisterCondition(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(ConditionKind{Type: "always_long", New: func(id string, _ features.Params) (Condition, error) {
		return alwaysLong{}, nil
	}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(ConditionKind{Type: "momentum", New: func(string, features.Params) (Condition, error) { return nil, nil }}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	g, err := NewGenerator(models.SignalSettings{
		MinScore:   1,
		Conditions: []models.ConditionSpec{{ID: "always", Type: "always_long"}},
	}, reg)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	sig := g.Generate(fs(map[string]float64{"close": 10}), models.RegimeLabel{})
	if sig.Direction != models.DirLong || sig.Score != 1 || sig.Total != 1 {
		t.Fatalf("sig = %+v", sig)
	}
}
