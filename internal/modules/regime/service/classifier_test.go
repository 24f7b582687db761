package service

import (
	"testing"
	"time"

	"trade_engine/internal/models"
)

func fset(vals map[string]float64) models.FeatureSet {
	fs := models.NewFeatureSet("BTCUSDT", time.Unix(0, 0))
	for k, v := range vals {
		fs.Set(k, v)
	}
	return fs
}

func TestClassifyPriority(t *testing.T) {
	c := NewClassifier(models.DefaultSettings().Regime) // 40 / 25 / 20 / 1.5

	cases := []struct {
		name  string
		vals  map[string]float64
		kind  models.RegimeKind
		trend models.Direction
	}{
		{
			name: "strong trend up",
			vals: map[string]float64{"adx": 45, "ema_fast": 103, "ema_slow": 102, "ema_trend": 100, "atr": 5, "atr_ma": 1},
			kind: models.RegimeStrongTrend, trend: models.DirLong,
		},
		{
			name: "strong adx but not stacked falls to trend",
			vals: map[string]float64{"adx": 45, "ema_fast": 101, "ema_slow": 100, "ema_trend": 102},
			kind: models.RegimeTrend, trend: models.DirLong,
		},
		{
			name: "trend down beats volatile",
			vals: map[string]float64{"adx": 30, "ema_fast": 99, "ema_slow": 100, "atr": 5, "atr_ma": 1},
			kind: models.RegimeTrend, trend: models.DirShort,
		},
		{
			name: "volatile beats range",
			vals: map[string]float64{"adx": 15, "atr": 2, "atr_ma": 1},
			kind: models.RegimeVolatile, trend: models.DirNone,
		},
		{
			name: "range",
			vals: map[string]float64{"adx": 15, "atr": 1, "atr_ma": 1},
			kind: models.RegimeRange,
		},
		{
			name: "between range and trend is neutral",
			vals: map[string]float64{"adx": 22, "atr": 1, "atr_ma": 1},
			kind: models.RegimeNeutral,
		},
		{
			name: "missing inputs is neutral",
			vals: map[string]float64{"close": 100},
			kind: models.RegimeNeutral,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lbl := c.Classify(fset(tc.vals))
			if lbl.Kind != tc.kind {
				t.Fatalf("kind = %s (rule %s), want %s", lbl.Kind, lbl.Rule, tc.kind)
			}
			if tc.trend != "" && lbl.Trend != tc.trend {
				t.Fatalf("trend = %s, want %s", lbl.Trend, tc.trend)
			}
		})
	}
}

func TestClassifyRecordsThresholds(t *testing.T) {
	c := NewClassifier(models.RegimeSettings{StrongADX: 40, TrendADX: 25, RangeADX: 20, VolatilityMultiple: 1.5})
	lbl := c.Classify(fset(map[string]float64{"adx": 10, "atr": 3, "atr_ma": 1.5}))
	if lbl.Kind != models.RegimeVolatile {
		t.Fatalf("kind = %s", lbl.Kind)
	}
	if lbl.ATR != 3 || lbl.ATRMA != 1.5 || lbl.Threshold != 2.25 {
		t.Fatalf("label = %+v", lbl)
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := NewClassifier(models.DefaultSettings().Regime)
	fs := fset(map[string]float64{"adx": 30, "ema_fast": 2, "ema_slow": 1})
	a := c.Classify(fs)
	b := c.Classify(fs)
	if a != b {
		t.Fatalf("labels differ: %+v vs %+v", a, b)
	}
}
