package service

import (
	"math"
	"strings"
	"testing"
	"time"

	"trade_engine/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func makeBars(n int, price func(i int) float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		c := price(i)
		o := c - 0.2
		if i > 0 {
			o = out[i-1].Close
		}
		out[i] = models.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: "15m",
			Start:     t0.Add(time.Duration(i) * 15 * time.Minute),
			End:       t0.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      o,
			High:      math.Max(o, c) + 0.5,
			Low:       math.Min(o, c) - 0.5,
			Close:     c,
			Volume:    100 + float64(i%7)*10,
		}
	}
	return out
}

func wave(i int) float64 { return 100 + float64(i)*0.3 + 2*math.Sin(float64(i)/5) }

func TestComputeWarmupLeavesFeaturesEmpty(t *testing.T) {
	eng, err := NewEngine(models.DefaultIndicatorSpecs(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	fs := eng.Compute(makeBars(10, wave))

	if _, ok := fs.Get(models.FeatEMAFast); !ok {
		t.Fatalf("ema_fast(9) should be ready after 10 bars")
	}
	for _, name := range []string{models.FeatEMASlow, models.FeatRSI, models.FeatADX, models.FeatMACD, models.FeatATRMA} {
		if _, ok := fs.Get(name); ok {
			t.Errorf("%s must stay empty during warm-up", name)
		}
	}
	if v, _ := fs.Get(models.FeatClose); v != wave(9) {
		t.Fatalf("close feature = %v want %v", v, wave(9))
	}
}

func TestComputeFullWindow(t *testing.T) {
	eng, err := NewEngine(models.DefaultIndicatorSpecs(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if eng.Lookback() != 50 {
		t.Fatalf("lookback = %d want 50 (ema_trend)", eng.Lookback())
	}
	fs := eng.Compute(makeBars(200, wave))
	for _, name := range []string{
		models.FeatEMAFast, models.FeatEMASlow, models.FeatEMATrend, models.FeatRSI,
		models.FeatMACD, models.FeatMACDSignal, models.FeatMACDHist, models.FeatATR, models.FeatATRMA,
		models.FeatADX, models.FeatPlusDI, models.FeatMinusDI, models.FeatBBUpper, models.FeatBBLower,
		models.FeatBBWidth, models.FeatVolumeMA,
	} {
		if _, ok := fs.Get(name); !ok {
			t.Errorf("%s missing after 200 bars", name)
		}
	}
	rsi, _ := fs.Get(models.FeatRSI)
	if rsi < 0 || rsi > 100 {
		t.Fatalf("rsi out of range: %v", rsi)
	}
	adx, _ := fs.Get(models.FeatADX)
	if adx < 0 || adx > 100 {
		t.Fatalf("adx out of range: %v", adx)
	}
	up, _ := fs.Get(models.FeatBBUpper)
	lo, _ := fs.Get(models.FeatBBLower)
	if up < lo {
		t.Fatalf("bollinger upper %v below lower %v", up, lo)
	}
}

func TestATRLookbackCoversAverage(t *testing.T) {
	specs := []models.IndicatorSpec{{Name: models.FeatATR, Type: "atr", Params: []models.Param{
		{Name: "period", Value: 14}, {Name: "ma_period", Value: 20},
	}}}
	eng, err := NewEngine(specs, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if eng.Lookback() != 34 {
		t.Fatalf("lookback = %d want 34", eng.Lookback())
	}
	if _, ok := eng.Compute(makeBars(33, wave)).Get(models.FeatATRMA); ok {
		t.Fatalf("atr_ma published with 33 bars")
	}
	fs := eng.Compute(makeBars(34, wave))
	for _, name := range []string{models.FeatATR, models.FeatATRMA} {
		if _, ok := fs.Get(name); !ok {
			t.Fatalf("%s missing at lookback", name)
		}
	}
}

func TestKnownValues(t *testing.T) {
	flat := makeBars(60, func(int) float64 { return 50 })
	for i := range flat {
		flat[i].Open, flat[i].High, flat[i].Low = 50, 51, 49
	}
	eng, err := NewEngine(models.DefaultIndicatorSpecs(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	fs := eng.Compute(flat)

	if v, _ := fs.Get(models.FeatEMATrend); math.Abs(v-50) > 1e-9 {
		t.Errorf("ema of a constant = %v want 50", v)
	}
	if v, _ := fs.Get(models.FeatATR); math.Abs(v-2) > 1e-9 {
		t.Errorf("atr of constant 2-wide bars = %v want 2", v)
	}
	if v, _ := fs.Get(models.FeatRSI); v != 50 {
		t.Errorf("rsi of a flat series = %v want 50", v)
	}
	if v, _ := fs.Get(models.FeatMACDHist); math.Abs(v) > 1e-9 {
		t.Errorf("macd hist of a constant = %v want 0", v)
	}

	rising := makeBars(40, func(i int) float64 { return 100 + float64(i) })
	fs = eng.Compute(rising)
	if v, _ := fs.Get(models.FeatRSI); v != 100 {
		t.Errorf("rsi of a strictly rising series = %v want 100", v)
	}
	plus, _ := fs.Get(models.FeatPlusDI)
	minus, _ := fs.Get(models.FeatMinusDI)
	if plus <= minus {
		t.Errorf("+DI %v should exceed -DI %v in an uptrend", plus, minus)
	}
	wantVol := 0.0
	for _, b := range rising[20:] {
		wantVol += b.Volume
	}
	if v, _ := fs.Get(models.FeatVolumeMA); math.Abs(v-wantVol/20) > 1e-9 {
		t.Errorf("volume_ma = %v want %v", v, wantVol/20)
	}
}

func TestComputeIsDeterministicAndLeakFree(t *testing.T) {
	eng, err := NewEngine(models.DefaultIndicatorSpecs(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	bars := makeBars(150, wave)

	a := eng.Compute(bars[:120])
	b := eng.Compute(append([]models.Bar(nil), bars[:120]...))
	if !a.Equal(b) {
		t.Fatalf("same window gave different features")
	}

	// Later bars must not change what was computed for bar 119.
	mutated := append([]models.Bar(nil), bars...)
	for i := 120; i < len(mutated); i++ {
		mutated[i].Close *= 3
	}
	c := eng.Compute(mutated[:120])
	if !a.Equal(c) {
		t.Fatalf("features for bar 119 depend on later bars")
	}
}

func TestRegistryValidation(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		name string
		spec models.IndicatorSpec
		want string
	}{
		{"unknown type", models.IndicatorSpec{Name: "x", Type: "vwap"}, "unknown type"},
		{"no name", models.IndicatorSpec{Type: "ema"}, "no name"},
		{"unknown param", models.IndicatorSpec{Name: "x", Type: "ema", Params: []models.Param{{Name: "length", Value: 3}}}, "unknown param"},
		{"out of bounds", models.IndicatorSpec{Name: "x", Type: "ema", Params: []models.Param{{Name: "period", Value: 0}}}, "out of"},
		{"not integer", models.IndicatorSpec{Name: "x", Type: "rsi", Params: []models.Param{{Name: "period", Value: 14.5}}}, "integer"},
		{"bad source", models.IndicatorSpec{Name: "x", Type: "sma", Source: "vwap"}, "unknown source"},
		{"unsourced kind", models.IndicatorSpec{Name: "x", Type: "atr", Source: "volume"}, "does not take a source"},
		{"inverted range", models.IndicatorSpec{Name: "x", Type: "ema", Params: []models.Param{{Name: "period", Value: 9, Range: &models.ParamRange{Min: 20, Max: 5, Step: 1}}}}, "bad range"},
		{"macd fast>=slow", models.IndicatorSpec{Name: "x", Type: "macd", Params: []models.Param{{Name: "fast", Value: 30}, {Name: "slow", Value: 26}}}, "below slow"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Build(tc.spec)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDuplicateOutputsRejected(t *testing.T) {
	specs := []models.IndicatorSpec{
		{Name: "atr", Type: "atr"},
		{Name: "atr_ma", Type: "sma"},
	}
	if _, err := NewEngine(specs, nil); err == nil {
		t.Fatalf("expected duplicate feature error")
	}
}

type lastRange struct{ name string }

func (l lastRange) Name() string      { return l.name }
func (l lastRange) Outputs() []string { return []string{l.name} }
func (l lastRange) Lookback() int     { return 1 }
func (l lastRange) Compute(w []models.Bar, fs *models.FeatureSet) {
	b := w[len(w)-1]
	fs.Set(l.name, b.High-b.Low)
}

func TestRegisterCustomKind(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Kind{
		Type: "range",
		New:  func(name, _ string, _ Params) (Indicator, error) { return lastRange{name: name}, nil },
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(Kind{Type: "range", New: func(string, string, Params) (Indicator, error) { return nil, nil }}); err == nil {
		t.Fatalf("duplicate type must be rejected")
	}
	eng, err := NewEngine([]models.IndicatorSpec{{Name: "bar_range", Type: "range"}}, reg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	fs := eng.Compute(makeBars(3, wave))
	if _, ok := fs.Get("bar_range"); !ok {
		t.Fatalf("custom indicator output missing")
	}
}

func TestLoadSpecs(t *testing.T) {
	src := `
min_score: 4
indicators:
  - name: ema_fast
    type: ema
    params:
      - name: period
        value: 8
        range: {min: 5, max: 13, step: 1}
  - name: volume_ma
    type: sma
    source: volume
    params:
      - {name: period, value: 30}
conditions:
  - id: osc
    type: oscillator_zone
    params:
      - {name: long_min, value: 50}
`
	f, err := LoadSpecs(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadSpecs: %v", err)
	}
	if f.MinScore != 4 || len(f.Indicators) != 2 || len(f.Conditions) != 1 {
		t.Fatalf("unexpected spec file: %+v", f)
	}
	p := f.Indicators[0].Params[0]
	if p.Range == nil || len(p.Range.Values()) != 9 {
		t.Fatalf("range not decoded: %+v", p)
	}
	if _, err := NewEngine(f.Indicators, nil); err != nil {
		t.Fatalf("loaded specs do not build: %v", err)
	}

	if _, err := LoadSpecs(strings.NewReader("indicators: [{name: a, type: ema, colour: red}]")); err == nil {
		t.Fatalf("strict decoding should reject unknown keys")
	}
}
