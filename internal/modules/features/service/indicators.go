package service

import (
	"math"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

func periodSchema(def float64) ParamSchema {
	return ParamSchema{Name: "period", Default: def, Min: 1, Max: 1000, Integer: true}
}

func builtinKinds() []Kind {
	return []Kind{
		{
			Type:    "sma",
			Schema:  []ParamSchema{periodSchema(20)},
			Sourced: true,
			New: func(name, src string, p Params) (Indicator, error) {
				return &sma{name: name, src: src, period: p.Int("period")}, nil
			},
		},
		{
			Type:    "ema",
			Schema:  []ParamSchema{periodSchema(20)},
			Sourced: true,
			New: func(name, src string, p Params) (Indicator, error) {
				return &ema{name: name, src: src, period: p.Int("period")}, nil
			},
		},
		{
			Type:    "rsi",
			Schema:  []ParamSchema{periodSchema(14)},
			Sourced: true,
			New: func(name, src string, p Params) (Indicator, error) {
				return &rsi{name: name, src: src, period: p.Int("period")}, nil
			},
		},
		{
			Type: "atr",
			Schema: []ParamSchema{
				periodSchema(14),
				{Name: "ma_period", Default: 20, Min: 1, Max: 1000, Integer: true},
			},
			New: func(name, _ string, p Params) (Indicator, error) {
				return &atr{name: name, period: p.Int("period"), maPeriod: p.Int("ma_period")}, nil
			},
		},
		{
			Type:   "adx",
			Schema: []ParamSchema{periodSchema(14)},
			New: func(name, _ string, p Params) (Indicator, error) {
				return &adx{name: name, period: p.Int("period")}, nil
			},
		},
		{
			Type: "macd",
			Schema: []ParamSchema{
				{Name: "fast", Default: 12, Min: 1, Max: 500, Integer: true},
				{Name: "slow", Default: 26, Min: 2, Max: 1000, Integer: true},
				{Name: "signal", Default: 9, Min: 1, Max: 500, Integer: true},
			},
			Sourced: true,
			New: func(name, src string, p Params) (Indicator, error) {
				m := &macd{name: name, src: src, fast: p.Int("fast"), slow: p.Int("slow"), signal: p.Int("signal")}
				if m.fast >= m.slow {
					return nil, errors.Errorf("fast period %d must be below slow %d", m.fast, m.slow)
				}
				return m, nil
			},
		},
		{
			Type: "bollinger",
			Schema: []ParamSchema{
				periodSchema(20),
				{Name: "mult", Default: 2, Min: 0.1, Max: 10},
			},
			Sourced: true,
			New: func(name, src string, p Params) (Indicator, error) {
				return &bollinger{name: name, src: src, period: p.Int("period"), mult: p["mult"]}, nil
			},
		},
	}
}

type sma struct {
	name, src string
	period    int
}

func (s *sma) Name() string      { return s.name }
func (s *sma) Outputs() []string { return []string{s.name} }
func (s *sma) Lookback() int     { return s.period }

func (s *sma) Compute(w []models.Bar, fs *models.FeatureSet) {
	if v, ok := smaLast(series(w, s.src), s.period); ok {
		fs.Set(s.name, v)
	}
}

func smaLast(vals []float64, period int) (float64, bool) {
	if period <= 0 || len(vals) < period {
		return 0, false
	}
	var sum float64
	for _, v := range vals[len(vals)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

type ema struct {
	name, src string
	period    int
}

func (e *ema) Name() string      { return e.name }
func (e *ema) Outputs() []string { return []string{e.name} }
func (e *ema) Lookback() int     { return e.period }

func (e *ema) Compute(w []models.Bar, fs *models.FeatureSet) {
	if v, ok := emaLast(series(w, e.src), e.period); ok {
		fs.Set(e.name, v)
	}
}

// rsi: RSI Уайлдера.
type rsi struct {
	name, src string
	period    int
}

func (r *rsi) Name() string      { return r.name }
func (r *rsi) Outputs() []string { return []string{r.name} }
func (r *rsi) Lookback() int     { return r.period + 1 }

func (r *rsi) Compute(w []models.Bar, fs *models.FeatureSet) {
	vals := series(w, r.src)
	n := r.period
	if len(vals) < n+1 {
		return
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := vals[i] - vals[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgG, avgL := gain/float64(n), loss/float64(n)
	for i := n + 1; i < len(vals); i++ {
		d := vals[i] - vals[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgG = (avgG*float64(n-1) + g) / float64(n)
		avgL = (avgL*float64(n-1) + l) / float64(n)
	}
	switch {
	case avgL == 0 && avgG == 0:
		fs.Set(r.name, 50)
	case avgL == 0:
		fs.Set(r.name, 100)
	default:
		fs.Set(r.name, 100-100/(1+avgG/avgL))
	}
}

func trueRange(cur, prev models.Bar) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// atrSeries returns Wilder ATR aligned with w; NaN until index period.
func atrSeries(w []models.Bar, period int) []float64 {
	out := make([]float64, len(w))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(w) < period+1 {
		return out
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(w[i], w[i-1])
	}
	v := sum / float64(period)
	out[period] = v
	for i := period + 1; i < len(w); i++ {
		v = (v*float64(period-1) + trueRange(w[i], w[i-1])) / float64(period)
		out[i] = v
	}
	return out
}

// atr публикует ATR и его скользящее среднее (name_ma).
type atr struct {
	name     string
	period   int
	maPeriod int
}

func (a *atr) Name() string      { return a.name }
func (a *atr) Outputs() []string { return []string{a.name, a.name + "_ma"} }
func (a *atr) Lookback() int     { return a.period + a.maPeriod }

func (a *atr) Compute(w []models.Bar, fs *models.FeatureSet) {
	s := atrSeries(w, a.period)
	last := s[len(s)-1]
	if math.IsNaN(last) {
		return
	}
	fs.Set(a.name, last)
	ready := s[a.period:]
	if v, ok := smaLast(ready, a.maPeriod); ok {
		fs.Set(a.name+"_ma", v)
	}
}

// adx: ADX Уайлдера с +DI/-DI.
type adx struct {
	name   string
	period int
}

func (a *adx) Name() string { return a.name }
func (a *adx) Outputs() []string {
	return []string{a.name, a.name + "_plus_di", a.name + "_minus_di"}
}
func (a *adx) Lookback() int { return 2 * a.period }

func (a *adx) Compute(w []models.Bar, fs *models.FeatureSet) {
	n := a.period
	if len(w) < 2*n {
		return
	}
	nf := float64(n)
	var smTR, smP, smM float64
	var plusDI, minusDI, adxV float64
	var dxSum float64
	dxCount := 0
	for i := 1; i < len(w); i++ {
		upMove := w[i].High - w[i-1].High
		downMove := w[i-1].Low - w[i].Low
		pdm, mdm := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}
		tr := trueRange(w[i], w[i-1])
		if i <= n {
			smTR += tr
			smP += pdm
			smM += mdm
			if i < n {
				continue
			}
		} else {
			smTR = smTR - smTR/nf + tr
			smP = smP - smP/nf + pdm
			smM = smM - smM/nf + mdm
		}
		plusDI, minusDI = 0, 0
		if smTR > 0 {
			plusDI = 100 * smP / smTR
			minusDI = 100 * smM / smTR
		}
		dx := 0.0
		if s := plusDI + minusDI; s > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / s
		}
		switch {
		case dxCount < n:
			dxSum += dx
			dxCount++
			if dxCount == n {
				adxV = dxSum / nf
			}
		default:
			adxV = (adxV*(nf-1) + dx) / nf
		}
	}
	if dxCount < n {
		return
	}
	fs.Set(a.name, adxV)
	fs.Set(a.name+"_plus_di", plusDI)
	fs.Set(a.name+"_minus_di", minusDI)
}

// macd публикует линию, сигнальную и гистограмму.
type macd struct {
	name, src          string
	fast, slow, signal int
}

func (m *macd) Name() string { return m.name }
func (m *macd) Outputs() []string {
	return []string{m.name, m.name + "_signal", m.name + "_hist"}
}
func (m *macd) Lookback() int { return m.slow + m.signal - 1 }

func (m *macd) Compute(w []models.Bar, fs *models.FeatureSet) {
	f, s, sig := newEMA(m.fast), newEMA(m.slow), newEMA(m.signal)
	var line float64
	for _, v := range series(w, m.src) {
		f.Update(v)
		s.Update(v)
		if f.Ready() && s.Ready() {
			line = f.Value() - s.Value()
			sig.Update(line)
		}
	}
	if !sig.Ready() {
		return
	}
	fs.Set(m.name, line)
	fs.Set(m.name+"_signal", sig.Value())
	fs.Set(m.name+"_hist", line-sig.Value())
}

type bollinger struct {
	name, src string
	period    int
	mult      float64
}

func (b *bollinger) Name() string { return b.name }
func (b *bollinger) Outputs() []string {
	return []string{b.name, b.name + "_upper", b.name + "_lower", b.name + "_width"}
}
func (b *bollinger) Lookback() int { return b.period }

func (b *bollinger) Compute(w []models.Bar, fs *models.FeatureSet) {
	vals := series(w, b.src)
	mid, ok := smaLast(vals, b.period)
	if !ok {
		return
	}
	var sq float64
	for _, v := range vals[len(vals)-b.period:] {
		sq += (v - mid) * (v - mid)
	}
	sd := math.Sqrt(sq / float64(b.period))
	up, lo := mid+b.mult*sd, mid-b.mult*sd
	fs.Set(b.name, mid)
	fs.Set(b.name+"_upper", up)
	fs.Set(b.name+"_lower", lo)
	if mid != 0 {
		fs.Set(b.name+"_width", (up-lo)/mid)
	}
}
