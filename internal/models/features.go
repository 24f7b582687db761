package models

import (
	"math"
	"sort"
	"time"
)

// Имена признаков, на которые опираются режим и условия сигнала.
const (
	FeatOpen   = "open"
	FeatHigh   = "high"
	FeatLow    = "low"
	FeatClose  = "close"
	FeatVolume = "volume"

	FeatEMAFast    = "ema_fast"
	FeatEMASlow    = "ema_slow"
	FeatEMATrend   = "ema_trend"
	FeatRSI        = "rsi"
	FeatMACD       = "macd"
	FeatMACDSignal = "macd_signal"
	FeatMACDHist   = "macd_hist"
	FeatATR        = "atr"
	FeatATRMA      = "atr_ma"
	FeatADX        = "adx"
	FeatPlusDI     = "adx_plus_di"
	FeatMinusDI    = "adx_minus_di"
	FeatBB         = "bb"
	FeatBBUpper    = "bb_upper"
	FeatBBLower    = "bb_lower"
	FeatBBWidth    = "bb_width"
	FeatVolumeMA   = "volume_ma"
)

// FeatureSet is the indicator snapshot for one bar. A name that is absent
// has no value yet (warm-up not satisfied).
type FeatureSet struct {
	Symbol string
	At     time.Time
	values map[string]float64
}

func NewFeatureSet(symbol string, at time.Time) FeatureSet {
	return FeatureSet{Symbol: symbol, At: at, values: make(map[string]float64, 24)}
}

// Set stores v under name. Non-finite values are treated as missing.
func (f *FeatureSet) Set(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if f.values == nil {
		f.values = make(map[string]float64, 24)
	}
	f.values[name] = v
}

func (f FeatureSet) Get(name string) (float64, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Has reports whether every name has a value.
func (f FeatureSet) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := f.values[n]; !ok {
			return false
		}
	}
	return true
}

func (f FeatureSet) Len() int { return len(f.values) }

func (f FeatureSet) Names() []string {
	out := make([]string, 0, len(f.values))
	for k := range f.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Values returns a copy of all present values.
func (f FeatureSet) Values() map[string]float64 {
	out := make(map[string]float64, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Equal compares two sets value by value.
func (f FeatureSet) Equal(o FeatureSet) bool {
	if len(f.values) != len(o.values) || !f.At.Equal(o.At) {
		return false
	}
	for k, v := range f.values {
		if ov, ok := o.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
