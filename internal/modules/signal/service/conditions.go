package service

import (
	"github.com/pkg/errors"

	"trade_engine/internal/models"
	features "trade_engine/internal/modules/features/service"
)

// Condition is one boolean check evaluated for both directions.
type Condition interface {
	ID() string
	// Inputs are the feature names the condition reads; any missing one means
	// the condition cannot be evaluated yet.
	Inputs() []string
	Evaluate(fs models.FeatureSet) (long, short bool)
}

func builtinConditions() []ConditionKind {
	return []ConditionKind{
		{
			Type: "trend_alignment",
			New: func(id string, _ features.Params) (Condition, error) {
				return trendAlignment{id: id}, nil
			},
		},
		{
			Type: "oscillator_zone",
			Schema: []features.ParamSchema{
				{Name: "long_min", Default: 45, Min: 0, Max: 100},
				{Name: "long_max", Default: 70, Min: 0, Max: 100},
				{Name: "short_min", Default: 30, Min: 0, Max: 100},
				{Name: "short_max", Default: 55, Min: 0, Max: 100},
			},
			New: func(id string, p features.Params) (Condition, error) {
				if p["long_min"] >= p["long_max"] || p["short_min"] >= p["short_max"] {
					return nil, errors.New("zone min must be below max")
				}
				return oscillatorZone{id: id, longMin: p["long_min"], longMax: p["long_max"],
					shortMin: p["short_min"], shortMax: p["short_max"]}, nil
			},
		},
		{
			Type:   "momentum",
			Schema: []features.ParamSchema{{Name: "threshold", Default: 0, Min: 0, Max: 1e9}},
			New: func(id string, p features.Params) (Condition, error) {
				return momentum{id: id, threshold: p["threshold"]}, nil
			},
		},
		{
			Type:   "trend_strength",
			Schema: []features.ParamSchema{{Name: "min_adx", Default: 20, Min: 0, Max: 100}},
			New: func(id string, p features.Params) (Condition, error) {
				return trendStrength{id: id, minADX: p["min_adx"]}, nil
			},
		},
		{
			Type:   "volume_confirmation",
			Schema: []features.ParamSchema{{Name: "multiple", Default: 1, Min: 0, Max: 100}},
			New: func(id string, p features.Params) (Condition, error) {
				return volumeConfirmation{id: id, multiple: p["multiple"]}, nil
			},
		},
	}
}

// close above the trend EMA and fast EMA above slow (mirrored for short).
type trendAlignment struct{ id string }

func (c trendAlignment) ID() string { return c.id }
func (c trendAlignment) Inputs() []string {
	return []string{models.FeatClose, models.FeatEMAFast, models.FeatEMASlow, models.FeatEMATrend}
}
func (c trendAlignment) Evaluate(fs models.FeatureSet) (bool, bool) {
	cl, _ := fs.Get(models.FeatClose)
	f, _ := fs.Get(models.FeatEMAFast)
	s, _ := fs.Get(models.FeatEMASlow)
	t, _ := fs.Get(models.FeatEMATrend)
	return cl > t && f > s, cl < t && f < s
}

type oscillatorZone struct {
	id                 string
	longMin, longMax   float64
	shortMin, shortMax float64
}

func (c oscillatorZone) ID() string       { return c.id }
func (c oscillatorZone) Inputs() []string { return []string{models.FeatRSI} }
func (c oscillatorZone) Evaluate(fs models.FeatureSet) (bool, bool) {
	r, _ := fs.Get(models.FeatRSI)
	return r >= c.longMin && r <= c.longMax, r >= c.shortMin && r <= c.shortMax
}

// polarity of the MACD histogram
type momentum struct {
	id        string
	threshold float64
}

func (c momentum) ID() string       { return c.id }
func (c momentum) Inputs() []string { return []string{models.FeatMACDHist} }
func (c momentum) Evaluate(fs models.FeatureSet) (bool, bool) {
	h, _ := fs.Get(models.FeatMACDHist)
	return h > c.threshold, h < -c.threshold
}

type trendStrength struct {
	id     string
	minADX float64
}

func (c trendStrength) ID() string { return c.id }
func (c trendStrength) Inputs() []string {
	return []string{models.FeatADX, models.FeatPlusDI, models.FeatMinusDI}
}
func (c trendStrength) Evaluate(fs models.FeatureSet) (bool, bool) {
	adx, _ := fs.Get(models.FeatADX)
	plus, _ := fs.Get(models.FeatPlusDI)
	minus, _ := fs.Get(models.FeatMinusDI)
	strong := adx >= c.minADX
	return strong && plus > minus, strong && minus > plus
}

type volumeConfirmation struct {
	id       string
	multiple float64
}

func (c volumeConfirmation) ID() string { return c.id }
func (c volumeConfirmation) Inputs() []string {
	return []string{models.FeatOpen, models.FeatClose, models.FeatVolume, models.FeatVolumeMA}
}
func (c volumeConfirmation) Evaluate(fs models.FeatureSet) (bool, bool) {
	o, _ := fs.Get(models.FeatOpen)
	cl, _ := fs.Get(models.FeatClose)
	v, _ := fs.Get(models.FeatVolume)
	ma, _ := fs.Get(models.FeatVolumeMA)
	confirmed := v >= c.multiple*ma
	return confirmed && cl > o, confirmed && cl < o
}
