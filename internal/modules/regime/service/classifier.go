package service

import (
	"trade_engine/internal/models"
)

// Rule is one entry of the ordered rule list. Match returns ok=false when the
// rule does not apply (or lacks inputs).
type Rule struct {
	Name  string
	Kind  models.RegimeKind
	Match func(fs models.FeatureSet, s models.RegimeSettings) (models.RegimeLabel, bool)
}

// Classifier maps a FeatureSet to a RegimeLabel. First matching rule wins.
type Classifier struct {
	settings models.RegimeSettings
	rules    []Rule
}

func NewClassifier(s models.RegimeSettings) *Classifier {
	return &Classifier{settings: s, rules: DefaultRules()}
}

// DefaultRules: приоритет сверху вниз.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "strong_trend", Kind: models.RegimeStrongTrend, Match: strongTrend},
		{Name: "trend", Kind: models.RegimeTrend, Match: trend},
		{Name: "volatile", Kind: models.RegimeVolatile, Match: volatile},
		{Name: "range", Kind: models.RegimeRange, Match: ranging},
	}
}

func (c *Classifier) Rules() []Rule { return c.rules }

func (c *Classifier) Classify(fs models.FeatureSet) models.RegimeLabel {
	for _, r := range c.rules {
		if lbl, ok := r.Match(fs, c.settings); ok {
			lbl.Kind = r.Kind
			lbl.Rule = r.Name
			return lbl
		}
	}
	lbl := models.RegimeLabel{Kind: models.RegimeNeutral, Trend: models.DirNone, Rule: "neutral"}
	lbl.ADX, _ = fs.Get(models.FeatADX)
	lbl.ATR, _ = fs.Get(models.FeatATR)
	lbl.ATRMA, _ = fs.Get(models.FeatATRMA)
	return lbl
}

func stacked(fs models.FeatureSet) models.Direction {
	if !fs.Has(models.FeatEMAFast, models.FeatEMASlow, models.FeatEMATrend) {
		return models.DirNone
	}
	f, _ := fs.Get(models.FeatEMAFast)
	s, _ := fs.Get(models.FeatEMASlow)
	t, _ := fs.Get(models.FeatEMATrend)
	switch {
	case f > s && s > t:
		return models.DirLong
	case f < s && s < t:
		return models.DirShort
	}
	return models.DirNone
}

func strongTrend(fs models.FeatureSet, s models.RegimeSettings) (models.RegimeLabel, bool) {
	adx, ok := fs.Get(models.FeatADX)
	if !ok || adx < s.StrongADX {
		return models.RegimeLabel{}, false
	}
	dir := stacked(fs)
	if dir == models.DirNone {
		return models.RegimeLabel{}, false
	}
	return models.RegimeLabel{Trend: dir, ADX: adx, Threshold: s.StrongADX}, true
}

func trend(fs models.FeatureSet, s models.RegimeSettings) (models.RegimeLabel, bool) {
	adx, ok := fs.Get(models.FeatADX)
	if !ok || adx < s.TrendADX || !fs.Has(models.FeatEMAFast, models.FeatEMASlow) {
		return models.RegimeLabel{}, false
	}
	f, _ := fs.Get(models.FeatEMAFast)
	sl, _ := fs.Get(models.FeatEMASlow)
	dir := models.DirNone
	switch {
	case f > sl:
		dir = models.DirLong
	case f < sl:
		dir = models.DirShort
	}
	return models.RegimeLabel{Trend: dir, ADX: adx, Threshold: s.TrendADX}, true
}

func volatile(fs models.FeatureSet, s models.RegimeSettings) (models.RegimeLabel, bool) {
	atr, ok1 := fs.Get(models.FeatATR)
	ma, ok2 := fs.Get(models.FeatATRMA)
	if !ok1 || !ok2 || ma <= 0 || s.VolatilityMultiple <= 0 {
		return models.RegimeLabel{}, false
	}
	limit := s.VolatilityMultiple * ma
	if atr <= limit {
		return models.RegimeLabel{}, false
	}
	adx, _ := fs.Get(models.FeatADX)
	return models.RegimeLabel{Trend: models.DirNone, ADX: adx, ATR: atr, ATRMA: ma, Threshold: limit}, true
}

func ranging(fs models.FeatureSet, s models.RegimeSettings) (models.RegimeLabel, bool) {
	adx, ok := fs.Get(models.FeatADX)
	if !ok || adx >= s.RangeADX {
		return models.RegimeLabel{}, false
	}
	return models.RegimeLabel{Trend: models.DirNone, ADX: adx, Threshold: s.RangeADX}, true
}
