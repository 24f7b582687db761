package service

import (
	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

// Engine turns a bar window into a FeatureSet for its last bar.
type Engine struct {
	indicators []Indicator
	lookback   int
}

func NewEngine(specs []models.IndicatorSpec, reg *Registry) (*Engine, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	e := &Engine{}
	seen := map[string]string{
		models.FeatOpen: "bar", models.FeatHigh: "bar", models.FeatLow: "bar",
		models.FeatClose: "bar", models.FeatVolume: "bar",
	}
	for _, spec := range specs {
		ind, err := reg.Build(spec)
		if err != nil {
			return nil, err
		}
		for _, out := range ind.Outputs() {
			if owner, dup := seen[out]; dup {
				return nil, errors.Errorf("feature %q produced by both %q and %q", out, owner, spec.Name)
			}
			seen[out] = spec.Name
		}
		if ind.Lookback() > e.lookback {
			e.lookback = ind.Lookback()
		}
		e.indicators = append(e.indicators, ind)
	}
	return e, nil
}

// Lookback is the largest indicator lookback; windows shorter than this leave
// some features empty.
func (e *Engine) Lookback() int { return e.lookback }

// Compute is pure: the result depends only on window.
func (e *Engine) Compute(window []models.Bar) models.FeatureSet {
	if len(window) == 0 {
		return models.FeatureSet{}
	}
	last := window[len(window)-1]
	fs := models.NewFeatureSet(last.Symbol, last.End)
	fs.Set(models.FeatOpen, last.Open)
	fs.Set(models.FeatHigh, last.High)
	fs.Set(models.FeatLow, last.Low)
	fs.Set(models.FeatClose, last.Close)
	fs.Set(models.FeatVolume, last.Volume)
	for _, ind := range e.indicators {
		if len(window) < ind.Lookback() {
			continue
		}
		ind.Compute(window, &fs)
	}
	return fs
}
