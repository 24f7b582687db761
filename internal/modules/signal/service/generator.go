package service

import (
	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

// Generator scores a fixed condition set for both directions.
type Generator struct {
	settings models.SignalSettings
	conds    []Condition
	blocked  map[models.RegimeKind]bool
}

func NewGenerator(s models.SignalSettings, reg *Registry) (*Generator, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if len(s.Conditions) == 0 {
		return nil, errors.New("signal: no conditions configured")
	}
	g := &Generator{settings: s, blocked: make(map[models.RegimeKind]bool)}
	seen := make(map[string]bool, len(s.Conditions))
	for _, spec := range s.Conditions {
		c, err := reg.Build(spec)
		if err != nil {
			return nil, err
		}
		if seen[c.ID()] {
			return nil, errors.Errorf("signal: duplicate condition id %q", c.ID())
		}
		seen[c.ID()] = true
		g.conds = append(g.conds, c)
	}
	if s.MinScore < 1 || s.MinScore > len(g.conds) {
		return nil, errors.Errorf("signal: min_score %d out of [1..%d]", s.MinScore, len(g.conds))
	}
	for _, k := range s.BlockedRegimes {
		g.blocked[k] = true
	}
	return g, nil
}

// Total is N, the number of conditions.
func (g *Generator) Total() int { return len(g.conds) }

// Generate never fails: missing inputs, ties and low scores come back as
// direction none with a reason.
func (g *Generator) Generate(fs models.FeatureSet, regime models.RegimeLabel) models.Signal {
	sig := models.Signal{
		Symbol:    fs.Symbol,
		At:        fs.At,
		Direction: models.DirNone,
		Total:     len(g.conds),
		MinScore:  g.settings.MinScore,
		Regime:    regime,
	}
	sig.Entry, _ = fs.Get(models.FeatClose)

	for _, c := range g.conds {
		if !fs.Has(c.Inputs()...) {
			sig.Reason = models.ReasonInsufficientHistory
			return sig
		}
	}

	sig.Conditions = make([]models.ConditionResult, 0, len(g.conds))
	for _, c := range g.conds {
		l, s := c.Evaluate(fs)
		sig.Conditions = append(sig.Conditions, models.ConditionResult{ID: c.ID(), Long: l, Short: s})
		if l {
			sig.LongScore++
		}
		if s {
			sig.ShortScore++
		}
	}

	dir := models.DirNone
	switch {
	case sig.LongScore > sig.ShortScore:
		dir, sig.Score = models.DirLong, sig.LongScore
	case sig.ShortScore > sig.LongScore:
		dir, sig.Score = models.DirShort, sig.ShortScore
	default:
		sig.Score = sig.LongScore
		sig.Reason = models.ReasonTie
		return sig
	}
	for _, r := range sig.Conditions {
		if (dir == models.DirLong && r.Long) || (dir == models.DirShort && r.Short) {
			sig.Passed = append(sig.Passed, r.ID)
		} else {
			sig.Failed = append(sig.Failed, r.ID)
		}
	}
	if sig.Score < g.settings.MinScore {
		sig.Reason = models.ReasonBelowMinScore
		return sig
	}
	if g.filtered(dir, regime) {
		sig.Reason = models.ReasonRegimeFilter
		return sig
	}

	sig.Direction = dir
	if atr, ok := fs.Get(models.FeatATR); ok && atr > 0 {
		sig.ATR = atr
		sign := dir.Sign()
		sig.SuggestedStop = sig.Entry - sign*g.settings.StopATRMult*atr
		sig.SuggestedTarget = sig.Entry + sign*g.settings.TargetATRMult*atr
	}
	return sig
}

func (g *Generator) filtered(dir models.Direction, regime models.RegimeLabel) bool {
	if g.blocked[regime.Kind] {
		return true
	}
	if !g.settings.CounterTrendFilter {
		return false
	}
	trending := regime.Kind == models.RegimeTrend || regime.Kind == models.RegimeStrongTrend
	return trending && regime.Trend != models.DirNone && regime.Trend != dir
}
