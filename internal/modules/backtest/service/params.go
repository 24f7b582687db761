package service

import (
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

// Dimension is one swept parameter. Names:
//
//	ind.<indicator>.<param>   indicator parameter
//	cond.<condition>.<param>  condition parameter
//	risk.<field>, trailing.<field>, regime.<field>, signal.min_score
type Dimension struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Dimensions collects every ranged indicator/condition parameter of set plus
// the extra named ranges, sorted by name.
func Dimensions(set models.Settings, extra map[string]models.ParamRange) ([]Dimension, error) {
	var dims []Dimension
	add := func(name string, r models.ParamRange) error {
		vals := r.Values()
		if len(vals) == 0 {
			return errors.Errorf("sweep %s: empty range %+v", name, r)
		}
		dims = append(dims, Dimension{Name: name, Values: vals})
		return nil
	}
	for _, ind := range set.Indicators {
		for _, p := range ind.Params {
			if p.Range != nil {
				if err := add("ind."+ind.Name+"."+p.Name, *p.Range); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, c := range set.Signal.Conditions {
		for _, p := range c.Params {
			if p.Range != nil {
				if err := add("cond."+c.ID+"."+p.Name, *p.Range); err != nil {
					return nil, err
				}
			}
		}
	}
	probe := set.Clone()
	for name, r := range extra {
		if err := Apply(&probe, name, r.Min); err != nil {
			return nil, err
		}
		if err := add(name, r); err != nil {
			return nil, err
		}
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i].Name < dims[j].Name })
	return dims, nil
}

// GridSize is the number of combinations, as float64 so huge grids don't
// overflow.
func GridSize(dims []Dimension) float64 {
	if len(dims) == 0 {
		return 0
	}
	n := 1.0
	for _, d := range dims {
		n *= float64(len(d.Values))
	}
	return n
}

// Apply sets one named parameter on set.
func Apply(set *models.Settings, name string, v float64) error {
	parts := strings.SplitN(name, ".", 3)
	switch parts[0] {
	case "ind":
		if len(parts) != 3 {
			return errors.Errorf("bad parameter name %q", name)
		}
		for i := range set.Indicators {
			if set.Indicators[i].Name == parts[1] {
				set.Indicators[i].SetParam(parts[2], v)
				return nil
			}
		}
		return errors.Errorf("unknown indicator %q", parts[1])
	case "cond":
		if len(parts) != 3 {
			return errors.Errorf("bad parameter name %q", name)
		}
		for i := range set.Signal.Conditions {
			if set.Signal.Conditions[i].ID == parts[1] {
				set.Signal.Conditions[i].SetParam(parts[2], v)
				return nil
			}
		}
		return errors.Errorf("unknown condition %q", parts[1])
	}

	f, ok := fieldRef(set, name)
	if !ok {
		return errors.Errorf("unknown parameter %q", name)
	}
	f(v)
	return nil
}

func fieldRef(set *models.Settings, name string) (func(float64), bool) {
	fl := func(p *float64) func(float64) { return func(v float64) { *p = v } }
	in := func(p *int) func(float64) { return func(v float64) { *p = int(math.Round(v)) } }

	switch name {
	case "signal.min_score":
		return in(&set.Signal.MinScore), true
	case "signal.stop_atr_mult":
		return fl(&set.Signal.StopATRMult), true
	case "signal.target_atr_mult":
		return fl(&set.Signal.TargetATRMult), true

	case "risk.risk_pct":
		return fl(&set.Risk.RiskPct), true
	case "risk.stop_pct":
		return fl(&set.Risk.StopPct), true
	case "risk.take_profit_pct":
		return fl(&set.Risk.TakeProfitPct), true
	case "risk.take_profit_rr":
		return fl(&set.Risk.TakeProfitRR), true
	case "risk.stop_atr_mult":
		return fl(&set.Risk.StopATRMult), true
	case "risk.target_atr_mult":
		return fl(&set.Risk.TargetATRMult), true
	case "risk.min_risk_reward":
		return fl(&set.Risk.MinRiskReward), true
	case "risk.daily_loss_limit_pct":
		return fl(&set.Risk.DailyLossLimitPct), true
	case "risk.max_trades_per_day":
		return in(&set.Risk.MaxTradesPerDay), true

	case "trailing.activation_pct":
		return fl(&set.Trailing.ActivationPct), true
	case "trailing.distance_pct":
		return fl(&set.Trailing.DistancePct), true
	case "trailing.atr_mult":
		return fl(&set.Trailing.ATRMult), true

	case "regime.strong_adx":
		return fl(&set.Regime.StrongADX), true
	case "regime.trend_adx":
		return fl(&set.Regime.TrendADX), true
	case "regime.range_adx":
		return fl(&set.Regime.RangeADX), true
	case "regime.volatility_multiple":
		return fl(&set.Regime.VolatilityMultiple), true
	}
	return nil, false
}
