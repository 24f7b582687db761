package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

type WalkForwardResult struct {
	Split       time.Time   `json:"split"`
	InSample    SweepResult `json:"in_sample"`
	Best        Trial       `json:"best"`
	OutOfSample Report      `json:"out_of_sample"`
}

// WalkForward sweeps the in-sample prefix (in_sample_frac of the bars) and
// replays the best parameters on the disjoint tail. The tail starts with an
// empty window, so its first bars only warm the indicators up.
func (s *Sweeper) WalkForward(ctx context.Context, base models.Settings, extra map[string]models.ParamRange, bars []models.Bar) (WalkForwardResult, error) {
	frac := s.cfg.InSampleFrac
	if frac <= 0 || frac >= 1 {
		return WalkForwardResult{}, errors.Errorf("walk-forward: in_sample_frac %.2f out of (0..1)", frac)
	}
	cut := int(float64(len(bars)) * frac)
	if cut == 0 || cut == len(bars) {
		return WalkForwardResult{}, errors.Errorf("walk-forward: %d bars too few to split", len(bars))
	}
	in, out := bars[:cut], bars[cut:]

	res := WalkForwardResult{Split: out[0].Start}
	sw, err := s.Sweep(ctx, base, extra, in)
	if err != nil {
		return res, err
	}
	res.InSample = sw
	best, ok := sw.Best()
	if !ok {
		return res, errors.New("walk-forward: no successful in-sample trial")
	}
	res.Best = best

	set := base.Clone()
	for name, v := range best.Params {
		if err := Apply(&set, name, v); err != nil {
			return res, err
		}
	}
	oos, err := s.runner.Run(ctx, set, out)
	if err != nil {
		return res, errors.Wrap(err, "out-of-sample replay")
	}
	res.OutOfSample = oos
	s.log.Info("walk-forward done",
		zap.Time("split", res.Split),
		zap.Float64("in_sample_score", best.Score),
		zap.Float64("oos_net_profit", oos.Metrics.NetProfit),
		zap.Int("oos_trades", oos.Metrics.Trades),
	)
	return res, nil
}
