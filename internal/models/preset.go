package models

import "github.com/pkg/errors"

// Preset: готовый профиль риска и трейлинга.
type Preset struct {
	Name        string
	Description string
	Apply       func(rs *RiskSettings, tr *TrailingSettings)
}

var Presets = map[string]Preset{
	"safe": {
		Name:        "safe",
		Description: "small risk per trade, early trailing",
		Apply: func(rs *RiskSettings, tr *TrailingSettings) {
			rs.RiskPct = 0.5
			rs.StopATRMult = 2.0
			rs.TargetATRMult = 4.0
			rs.MinRiskReward = 2.0
			rs.DailyLossLimitPct = 2.0
			rs.MaxConsecutiveLosses = 3

			tr.Enabled = true
			tr.ActivationPct = 0.4
			tr.ATRMult = 1.0
		},
	},
	"mid": {
		Name:        "mid",
		Description: "balanced risk and reward",
		Apply: func(rs *RiskSettings, tr *TrailingSettings) {
			rs.RiskPct = 1.0
			rs.StopATRMult = 1.5
			rs.TargetATRMult = 3.0
			rs.MinRiskReward = 1.5
			rs.DailyLossLimitPct = 3.0

			tr.Enabled = true
			tr.ActivationPct = 0.5
			tr.ATRMult = 1.0
		},
	},
	"aggr": {
		Name:        "aggr",
		Description: "higher risk, late trailing",
		Apply: func(rs *RiskSettings, tr *TrailingSettings) {
			rs.RiskPct = 2.0
			rs.StopATRMult = 1.2
			rs.TargetATRMult = 3.6
			rs.MinRiskReward = 1.5
			rs.DailyLossLimitPct = 5.0

			tr.Enabled = true
			tr.ActivationPct = 1.0
			tr.ATRMult = 1.5
		},
	},
}

// ApplyPreset applies a named preset to s.
func ApplyPreset(name string, s *Settings) error {
	pr, ok := Presets[name]
	if !ok {
		return errors.Errorf("unknown preset %q", name)
	}
	pr.Apply(&s.Risk, &s.Trailing)
	return nil
}
