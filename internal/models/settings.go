package models

import "time"

// ParamRange: диапазон для перебора параметров.
type ParamRange struct {
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Step float64 `yaml:"step" json:"step"`
}

// Values expands the range, inclusive of Max within a small tolerance.
func (r ParamRange) Values() []float64 {
	if r.Step <= 0 || r.Max < r.Min {
		return nil
	}
	n := int((r.Max-r.Min)/r.Step+1e-9) + 1
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.Min+float64(i)*r.Step)
	}
	return out
}

// Param is a generic (name, value, range) entry.
type Param struct {
	Name  string      `yaml:"name" json:"name"`
	Value float64     `yaml:"value" json:"value"`
	Range *ParamRange `yaml:"range,omitempty" json:"range,omitempty"`
}

func findParam(ps []Param, name string) (float64, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

func setParam(ps []Param, name string, v float64) []Param {
	for i := range ps {
		if ps[i].Name == name {
			ps[i].Value = v
			return ps
		}
	}
	return append(ps, Param{Name: name, Value: v})
}

func cloneParams(ps []Param) []Param {
	if ps == nil {
		return nil
	}
	out := make([]Param, len(ps))
	for i, p := range ps {
		out[i] = p
		if p.Range != nil {
			r := *p.Range
			out[i].Range = &r
		}
	}
	return out
}

// IndicatorSpec: описание индикатора для реестра.
type IndicatorSpec struct {
	Name   string  `yaml:"name" json:"name"`
	Type   string  `yaml:"type" json:"type"`
	Source string  `yaml:"source,omitempty" json:"source,omitempty"`
	Params []Param `yaml:"params,omitempty" json:"params,omitempty"`
}

func (s IndicatorSpec) Param(name string) (float64, bool) { return findParam(s.Params, name) }

func (s *IndicatorSpec) SetParam(name string, v float64) { s.Params = setParam(s.Params, name, v) }

// ConditionSpec: описание условия сигнала.
type ConditionSpec struct {
	ID     string  `yaml:"id" json:"id"`
	Type   string  `yaml:"type" json:"type"`
	Params []Param `yaml:"params,omitempty" json:"params,omitempty"`
}

func (s ConditionSpec) Param(name string) (float64, bool) { return findParam(s.Params, name) }

func (s *ConditionSpec) SetParam(name string, v float64) { s.Params = setParam(s.Params, name, v) }

type RegimeSettings struct {
	StrongADX          float64 `yaml:"strong_adx"`
	TrendADX           float64 `yaml:"trend_adx"`
	RangeADX           float64 `yaml:"range_adx"`
	VolatilityMultiple float64 `yaml:"volatility_multiple"`
}

type SignalSettings struct {
	MinScore       int             `yaml:"min_score"`
	Conditions     []ConditionSpec `yaml:"conditions"`
	BlockedRegimes []RegimeKind    `yaml:"blocked_regimes"`
	// CounterTrendFilter drops signals against the direction of a trend regime.
	CounterTrendFilter bool    `yaml:"counter_trend_filter"`
	StopATRMult        float64 `yaml:"stop_atr_mult"`
	TargetATRMult      float64 `yaml:"target_atr_mult"`
}

type RiskSettings struct {
	RiskPct       float64  `yaml:"risk_pct"` // 1.0 => 1% баланса на сделку
	StopMode      StopMode `yaml:"stop_mode"`
	StopPct       float64  `yaml:"stop_pct"`
	TakeProfitPct float64  `yaml:"take_profit_pct"`
	// TakeProfitRR is used in percent mode when TakeProfitPct is 0: tp = entry ± RR*dist.
	TakeProfitRR  float64 `yaml:"take_profit_rr"`
	StopATRMult   float64 `yaml:"stop_atr_mult"`
	TargetATRMult float64 `yaml:"target_atr_mult"`
	MinRiskReward float64 `yaml:"min_risk_reward"`

	MaxPositionSize float64 `yaml:"max_position_size"`
	MinQty          float64 `yaml:"min_qty"`
	LotSize         float64 `yaml:"lot_size"`
	TickSize        float64 `yaml:"tick_size"`
	Leverage        float64 `yaml:"leverage"`

	DailyLossLimitPct    float64 `yaml:"daily_loss_limit_pct"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
}

type TrailingSettings struct {
	Enabled       bool          `yaml:"enabled"`
	ActivationPct float64       `yaml:"activation_pct"`
	Mode          StopMode      `yaml:"mode"`
	DistancePct   float64       `yaml:"distance_pct"`
	ATRMult       float64       `yaml:"atr_mult"`
	MaxHold       time.Duration `yaml:"max_hold"`
	// DistinctExitKind reports a hit on a trailed stop as TRAILING_STOP
	// instead of STOP_LOSS.
	DistinctExitKind bool `yaml:"distinct_exit_kind"`
}

type EngineSettings struct {
	Symbol        string   `yaml:"symbol"`
	Timeframe     string   `yaml:"timeframe"`
	BaseTimeframe string   `yaml:"base_timeframe"`
	WindowSize    int      `yaml:"window_size"`
	StopMode      StopMode `yaml:"stop_mode"`

	KillSwitchAutoReset bool          `yaml:"kill_switch_auto_reset"`
	CloseOnStop         bool          `yaml:"close_on_stop"`
	ExitOnReversal      bool          `yaml:"exit_on_reversal"`
	MaxBarAge           time.Duration `yaml:"max_bar_age"`
	StateKey            string        `yaml:"state_key"`
}

type ExecutionSettings struct {
	InitialBalance        float64 `yaml:"initial_balance"`
	FeeRate               float64 `yaml:"fee_rate"`
	SlippageBps           float64 `yaml:"slippage_bps"`
	SpreadBps             float64 `yaml:"spread_bps"`
	Leverage              float64 `yaml:"leverage"`
	MaintenanceMarginRate float64 `yaml:"maintenance_margin_rate"`

	MaxRetries   uint64        `yaml:"max_retries"`
	RetryInitial time.Duration `yaml:"retry_initial"`
	RetryMax     time.Duration `yaml:"retry_max"`
	RateLimit    float64       `yaml:"rate_limit"` // ордеров в секунду
	RateBurst    int           `yaml:"rate_burst"`
}

type OracleSettings struct {
	Enabled              bool          `yaml:"enabled"`
	Kind                 string        `yaml:"kind"` // http | grpc | telegram
	Endpoint             string        `yaml:"endpoint"`
	Method               string        `yaml:"method"`
	Timeout              time.Duration `yaml:"timeout"`
	MinApproveConfidence float64       `yaml:"min_approve_confidence"`
	MinRejectConfidence  float64       `yaml:"min_reject_confidence"`
}

// Settings bundles everything one pipeline instance needs.
type Settings struct {
	Engine     EngineSettings    `yaml:"engine"`
	Indicators []IndicatorSpec   `yaml:"indicators"`
	Regime     RegimeSettings    `yaml:"regime"`
	Signal     SignalSettings    `yaml:"signal"`
	Risk       RiskSettings      `yaml:"risk"`
	Trailing   TrailingSettings  `yaml:"trailing"`
	Execution  ExecutionSettings `yaml:"execution"`
	Oracle     OracleSettings    `yaml:"oracle"`
}

// Clone returns a deep copy; sweep trials mutate their own clone.
func (s Settings) Clone() Settings {
	c := s
	if s.Indicators != nil {
		c.Indicators = make([]IndicatorSpec, len(s.Indicators))
		for i, ind := range s.Indicators {
			c.Indicators[i] = ind
			c.Indicators[i].Params = cloneParams(ind.Params)
		}
	}
	if s.Signal.Conditions != nil {
		c.Signal.Conditions = make([]ConditionSpec, len(s.Signal.Conditions))
		for i, cs := range s.Signal.Conditions {
			c.Signal.Conditions[i] = cs
			c.Signal.Conditions[i].Params = cloneParams(cs.Params)
		}
	}
	c.Signal.BlockedRegimes = append([]RegimeKind(nil), s.Signal.BlockedRegimes...)
	return c
}

func param(name string, v float64) Param { return Param{Name: name, Value: v} }

func DefaultIndicatorSpecs() []IndicatorSpec {
	return []IndicatorSpec{
		{Name: FeatEMAFast, Type: "ema", Params: []Param{param("period", 9)}},
		{Name: FeatEMASlow, Type: "ema", Params: []Param{param("period", 21)}},
		{Name: FeatEMATrend, Type: "ema", Params: []Param{param("period", 50)}},
		{Name: FeatRSI, Type: "rsi", Params: []Param{param("period", 14)}},
		{Name: FeatMACD, Type: "macd", Params: []Param{param("fast", 12), param("slow", 26), param("signal", 9)}},
		{Name: FeatATR, Type: "atr", Params: []Param{param("period", 14), param("ma_period", 20)}},
		{Name: FeatADX, Type: "adx", Params: []Param{param("period", 14)}},
		{Name: FeatBB, Type: "bollinger", Params: []Param{param("period", 20), param("mult", 2)}},
		{Name: FeatVolumeMA, Type: "sma", Source: FeatVolume, Params: []Param{param("period", 20)}},
	}
}

func DefaultConditionSpecs() []ConditionSpec {
	return []ConditionSpec{
		{ID: "trend_alignment", Type: "trend_alignment"},
		{ID: "oscillator_zone", Type: "oscillator_zone"},
		{ID: "momentum", Type: "momentum"},
		{ID: "trend_strength", Type: "trend_strength"},
		{ID: "volume_confirmation", Type: "volume_confirmation"},
	}
}

func DefaultSettings() Settings {
	return Settings{
		Engine: EngineSettings{
			Symbol:        "BTCUSDT",
			Timeframe:     "15m",
			BaseTimeframe: "1m",
			WindowSize:    300,
			StopMode:      StopModeATR,
		},
		Indicators: DefaultIndicatorSpecs(),
		Regime: RegimeSettings{
			StrongADX:          40,
			TrendADX:           25,
			RangeADX:           20,
			VolatilityMultiple: 1.5,
		},
		Signal: SignalSettings{
			MinScore:      3,
			Conditions:    DefaultConditionSpecs(),
			StopATRMult:   1.5,
			TargetATRMult: 3.0,
		},
		Risk: RiskSettings{
			RiskPct:           1.0,
			StopMode:          StopModeATR,
			StopPct:           1.0,
			TakeProfitPct:     2.0,
			TakeProfitRR:      2.0,
			StopATRMult:       1.5,
			TargetATRMult:     3.0,
			MinRiskReward:     1.5,
			DailyLossLimitPct: 3.0,
		},
		Trailing: TrailingSettings{
			Enabled:       true,
			ActivationPct: 0.5,
			Mode:          StopModeATR,
			DistancePct:   0.5,
			ATRMult:       1.0,
		},
		Execution: ExecutionSettings{
			InitialBalance:        10000,
			FeeRate:               0.0004,
			SlippageBps:           2,
			SpreadBps:             1,
			Leverage:              10,
			MaintenanceMarginRate: 0.005,
			MaxRetries:            3,
			RetryInitial:          200 * time.Millisecond,
			RetryMax:              2 * time.Second,
			RateLimit:             5,
			RateBurst:             2,
		},
		Oracle: OracleSettings{
			Kind:                 "http",
			Method:               "/advisor.Advisor/Validate",
			Timeout:              5 * time.Second,
			MinApproveConfidence: 60,
			MinRejectConfidence:  70,
		},
	}
}

// SweepSettings bounds a parameter search.
type SweepSettings struct {
	Budget          int     `yaml:"budget"`
	SafetyMultiple  float64 `yaml:"safety_multiple"`
	MaxCombinations int     `yaml:"max_combinations"`
	Workers         int     `yaml:"workers"`
	Seed            int64   `yaml:"seed"`
	Objective       string  `yaml:"objective"` // net_profit | sharpe | profit_factor
	InSampleFrac    float64 `yaml:"in_sample_frac"`
}

func DefaultSweepSettings() SweepSettings {
	return SweepSettings{
		Budget:         500,
		SafetyMultiple: 10,
		Workers:        4,
		Seed:           1,
		Objective:      "net_profit",
		InSampleFrac:   0.7,
	}
}
