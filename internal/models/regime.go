package models

type RegimeKind string

const (
	RegimeStrongTrend RegimeKind = "STRONG_TREND"
	RegimeTrend       RegimeKind = "TREND"
	RegimeVolatile    RegimeKind = "VOLATILE"
	RegimeRange       RegimeKind = "RANGE"
	RegimeNeutral     RegimeKind = "NEUTRAL"
)

// RegimeLabel: метка рыночного режима и значения, по которым она получена.
type RegimeLabel struct {
	Kind  RegimeKind `json:"kind"`
	Trend Direction  `json:"trend"`
	Rule  string     `json:"rule"`

	ADX       float64 `json:"adx,omitempty"`
	ATR       float64 `json:"atr,omitempty"`
	ATRMA     float64 `json:"atr_ma,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}
