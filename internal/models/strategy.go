package models

import "time"

// Direction: направление позиции или сигнала.
type Direction string

const (
	DirNone  Direction = "none"
	DirLong  Direction = "long"
	DirShort Direction = "short"
)

func (d Direction) Opposite() Direction {
	switch d {
	case DirLong:
		return DirShort
	case DirShort:
		return DirLong
	default:
		return DirNone
	}
}

// Sign is +1 for long, -1 for short and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case DirLong:
		return 1
	case DirShort:
		return -1
	default:
		return 0
	}
}

// Side: сторона ордера, "BUY"/"SELL".
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderSide returns the side that opens (closing=false) or closes a position in d.
func OrderSide(d Direction, closing bool) Side {
	buy := d == DirLong
	if closing {
		buy = !buy
	}
	if d == DirNone {
		return SideNone
	}
	if buy {
		return SideBuy
	}
	return SideSell
}

// ConditionResult: итог одного условия для обоих направлений.
type ConditionResult struct {
	ID    string `json:"id"`
	Long  bool   `json:"long"`
	Short bool   `json:"short"`
}

// Signal is a confluence-scored candidate. Direction none carries the reason.
type Signal struct {
	Symbol    string    `json:"symbol"`
	At        time.Time `json:"at"`
	Direction Direction `json:"direction"`

	Score      int `json:"score"`
	Total      int `json:"total"`
	LongScore  int `json:"long_score"`
	ShortScore int `json:"short_score"`
	MinScore   int `json:"min_score"`

	Passed     []string          `json:"passed,omitempty"`
	Failed     []string          `json:"failed,omitempty"`
	Conditions []ConditionResult `json:"conditions,omitempty"`

	Regime RegimeLabel `json:"regime"`

	Entry           float64 `json:"entry"`
	ATR             float64 `json:"atr,omitempty"`
	SuggestedStop   float64 `json:"suggested_stop,omitempty"`
	SuggestedTarget float64 `json:"suggested_target,omitempty"`

	Reason ReasonCode `json:"reason,omitempty"`
}

func (s Signal) Valid() bool {
	return s.Direction == DirLong || s.Direction == DirShort
}

// Clone returns a copy that shares no slices with s.
func (s Signal) Clone() Signal {
	c := s
	c.Passed = append([]string(nil), s.Passed...)
	c.Failed = append([]string(nil), s.Failed...)
	c.Conditions = append([]ConditionResult(nil), s.Conditions...)
	return c
}
