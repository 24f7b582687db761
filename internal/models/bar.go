package models

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Bar: закрытая OHLCV свеча.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	// Gap is set when the source reported missing data or an aggregate was
	// assembled with missing constituents.
	Gap bool `json:"gap,omitempty"`
}

// Validate returns ErrDataQuality for malformed or zero-volume bars.
func (b Bar) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrap(ErrDataQuality, "non-finite value")
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return errors.Wrap(ErrDataQuality, "non-positive price")
	}
	if b.High < b.Low {
		return errors.Wrapf(ErrDataQuality, "high %.8f below low %.8f", b.High, b.Low)
	}
	if b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) {
		return errors.Wrap(ErrDataQuality, "open/close outside high-low range")
	}
	if b.Volume <= 0 {
		return errors.Wrap(ErrDataQuality, "zero volume")
	}
	if b.End.IsZero() || !b.End.After(b.Start) {
		return errors.Wrap(ErrDataQuality, "bad bar time range")
	}
	return nil
}

// Tick: одна наблюдаемая цена.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
	// Intrabar marks a price that follows the previous one inside the same
	// bar, so any level between them was traded through.
	Intrabar bool `json:"intrabar,omitempty"`
}

type EventKind int

const (
	EventBar EventKind = iota + 1
	EventTick
	EventFill
)

func (k EventKind) String() string {
	switch k {
	case EventBar:
		return "bar"
	case EventTick:
		return "tick"
	case EventFill:
		return "fill"
	default:
		return "unknown"
	}
}

// Event is what one engine cycle consumes.
type Event struct {
	Kind EventKind
	Bar  Bar
	Tick Tick
	Fill Fill
}

func BarEvent(b Bar) Event   { return Event{Kind: EventBar, Bar: b} }
func TickEvent(t Tick) Event { return Event{Kind: EventTick, Tick: t} }
func FillEvent(f Fill) Event { return Event{Kind: EventFill, Fill: f} }
