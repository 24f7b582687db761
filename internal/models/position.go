package models

import "time"

type PositionState string

const (
	PositionOpen             PositionState = "OPEN"
	PositionTrailingInactive PositionState = "TRAILING_INACTIVE"
	PositionTrailingActive   PositionState = "TRAILING_ACTIVE"
	PositionClosed           PositionState = "CLOSED"
)

// Position: единственная открытая позиция. Поля меняет только цикл монитора,
// наружу отдаются копии (Snapshot).
type Position struct {
	ID           string        `json:"id"`
	Symbol       string        `json:"symbol"`
	Side         Direction     `json:"side"`
	EntryOrderID string        `json:"entry_order_id"`
	EntryPrice   float64       `json:"entry_price"`
	EntryTime    time.Time     `json:"entry_time"`
	EntryFee     float64       `json:"entry_fee"`
	Quantity     float64       `json:"quantity"`
	StopLoss     float64       `json:"stop_loss"`
	InitialStop  float64       `json:"initial_stop"`
	TakeProfit   float64       `json:"take_profit"`
	ATR          float64       `json:"atr"`
	State        PositionState `json:"state"`

	TrailingActive bool `json:"trailing_active"`

	HighestPrice  float64   `json:"highest_price"`
	LowestPrice   float64   `json:"lowest_price"`
	LastPrice     float64   `json:"last_price"`
	LastUpdate    time.Time `json:"last_update"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// PnL at price for the full quantity, before fees.
func (p *Position) PnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.Side.Sign()
}

// ProfitPct is the move from entry in the position's favour, in percent.
func (p *Position) ProfitPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100 * p.Side.Sign()
}

// Snapshot returns an independent copy for readers outside the cycle.
func (p *Position) Snapshot() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

type ExitKind string

const (
	ExitStopLoss       ExitKind = "STOP_LOSS"
	ExitTakeProfit     ExitKind = "TAKE_PROFIT"
	ExitTrailingStop   ExitKind = "TRAILING_STOP"
	ExitSignalReversal ExitKind = "SIGNAL_REVERSAL"
	ExitTime           ExitKind = "TIME_EXIT"
	ExitDailyLossLimit ExitKind = "DAILY_LOSS_LIMIT"
	ExitManual         ExitKind = "MANUAL"
	ExitShutdown       ExitKind = "SHUTDOWN"
)

type ExitResult struct {
	ShouldExit   bool      `json:"should_exit"`
	Kind         ExitKind  `json:"kind,omitempty"`
	TriggerPrice float64   `json:"trigger_price,omitempty"`
	Price        float64   `json:"price,omitempty"`
	At           time.Time `json:"at"`
	Intrabar     bool      `json:"intrabar,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// FillReference is the price an exit order should be priced at: the crossed
// level when the move was continuous, the observed price after a gap.
func (r ExitResult) FillReference() float64 {
	if r.Intrabar && r.TriggerPrice > 0 {
		return r.TriggerPrice
	}
	return r.Price
}

// Trade: закрытая сделка для отчётов.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Direction `json:"side"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	Fees       float64   `json:"fees"`
	PnL        float64   `json:"pnl"`
	RMultiple  float64   `json:"r_multiple"`
	ExitKind   ExitKind  `json:"exit_kind"`
	Balance    float64   `json:"balance"`
}
