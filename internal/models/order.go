package models

import "time"

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

type OrderStatus string

const (
	OrderAccepted OrderStatus = "ACCEPTED"
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
)

type OrderRequest struct {
	ClientID   string    `json:"client_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price,omitempty"`
	Stop       float64   `json:"stop,omitempty"`
	ReduceOnly bool      `json:"reduce_only,omitempty"`
	At         time.Time `json:"at"`
}

type OrderAck struct {
	OrderID   string      `json:"order_id"`
	ClientID  string      `json:"client_id"`
	Status    OrderStatus `json:"status"`
	FilledQty float64     `json:"filled_qty"`
	AvgPrice  float64     `json:"avg_price"`
	Fee       float64     `json:"fee"`
	At        time.Time   `json:"at"`
}

// Fill is delivered at least once; FillID identifies duplicates.
type Fill struct {
	FillID   string    `json:"fill_id"`
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Fee      float64   `json:"fee"`
	At       time.Time `json:"at"`
}

// VenuePosition: позиция, как её видит площадка.
type VenuePosition struct {
	Symbol     string    `json:"symbol"`
	Side       Direction `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
}
