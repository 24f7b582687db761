package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"trade_engine/internal/models"
)

var (
	bps = decimal.NewFromInt(10000)
	two = decimal.NewFromInt(2)
)

type paperPosition struct {
	side  models.Direction
	qty   decimal.Decimal
	entry decimal.Decimal
}

// PaperBroker симулирует площадку: рыночные ордера исполняются по цене
// запроса с проскальзыванием и половиной спреда против нас, комиссия taker.
// Одна позиция на брокер. Учёт в decimal.
type PaperBroker struct {
	mu      sync.Mutex
	s       models.ExecutionSettings
	symbol  string
	balance decimal.Decimal
	pos     *paperPosition
	acks    map[string]models.OrderAck
	fills   []models.Fill
	now     func() time.Time
}

func NewPaperBroker(symbol string, s models.ExecutionSettings) *PaperBroker {
	return &PaperBroker{
		s:       s,
		symbol:  symbol,
		balance: decimal.NewFromFloat(s.InitialBalance),
		acks:    make(map[string]models.OrderAck),
		now:     time.Now,
	}
}

// adverse moves the reference price against the taker.
func (b *PaperBroker) adverse(ref decimal.Decimal, side models.Side) decimal.Decimal {
	cost := decimal.NewFromFloat(b.s.SlippageBps).Add(decimal.NewFromFloat(b.s.SpreadBps).Div(two)).Div(bps)
	if side == models.SideBuy {
		return ref.Mul(decimal.NewFromInt(1).Add(cost))
	}
	return ref.Mul(decimal.NewFromInt(1).Sub(cost))
}

// LiquidationPrice is the isolated-margin liquidation level for an entry.
func LiquidationPrice(dir models.Direction, entry, leverage, mmr float64) float64 {
	if leverage <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	move := decimal.NewFromInt(1).Div(decimal.NewFromFloat(leverage)).Sub(decimal.NewFromFloat(mmr))
	if dir == models.DirLong {
		return e.Mul(decimal.NewFromInt(1).Sub(move)).InexactFloat64()
	}
	return e.Mul(decimal.NewFromInt(1).Add(move)).InexactFloat64()
}

func (b *PaperBroker) SubmitOrder(_ context.Context, req models.OrderRequest) (models.OrderAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// повтор того же client id возвращает прежний ответ
	if req.ClientID != "" {
		if ack, ok := b.acks[req.ClientID]; ok {
			return ack, nil
		}
	}
	if req.Symbol != "" && b.symbol != "" && req.Symbol != b.symbol {
		return b.reject(req), errors.Wrapf(models.ErrOrderRejected, "symbol %s not traded here", req.Symbol)
	}
	if req.Quantity <= 0 || req.Price <= 0 {
		return b.reject(req), errors.Wrapf(models.ErrOrderRejected, "qty %v price %v", req.Quantity, req.Price)
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return b.reject(req), errors.Wrapf(models.ErrOrderRejected, "side %q", req.Side)
	}

	at := req.At
	if at.IsZero() {
		at = b.now()
	}
	price := b.adverse(decimal.NewFromFloat(req.Price), req.Side)
	fillQty := decimal.NewFromFloat(req.Quantity)

	if req.ReduceOnly {
		if b.pos == nil || models.OrderSide(b.pos.side, true) != req.Side {
			return b.reject(req), errors.Wrap(models.ErrOrderRejected, "reduce-only order without a matching position")
		}
		fillQty = decimal.Min(fillQty, b.pos.qty)
		fee := price.Mul(fillQty).Mul(decimal.NewFromFloat(b.s.FeeRate))
		pnl := price.Sub(b.pos.entry).Mul(fillQty)
		if b.pos.side == models.DirShort {
			pnl = pnl.Neg()
		}
		b.balance = b.balance.Add(pnl).Sub(fee)
		b.pos.qty = b.pos.qty.Sub(fillQty)
		if !b.pos.qty.IsPositive() {
			b.pos = nil
		}
		return b.fill(req, fillQty, price, fee, at), nil
	}

	if b.pos != nil {
		return b.reject(req), errors.Wrap(models.ErrPositionExists, "paper broker holds one position")
	}
	dir := models.DirLong
	if req.Side == models.SideSell {
		dir = models.DirShort
	}
	notional := price.Mul(fillQty)
	fee := notional.Mul(decimal.NewFromFloat(b.s.FeeRate))
	margin := notional
	if b.s.Leverage > 0 {
		margin = notional.Div(decimal.NewFromFloat(b.s.Leverage))
	}
	if margin.Add(fee).GreaterThan(b.balance) {
		return b.reject(req), errors.Wrapf(models.ErrMarginRejected,
			"margin %s + fee %s exceeds balance %s", margin.StringFixed(2), fee.StringFixed(2), b.balance.StringFixed(2))
	}
	if req.Stop > 0 && b.s.Leverage > 0 {
		liq := LiquidationPrice(dir, price.InexactFloat64(), b.s.Leverage, b.s.MaintenanceMarginRate)
		if (dir == models.DirLong && req.Stop <= liq) || (dir == models.DirShort && req.Stop >= liq) {
			return b.reject(req), errors.Wrapf(models.ErrMarginRejected, "stop %.8f beyond liquidation %.8f", req.Stop, liq)
		}
	}
	b.balance = b.balance.Sub(fee)
	b.pos = &paperPosition{side: dir, qty: fillQty, entry: price}
	return b.fill(req, fillQty, price, fee, at), nil
}

func (b *PaperBroker) reject(req models.OrderRequest) models.OrderAck {
	return models.OrderAck{OrderID: uuid.NewString(), ClientID: req.ClientID, Status: models.OrderRejected, At: req.At}
}

func (b *PaperBroker) fill(req models.OrderRequest, qty, price, fee decimal.Decimal, at time.Time) models.OrderAck {
	ack := models.OrderAck{
		OrderID:   uuid.NewString(),
		ClientID:  req.ClientID,
		Status:    models.OrderFilled,
		FilledQty: qty.InexactFloat64(),
		AvgPrice:  price.InexactFloat64(),
		Fee:       fee.InexactFloat64(),
		At:        at,
	}
	if req.ClientID != "" {
		b.acks[req.ClientID] = ack
	}
	b.fills = append(b.fills, models.Fill{
		FillID:   ack.OrderID,
		OrderID:  ack.OrderID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: ack.FilledQty,
		Price:    ack.AvgPrice,
		Fee:      ack.Fee,
		At:       at,
	})
	return ack
}

func (b *PaperBroker) GetPosition(_ context.Context, symbol string) (*models.VenuePosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil || (symbol != "" && b.symbol != "" && symbol != b.symbol) {
		return nil, nil
	}
	return &models.VenuePosition{
		Symbol:     b.symbol,
		Side:       b.pos.side,
		Quantity:   b.pos.qty.InexactFloat64(),
		EntryPrice: b.pos.entry.InexactFloat64(),
	}, nil
}

// GetBalance is realised cash: fees and closed P&L are booked, open P&L is not.
func (b *PaperBroker) GetBalance(context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance.InexactFloat64(), nil
}

// Fills returns a copy of every fill so far.
func (b *PaperBroker) Fills() []models.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Fill(nil), b.fills...)
}
