package service

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trade_engine/internal/models"
)

// Venue is an order endpoint: the paper broker or an exchange adapter.
type Venue interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error)
	GetPosition(ctx context.Context, symbol string) (*models.VenuePosition, error)
	GetBalance(ctx context.Context) (float64, error)
}

// RetryingExecutor wraps a venue with a rate limit and bounded exponential
// backoff. Only ErrOrderTransient and ErrOrderAmbiguous are retried; an
// ambiguous outcome is first checked against the venue position so a filled
// order is never sent twice.
type RetryingExecutor struct {
	v   Venue
	s   models.ExecutionSettings
	lim *rate.Limiter
	log *zap.Logger
}

func NewRetryingExecutor(v Venue, s models.ExecutionSettings, log *zap.Logger) *RetryingExecutor {
	limit := rate.Inf
	if s.RateLimit > 0 {
		limit = rate.Limit(s.RateLimit)
	}
	burst := s.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingExecutor{v: v, s: s, lim: rate.NewLimiter(limit, burst), log: log.Named("executor")}
}

func (r *RetryingExecutor) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.s.RetryInitial > 0 {
		b.InitialInterval = r.s.RetryInitial
	}
	if r.s.RetryMax > 0 {
		b.MaxInterval = r.s.RetryMax
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, r.s.MaxRetries), ctx)
}

func (r *RetryingExecutor) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	attempt := 0
	op := func() (models.OrderAck, error) {
		attempt++
		if err := r.lim.Wait(ctx); err != nil {
			return models.OrderAck{}, backoff.Permanent(err)
		}
		ack, err := r.v.SubmitOrder(ctx, req)
		switch {
		case err == nil:
			return ack, nil
		case errors.Is(err, models.ErrOrderAmbiguous):
			if got, ok := r.resolveAmbiguous(ctx, req); ok {
				r.log.Warn("ambiguous order resolved from venue position",
					zap.String("client_id", req.ClientID), zap.Int("attempt", attempt))
				return got, nil
			}
			return ack, err
		case errors.Is(err, models.ErrOrderTransient):
			return ack, err
		default:
			return ack, backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn("order retry",
			zap.String("client_id", req.ClientID), zap.Int("attempt", attempt),
			zap.Duration("wait", wait), zap.Error(err))
	}

	ack, err := backoff.RetryNotifyWithData(op, r.policy(ctx), notify)
	if err == nil {
		return ack, nil
	}
	if errors.Is(err, models.ErrOrderTransient) || errors.Is(err, models.ErrOrderAmbiguous) {
		return ack, errors.Wrapf(models.ErrOrderSubmission, "%d attempts: %v", attempt, err)
	}
	return ack, err
}

// resolveAmbiguous decides from the venue position whether an ambiguous order took
// effect. It returns a synthetic fill priced at the venue's entry or the
// request price.
func (r *RetryingExecutor) resolveAmbiguous(ctx context.Context, req models.OrderRequest) (models.OrderAck, bool) {
	vp, err := r.v.GetPosition(ctx, req.Symbol)
	if err != nil {
		return models.OrderAck{}, false
	}
	filled := models.OrderAck{
		OrderID:   "recovered-" + req.ClientID,
		ClientID:  req.ClientID,
		Status:    models.OrderFilled,
		FilledQty: req.Quantity,
		AvgPrice:  req.Price,
		At:        req.At,
	}
	if req.ReduceOnly {
		return filled, vp == nil || vp.Quantity <= 0
	}
	if vp == nil || models.OrderSide(vp.Side, false) != req.Side {
		return models.OrderAck{}, false
	}
	if math.Abs(vp.Quantity-req.Quantity) > 1e-9*math.Max(1, req.Quantity) {
		return models.OrderAck{}, false
	}
	filled.AvgPrice = vp.EntryPrice
	return filled, true
}

func (r *RetryingExecutor) GetPosition(ctx context.Context, symbol string) (*models.VenuePosition, error) {
	return r.v.GetPosition(ctx, symbol)
}

func (r *RetryingExecutor) GetBalance(ctx context.Context) (float64, error) {
	return r.v.GetBalance(ctx)
}
