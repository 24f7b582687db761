package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

// scriptedVenue returns the scripted errors in order, then delegates to a paper broker.
type scriptedVenue struct {
	*PaperBroker
	errs      []error
	calls     int
	fillFirst bool
}

func (v *scriptedVenue) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error) {
	v.calls++
	if len(v.errs) > 0 {
		err := v.errs[0]
		v.errs = v.errs[1:]
		if v.fillFirst {
			// ордер дошёл, но ответ потерян
			v.fillFirst = false
			_, _ = v.PaperBroker.SubmitOrder(ctx, req)
		}
		return models.OrderAck{}, err
	}
	return v.PaperBroker.SubmitOrder(ctx, req)
}

func retrySettings() models.ExecutionSettings {
	s := paperSettings()
	s.MaxRetries = 3
	s.RetryInitial = time.Millisecond
	s.RetryMax = 2 * time.Millisecond
	return s
}

func TestRetryingExecutor(t *testing.T) {
	transient := errors.Wrap(models.ErrOrderTransient, "502")
	ambiguous := errors.Wrap(models.ErrOrderAmbiguous, "read timeout")
	cases := []struct {
		name      string
		errs      []error
		fillFirst bool
		calls     int
		want      error
	}{
		{"clean", nil, false, 1, nil},
		{"transient then ok", []error{transient, transient}, false, 3, nil},
		{"exhausted", []error{transient, transient, transient, transient, transient}, false, 4, models.ErrOrderSubmission},
		{"margin not retried", []error{errors.Wrap(models.ErrMarginRejected, "no margin")}, false, 1, models.ErrMarginRejected},
		{"ambiguous but filled", []error{ambiguous}, true, 1, nil},
		{"ambiguous not filled", []error{ambiguous}, false, 2, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &scriptedVenue{PaperBroker: NewPaperBroker("BTCUSDT", retrySettings()), errs: tc.errs, fillFirst: tc.fillFirst}
			r := NewRetryingExecutor(v, retrySettings(), zap.NewNop())
			ack, err := r.SubmitOrder(context.Background(), models.OrderRequest{
				Symbol: "BTCUSDT", Side: models.SideBuy, Quantity: 1, Price: 100,
			})
			if tc.want == nil && (err != nil || ack.Status != models.OrderFilled) {
				t.Fatalf("ack = %+v, err = %v", ack, err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if v.calls != tc.calls {
				t.Fatalf("calls = %d, want %d", v.calls, tc.calls)
			}
			if n := len(v.Fills()); tc.want == nil && n != 1 {
				t.Fatalf("fills = %d, want exactly one", n)
			}
		})
	}
}

func TestRetryingExecutorHonoursContext(t *testing.T) {
	v := &scriptedVenue{PaperBroker: NewPaperBroker("BTCUSDT", retrySettings())}
	r := NewRetryingExecutor(v, retrySettings(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.SubmitOrder(ctx, models.OrderRequest{Side: models.SideBuy, Quantity: 1, Price: 100}); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	if v.calls != 0 {
		t.Fatalf("venue called %d times after cancel", v.calls)
	}
}
