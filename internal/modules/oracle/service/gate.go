package service

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
	"trade_engine/pkg/tracing"
)

// Client asks an external advisor about one signal.
type Client interface {
	Validate(ctx context.Context, req models.OracleRequest) (models.OracleDecision, error)
}

// Gate bounds a Client by a hard deadline and turns its verdict into a
// proceed/block decision. It never returns later than the timeout.
type Gate struct {
	client Client
	set    models.OracleSettings
	log    *zap.Logger
}

func NewGate(c Client, set models.OracleSettings, log *zap.Logger) *Gate {
	return &Gate{client: c, set: set, log: log.Named("oracle")}
}

type result struct {
	dec models.OracleDecision
	err error
}

func (g *Gate) Decide(ctx context.Context, req models.OracleRequest) (out models.OracleOutcome) {
	span, ctx := tracing.StartSpan(ctx, "oracle.decide",
		opentracing.Tag{Key: "symbol", Value: req.Signal.Symbol},
		opentracing.Tag{Key: "direction", Value: string(req.Signal.Direction)},
	)
	defer func() {
		span.SetTag("proceed", out.Proceed)
		span.SetTag("fallback", out.Fallback)
		var err error
		if out.Error != "" {
			err = errors.New(out.Error)
		}
		tracing.Finish(span, err)
	}()

	if g.client == nil {
		return g.fallback(errors.Wrap(models.ErrOracleUnavailable, "no client"))
	}

	timeout := g.set.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// буфер 1: опоздавший ответ не держит горутину
	ch := make(chan result, 1)
	go func() {
		dec, err := g.client.Validate(ctx, req)
		ch <- result{dec: dec, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return g.fallback(errors.Wrapf(models.ErrOracleTimeout, "no answer in %s", timeout))
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return g.fallback(errors.Wrapf(models.ErrOracleTimeout, "no answer in %s", timeout))
		}
		return g.fallback(errors.Wrap(models.ErrOracleUnavailable, res.err.Error()))
	}
	return g.judge(res.dec)
}

func (g *Gate) judge(dec models.OracleDecision) models.OracleOutcome {
	if dec.Confidence < 0 || dec.Confidence > 100 {
		out := g.fallback(errors.Wrapf(models.ErrOracleUnavailable, "confidence %.2f out of range", dec.Confidence))
		out.Decision = dec
		return out
	}
	switch {
	case dec.Verdict == models.VerdictApprove && dec.Confidence >= g.set.MinApproveConfidence:
		return models.OracleOutcome{Proceed: true, Decision: dec}
	case dec.Verdict == models.VerdictReject && dec.Confidence >= g.set.MinRejectConfidence:
		g.log.Info("oracle rejected",
			zap.Float64("confidence", dec.Confidence),
			zap.String("source", dec.Source),
		)
		return models.OracleOutcome{Decision: dec, Reason: models.ReasonOracleRejected}
	}
	out := g.fallback(errors.Errorf("%s verdict at confidence %.2f", verdictName(dec.Verdict), dec.Confidence))
	out.Decision = dec
	return out
}

// fallback: решение остаётся за правилами, вход разрешён.
func (g *Gate) fallback(err error) models.OracleOutcome {
	g.log.Warn("oracle fallback",
		zap.String("reason", string(models.ReasonOracleFallback)),
		zap.Error(err),
	)
	return models.OracleOutcome{
		Proceed:  true,
		Fallback: true,
		Decision: models.OracleDecision{Verdict: models.VerdictUncertain},
		Reason:   models.ReasonOracleFallback,
		Error:    err.Error(),
	}
}

func verdictName(v models.OracleVerdict) string {
	if v == "" {
		return "empty"
	}
	return string(v)
}
