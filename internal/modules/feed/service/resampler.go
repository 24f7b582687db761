package service

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

// Resampler aggregates base bars into target-timeframe bars. A bucket is
// emitted only when its last constituent has closed or a bar from a later
// bucket arrives; a partial aggregate is never returned.
type Resampler struct {
	target string
	base   time.Duration
	tf     time.Duration
	want   int

	cur       *bucket
	lastStart time.Time
}

type bucket struct {
	bar   models.Bar
	count int
	gap   bool
}

func NewResampler(base, target string) (*Resampler, error) {
	if base == "" {
		base = target
	}
	bd, err := helper.TimeframeDuration(base)
	if err != nil {
		return nil, err
	}
	td, err := helper.TimeframeDuration(target)
	if err != nil {
		return nil, err
	}
	if bd > td || td%bd != 0 {
		return nil, errors.Errorf("timeframe %s is not a multiple of %s", target, base)
	}
	return &Resampler{
		target: helper.NormTF(target),
		base:   bd,
		tf:     td,
		want:   int(td / bd),
	}, nil
}

// Passthrough reports whether base and target timeframes are the same.
func (r *Resampler) Passthrough() bool { return r.want == 1 }

// Add consumes one closed base bar and returns the target bars it closed,
// oldest first.
func (r *Resampler) Add(b models.Bar) []models.Bar {
	if r.want == 1 {
		return []models.Bar{b}
	}
	// повтор или бар из прошлого
	if !r.lastStart.IsZero() && !b.Start.After(r.lastStart) {
		return nil
	}
	r.lastStart = b.Start

	var out []models.Bar
	start := b.Start.UTC().Truncate(r.tf)
	if r.cur != nil && !r.cur.bar.Start.Equal(start) {
		out = r.flush(out)
	}
	if r.cur == nil {
		r.cur = &bucket{bar: models.Bar{
			Symbol:    b.Symbol,
			Timeframe: r.target,
			Start:     start,
			End:       start.Add(r.tf),
		}}
	}

	if err := b.Validate(); err != nil {
		// битая свеча: корзина будет помечена как неполная
		r.cur.gap = true
	} else {
		c := &r.cur.bar
		if r.cur.count == 0 {
			c.Open, c.High, c.Low = b.Open, b.High, b.Low
		}
		c.High = math.Max(c.High, b.High)
		c.Low = math.Min(c.Low, b.Low)
		c.Close = b.Close
		c.Volume += b.Volume
		r.cur.count++
		r.cur.gap = r.cur.gap || b.Gap
	}

	if !b.Start.Add(r.base).Before(r.cur.bar.End) {
		out = r.flush(out)
	}
	return out
}

// flush closes the current bucket. A bucket without a single valid
// constituent is dropped.
func (r *Resampler) flush(out []models.Bar) []models.Bar {
	cur := r.cur
	r.cur = nil
	if cur.count == 0 {
		return out
	}
	bar := cur.bar
	bar.Gap = cur.gap || cur.count < r.want
	return append(out, bar)
}
