package service

import (
	"context"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

// Cycler is what the driver feeds; *Engine implements it.
type Cycler interface {
	RunCycle(ctx context.Context, ev models.Event) (models.CycleReport, error)
}

// Aggregator turns base bars into closed signal-timeframe bars.
type Aggregator interface {
	Add(b models.Bar) []models.Bar
}

// Driver is the single path from base bars to engine events, shared by the
// live loop and replay. In replay each base bar becomes its price path of
// ticks (for the monitor) followed by any signal bars it closes. Live, the
// monitor already saw the real ticks of the forming candle, so closed base
// bars only feed the aggregator.
type Driver struct {
	eng  Cycler
	agg  Aggregator
	live bool
}

// NewDriver is the replay driver: agg may be nil when base and signal
// timeframes match.
func NewDriver(eng Cycler, agg Aggregator) *Driver {
	return &Driver{eng: eng, agg: agg}
}

// NewLiveDriver takes prices from OnTick instead of synthesising them.
func NewLiveDriver(eng Cycler, agg Aggregator) *Driver {
	return &Driver{eng: eng, agg: agg, live: true}
}

// OnBaseBar returns the reports of cycles that did something.
func (d *Driver) OnBaseBar(ctx context.Context, b models.Bar) ([]models.CycleReport, error) {
	var out []models.CycleReport
	run := func(ev models.Event) error {
		rep, err := d.eng.RunCycle(ctx, ev)
		if err != nil {
			return err
		}
		if rep.Action != models.ActionNone || rep.Signal != nil {
			out = append(out, rep)
		}
		return nil
	}

	if !d.live && b.Validate() == nil {
		for _, t := range helper.BarPath(b) {
			if err := run(models.TickEvent(t)); err != nil {
				return out, err
			}
		}
	}
	if d.agg == nil {
		return out, run(models.BarEvent(b))
	}
	for _, agg := range d.agg.Add(b) {
		if err := run(models.BarEvent(agg)); err != nil {
			return out, err
		}
	}
	return out, nil
}

// OnTick forwards a live price of the forming base candle.
func (d *Driver) OnTick(ctx context.Context, t models.Tick) (models.CycleReport, error) {
	return d.eng.RunCycle(ctx, models.TickEvent(t))
}

// OnFill forwards a venue fill.
func (d *Driver) OnFill(ctx context.Context, f models.Fill) (models.CycleReport, error) {
	return d.eng.RunCycle(ctx, models.FillEvent(f))
}
