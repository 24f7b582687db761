package service

import (
	"context"
	"testing"
	"time"

	"trade_engine/internal/models"
)

type recordingCycler struct {
	events []models.Event
}

func (r *recordingCycler) RunCycle(_ context.Context, ev models.Event) (models.CycleReport, error) {
	r.events = append(r.events, ev)
	if ev.Kind == models.EventBar {
		return models.CycleReport{Action: models.ActionSkipped}, nil
	}
	return models.CycleReport{Action: models.ActionNone}, nil
}

// everyOther closes one aggregate per two base bars.
type everyOther struct {
	held []models.Bar
}

func (a *everyOther) Add(b models.Bar) []models.Bar {
	a.held = append(a.held, b)
	if len(a.held) < 2 {
		return nil
	}
	out := a.held[0]
	out.End = b.End
	out.Close = b.Close
	a.held = nil
	return []models.Bar{out}
}

func TestDriverOrdersTicksBeforeBars(t *testing.T) {
	rc := &recordingCycler{}
	d := NewDriver(rc, &everyOther{})
	ctx := context.Background()

	reps, err := d.OnBaseBar(ctx, mkBar(0, 100))
	if err != nil || len(reps) != 0 {
		t.Fatalf("first bar: %v, %+v", err, reps)
	}
	if len(rc.events) != 4 {
		t.Fatalf("events = %d, want 4 ticks", len(rc.events))
	}
	for _, ev := range rc.events {
		if ev.Kind != models.EventTick {
			t.Fatalf("unexpected event %s", ev.Kind)
		}
	}

	reps, err = d.OnBaseBar(ctx, mkBar(1, 101))
	if err != nil || len(reps) != 1 {
		t.Fatalf("second bar: %v, %+v", err, reps)
	}
	last := rc.events[len(rc.events)-1]
	if last.Kind != models.EventBar || last.Bar.Close != 101 || !last.Bar.End.Equal(mkBar(1, 101).End) {
		t.Fatalf("aggregate = %+v", last)
	}
	if len(rc.events) != 9 {
		t.Fatalf("events = %d, want 9", len(rc.events))
	}
}

func TestDriverSkipsTicksForBadBars(t *testing.T) {
	rc := &recordingCycler{}
	d := NewDriver(rc, nil)
	bad := mkBar(0, 100)
	bad.Volume = 0
	if _, err := d.OnBaseBar(context.Background(), bad); err != nil {
		t.Fatalf("OnBaseBar: %v", err)
	}
	if len(rc.events) != 1 || rc.events[0].Kind != models.EventBar {
		t.Fatalf("events = %+v", rc.events)
	}
}

func TestDriverWithEngine(t *testing.T) {
	h := newHarness(t, testSettings(), nil, nil, nil)
	h.start(t)
	d := NewDriver(h.eng, nil)
	ctx := context.Background()

	reps, err := d.OnBaseBar(ctx, mkBar(0, 100))
	if err != nil || len(reps) != 1 || reps[0].Action != models.ActionEntered {
		t.Fatalf("entry: %v, %+v", err, reps)
	}
	// свеча вниз: O→H→L→C, стоп 99 пробит внутри бара
	down := mkBar(1, 98.8)
	down.Open, down.High, down.Low = 99.8, 100.1, 98.6
	reps, err = d.OnBaseBar(ctx, down)
	if err != nil || len(reps) == 0 || reps[0].Action != models.ActionExited {
		t.Fatalf("exit: %v, %+v", err, reps)
	}
	if !approx(h.trades[0].ExitPrice, 99) {
		t.Fatalf("exit price = %v, want the stop level", h.trades[0].ExitPrice)
	}
}

func TestLiveDriverExitsOnFormingCandleTick(t *testing.T) {
	h := newHarness(t, testSettings(), nil, nil, nil)
	h.start(t)
	d := NewLiveDriver(h.eng, nil)
	ctx := context.Background()

	reps, err := d.OnBaseBar(ctx, mkBar(0, 100))
	if err != nil || len(reps) != 1 || reps[0].Action != models.ActionEntered {
		t.Fatalf("entry: %v, %+v", err, reps)
	}
	// цена формирующейся свечи ушла под стоп 99 до её закрытия
	at := mkBar(1, 90).Start.Add(40 * time.Second)
	rep, err := d.OnTick(ctx, models.Tick{Symbol: sym, Price: 90, At: at})
	if err != nil || rep.Action != models.ActionExited || rep.Exit == nil || rep.Exit.Kind != models.ExitStopLoss {
		t.Fatalf("tick: %v, %+v", err, rep)
	}
	if len(h.trades) != 1 || !approx(h.trades[0].ExitPrice, 90) || !h.trades[0].ExitTime.Equal(at) {
		t.Fatalf("trades = %+v", h.trades)
	}
}

func TestLiveDriverLeavesBarsToTicks(t *testing.T) {
	rc := &recordingCycler{}
	d := NewLiveDriver(rc, &everyOther{})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := d.OnBaseBar(ctx, mkBar(i, 100)); err != nil {
			t.Fatalf("OnBaseBar: %v", err)
		}
	}
	if len(rc.events) != 1 || rc.events[0].Kind != models.EventBar {
		t.Fatalf("events = %+v, want only the aggregate", rc.events)
	}
	if _, err := d.OnTick(ctx, models.Tick{Symbol: sym, Price: 100, At: t0}); err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if len(rc.events) != 2 || rc.events[1].Kind != models.EventTick {
		t.Fatalf("events = %+v", rc.events)
	}
}
