package service

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"trade_engine/internal/models"
)

func dim(name string, n int) Dimension {
	d := Dimension{Name: name, Values: make([]float64, n)}
	for i := range d.Values {
		d.Values[i] = float64(i + 1)
	}
	return d
}

func comboKey(c []float64) string { return fmt.Sprint(c) }

func TestMakePlanSwitchesToRandomSampling(t *testing.T) {
	dims := []Dimension{
		dim("a", 10), dim("b", 10), dim("c", 10), dim("d", 10), dim("e", 10),
		dim("f", 21), dim("g", 72),
	}
	if GridSize(dims) != 151_200_000 {
		t.Fatalf("grid = %v", GridSize(dims))
	}
	cfg := models.DefaultSweepSettings()
	cfg.Budget = 500

	core, logs := observer.New(zapcore.InfoLevel)
	plan, err := MakePlan(dims, cfg, zap.New(core))
	if err != nil {
		t.Fatalf("MakePlan: %v", err)
	}
	if plan.Mode != ModeRandom || len(plan.Combos) != 500 || plan.Threshold != 5000 {
		t.Fatalf("plan mode=%s combos=%d threshold=%v", plan.Mode, len(plan.Combos), plan.Threshold)
	}
	seen := map[string]bool{}
	for _, c := range plan.Combos {
		if seen[comboKey(c)] {
			t.Fatalf("duplicate combination %v", c)
		}
		seen[comboKey(c)] = true
	}

	warn := logs.FilterMessage("grid too large, switching to random sampling").All()
	if len(warn) != 1 || warn[0].Level != zapcore.WarnLevel {
		t.Fatalf("switch not logged: %+v", logs.All())
	}
	if got := warn[0].ContextMap()["samples"]; got != int64(500) {
		t.Fatalf("samples field = %v", got)
	}

	again, _ := MakePlan(dims, cfg, zap.NewNop())
	for i := range plan.Combos {
		if comboKey(plan.Combos[i]) != comboKey(again.Combos[i]) {
			t.Fatalf("seeded sampling not reproducible at %d", i)
		}
	}
}

func TestMakePlanEnumeratesSmallGrid(t *testing.T) {
	dims := []Dimension{dim("a", 3), dim("b", 2)}
	cfg := models.DefaultSweepSettings()

	core, logs := observer.New(zapcore.InfoLevel)
	plan, err := MakePlan(dims, cfg, zap.New(core))
	if err != nil {
		t.Fatalf("MakePlan: %v", err)
	}
	if plan.Mode != ModeGrid || len(plan.Combos) != 6 || logs.Len() != 0 {
		t.Fatalf("plan = %+v, logs = %d", plan, logs.Len())
	}
	want := [][]float64{{1, 1}, {1, 2}, {2, 1}, {2, 2}, {3, 1}, {3, 2}}
	for i, c := range plan.Combos {
		if comboKey(c) != comboKey(want[i]) {
			t.Fatalf("combo %d = %v, want %v", i, c, want[i])
		}
	}
}

func TestMakePlanThreshold(t *testing.T) {
	dims := []Dimension{dim("a", 10), dim("b", 10)}
	tests := []struct {
		name string
		cfg  models.SweepSettings
		mode string
		n    int
	}{
		{"under safety multiple", models.SweepSettings{Budget: 20, SafetyMultiple: 10}, ModeGrid, 100},
		{"over safety multiple", models.SweepSettings{Budget: 5, SafetyMultiple: 10}, ModeRandom, 5},
		{"max combinations wins", models.SweepSettings{Budget: 20, SafetyMultiple: 10, MaxCombinations: 50}, ModeRandom, 20},
		{"budget over grid", models.SweepSettings{Budget: 500, MaxCombinations: 50}, ModeRandom, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := MakePlan(dims, tt.cfg, zap.NewNop())
			if err != nil {
				t.Fatalf("MakePlan: %v", err)
			}
			if plan.Mode != tt.mode || len(plan.Combos) != tt.n {
				t.Fatalf("mode=%s combos=%d", plan.Mode, len(plan.Combos))
			}
		})
	}

	if _, err := MakePlan(nil, models.DefaultSweepSettings(), zap.NewNop()); err == nil {
		t.Fatal("want no ranges error")
	}
	if _, err := MakePlan(dims, models.SweepSettings{}, zap.NewNop()); err == nil {
		t.Fatal("want budget error")
	}
}

type memorySink struct{ saved []SweepResult }

func (m *memorySink) SaveSweep(_ context.Context, r SweepResult) error {
	m.saved = append(m.saved, r)
	return nil
}

func TestSweepParallelMatchesSequential(t *testing.T) {
	bars := trendBars(140)
	extra := map[string]models.ParamRange{
		"risk.risk_pct":        {Min: 0.5, Max: 1.5, Step: 0.5},
		"signal.stop_atr_mult": {Min: 1, Max: 2, Step: 1},
	}

	run := func(workers int) SweepResult {
		cfg := models.DefaultSweepSettings()
		cfg.Workers = workers
		sink := &memorySink{}
		res, err := NewSweeper(NewRunner(nil), cfg, sink, zap.NewNop()).Sweep(context.Background(), runnerSettings(), extra, bars)
		if err != nil {
			t.Fatalf("sweep workers=%d: %v", workers, err)
		}
		if len(sink.saved) != 1 || sink.saved[0].RunID != res.RunID {
			t.Fatalf("sink = %+v", sink.saved)
		}
		return res
	}
	seq, par := run(1), run(4)

	if seq.Mode != ModeGrid || len(seq.Trials) != 6 || len(par.Trials) != 6 {
		t.Fatalf("trials seq=%d par=%d", len(seq.Trials), len(par.Trials))
	}
	for i := range seq.Trials {
		a, b := seq.Trials[i], par.Trials[i]
		if a.Index != b.Index || !approx(a.Score, b.Score) || a.Error != b.Error {
			t.Fatalf("trial %d differs: %+v vs %+v", i, a, b)
		}
		if i > 0 && a.Error == "" && a.Score > seq.Trials[i-1].Score {
			t.Fatalf("trials not sorted at %d", i)
		}
	}
	best, ok := seq.Best()
	if !ok || best.Params["risk.risk_pct"] == 0 {
		t.Fatalf("best = %+v", best)
	}
}

func TestSweepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	extra := map[string]models.ParamRange{"risk.risk_pct": {Min: 0.5, Max: 1.5, Step: 0.5}}
	_, err := NewSweeper(NewRunner(nil), models.DefaultSweepSettings(), nil, zap.NewNop()).
		Sweep(ctx, runnerSettings(), extra, trendBars(100))
	if err == nil {
		t.Fatal("want context error")
	}
}
