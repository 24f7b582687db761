package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestResultStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "sweeps.db")
	rs, err := OpenResultStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		_ = rs.Close()
	}()

	res := SweepResult{
		RunID: "run-1", Mode: ModeRandom, GridSize: 151_200_000,
		Started: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Trials: []Trial{
			{Index: 2, Params: map[string]float64{"risk.risk_pct": 1.5}, Score: 300, Report: Report{Metrics: Metrics{Trades: 4, NetProfit: 300}}},
			{Index: 0, Params: map[string]float64{"risk.risk_pct": 0.5}, Score: 100, Report: Report{Metrics: Metrics{Trades: 4, NetProfit: 100}}},
			{Index: 1, Params: map[string]float64{"risk.risk_pct": 1.0}, Error: "bad combination"},
		},
	}
	ctx := context.Background()
	if err := rs.SaveSweep(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}

	top, err := rs.TopTrials(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("top = %+v", top)
	}
	if top[0].Index != 2 || top[0].Params["risk.risk_pct"] != 1.5 || top[0].NetProfit != 300 {
		t.Fatalf("best = %+v", top[0])
	}

	// один run_id дважды не пишется
	if err := rs.SaveSweep(ctx, res); err == nil {
		t.Fatal("want duplicate run error")
	}
	if top, _ := rs.TopTrials(ctx, "run-1", 10); len(top) != 2 {
		t.Fatalf("failed save left rows: %d", len(top))
	}

	if _, err := OpenResultStore(""); err == nil {
		t.Fatal("want empty path error")
	}
}
