package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trade_engine/internal/models"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNewConfig_FileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "values.yaml", `
engine:
  symbol: ETHUSDT
  timeframe: 1h
  base_timeframe: 5m
risk:
  risk_pct: 0.5
oracle:
  timeout: 2s
store:
  kind: memory
`)
	t.Setenv(configFilePathENV, path)

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Engine.Symbol != "ETHUSDT" || cfg.Engine.Timeframe != "1h" {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.Risk.RiskPct != 0.5 {
		t.Fatalf("risk_pct = %v", cfg.Risk.RiskPct)
	}
	if cfg.Oracle.Timeout != 2*time.Second {
		t.Fatalf("oracle timeout = %v", cfg.Oracle.Timeout)
	}
	// untouched sections keep defaults
	if cfg.Engine.WindowSize != models.DefaultSettings().Engine.WindowSize {
		t.Fatalf("window = %d", cfg.Engine.WindowSize)
	}
	if len(cfg.Signal.Conditions) != len(models.DefaultConditionSpecs()) {
		t.Fatalf("conditions = %d", len(cfg.Signal.Conditions))
	}
	if got := cfg.StateKey(); got != "engine:ETHUSDT:1h" {
		t.Fatalf("state key = %q", got)
	}
}

func TestNewConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(configFilePathENV, filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("SYMBOL", "SOLUSDT")
	t.Setenv("DAILY_LOSS_LIMIT_PCT", "2.5")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Engine.Symbol != "SOLUSDT" {
		t.Fatalf("symbol = %q", cfg.Engine.Symbol)
	}
	if cfg.Risk.DailyLossLimitPct != 2.5 {
		t.Fatalf("daily limit = %v", cfg.Risk.DailyLossLimitPct)
	}
}

func TestNewConfig_PresetAndSpecs(t *testing.T) {
	dir := t.TempDir()
	specs := writeFile(t, dir, "specs.yaml", `
indicators:
  - name: ema_fast
    type: ema
    params: [{name: period, value: 5}]
  - name: ema_slow
    type: ema
    params: [{name: period, value: 13}]
min_score: 1
`)
	path := writeFile(t, dir, "values.yaml", "preset: safe\nspecs_file: "+specs+"\n")
	t.Setenv(configFilePathENV, path)

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if len(cfg.Indicators) != 2 || cfg.Signal.MinScore != 1 {
		t.Fatalf("indicators = %d min score = %d", len(cfg.Indicators), cfg.Signal.MinScore)
	}
	want := models.DefaultSettings()
	if err := models.ApplyPreset("safe", &want); err != nil {
		t.Fatal(err)
	}
	if cfg.Risk.RiskPct != want.Risk.RiskPct || cfg.Trailing.ActivationPct != want.Trailing.ActivationPct {
		t.Fatalf("preset not applied: %+v", cfg.Risk)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no symbol", func(c *Config) { c.Engine.Symbol = "" }, "symbol"},
		{"bad timeframe", func(c *Config) { c.Engine.Timeframe = "15x" }, "timeframe"},
		{"base not divisor", func(c *Config) { c.Engine.Timeframe = "10m"; c.Engine.BaseTimeframe = "3m" }, "multiple"},
		{"risk pct", func(c *Config) { c.Risk.RiskPct = 0 }, "risk_pct"},
		{"min score", func(c *Config) { c.Signal.MinScore = 99 }, "min_score"},
		{"store", func(c *Config) { c.Store.Kind = "etcd" }, "store kind"},
		{"postgres dsn", func(c *Config) { c.Store.Kind = "postgres" }, "db_dsn"},
		{"oracle kind", func(c *Config) { c.Oracle.Enabled = true; c.Oracle.Kind = "carrier-pigeon" }, "oracle kind"},
		{"stop mode", func(c *Config) { c.Risk.StopMode = "fixed" }, "stop_mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}
