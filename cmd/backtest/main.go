package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/backtest"
	bt "trade_engine/internal/modules/backtest/service"
	"trade_engine/internal/modules/config"
	feed "trade_engine/internal/modules/feed/service"
	"trade_engine/pkg/logger"
)

const (
	modeRun         = "run"
	modeSweep       = "sweep"
	modeWalkForward = "walk-forward"
)

func flags() *viper.Viper {
	fs := pflag.NewFlagSet("backtest", pflag.ExitOnError)
	fs.String("config", "configs/values_local.yaml", "config file")
	fs.String("data", "", "CSV with base bars (time,open,high,low,close,volume)")
	fs.String("mode", modeRun, "run | sweep | walk-forward")
	fs.String("results", "", "SQLite file for sweep results")
	fs.String("objective", "", "sweep objective")
	fs.Int("budget", 0, "sweep budget")
	fs.Int("workers", 0, "parallel trials")
	fs.Int64("seed", 0, "random sampling seed")
	fs.String("ranges", "", "YAML file with extra sweep ranges")
	fs.StringSlice("range", nil, "extra range name=min:max:step, repeatable")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)
	return v
}

// parseRanges: "risk.risk_pct=0.5:2:0.5".
func parseRanges(raw []string) (map[string]models.ParamRange, error) {
	out := make(map[string]models.ParamRange, len(raw))
	for _, r := range raw {
		name, spec, ok := strings.Cut(r, "=")
		parts := strings.Split(spec, ":")
		if !ok || len(parts) != 3 {
			return nil, errors.Errorf("bad range %q", r)
		}
		var vals [3]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "range %q", r)
			}
			vals[i] = f
		}
		out[name] = models.ParamRange{Min: vals[0], Max: vals[1], Step: vals[2]}
	}
	return out, nil
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if s := v.GetString("data"); s != "" {
		cfg.Backtest.DataFile = s
	}
	if s := v.GetString("results"); s != "" {
		cfg.Backtest.ResultsDB = s
	}
	if s := v.GetString("objective"); s != "" {
		cfg.Sweep.Objective = s
	}
	if n := v.GetInt("budget"); n > 0 {
		cfg.Sweep.Budget = n
	}
	if n := v.GetInt("workers"); n > 0 {
		cfg.Sweep.Workers = n
	}
	if n := v.GetInt64("seed"); n != 0 {
		cfg.Sweep.Seed = n
	}
	if cfg.Backtest.DataFile == "" {
		return nil, errors.New("no data file: set --data or backtest.data_file")
	}
	return cfg, nil
}

func printJSON(v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func run(ctx context.Context, v *viper.Viper, cfg *config.Config, runner *bt.Runner, sw *bt.Sweeper, log *zap.Logger) error {
	base := cfg.Engine.BaseTimeframe
	if base == "" {
		base = cfg.Engine.Timeframe
	}
	bars, err := feed.ReadCSVFile(cfg.Backtest.DataFile, cfg.Engine.Symbol, base)
	if err != nil {
		return err
	}
	log.Info("history loaded", zap.String("file", cfg.Backtest.DataFile), zap.Int("bars", len(bars)))

	extra := map[string]models.ParamRange{}
	if f := v.GetString("ranges"); f != "" {
		if extra, err = bt.LoadRangesFile(f); err != nil {
			return err
		}
		if extra == nil {
			extra = map[string]models.ParamRange{}
		}
	}
	flagged, err := parseRanges(v.GetStringSlice("range"))
	if err != nil {
		return err
	}
	for name, r := range flagged {
		extra[name] = r
	}

	switch mode := v.GetString("mode"); mode {
	case modeRun:
		rep, err := runner.Run(ctx, cfg.Settings, bars)
		if err != nil {
			return err
		}
		return printJSON(rep)
	case modeSweep:
		res, err := sw.Sweep(ctx, cfg.Settings, extra, bars)
		if err != nil {
			return err
		}
		if len(res.Trials) > 10 {
			res.Trials = res.Trials[:10]
		}
		return printJSON(res)
	case modeWalkForward:
		res, err := sw.WalkForward(ctx, cfg.Settings, extra, bars)
		if err != nil {
			return err
		}
		res.InSample.Trials = nil
		return printJSON(res)
	default:
		return errors.Errorf("unknown mode %q", mode)
	}
}

func main() {
	v := flags()
	cfg, err := loadConfig(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logger.New(cfg.Service.Name+"-backtest", cfg.Service.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	var (
		runner *bt.Runner
		sw     *bt.Sweeper
	)
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, log),
		backtest.Module(),
		fx.Populate(&runner, &sw),
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Start(ctx); err != nil {
		log.Fatal("start", zap.Error(err))
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	if err := run(ctx, v, cfg, runner, sw, log); err != nil {
		log.Error("backtest failed", zap.Error(err))
		_ = app.Stop(context.Background())
		os.Exit(1)
	}
}
