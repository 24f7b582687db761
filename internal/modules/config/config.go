package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	features "trade_engine/internal/modules/features/service"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Name       string `yaml:"name"`
		Host       string `yaml:"host"`
		StatusPort int    `yaml:"status_port"`
		Debug      bool   `yaml:"debug"`

		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"service"`

	// Preset (safe|mid|aggr) перекрывает риск и трейлинг из файла.
	Preset string `yaml:"preset"`
	// SpecsFile: отдельный YAML с индикаторами и условиями.
	SpecsFile string `yaml:"specs_file"`

	models.Settings `yaml:",inline"`

	Store struct {
		Kind          string        `yaml:"kind"` // memory | postgres | redis
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
		TTL           time.Duration `yaml:"ttl"`
	} `yaml:"store"`

	Feed struct {
		URL          string        `yaml:"url"`
		InstID       string        `yaml:"inst_id"` // инструмент на бирже, по умолчанию engine.symbol
		HistoryFile  string        `yaml:"history_file"`
		WarmupBars   int           `yaml:"warmup_bars"`
		Buffer       int           `yaml:"buffer"`
		PingInterval time.Duration `yaml:"ping_interval"`
	} `yaml:"feed"`

	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`

	Sweep    models.SweepSettings `yaml:"sweep"`
	Backtest struct {
		DataFile  string `yaml:"data_file"`
		ResultsDB string `yaml:"results_db"`
	} `yaml:"backtest"`
}

// Default returns a config that runs without a file.
func Default() *Config {
	c := &Config{Settings: models.DefaultSettings(), Sweep: models.DefaultSweepSettings()}
	c.Service.Name = "trade_engine"
	c.Service.Host = "0.0.0.0"
	c.Service.StatusPort = 8080
	c.Store.Kind = "memory"
	c.Store.TTL = 7 * 24 * time.Hour
	c.Feed.WarmupBars = 300
	c.Feed.Buffer = 1024
	c.Feed.PingInterval = 20 * time.Second
	c.Tracing.Host = "localhost"
	c.Tracing.Port = 6831
	c.Backtest.ResultsDB = "data/sweeps.db"
	return c
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	if !strings.Contains(configFileName, string(os.PathSeparator)) {
		configFileName = "configs/" + configFileName
	}
	cfg := Default()
	if err := cfg.LoadFile(configFileName); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads an explicit config file (no CONFIG_FILE lookup), then env.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes a YAML file over the current values.
func (c *Config) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config file")
	}
	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(c); err != nil {
		return errors.Wrap(err, "decode config file")
	}
	return nil
}

func (c *Config) applyEnv() {
	if token := os.Getenv(tokenTelegramENV); token != "" {
		c.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		c.DB = dsn
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	c.Preset = getenvDefault("PRESET", c.Preset)
	c.Service.StatusPort = intFromEnv("STATUS_PORT", c.Service.StatusPort)
	c.Service.Debug = boolFromEnv("DEBUG", c.Service.Debug)

	c.Engine.Symbol = getenvDefault("SYMBOL", c.Engine.Symbol)
	c.Engine.Timeframe = getenvDefault("TIMEFRAME", c.Engine.Timeframe)
	c.Engine.BaseTimeframe = getenvDefault("BASE_TIMEFRAME", c.Engine.BaseTimeframe)
	c.Engine.KillSwitchAutoReset = boolFromEnv("KILL_SWITCH_AUTO_RESET", c.Engine.KillSwitchAutoReset)

	c.Risk.RiskPct = floatFromEnv("RISK_PCT", c.Risk.RiskPct)
	c.Risk.DailyLossLimitPct = floatFromEnv("DAILY_LOSS_LIMIT_PCT", c.Risk.DailyLossLimitPct)
	c.Risk.MaxPositionSize = floatFromEnv("MAX_POSITION_SIZE", c.Risk.MaxPositionSize)
	c.Signal.MinScore = intFromEnv("MIN_SCORE", c.Signal.MinScore)

	c.Oracle.Enabled = boolFromEnv("ORACLE_ENABLED", c.Oracle.Enabled)
	c.Oracle.Kind = getenvDefault("ORACLE_KIND", c.Oracle.Kind)
	c.Oracle.Endpoint = getenvDefault("ORACLE_ENDPOINT", c.Oracle.Endpoint)
	c.Oracle.Timeout = durationFromEnv("ORACLE_TIMEOUT", c.Oracle.Timeout.String())

	c.Store.Kind = getenvDefault("STORE_KIND", c.Store.Kind)
	c.Store.RedisAddr = getenvDefault("REDIS_ADDR", c.Store.RedisAddr)
	c.Feed.URL = getenvDefault("FEED_URL", c.Feed.URL)
	c.Feed.InstID = getenvDefault("FEED_INST_ID", c.Feed.InstID)
	c.Feed.HistoryFile = getenvDefault("HISTORY_FILE", c.Feed.HistoryFile)
	c.Tracing.Enabled = boolFromEnv("TRACING_ENABLED", c.Tracing.Enabled)
}

func (c *Config) finish() error {
	if c.Preset != "" {
		if err := models.ApplyPreset(c.Preset, &c.Settings); err != nil {
			return err
		}
	}
	if c.SpecsFile != "" {
		f, err := features.LoadSpecsFile(c.SpecsFile)
		if err != nil {
			return err
		}
		if len(f.Indicators) > 0 {
			c.Indicators = f.Indicators
		}
		if len(f.Conditions) > 0 {
			c.Signal.Conditions = f.Conditions
		}
		if f.MinScore > 0 {
			c.Signal.MinScore = f.MinScore
		}
	}
	return c.Validate()
}

// Validate checks values that no component can repair on its own.
func (c *Config) Validate() error {
	if c.Engine.Symbol == "" {
		return errors.New("engine.symbol is required")
	}
	tf, err := helper.TimeframeDuration(c.Engine.Timeframe)
	if err != nil {
		return errors.Wrap(err, "engine.timeframe")
	}
	if c.Engine.BaseTimeframe != "" {
		base, err := helper.TimeframeDuration(c.Engine.BaseTimeframe)
		if err != nil {
			return errors.Wrap(err, "engine.base_timeframe")
		}
		if base > tf || tf%base != 0 {
			return errors.Errorf("timeframe %s is not a multiple of base %s", c.Engine.Timeframe, c.Engine.BaseTimeframe)
		}
	}
	if c.Engine.WindowSize <= 0 {
		return errors.New("engine.window_size must be positive")
	}
	if !c.Engine.StopMode.Valid() || !c.Risk.StopMode.Valid() {
		return errors.New("stop_mode must be percent or atr")
	}
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > 100 {
		return errors.Errorf("risk.risk_pct %.4f out of (0..100]", c.Risk.RiskPct)
	}
	if c.Risk.DailyLossLimitPct < 0 || c.Risk.DailyLossLimitPct > 100 {
		return errors.Errorf("risk.daily_loss_limit_pct %.4f out of [0..100]", c.Risk.DailyLossLimitPct)
	}
	if n := len(c.Signal.Conditions); c.Signal.MinScore < 1 || c.Signal.MinScore > n {
		return errors.Errorf("signal.min_score %d out of [1..%d]", c.Signal.MinScore, n)
	}
	if c.Trailing.Enabled && !c.Trailing.Mode.Valid() {
		return errors.New("trailing.mode must be percent or atr")
	}
	switch c.Store.Kind {
	case "memory", "postgres", "redis":
	default:
		return errors.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.Store.Kind == "postgres" && c.DB == "" {
		return errors.New("db_dsn is required for the postgres store")
	}
	if c.Oracle.Enabled {
		switch c.Oracle.Kind {
		case "http", "grpc", "telegram":
		default:
			return errors.Errorf("unknown oracle kind %q", c.Oracle.Kind)
		}
		if c.Oracle.Timeout <= 0 {
			return errors.New("oracle.timeout must be positive")
		}
	}
	return nil
}

// StateKey is the persistence key for this engine's record.
func (c *Config) StateKey() string {
	if c.Engine.StateKey != "" {
		return c.Engine.StateKey
	}
	return fmt.Sprintf("engine:%s:%s", c.Engine.Symbol, helper.NormTF(c.Engine.Timeframe))
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
