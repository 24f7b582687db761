package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trade_engine/internal/models"
	feed "trade_engine/internal/modules/feed/service"
)

// Target принимает историю без торговых решений; *engine.Engine.
type Target interface {
	Warmup(bars []models.Bar) int
}

type Notifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

type Config struct {
	File          string
	Symbol        string
	BaseTimeframe string
	// Bars: сколько закрытых свечей рабочего таймфрейма отдать движку.
	Bars int
}

// Warmuper fills the engine window from a history file before the live
// stream starts. The history goes through the same resampler as live bars,
// so a bucket left open at the end of the file is completed by the stream.
type Warmuper struct {
	cfg Config
	rs  *feed.Resampler
	n   Notifier
	log *zap.Logger
}

func NewWarmuper(cfg Config, rs *feed.Resampler, n Notifier, log *zap.Logger) *Warmuper {
	return &Warmuper{cfg: cfg, rs: rs, n: n, log: log.Named("warmup")}
}

func (w *Warmuper) Warmup(ctx context.Context, t Target) (int, error) {
	if w.cfg.File == "" {
		w.log.Info("no history file, window fills from the stream")
		return 0, nil
	}
	base, err := feed.ReadCSVFile(w.cfg.File, w.cfg.Symbol, w.cfg.BaseTimeframe)
	if err != nil {
		w.n.SendService(ctx, "⚠️ warmup: %v", err)
		return 0, fmt.Errorf("warmup %s: %w", w.cfg.File, err)
	}

	var bars []models.Bar
	for _, b := range base {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		bars = append(bars, w.rs.Add(b)...)
	}
	if w.cfg.Bars > 0 && len(bars) > w.cfg.Bars {
		bars = bars[len(bars)-w.cfg.Bars:]
	}

	n := t.Warmup(bars)
	w.n.SendService(ctx, "🔥 warmup %s: base=%d bars=%d accepted=%d", w.cfg.Symbol, len(base), len(bars), n)
	return n, nil
}
