package helper

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "240m", "4h":
		return "4h"
	case "1440m", "24h", "1d":
		return "1d"
	default:
		return s
	}
}

// TimeframeDuration parses "1m", "15m", "1h", "4h", "1d".
func TimeframeDuration(raw string) (time.Duration, error) {
	s := NormTF(raw)
	if len(s) < 2 {
		return 0, errors.Errorf("bad timeframe %q", raw)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, errors.Errorf("bad timeframe %q", raw)
	}
	switch s[len(s)-1] {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, errors.Errorf("bad timeframe %q", raw)
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// RoundDownToStep rounds a quantity down to the lot step.
func RoundDownToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step+1e-9) * step
}

// BarPath expands a closed bar into the price sequence it most likely traded:
// O→L→H→C for an up bar, O→H→L→C for a down bar. The open is not intrabar
// (it may gap from the previous close); the rest are.
func BarPath(b models.Bar) []models.Tick {
	d := b.End.Sub(b.Start)
	first, second := b.Low, b.High
	if b.Close < b.Open {
		first, second = b.High, b.Low
	}
	return []models.Tick{
		{Symbol: b.Symbol, Price: b.Open, At: b.Start},
		{Symbol: b.Symbol, Price: first, At: b.Start.Add(d / 3), Intrabar: true},
		{Symbol: b.Symbol, Price: second, At: b.Start.Add(2 * d / 3), Intrabar: true},
		{Symbol: b.Symbol, Price: b.Close, At: b.End, Intrabar: true},
	}
}
