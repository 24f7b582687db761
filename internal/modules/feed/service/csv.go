package service

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

// ReadCSV reads closed bars of one timeframe. Columns:
// time,open,high,low,close,volume[,gap]; time is unix seconds, unix
// milliseconds or RFC3339. A header row is skipped. Bars are returned sorted
// by start time with exact duplicates removed.
func ReadCSV(r io.Reader, symbol, timeframe string) ([]models.Bar, error) {
	tf, err := helper.TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}
	norm := helper.NormTF(timeframe)

	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []models.Bar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}
		if len(rec) < 6 {
			return nil, errors.Errorf("csv line %d: want 6 columns, got %d", line, len(rec))
		}
		ts := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\ufeff")
		if line == 1 && isHeader(ts) {
			continue
		}
		start, err := parseTime(ts)
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}
		var v [5]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "csv line %d column %d", line, i+2)
			}
		}
		b := models.Bar{
			Symbol:    symbol,
			Timeframe: norm,
			Start:     start,
			End:       start.Add(tf),
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    v[4],
		}
		if len(rec) > 6 {
			b.Gap, _ = strconv.ParseBool(strings.TrimSpace(rec[6]))
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Start.Equal(out[len(out)-1].Start) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// ReadCSVFile is ReadCSV over a file on disk.
func ReadCSVFile(path, symbol, timeframe string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open history file")
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadCSV(f, symbol, timeframe)
}

func isHeader(s string) bool {
	switch strings.ToLower(s) {
	case "time", "timestamp", "timestamp_ms", "ts", "date", "open_time":
		return true
	}
	return false
}

func parseTime(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// больше 1e12: миллисекунды
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Errorf("bad time %q", s)
	}
	return t.UTC(), nil
}
