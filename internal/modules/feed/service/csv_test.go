package service

import (
	"strings"
	"testing"
	"time"
)

func TestReadCSV(t *testing.T) {
	in := `timestamp,open,high,low,close,volume
1704186060000,101,102,100.5,101.5,7
1704186000000,100,101,99,100.5,5
1704186000000,100,101,99,100.5,5
2024-01-02T09:02:00Z,101.5,103,101,102.8,9,true
`
	bars, err := ReadCSV(strings.NewReader(in), "BTCUSDT", "1m")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	if !bars[0].Start.Equal(t0) || bars[0].Open != 100 {
		t.Fatalf("first = %+v", bars[0])
	}
	if !bars[1].End.Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("second end = %v", bars[1].End)
	}
	if !bars[2].Gap || bars[2].Close != 102.8 {
		t.Fatalf("third = %+v", bars[2])
	}
	for _, b := range bars {
		if b.Symbol != "BTCUSDT" || b.Timeframe != "1m" {
			t.Fatalf("bar = %+v", b)
		}
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "short row", in: "1704186000,1,2,3\n"},
		{name: "bad price", in: "1704186000,1,x,1,1,1\n"},
		{name: "bad time", in: "yesterday,1,2,1,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.in), "BTCUSDT", "1m"); err == nil {
				t.Fatal("want error")
			}
		})
	}
}
