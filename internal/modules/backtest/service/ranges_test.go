package service

import (
	"strings"
	"testing"
)

func TestLoadRanges(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "two ranges", in: "ranges:\n  risk.risk_pct: {min: 0.5, max: 2, step: 0.5}\n  regime.trend_adx: {min: 20, max: 30, step: 5}\n", want: 2},
		{name: "empty file", in: "", want: 0},
		{name: "zero step", in: "ranges:\n  risk.risk_pct: {min: 0.5, max: 2, step: 0}\n", wantErr: true},
		{name: "broken yaml", in: "ranges: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadRanges(strings.NewReader(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadRanges: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("ranges = %+v", got)
			}
		})
	}
}
