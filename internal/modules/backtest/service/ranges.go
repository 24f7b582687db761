package service

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"trade_engine/internal/models"
)

// LoadRanges reads extra sweep ranges:
//
//	ranges:
//	  risk.risk_pct: {min: 0.5, max: 2, step: 0.5}
//	  trailing.distance_pct: {min: 0.3, max: 1, step: 0.1}
func LoadRanges(r io.Reader) (map[string]models.ParamRange, error) {
	var f struct {
		Ranges map[string]models.ParamRange `yaml:"ranges"`
	}
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode ranges")
	}
	for name, rg := range f.Ranges {
		if len(rg.Values()) == 0 {
			return nil, errors.Errorf("range %s: empty %+v", name, rg)
		}
	}
	return f.Ranges, nil
}

func LoadRangesFile(path string) (map[string]models.ParamRange, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open ranges file")
	}
	defer func() {
		_ = file.Close()
	}()
	return LoadRanges(file)
}
