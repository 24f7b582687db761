package service

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"trade_engine/internal/models"
)

// SpecFile is an indicator and condition set kept outside the main config.
type SpecFile struct {
	Indicators []models.IndicatorSpec `yaml:"indicators"`
	Conditions []models.ConditionSpec `yaml:"conditions"`
	MinScore   int                    `yaml:"min_score"`
}

func LoadSpecs(r io.Reader) (SpecFile, error) {
	var f SpecFile
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return SpecFile{}, errors.Wrap(err, "decode spec file")
	}
	return f, nil
}

func LoadSpecsFile(path string) (SpecFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return SpecFile{}, errors.Wrap(err, "open spec file")
	}
	defer func() {
		_ = file.Close()
	}()
	return LoadSpecs(file)
}
