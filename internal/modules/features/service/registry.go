package service

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

// ParamSchema describes one accepted parameter of an indicator or condition type.
type ParamSchema struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
	Integer bool
}

// Params are resolved parameter values, defaults included.
type Params map[string]float64

func (p Params) Int(name string) int { return int(math.Round(p[name])) }

// ResolveParams checks ps against schema and fills in defaults.
func ResolveParams(kind string, schema []ParamSchema, ps []models.Param) (Params, error) {
	byName := make(map[string]ParamSchema, len(schema))
	out := make(Params, len(schema))
	for _, s := range schema {
		byName[s.Name] = s
		out[s.Name] = s.Default
	}
	for _, p := range ps {
		s, ok := byName[p.Name]
		if !ok {
			return nil, errors.Errorf("%s: unknown param %q", kind, p.Name)
		}
		if err := checkValue(kind, s, p.Value); err != nil {
			return nil, err
		}
		if p.Range != nil {
			r := *p.Range
			if r.Step <= 0 || r.Max < r.Min {
				return nil, errors.Errorf("%s: param %q has bad range [%v..%v step %v]", kind, p.Name, r.Min, r.Max, r.Step)
			}
			if err := checkValue(kind, s, r.Min); err != nil {
				return nil, err
			}
			if err := checkValue(kind, s, r.Max); err != nil {
				return nil, err
			}
		}
		out[p.Name] = p.Value
	}
	return out, nil
}

func checkValue(kind string, s ParamSchema, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Errorf("%s: param %q is not finite", kind, s.Name)
	}
	if v < s.Min || v > s.Max {
		return errors.Errorf("%s: param %q=%v out of [%v..%v]", kind, s.Name, v, s.Min, s.Max)
	}
	if s.Integer && v != math.Trunc(v) {
		return errors.Errorf("%s: param %q=%v must be an integer", kind, s.Name, v)
	}
	return nil
}

// Indicator computes its outputs for the last bar of a window.
type Indicator interface {
	Name() string
	Outputs() []string
	// Lookback is the number of bars needed before any output exists.
	Lookback() int
	Compute(window []models.Bar, fs *models.FeatureSet)
}

// Kind is a registered indicator type.
type Kind struct {
	Type   string
	Schema []ParamSchema
	// Sourced kinds read the price field named by IndicatorSpec.Source.
	Sourced bool
	New     func(name, source string, p Params) (Indicator, error)
}

// Registry maps type tags to indicator constructors.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]Kind)}
	for _, k := range builtinKinds() {
		r.kinds[k.Type] = k
	}
	return r
}

func (r *Registry) Register(k Kind) error {
	if k.Type == "" || k.New == nil {
		return errors.New("indicator kind needs a type and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[k.Type]; ok {
		return errors.Errorf("indicator type %q already registered", k.Type)
	}
	r.kinds[k.Type] = k
	return nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for t := range r.kinds {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Schema(typ string) ([]ParamSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[typ]
	if !ok {
		return nil, false
	}
	return append([]ParamSchema(nil), k.Schema...), true
}

// Build validates spec against its type's schema and constructs the indicator.
func (r *Registry) Build(spec models.IndicatorSpec) (Indicator, error) {
	if spec.Name == "" {
		return nil, errors.Errorf("indicator of type %q has no name", spec.Type)
	}
	r.mu.RLock()
	k, ok := r.kinds[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("indicator %q: unknown type %q", spec.Name, spec.Type)
	}
	src := spec.Source
	if src == "" {
		src = models.FeatClose
	}
	if !k.Sourced && spec.Source != "" && spec.Source != models.FeatClose {
		return nil, errors.Errorf("indicator %q: type %q does not take a source", spec.Name, spec.Type)
	}
	if !validSource(src) {
		return nil, errors.Errorf("indicator %q: unknown source %q", spec.Name, src)
	}
	p, err := ResolveParams(spec.Name, k.Schema, spec.Params)
	if err != nil {
		return nil, err
	}
	ind, err := k.New(spec.Name, src, p)
	if err != nil {
		return nil, errors.Wrapf(err, "indicator %q", spec.Name)
	}
	return ind, nil
}

func validSource(s string) bool {
	switch s {
	case models.FeatOpen, models.FeatHigh, models.FeatLow, models.FeatClose, models.FeatVolume:
		return true
	}
	return false
}

func sourceValue(b models.Bar, src string) float64 {
	switch src {
	case models.FeatOpen:
		return b.Open
	case models.FeatHigh:
		return b.High
	case models.FeatLow:
		return b.Low
	case models.FeatVolume:
		return b.Volume
	default:
		return b.Close
	}
}

func series(window []models.Bar, src string) []float64 {
	out := make([]float64, len(window))
	for i, b := range window {
		out[i] = sourceValue(b, src)
	}
	return out
}
