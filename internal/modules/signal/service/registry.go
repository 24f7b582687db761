package service

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
	features "trade_engine/internal/modules/features/service"
)

// ConditionKind is a registered condition type.
type ConditionKind struct {
	Type   string
	Schema []features.ParamSchema
	New    func(id string, p features.Params) (Condition, error)
}

type Registry struct {
	mu    sync.RWMutex
	kinds map[string]ConditionKind
}

func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]ConditionKind)}
	for _, k := range builtinConditions() {
		r.kinds[k.Type] = k
	}
	return r
}

func (r *Registry) Register(k ConditionKind) error {
	if k.Type == "" || k.New == nil {
		return errors.New("condition kind needs a type and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[k.Type]; ok {
		return errors.Errorf("condition type %q already registered", k.Type)
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

func (r *Registry) Build(spec models.ConditionSpec) (Condition, error) {
	id := spec.ID
	if id == "" {
		id = spec.Type
	}
	r.mu.RLock()
	k, ok := r.kinds[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("condition %q: unknown type %q", id, spec.Type)
	}
	p, err := features.ResolveParams(id, k.Schema, spec.Params)
	if err != nil {
		return nil, err
	}
	c, err := k.New(id, p)
	if err != nil {
		return nil, errors.Wrapf(err, "condition %q", id)
	}
	return c, nil
}
