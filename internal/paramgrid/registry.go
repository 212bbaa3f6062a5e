// Package paramgrid holds the canonical hyperparameter grids of each model
// family and the exclusion bookkeeping used to map remote search setups back
// to the parameter they held out.
package paramgrid

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownModelFamily = errors.New("unknown model family")
	ErrUnknownParameter   = errors.New("unknown parameter")
	ErrNotImplemented     = errors.New("not implemented")
)

// RandomForest is the only family shipped in the default registry.
const RandomForest = "random_forest"

// Registry maps a model family to its full grid. It is built once at start-up
// and passed to whoever needs it; nothing mutates it afterwards.
type Registry struct {
	families map[string]Grid
}

// NewRegistry copies grids into a new registry.
func NewRegistry(grids map[string]Grid) *Registry {
	r := &Registry{families: make(map[string]Grid, len(grids))}
	for name, g := range grids {
		r.families[name] = g
	}
	return r
}

// DefaultRegistry returns the built-in grids.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Grid{
		RandomForest: randomForestGrid(),
	})
}

func randomForestGrid() Grid {
	ints := func(lo, hi int) []Value {
		out := make([]Value, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			out = append(out, Number(float64(i)))
		}
		return out
	}
	return MustGrid(
		Entry{Name: "classifier__min_samples_leaf", Values: ints(1, 20)},
		Entry{Name: "classifier__max_features", Values: []Value{
			Number(0.1), Number(0.2), Number(0.3), Number(0.4), Number(0.5),
			Number(0.6), Number(0.7), Number(0.8), Number(0.9),
		}},
		Entry{Name: "classifier__bootstrap", Values: []Value{Bool(true), Bool(false)}},
		Entry{Name: "classifier__min_samples_split", Values: ints(2, 20)},
		Entry{Name: "classifier__criterion", Values: []Value{Text("gini"), Text("entropy")}},
		Entry{Name: "imputation__strategy", Values: []Value{Text("mean"), Text("median"), Text("most_frequent")}},
	)
}

// Families lists the registered model families in alphabetical order.
func (r *Registry) Families() []string {
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// With returns a new registry holding r's families plus grids. A family in
// grids replaces the one in r.
func (r *Registry) With(grids map[string]Grid) *Registry {
	out := NewRegistry(r.families)
	for name, g := range grids {
		out.families[name] = g
	}
	return out
}

func (r *Registry) full(family string) (Grid, error) {
	g, ok := r.families[family]
	if !ok {
		return Grid{}, fmt.Errorf("%w: %q", ErrUnknownModelFamily, family)
	}
	return g, nil
}

// GridFor returns the grid of family minus exclude, optionally in reverse
// declaration order. Every excluded name must be a key of the full grid.
func (r *Registry) GridFor(family string, exclude []string, reverse bool) (Grid, error) {
	g, err := r.full(family)
	if err != nil {
		return Grid{}, err
	}
	for _, name := range exclude {
		if !g.Has(name) {
			return Grid{}, fmt.Errorf("%w: %q not in %s grid", ErrUnknownParameter, name, family)
		}
	}
	if len(exclude) > 0 {
		g = g.Without(exclude...)
	}
	if reverse {
		g = g.Reversed()
	}
	return g, nil
}

// Parameters returns the full parameter set of family.
func (r *Registry) Parameters(family string) (map[string]struct{}, error) {
	g, err := r.full(family)
	if err != nil {
		return nil, err
	}
	return g.KeySet(), nil
}

// Values returns the candidate values of one parameter of family.
func (r *Registry) Values(family, parameter string) ([]Value, error) {
	g, err := r.full(family)
	if err != nil {
		return nil, err
	}
	vals, ok := g.Values(parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %q not in %s grid", ErrUnknownParameter, parameter, family)
	}
	return vals, nil
}

// ExcludedParams returns the parameters of family that partial does not
// declare.
func (r *Registry) ExcludedParams(family string, partial Grid) (map[string]struct{}, error) {
	g, err := r.full(family)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{})
	for _, name := range g.Keys() {
		if !partial.Has(name) {
			excluded[name] = struct{}{}
		}
	}
	return excluded, nil
}

// Combinations enumerates ordered pairs of distinct parameters of family.
// Only k == 2 is supported. Both (a, b) and (b, a) are emitted, so the result
// has n*(n-1) pairs.
func (r *Registry) Combinations(family string, k int) ([][2]string, error) {
	if k != 2 {
		return nil, fmt.Errorf("%w: combinations of %d parameters", ErrNotImplemented, k)
	}
	g, err := r.full(family)
	if err != nil {
		return nil, err
	}
	keys := g.Keys()
	pairs := make([][2]string, 0, len(keys)*(len(keys)-1))
	for _, p1 := range keys {
		for _, p2 := range keys {
			if p1 == p2 {
				continue
			}
			pairs = append(pairs, [2]string{p1, p2})
		}
	}
	return pairs, nil
}

// SingleExclusionTemplates returns, for every parameter p of family, the
// grid with only p held out, keyed by p.
func (r *Registry) SingleExclusionTemplates(family string) (map[string]Grid, error) {
	g, err := r.full(family)
	if err != nil {
		return nil, err
	}
	templates := make(map[string]Grid, g.Len())
	for _, name := range g.Keys() {
		templates[name] = g.Without(name)
	}
	return templates, nil
}
