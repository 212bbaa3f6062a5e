// Package resolver maps runs of a hyperparameter-search flow back to the
// single parameter their search grid held out, and to the value that
// parameter was fixed at.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/banshee-data/openml-pimp/internal/monitoring"
	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

// ParamDistributions is the setup parameter holding the search grid.
const ParamDistributions = "param_distributions"

// SetupCache persists setups between invocations. Implementations must be
// safe to call with ids they have never seen.
type SetupCache interface {
	GetSetup(setupID int) (openml.Setup, bool, error)
	PutSetup(setup openml.Setup) error
}

// Resolver resolves runs against named single-exclusion templates.
type Resolver struct {
	Service  openml.Service
	Registry *paramgrid.Registry
	// Cache is optional.
	Cache SetupCache
}

// New creates a Resolver.
func New(svc openml.Service, reg *paramgrid.Registry, cache SetupCache) *Resolver {
	return &Resolver{Service: svc, Registry: reg, Cache: cache}
}

// Resolve lists the runs of flowID on every task, inspects each run's setup and
// files the run under every template whose grid equals the run's
// param_distributions. Tasks whose runs cannot be listed are logged and
// skipped. Runs whose grid does not hold out exactly one parameter are
// skipped silently.
func (r *Resolver) Resolve(ctx context.Context, taskIDs []int, flowID int, family string, templates map[string]paramgrid.Grid) (*Table, error) {
	if _, err := r.Registry.Parameters(family); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	setups, err := r.Service.ListSetups(ctx, flowID)
	if err != nil {
		monitoring.Logf("bulk setup listing for flow %d failed, falling back to single fetches: %v", flowID, err)
		setups = make(map[int]openml.Setup)
	}

	table := NewTable()
	for _, taskID := range taskIDs {
		if err := ctx.Err(); err != nil {
			return table, err
		}
		monitoring.Logf("task %d", taskID)
		runs, err := r.Service.ListRuns(ctx, taskID, flowID)
		if err != nil {
			monitoring.Logf("task %d: no runs for flow %d: %v", taskID, flowID, err)
			continue
		}

		for _, run := range runs {
			setup, err := r.setup(ctx, setups, run.SetupID)
			if err != nil {
				monitoring.Logf("task %d run %d: setup %d unavailable: %v", taskID, run.RunID, run.SetupID, err)
				continue
			}
			r.file(table, family, taskID, run.RunID, setup, names, templates)
		}
	}
	return table, nil
}

// setup returns the setup from the per-pass map, then the persistent cache,
// then the service. Fetched setups are memoised in setups.
func (r *Resolver) setup(ctx context.Context, setups map[int]openml.Setup, setupID int) (openml.Setup, error) {
	if s, ok := setups[setupID]; ok {
		return s, nil
	}
	if r.Cache != nil {
		s, ok, err := r.Cache.GetSetup(setupID)
		if err != nil {
			monitoring.Logf("setup cache lookup %d: %v", setupID, err)
		} else if ok {
			setups[setupID] = s
			return s, nil
		}
	}

	// Happens when experiments were still running during the bulk listing.
	monitoring.Logf("WARNING: setup %d not in bulk listing (should not happen), fetching individually", setupID)
	s, err := r.Service.GetSetup(ctx, setupID)
	if err != nil {
		return openml.Setup{}, err
	}
	setups[setupID] = s
	if r.Cache != nil {
		if err := r.Cache.PutSetup(s); err != nil {
			monitoring.Logf("setup cache store %d: %v", setupID, err)
		}
	}
	return s, nil
}

func (r *Resolver) file(table *Table, family string, taskID, runID int, setup openml.Setup, names []string, templates map[string]paramgrid.Grid) {
	for _, p := range setup.Parameters {
		if p.Name != ParamDistributions {
			continue
		}
		grid, err := paramgrid.ParseGrid(p.Value)
		if err != nil {
			monitoring.Logf("run %d: cannot decode %s: %v", runID, ParamDistributions, err)
			continue
		}

		excluded, err := r.Registry.ExcludedParams(family, grid)
		if err != nil {
			monitoring.Logf("run %d: %v", runID, err)
			continue
		}
		if len(excluded) != 1 {
			monitoring.Debugf("run %d: grid holds out %d parameters, not a single-exclusion template", runID, len(excluded))
			continue
		}
		var name string
		for name = range excluded {
		}

		value, err := heldOutValue(setup, name)
		if err != nil {
			monitoring.Logf("run %d: %v", runID, err)
			continue
		}

		for _, tmpl := range names {
			if templates[tmpl].Equal(grid) {
				table.Add(tmpl, taskID, value, runID)
			}
		}
	}
}

// heldOutValue finds the setup parameter matching the un-namespaced name of
// the excluded grid key and decodes its value.
func heldOutValue(setup openml.Setup, excluded string) (paramgrid.Value, error) {
	short := paramgrid.ShortName(excluded)
	p, ok := setup.ParameterByName(short)
	if !ok {
		return paramgrid.Value{}, fmt.Errorf("setup %d has no parameter %q", setup.SetupID, short)
	}
	v, err := paramgrid.ParseValue(p.Value)
	if err != nil {
		return paramgrid.Value{}, fmt.Errorf("setup %d parameter %q: %w", setup.SetupID, short, err)
	}
	return v, nil
}
