// Package runhistory turns the evaluated runs of a flow on a task into the
// run-history and configuration-space files the importance backends read,
// and caches them on disk.
package runhistory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/banshee-data/openml-pimp/internal/configspace"
	"github.com/banshee-data/openml-pimp/internal/fsutil"
	"github.com/banshee-data/openml-pimp/internal/monitoring"
	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

// File names inside a task cache directory.
const (
	RunHistoryFile  = "runhistory.json"
	ConfigSpaceFile = "configspace.pcs"
)

// DefaultMeasure is the evaluation used when Cache.Measure is empty.
const DefaultMeasure = "predictive_accuracy"

// ErrNotEnoughSetups is returned when a task has fewer distinct setups than
// Options.RequiredSetups.
var ErrNotEnoughSetups = errors.New("not enough setups")

// Options filters which runs make it into the files.
type Options struct {
	// ModelFamily restricts parameters to the family's grid. Empty keeps
	// every parameter.
	ModelFamily    string
	RequiredSetups int
	// Reverse writes hyperparameters in reverse declaration order.
	Reverse bool
	// FixedParameters keeps only setups whose parameter equals the value.
	FixedParameters  map[string]paramgrid.Value
	IgnoreParameters map[string]struct{}
}

// Cache builds and reuses per-task run-history files.
type Cache struct {
	Service  openml.Service
	FS       fsutil.FileSystem
	Registry *paramgrid.Registry
	Measure  string
}

// Obtain returns the run-history and configuration-space paths for
// (flowID, taskID) under dir, building them when either is missing.
func (c *Cache) Obtain(ctx context.Context, dir string, flowID, taskID int, opts Options) (string, string, error) {
	rhPath := filepath.Join(dir, RunHistoryFile)
	csPath := filepath.Join(dir, ConfigSpaceFile)
	if c.FS.Exists(rhPath) && c.FS.Exists(csPath) {
		monitoring.Debugf("task %d: using cached run history in %s", taskID, dir)
		return rhPath, csPath, nil
	}

	keep, err := c.keptParameters(opts)
	if err != nil {
		return "", "", err
	}

	measure := c.Measure
	if measure == "" {
		measure = DefaultMeasure
	}
	evals, err := c.Service.ListEvaluations(ctx, taskID, flowID, measure)
	if err != nil {
		return "", "", fmt.Errorf("list evaluations task %d: %w", taskID, err)
	}

	setups, err := c.Service.ListSetups(ctx, flowID)
	if err != nil {
		monitoring.Logf("bulk setup listing for flow %d failed, falling back to single fetches: %v", flowID, err)
		setups = make(map[int]openml.Setup)
	}

	table := newConfigTable()
	for _, e := range evals {
		s, ok := setups[e.SetupID]
		if !ok {
			monitoring.Logf("WARNING: setup %d not in bulk listing (should not happen), fetching individually", e.SetupID)
			s, err = c.Service.GetSetup(ctx, e.SetupID)
			if err != nil {
				return "", "", fmt.Errorf("get setup %d: %w", e.SetupID, err)
			}
			setups[e.SetupID] = s
		}
		if !matchesFixed(s, opts.FixedParameters) {
			continue
		}
		table.add(s, e, keep, opts.IgnoreParameters)
	}

	if n := table.distinctSetups(); n < opts.RequiredSetups {
		return "", "", fmt.Errorf("%w: task %d has %d, need %d", ErrNotEnoughSetups, taskID, n, opts.RequiredSetups)
	}

	space, err := table.space()
	if err != nil {
		return "", "", err
	}
	if opts.Reverse {
		space = space.Reversed()
	}

	rh, err := json.Marshal(table.runHistory(space))
	if err != nil {
		return "", "", err
	}
	var cs bytes.Buffer
	if err := configspace.Write(&cs, space); err != nil {
		return "", "", err
	}

	if err := c.FS.MkdirAll(dir, 0755); err != nil {
		return "", "", err
	}
	if err := c.FS.WriteFile(rhPath, rh, 0644); err != nil {
		return "", "", err
	}
	if err := c.FS.WriteFile(csPath, cs.Bytes(), 0644); err != nil {
		return "", "", err
	}
	monitoring.Logf("task %d: cached %d runs of %d setups, %d hyperparameters", taskID, len(table.runs), table.distinctSetups(), space.Len())
	return rhPath, csPath, nil
}

// keptParameters returns the short names of the family grid, or nil when no
// family restricts the parameters.
func (c *Cache) keptParameters(opts Options) (map[string]struct{}, error) {
	if opts.ModelFamily == "" {
		return nil, nil
	}
	params, err := c.Registry.Parameters(opts.ModelFamily)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(params))
	for name := range params {
		keep[paramgrid.ShortName(name)] = struct{}{}
	}
	return keep, nil
}

func matchesFixed(s openml.Setup, fixed map[string]paramgrid.Value) bool {
	for name, want := range fixed {
		p, ok := s.ParameterByName(name)
		if !ok {
			return false
		}
		got, err := paramgrid.ParseValue(p.Value)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

type run struct {
	configID int
	cost     float64
}

// configTable collects one configuration per setup and one run per
// evaluation.
type configTable struct {
	order   []int
	ids     map[int]int
	configs map[int]map[string]paramgrid.Value
	names   []string
	seen    map[string]bool
	runs    []run
}

func newConfigTable() *configTable {
	return &configTable{
		ids:     make(map[int]int),
		configs: make(map[int]map[string]paramgrid.Value),
		seen:    make(map[string]bool),
	}
}

func (t *configTable) add(s openml.Setup, e openml.Evaluation, keep, ignore map[string]struct{}) {
	if _, ok := t.configs[s.SetupID]; !ok {
		cfg := make(map[string]paramgrid.Value)
		for _, p := range s.Parameters {
			if _, skip := ignore[p.Name]; skip {
				continue
			}
			if keep != nil {
				if _, ok := keep[p.Name]; !ok {
					continue
				}
			} else if p.Name == "param_distributions" {
				continue
			}
			v, err := paramgrid.ParseValue(p.Value)
			if err != nil {
				v = paramgrid.Text(p.Value)
			}
			cfg[p.Name] = v
			if !t.seen[p.Name] {
				t.seen[p.Name] = true
				t.names = append(t.names, p.Name)
			}
		}
		t.configs[s.SetupID] = cfg
		t.order = append(t.order, s.SetupID)
		t.ids[s.SetupID] = len(t.order)
	}
	t.runs = append(t.runs, run{configID: t.ids[s.SetupID], cost: 1 - e.Value})
}

func (t *configTable) distinctSetups() int { return len(t.order) }

// space declares every parameter that all configurations set and that takes
// more than one value.
func (t *configTable) space() (*configspace.Space, error) {
	space := configspace.NewSpace()
	for _, name := range t.names {
		var values []paramgrid.Value
		distinct := make(map[paramgrid.Value]bool)
		complete := true
		for _, id := range t.order {
			v, ok := t.configs[id][name]
			if !ok {
				complete = false
				break
			}
			if !distinct[v] {
				distinct[v] = true
				values = append(values, v)
			}
		}
		if !complete || len(values) < 2 {
			continue
		}
		if err := space.Add(hyperparameter(name, values)); err != nil {
			return nil, err
		}
	}
	return space, nil
}

func hyperparameter(name string, values []paramgrid.Value) configspace.Hyperparameter {
	numeric, integer := true, true
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		f, ok := v.Float()
		if !ok {
			numeric = false
			break
		}
		integer = integer && v.IsInteger()
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}

	switch {
	case numeric && integer:
		return configspace.Hyperparameter{Name: name, Kind: configspace.Integer, Lower: lo, Upper: hi, Default: paramgrid.Number(lo).String()}
	case numeric:
		return configspace.Hyperparameter{Name: name, Kind: configspace.Real, Lower: lo, Upper: hi, Default: paramgrid.Number(lo).String()}
	}
	choices := make([]string, len(values))
	for i, v := range values {
		choices[i] = v.String()
	}
	sort.Strings(choices)
	return configspace.Hyperparameter{Name: name, Kind: configspace.Categorical, Choices: choices, Default: choices[0]}
}

// smacRunHistory is the SMAC run-history layout: data rows of
// [[config_id, instance, seed], [cost, time, status, additional_info]].
type smacRunHistory struct {
	Data    [][2][]interface{}                `json:"data"`
	Configs map[string]map[string]interface{} `json:"configs"`
}

const statusSuccess = 1

func (t *configTable) runHistory(space *configspace.Space) smacRunHistory {
	rh := smacRunHistory{
		Data:    make([][2][]interface{}, 0, len(t.runs)),
		Configs: make(map[string]map[string]interface{}, len(t.order)),
	}
	for i, id := range t.order {
		cfg := make(map[string]interface{})
		for _, h := range space.Hyperparameters() {
			v := t.configs[id][h.Name]
			if h.Kind == configspace.Categorical {
				cfg[h.Name] = v.String()
			} else {
				f, _ := v.Float()
				cfg[h.Name] = f
			}
		}
		rh.Configs[fmt.Sprint(i+1)] = cfg
	}
	for _, r := range t.runs {
		rh.Data = append(rh.Data, [2][]interface{}{
			{r.configID, nil, 0},
			{r.cost, 0.0, statusSuccess, map[string]interface{}{}},
		})
	}
	return rh
}
