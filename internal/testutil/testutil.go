// Package testutil provides shared test fixtures: an in-memory OpenML service
// and helpers for building setups that carry a search grid.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// FakeService is an in-memory openml.Service. Zero value is not usable, use
// NewFakeService.
type FakeService struct {
	mu          sync.Mutex
	runs        map[[2]int][]openml.Run
	setups      map[int]openml.Setup
	evaluations map[[2]int][]openml.Evaluation
	studies     map[int][]int

	// Unlisted setups are served by GetSetup but hidden from ListSetups.
	unlisted map[int]bool

	// ListSetupsErr, when set, is returned by ListSetups.
	ListSetupsErr error

	Calls map[string]int
}

// NewFakeService returns an empty fake.
func NewFakeService() *FakeService {
	return &FakeService{
		runs:        make(map[[2]int][]openml.Run),
		setups:      make(map[int]openml.Setup),
		evaluations: make(map[[2]int][]openml.Evaluation),
		studies:     make(map[int][]int),
		unlisted:    make(map[int]bool),
		Calls:       make(map[string]int),
	}
}

// AddSetup registers a setup. Unlisted setups are only reachable through
// GetSetup.
func (f *FakeService) AddSetup(s openml.Setup, listed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setups[s.SetupID] = s
	f.unlisted[s.SetupID] = !listed
}

// AddRun registers a run of setupID on (taskID, flowID) with the given
// predictive accuracy.
func (f *FakeService) AddRun(runID, taskID, flowID, setupID int, accuracy float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int{taskID, flowID}
	f.runs[key] = append(f.runs[key], openml.Run{RunID: runID, TaskID: taskID, SetupID: setupID, FlowID: flowID})
	f.evaluations[key] = append(f.evaluations[key], openml.Evaluation{
		RunID: runID, TaskID: taskID, SetupID: setupID, FlowID: flowID,
		Function: "predictive_accuracy", Value: accuracy,
	})
}

// AddStudy registers the task list of a study.
func (f *FakeService) AddStudy(studyID int, tasks ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.studies[studyID] = tasks
}

func (f *FakeService) call(name string) {
	f.mu.Lock()
	f.Calls[name]++
	f.mu.Unlock()
}

// ListRuns implements openml.Service.
func (f *FakeService) ListRuns(_ context.Context, taskID, flowID int) ([]openml.Run, error) {
	f.call("ListRuns")
	f.mu.Lock()
	defer f.mu.Unlock()
	runs := f.runs[[2]int{taskID, flowID}]
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: task %d flow %d", openml.ErrNoResults, taskID, flowID)
	}
	return append([]openml.Run(nil), runs...), nil
}

// GetSetup implements openml.Service.
func (f *FakeService) GetSetup(_ context.Context, setupID int) (openml.Setup, error) {
	f.call("GetSetup")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.setups[setupID]
	if !ok {
		return openml.Setup{}, fmt.Errorf("%w: setup %d", openml.ErrNoResults, setupID)
	}
	return s, nil
}

// ListSetups implements openml.Service.
func (f *FakeService) ListSetups(_ context.Context, flowID int) (map[int]openml.Setup, error) {
	f.call("ListSetups")
	if f.ListSetupsErr != nil {
		return nil, f.ListSetupsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]openml.Setup)
	for id, s := range f.setups {
		if s.FlowID == flowID && !f.unlisted[id] {
			out[id] = s
		}
	}
	return out, nil
}

// StudyTasks implements openml.Service.
func (f *FakeService) StudyTasks(_ context.Context, studyID int) ([]int, error) {
	f.call("StudyTasks")
	f.mu.Lock()
	defer f.mu.Unlock()
	tasks, ok := f.studies[studyID]
	if !ok {
		return nil, fmt.Errorf("%w: study %d", openml.ErrNoResults, studyID)
	}
	return append([]int(nil), tasks...), nil
}

// ListEvaluations implements openml.Service.
func (f *FakeService) ListEvaluations(_ context.Context, taskID, flowID int, measure string) ([]openml.Evaluation, error) {
	f.call("ListEvaluations")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []openml.Evaluation
	for _, e := range f.evaluations[[2]int{taskID, flowID}] {
		if e.Function == measure {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: evaluations task %d flow %d", openml.ErrNoResults, taskID, flowID)
	}
	return out, nil
}

// SearchSetup builds a setup whose param_distributions holds grid and whose
// remaining parameters carry the given JSON-encoded values, keyed by
// un-namespaced name.
func SearchSetup(t *testing.T, setupID, flowID int, grid paramgrid.Grid, values map[string]string) openml.Setup {
	t.Helper()
	raw, err := grid.MarshalJSON()
	AssertNoError(t, err)

	s := openml.Setup{SetupID: setupID, FlowID: flowID}
	s.Parameters = append(s.Parameters, openml.SetupParameter{
		ID:    1,
		Name:  "param_distributions",
		Value: string(raw),
	})
	id := 2
	for _, name := range sortedKeys(values) {
		s.Parameters = append(s.Parameters, openml.SetupParameter{ID: id, Name: name, Value: values[name]})
		id++
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
