package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("test error"))
}

func TestFakeService_Listing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFakeService()
	grid := paramgrid.MustGrid(paramgrid.Entry{Name: "classifier__bootstrap", Values: []paramgrid.Value{paramgrid.Bool(true)}})
	f.AddSetup(SearchSetup(t, 7, 100, grid, map[string]string{"min_samples_leaf": "5"}), true)
	f.AddSetup(SearchSetup(t, 8, 100, grid, nil), false)
	f.AddRun(1, 3, 100, 7, 0.9)
	f.AddStudy(14, 3, 6)

	runs, err := f.ListRuns(ctx, 3, 100)
	AssertNoError(t, err)
	if len(runs) != 1 || runs[0].SetupID != 7 {
		t.Fatalf("runs = %+v", runs)
	}

	if _, err := f.ListRuns(ctx, 4, 100); !errors.Is(err, openml.ErrNoResults) {
		t.Errorf("ListRuns(4) err = %v, want ErrNoResults", err)
	}

	setups, err := f.ListSetups(ctx, 100)
	AssertNoError(t, err)
	if _, ok := setups[8]; ok {
		t.Error("unlisted setup returned by ListSetups")
	}
	if _, err := f.GetSetup(ctx, 8); err != nil {
		t.Errorf("GetSetup(8) err = %v", err)
	}

	s := setups[7]
	p, ok := s.ParameterByName("min_samples_leaf")
	if !ok || p.Value != "5" {
		t.Errorf("min_samples_leaf = %+v, %v", p, ok)
	}

	tasks, err := f.StudyTasks(ctx, 14)
	AssertNoError(t, err)
	if len(tasks) != 2 {
		t.Errorf("tasks = %v", tasks)
	}

	evals, err := f.ListEvaluations(ctx, 3, 100, "predictive_accuracy")
	AssertNoError(t, err)
	if len(evals) != 1 || evals[0].Value != 0.9 {
		t.Errorf("evals = %+v", evals)
	}
	if f.Calls["ListRuns"] != 2 {
		t.Errorf("ListRuns calls = %d, want 2", f.Calls["ListRuns"])
	}
}
