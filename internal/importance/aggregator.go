package importance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/banshee-data/openml-pimp/internal/backend"
	"github.com/banshee-data/openml-pimp/internal/configspace"
	"github.com/banshee-data/openml-pimp/internal/fsutil"
	"github.com/banshee-data/openml-pimp/internal/monitoring"
	"github.com/banshee-data/openml-pimp/internal/runhistory"
)

// RunHistoryCache provides the run-history and configuration-space files of
// one task.
type RunHistoryCache interface {
	Obtain(ctx context.Context, dir string, flowID, taskID int, opts runhistory.Options) (string, string, error)
}

// Backend runs the importance analysis of one task.
type Backend interface {
	Execute(ctx context.Context, req backend.Request) (string, error)
}

// Aggregator ranks hyperparameter importance on every task and averages the
// ranks. It is not safe for concurrent use.
type Aggregator struct {
	Cache   RunHistoryCache
	Backend Backend
	FS      fsutil.FileSystem

	FlowID int
	// Per-task subdirectories named by task id are created under both.
	CacheDir  string
	OutputDir string

	Options runhistory.Options
	// Request carries the mode options; paths are filled in per task.
	Request backend.Request
	// AllowSubsets lets a task rank only some of the hyperparameters.
	AllowSubsets bool
}

// TaskFailure records a skipped task.
type TaskFailure struct {
	TaskID int
	Err    error
}

// Result is the outcome of one aggregation.
type Result struct {
	RunID        string
	Totals       *Totals
	Average      *Totals
	NumTasks     int
	AllRanks     *AllRanks
	PerTaskRanks map[int]Ranks
	Failures     []TaskFailure
}

// Run processes taskIDs in order. A task whose files, analysis or result
// cannot be produced is logged and skipped. A rank key set that disagrees
// with the totals stops the run with ErrIncompatibleKeySets. When no task
// succeeds the error is ErrDivisionUndefined. The partial Result is returned
// alongside any error.
func (a *Aggregator) Run(ctx context.Context, taskIDs []int) (*Result, error) {
	res := &Result{
		RunID:        uuid.New().String(),
		AllRanks:     NewAllRanks(),
		PerTaskRanks: make(map[int]Ranks),
	}

	for _, taskID := range taskIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		scores, err := a.task(ctx, taskID, res)
		if err != nil {
			monitoring.Logf("error while executing task %d: %+v", taskID, err)
			res.Failures = append(res.Failures, TaskFailure{TaskID: taskID, Err: err})
			continue
		}

		ranks := Rank(scores)
		if err := res.Totals.Add(ranks, a.AllowSubsets); err != nil {
			return res, fmt.Errorf("task %d: %w", taskID, err)
		}
		res.AllRanks.Set(taskID, scores)
		res.PerTaskRanks[taskID] = ranks
		res.NumTasks++
		monitoring.Logf("Task %d %s", taskID, ranks)
	}

	if res.Totals == nil {
		return res, ErrDivisionUndefined
	}
	avg, err := res.Totals.Divide(res.NumTasks)
	if err != nil {
		return res, err
	}
	res.Average = avg
	return res, nil
}

// task runs the per-task steps up to parsing the result. The totals are
// seeded from the first configuration space that can be read.
func (a *Aggregator) task(ctx context.Context, taskID int, res *Result) (Scores, error) {
	id := strconv.Itoa(taskID)
	rhPath, csPath, err := a.Cache.Obtain(ctx, filepath.Join(a.CacheDir, id), a.FlowID, taskID, a.Options)
	if err != nil {
		return nil, err
	}

	if res.Totals == nil {
		names, err := a.hyperparameters(csPath)
		if err != nil {
			return nil, err
		}
		res.Totals = NewTotals(names)
	}

	req := a.Request
	req.OutputDir = filepath.Join(a.OutputDir, id)
	req.RunHistory = rhPath
	req.ConfigSpace = csPath
	if req.Modus == backend.ModusFanova {
		monitoring.Logf("Running FANOVA backend on task %d", taskID)
	} else {
		monitoring.Logf("Running PIMP backend [%s] on task %d", req.Modus, taskID)
	}
	resultPath, err := a.Backend.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := a.FS.ReadFile(resultPath)
	if err != nil {
		return nil, err
	}
	return ParseResult(data, res.Totals.Names())
}

func (a *Aggregator) hyperparameters(path string) ([]string, error) {
	data, err := a.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	space, err := configspace.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return space.Names(), nil
}

// IsAbort reports whether err ended an aggregation early rather than
// coming from an individual task.
func IsAbort(err error) bool {
	return errors.Is(err, ErrIncompatibleKeySets) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
