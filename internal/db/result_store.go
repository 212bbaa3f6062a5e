package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/openml-pimp/internal/importance"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("importance run not found")

// RunRecord describes one aggregation over a study.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	FlowID      int       `json:"flow_id"`
	StudyID     int       `json:"study_id"`
	ModelFamily string    `json:"model_family"`
	Modus       string    `json:"modus"`
	NumTasks    int       `json:"num_tasks"`
	OutputDir   string    `json:"output_dir,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// TaskScore is one hyperparameter's importance and rank on one task.
type TaskScore struct {
	TaskID     int     `json:"task_id"`
	Param      string  `json:"param"`
	Importance float64 `json:"importance"`
	Rank       int     `json:"rank"`
}

// AverageRank is one hyperparameter's rank averaged over a run's tasks.
type AverageRank struct {
	Param       string  `json:"param"`
	AverageRank float64 `json:"average_rank"`
}

// ResultStore persists aggregation results.
type ResultStore struct {
	db *DB
}

// NewResultStore creates a new ResultStore.
func NewResultStore(db *DB) *ResultStore {
	return &ResultStore{db: db}
}

// SaveRun writes rec together with the per-task scores, ranks and averages
// of res in one transaction. res.Average may be nil when nothing succeeded.
func (s *ResultStore) SaveRun(rec RunRecord, res *importance.Result) error {
	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO importance_runs (
				run_id, flow_id, study_id, model_family, modus, num_tasks,
				output_dir, started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, rec.FlowID, rec.StudyID, rec.ModelFamily, rec.Modus, rec.NumTasks,
			nullStr(rec.OutputDir),
			rec.StartedAt.UTC().Format(time.RFC3339),
			rec.CompletedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}

		for _, taskID := range res.AllRanks.Tasks() {
			scores, _ := res.AllRanks.Scores(taskID)
			ranks := res.PerTaskRanks[taskID]
			for pos, sc := range scores {
				_, err := tx.Exec(`
					INSERT INTO importance_task_scores (run_id, task_id, param, position, importance, rank)
					VALUES (?, ?, ?, ?, ?, ?)`,
					rec.RunID, taskID, sc.Name, pos, sc.Importance, ranks[sc.Name])
				if err != nil {
					return err
				}
			}
		}

		if res.Average != nil {
			for pos, name := range res.Average.Names() {
				v, _ := res.Average.Value(name)
				_, err := tx.Exec(`
					INSERT INTO importance_average_ranks (run_id, param, position, average_rank)
					VALUES (?, ?, ?, ?)`,
					rec.RunID, name, pos, v)
				if err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("saving importance run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun returns a single run record.
func (s *ResultStore) GetRun(runID string) (*RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, flow_id, study_id, model_family, modus, num_tasks,
		       output_dir, started_at, completed_at
		FROM importance_runs
		WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec, err
}

// ListRuns returns runs newest first.
func (s *ResultStore) ListRuns() ([]RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, flow_id, study_id, model_family, modus, num_tasks,
		       output_dir, started_at, completed_at
		FROM importance_runs
		ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// ListTaskScores returns the scores of a run in the order they were saved.
func (s *ResultStore) ListTaskScores(runID string) ([]TaskScore, error) {
	rows, err := s.db.Query(`
		SELECT task_id, param, importance, rank
		FROM importance_task_scores
		WHERE run_id = ?
		ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []TaskScore
	for rows.Next() {
		var ts TaskScore
		if err := rows.Scan(&ts.TaskID, &ts.Param, &ts.Importance, &ts.Rank); err != nil {
			return nil, err
		}
		scores = append(scores, ts)
	}
	return scores, rows.Err()
}

// AverageRanks returns the averaged ranks of a run in configuration-space
// order.
func (s *ResultStore) AverageRanks(runID string) ([]AverageRank, error) {
	rows, err := s.db.Query(`
		SELECT param, average_rank
		FROM importance_average_ranks
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranks []AverageRank
	for rows.Next() {
		var ar AverageRank
		if err := rows.Scan(&ar.Param, &ar.AverageRank); err != nil {
			return nil, err
		}
		ranks = append(ranks, ar)
	}
	return ranks, rows.Err()
}

// DeleteRun removes a run with its scores and averages.
func (s *ResultStore) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, table := range []string{"importance_task_scores", "importance_average_ranks", "importance_runs"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var rec RunRecord
	var outputDir sql.NullString
	var startedAt, completedAt string
	err := row.Scan(&rec.RunID, &rec.FlowID, &rec.StudyID, &rec.ModelFamily, &rec.Modus,
		&rec.NumTasks, &outputDir, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	rec.OutputDir = outputDir.String
	if rec.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if rec.CompletedAt, err = time.Parse(time.RFC3339, completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	return &rec, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
