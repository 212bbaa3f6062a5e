package importance

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

// Output file names.
const (
	UnpivotFile = "ranks_plain.csv"
	PivotFile   = "ranks.csv"
)

// ColumnOrder lists every hyperparameter in all. Names matching a grid key,
// in full or by short name, come first in grid declaration order; the rest
// follow in first-seen order.
func ColumnOrder(grid paramgrid.Grid, all *AllRanks) []string {
	seen := make(map[string]bool)
	var names []string
	for _, taskID := range all.Tasks() {
		scores, _ := all.Scores(taskID)
		for _, sc := range scores {
			if !seen[sc.Name] {
				seen[sc.Name] = true
				names = append(names, sc.Name)
			}
		}
	}

	placed := make(map[string]bool)
	var columns []string
	for _, key := range grid.Keys() {
		short := paramgrid.ShortName(key)
		for _, name := range names {
			if placed[name] {
				continue
			}
			if name == key || name == short {
				columns = append(columns, name)
				placed[name] = true
			}
		}
	}
	for _, name := range names {
		if !placed[name] {
			columns = append(columns, name)
		}
	}
	return columns
}

// WriteUnpivot writes the long layout: one task_id,param,value row per task
// and hyperparameter, hyperparameters in columns order.
func WriteUnpivot(w io.Writer, all *AllRanks, columns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"task_id", "param", "value"}); err != nil {
		return err
	}
	for _, taskID := range all.Tasks() {
		scores, _ := all.Scores(taskID)
		for _, name := range columns {
			v, ok := scores.Get(name)
			if !ok {
				continue
			}
			if err := cw.Write([]string{strconv.Itoa(taskID), name, formatScore(v)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePivot writes the wide layout: one row per task with a column per
// hyperparameter. Missing scores are empty cells.
func WritePivot(w io.Writer, all *AllRanks, columns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"task_id"}, columns...)); err != nil {
		return err
	}
	for _, taskID := range all.Tasks() {
		scores, _ := all.Scores(taskID)
		row := make([]string, 0, len(columns)+1)
		row = append(row, strconv.Itoa(taskID))
		for _, name := range columns {
			if v, ok := scores.Get(name); ok {
				row = append(row, formatScore(v))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
