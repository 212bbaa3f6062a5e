// Package report turns an importance run into human-facing artefacts: a
// per-parameter summary, a PNG of the average ranks and an HTML chart of the
// per-task scores.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/openml-pimp/internal/importance"
)

// ParamSummary describes one hyperparameter across all successful tasks.
type ParamSummary struct {
	Name        string
	AverageRank float64
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
	Tasks       int
}

// Summarize computes importance statistics per parameter. Parameters follow
// the average-rank order of res, best first. A task without a score for a
// parameter does not contribute to that parameter.
func Summarize(res *importance.Result) []ParamSummary {
	if res == nil || res.Average == nil {
		return nil
	}

	samples := make(map[string][]float64)
	if res.AllRanks != nil {
		for _, taskID := range res.AllRanks.Tasks() {
			scores, _ := res.AllRanks.Scores(taskID)
			for _, s := range scores {
				samples[s.Name] = append(samples[s.Name], s.Importance)
			}
		}
	}

	var out []ParamSummary
	for _, name := range res.Average.Sorted() {
		avg, _ := res.Average.Value(name)
		ps := ParamSummary{Name: name, AverageRank: avg}
		xs := samples[name]
		ps.Tasks = len(xs)
		switch len(xs) {
		case 0:
			ps.Mean, ps.StdDev = math.NaN(), math.NaN()
		case 1:
			ps.Mean = xs[0]
		default:
			ps.Mean, ps.StdDev = stat.MeanStdDev(xs, nil)
		}
		if len(xs) > 0 {
			sorted := append([]float64(nil), xs...)
			sort.Float64s(sorted)
			ps.Min, ps.Max = sorted[0], sorted[len(sorted)-1]
		}
		out = append(out, ps)
	}
	return out
}

// FormatSummary writes the summary as an aligned text table.
func FormatSummary(w io.Writer, summary []ParamSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "param\tavg rank\tmean\tstd\tmin\tmax\ttasks")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%.2f\t%.4f\t%.4f\t%.4f\t%.4f\t%d\n",
			s.Name, s.AverageRank, s.Mean, s.StdDev, s.Min, s.Max, s.Tasks)
	}
	return tw.Flush()
}
