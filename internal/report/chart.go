package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/openml-pimp/internal/importance"
)

// RenderImportanceChart writes an HTML page with one grouped bar chart: a
// series per hyperparameter in columns order, a bar group per task. Missing
// scores render as empty bars.
func RenderImportanceChart(w io.Writer, title string, all *importance.AllRanks, columns []string) error {
	if all == nil || all.Len() == 0 || len(columns) == 0 {
		return ErrNothingToPlot
	}

	tasks := all.Tasks()
	xAxis := make([]string, len(tasks))
	for i, taskID := range tasks {
		xAxis[i] = strconv.Itoa(taskID)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("tasks=%d params=%d", len(tasks), len(columns))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Task", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Importance", NameLocation: "middle", NameGap: 40}),
	)
	bar.SetXAxis(xAxis)
	for _, name := range columns {
		data := make([]opts.BarData, len(tasks))
		for i, taskID := range tasks {
			scores, _ := all.Scores(taskID)
			if v, ok := scores.Get(name); ok {
				data[i] = opts.BarData{Name: name, Value: v}
			} else {
				data[i] = opts.BarData{Name: name, Value: "-"}
			}
		}
		bar.AddSeries(name, data)
	}

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render importance chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
