// Package report renders metric results for people: an interactive
// confusion-matrix heatmap, a PNG of metric values over batches, and JSON or
// text summaries.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/evalmetrics/internal/fsutil"
	"github.com/banshee-data/evalmetrics/internal/metrics"
	"github.com/banshee-data/evalmetrics/internal/security"
)

// AssetsHost is where the generated pages load echarts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ClassLabels names classes by id.
func ClassLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i)
	}
	return labels
}

// ConfusionHeatmap renders cm as an HTML heatmap: true class along x,
// predicted class along y, one cell per count.
func ConfusionHeatmap(w io.Writer, title string, cm metrics.ConfusionMatrix) error {
	n := cm.Classes()
	if n == 0 {
		return fmt.Errorf("confusion matrix %q has no classes", title)
	}
	labels := ClassLabels(n)

	rows := cm.Rows()
	data := make([]opts.HeatMapData, 0, n*n)
	var peak int64
	for p, row := range rows {
		for t, count := range row {
			peak = max(peak, count)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{t, p, count}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "720px", Height: "640px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("classes=%d observations=%d", n, cm.Total())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: labels, Name: "true class", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels, Name: "predicted class", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(max(peak, 1)),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(labels).AddSeries("count", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}))

	return hm.Render(w)
}

// WriteConfusionHeatmap renders the heatmap to an .html file.
func WriteConfusionHeatmap(fsys fsutil.FileSystem, path, title string, cm metrics.ConfusionMatrix) error {
	if err := security.ValidateExportPath(path, ".html", ".htm"); err != nil {
		return err
	}
	return writeTo(fsys, path, func(w io.Writer) error {
		return ConfusionHeatmap(w, title, cm)
	})
}

func writeTo(fsys fsutil.FileSystem, path string, render func(io.Writer) error) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}
