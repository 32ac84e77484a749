package report

import (
	"fmt"
	"io"
	"math"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/evalmetrics/internal/fsutil"
	"github.com/banshee-data/evalmetrics/internal/metrics"
	"github.com/banshee-data/evalmetrics/internal/security"
)

// Point is a scalar metric value after a batch.
type Point struct {
	Batch int     `json:"batch"`
	Value float64 `json:"value"`
}

// Series is one metric's trajectory.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// History accumulates scalar results batch by batch, keeping metrics in the
// order they were first seen. Vector and matrix results are skipped.
type History struct {
	mu     sync.Mutex
	order  []string
	points map[string][]Point
}

func NewHistory() *History {
	return &History{points: make(map[string][]Point)}
}

// Record appends every finite scalar result under batch.
func (h *History) Record(batch int, results []metrics.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range results {
		if r.Value.Kind != metrics.ScalarKind || math.IsNaN(r.Value.Scalar) || math.IsInf(r.Value.Scalar, 0) {
			continue
		}
		if _, seen := h.points[r.Name]; !seen {
			h.order = append(h.order, r.Name)
		}
		h.points[r.Name] = append(h.points[r.Name], Point{Batch: batch, Value: r.Value.Scalar})
	}
}

// Series returns a copy of the recorded trajectories.
func (h *History) Series() []Series {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Series, len(h.order))
	for i, name := range h.order {
		out[i] = Series{Name: name, Points: append([]Point(nil), h.points[name]...)}
	}
	return out
}

// PlotHistory draws every series as a line of value against batch and
// writes the PNG to w.
func PlotHistory(w io.Writer, title string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Batch"
	p.Y.Label.Text = "Value"
	p.Add(plotter.NewGrid())

	drawn := 0
	for i, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.Points))
		for j, pt := range s.Points {
			pts[j] = plotter.XY{X: float64(pt.Batch), Y: pt.Value}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("series %s: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.Name, line)
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("no scalar history to plot")
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// WritePlotHistory renders PlotHistory into a .png file.
func WritePlotHistory(fsys fsutil.FileSystem, path, title string, series []Series) error {
	if err := security.ValidateExportPath(path, ".png"); err != nil {
		return err
	}
	return writeTo(fsys, path, func(w io.Writer) error {
		return PlotHistory(w, title, series)
	})
}
