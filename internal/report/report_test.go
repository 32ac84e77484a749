package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/evalmetrics/internal/fsutil"
	"github.com/banshee-data/evalmetrics/internal/metrics"
)

func confusion(t *testing.T) metrics.ConfusionMatrix {
	t.Helper()
	cm, err := metrics.NewConfusionMatrix([]int{0, 2, 1, 1, 2, 0}, []int{0, 1, 1, 2, 2, 0}, 3)
	require.NoError(t, err)
	return cm
}

func TestConfusionHeatmap(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, ConfusionHeatmap(&buf, "segmentation confusion", confusion(t)))
	html := buf.String()
	assert.Contains(t, html, "segmentation confusion")
	assert.Contains(t, html, "classes=3 observations=6")
	assert.Contains(t, html, "predicted class")
	assert.Contains(t, html, "heatmap")
}

func TestConfusionHeatmapEmpty(t *testing.T) {
	t.Parallel()
	assert.Error(t, ConfusionHeatmap(&bytes.Buffer{}, "none", metrics.ConfusionMatrix{}))
}

func TestWriteConfusionHeatmap(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	path := filepath.Join(os.TempDir(), "evalmetrics-confusion.html")
	require.NoError(t, WriteConfusionHeatmap(fsys, path, "cm", confusion(t)))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(data)), "<!DOCTYPE html>") ||
		strings.Contains(string(data), "<html"))

	err = WriteConfusionHeatmap(fsys, filepath.Join(os.TempDir(), "cm.png"), "cm", confusion(t))
	assert.Error(t, err)
	err = WriteConfusionHeatmap(fsys, "/etc/cm.html", "cm", confusion(t))
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	h.Record(1, []metrics.Result{
		{Name: "accuracy", Value: metrics.Scalar(0.5)},
		{Name: "confusion_matrix", Value: metrics.Matrix(confusion(t).Dense())},
		{Name: "mae", Value: metrics.Scalar(0.4)},
	})
	h.Record(2, []metrics.Result{
		{Name: "accuracy", Value: metrics.Scalar(0.75)},
		{Name: "precision", Value: metrics.Vector([]float64{1, 0.5})},
		{Name: "mae", Value: metrics.Scalar(0.3)},
	})
	h.Record(3, []metrics.Result{
		{Name: "accuracy", Value: metrics.Scalar(0.8)},
		{Name: "mae", Value: metrics.Scalar(math.Inf(1))},
	})

	want := []Series{
		{Name: "accuracy", Points: []Point{{1, 0.5}, {2, 0.75}, {3, 0.8}}},
		{Name: "mae", Points: []Point{{1, 0.4}, {2, 0.3}}},
	}
	assert.Equal(t, want, h.Series())
}

func TestPlotHistory(t *testing.T) {
	t.Parallel()

	series := []Series{
		{Name: "accuracy", Points: []Point{{1, 0.5}, {2, 0.75}, {3, 0.8}}},
		{Name: "empty"},
	}
	var buf bytes.Buffer
	require.NoError(t, PlotHistory(&buf, "run", series))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	assert.Error(t, PlotHistory(&bytes.Buffer{}, "run", []Series{{Name: "empty"}}))

	fsys := fsutil.NewMemoryFileSystem()
	path := filepath.Join(os.TempDir(), "evalmetrics-history.png")
	require.NoError(t, WritePlotHistory(fsys, path, "run", series))
	assert.True(t, fsys.Exists(path))
	assert.Error(t, WritePlotHistory(fsys, filepath.Join(os.TempDir(), "history.svg"), "run", series))
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	s := Summary{
		Suite:       "binary",
		Batches:     2,
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Metrics: []metrics.Result{
			{Name: "accuracy", Value: metrics.Scalar(0.75), Params: []metrics.Param{{Name: "correct", Value: int64(3)}}},
			{Name: "precision", Value: metrics.Vector([]float64{1, 0.5})},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	assert.JSONEq(t, `{
		"suite": "binary",
		"batches": 2,
		"generated_at": "2024-01-02T03:04:05Z",
		"metrics": [
			{"name": "accuracy", "value": 0.75, "params": [{"name": "correct", "value": 3}]},
			{"name": "precision", "value": [1, 0.5]}
		]
	}`, buf.String())

	fsys := fsutil.NewMemoryFileSystem()
	path := filepath.Join(os.TempDir(), "evalmetrics-summary.json")
	require.NoError(t, WriteSummaryFile(fsys, path, s))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "binary", decoded["suite"])
}

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []metrics.Result{
		{Name: "accuracy", Value: metrics.Scalar(0.75)},
		{Name: "precision_per_class", Value: metrics.Vector([]float64{1, 0.25})},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "METRIC               VALUE", lines[0])
	assert.Equal(t, "accuracy             0.7500", lines[1])
	assert.Equal(t, "precision_per_class  [1.0000 0.2500]", lines[2])
}
