package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/evalmetrics/internal/fsutil"
	"github.com/banshee-data/evalmetrics/internal/metrics"
	"github.com/banshee-data/evalmetrics/internal/security"
)

// Summary is the JSON document describing a finished evaluation.
type Summary struct {
	Suite       string           `json:"suite"`
	Batches     int              `json:"batches"`
	GeneratedAt time.Time        `json:"generated_at"`
	Metrics     []metrics.Result `json:"metrics"`
}

// WriteSummary writes s as indented JSON.
func WriteSummary(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteSummaryFile writes the summary to a .json file.
func WriteSummaryFile(fsys fsutil.FileSystem, path string, s Summary) error {
	if err := security.ValidateExportPath(path, ".json"); err != nil {
		return err
	}
	return writeTo(fsys, path, func(w io.Writer) error { return WriteSummary(w, s) })
}

// WriteTable prints one aligned "name  value" row per result.
func WriteTable(w io.Writer, results []metrics.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Value)
	}
	return tw.Flush()
}
