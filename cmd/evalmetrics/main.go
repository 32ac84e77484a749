// Command evalmetrics streams JSON Lines batches through a metric suite,
// optionally recording every batch in SQLite, writing reports, and serving
// the live results over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/banshee-data/evalmetrics/internal/api"
	"github.com/banshee-data/evalmetrics/internal/batchio"
	"github.com/banshee-data/evalmetrics/internal/config"
	"github.com/banshee-data/evalmetrics/internal/fsutil"
	"github.com/banshee-data/evalmetrics/internal/metrics"
	"github.com/banshee-data/evalmetrics/internal/monitoring"
	"github.com/banshee-data/evalmetrics/internal/report"
	"github.com/banshee-data/evalmetrics/internal/store"
	"github.com/banshee-data/evalmetrics/internal/timeutil"
	"github.com/banshee-data/evalmetrics/internal/version"
)

type options struct {
	configPath  string
	inputPath   string
	dbPath      string
	heatmapPath string
	plotPath    string
	summaryPath string
	jsonOut     bool
	listen      string
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("evalmetrics", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "suite config (.json); the built-in binary suite when empty")
	fs.StringVar(&o.inputPath, "input", "", "batches in JSON Lines format, - for stdin")
	fs.StringVar(&o.dbPath, "db", "", "record a snapshot per batch in this sqlite database")
	fs.StringVar(&o.heatmapPath, "heatmap", "", "write the first confusion matrix as an HTML heatmap")
	fs.StringVar(&o.plotPath, "plot", "", "write scalar metrics per batch as a PNG")
	fs.StringVar(&o.summaryPath, "summary", "", "write the final results as JSON to this file")
	fs.BoolVar(&o.jsonOut, "json", false, "print the final results as JSON instead of a table")
	fs.StringVar(&o.listen, "listen", "", "serve results on this address after ingesting, e.g. :8080")
	fs.BoolVar(&o.verbose, "v", false, "log every batch")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if !o.showVersion && o.inputPath == "" {
		return o, errors.New("-input is required")
	}
	return o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("evalmetrics: %v", err)
	}
}

// deps are the pieces run needs from its environment; tests swap them.
type deps struct {
	fsys  fsutil.FileSystem
	clock timeutil.Clock
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	return runWith(ctx, deps{fsys: fsutil.OSFileSystem{}, clock: timeutil.RealClock{}}, args, stdin, stdout, stderr)
}

func runWith(ctx context.Context, d deps, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	monitoring.SetVerbose(o.verbose)

	suite := config.DefaultSuite()
	if o.configPath != "" {
		if suite, err = config.LoadSuite(o.configPath); err != nil {
			return err
		}
	}
	coll, err := suite.Build()
	if err != nil {
		return fmt.Errorf("build suite %s: %w", suite.GetName(), err)
	}

	var in io.Reader = stdin
	if o.inputPath != "-" {
		f, err := os.Open(o.inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var (
		st    *store.Store
		runID uuid.UUID
	)
	if o.dbPath != "" {
		if st, err = store.Open(o.dbPath, store.WithClock(d.clock)); err != nil {
			return err
		}
		defer st.Close()
		if err := st.MigrateUp(); err != nil {
			return err
		}
		r, err := st.CreateRun(ctx, suite.GetName(), suite.GetNumClasses())
		if err != nil {
			return err
		}
		runID = r.ID
		monitoring.Logf("recording run %s", runID)
	}

	start := d.clock.Now()
	history := report.NewHistory()
	batches, err := ingest(ctx, batchio.NewReader(in), coll, history, st, runID)
	if err != nil {
		return err
	}
	monitoring.Logf("ingested %d batches in %v", batches, d.clock.Since(start))

	results := coll.Compute()
	if o.jsonOut {
		err = report.WriteSummary(stdout, summaryOf(suite, batches, d.clock, results))
	} else {
		err = report.WriteTable(stdout, results)
	}
	if err != nil {
		return err
	}

	if err := writeReports(d, o, coll, history, summaryOf(suite, batches, d.clock, results)); err != nil {
		return err
	}

	if o.listen != "" {
		return api.NewServer(coll, st, suite.GetName()).ListenAndServe(ctx, o.listen)
	}
	return nil
}

// ingest feeds every batch to the collection. A batch that some members
// reject is logged and skipped by those members only; a malformed line
// stops ingestion.
func ingest(ctx context.Context, r *batchio.Reader, coll *metrics.Collection, h *report.History, st *store.Store, runID uuid.UUID) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		b, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
		if err := coll.Update(b.Predictions, b.Labels); err != nil {
			monitoring.Logf("batch %d (line %d): %v", n, b.Line, err)
		}
		monitoring.Debugf("batch %d: %d observations", n, b.Labels.Observations())

		results := coll.Compute()
		h.Record(n, results)
		if st != nil {
			if err := st.RecordSnapshot(ctx, runID, n, results); err != nil {
				return n, err
			}
		}
	}
}

func summaryOf(suite *config.SuiteConfig, batches int, clock timeutil.Clock, results []metrics.Result) report.Summary {
	return report.Summary{
		Suite:       suite.GetName(),
		Batches:     batches,
		GeneratedAt: clock.Now().UTC(),
		Metrics:     results,
	}
}

func writeReports(d deps, o options, coll *metrics.Collection, h *report.History, s report.Summary) error {
	if o.summaryPath != "" {
		if err := report.WriteSummaryFile(d.fsys, o.summaryPath, s); err != nil {
			return err
		}
	}
	if o.plotPath != "" {
		if err := report.WritePlotHistory(d.fsys, o.plotPath, s.Suite, h.Series()); err != nil {
			return err
		}
	}
	if o.heatmapPath != "" {
		cm := firstConfusion(coll)
		if cm == nil {
			return errors.New("-heatmap: suite has no confusion_matrix metric")
		}
		if err := report.WriteConfusionHeatmap(d.fsys, o.heatmapPath, cm.Name(), cm.Snapshot()); err != nil {
			return err
		}
	}
	return nil
}

func firstConfusion(coll *metrics.Collection) *metrics.ConfusionMatrixMetric {
	for _, name := range coll.Names() {
		m, _ := coll.Get(name)
		if cm, ok := m.(*metrics.ConfusionMatrixMetric); ok {
			return cm
		}
	}
	return nil
}
