// Package api serves a live collection over HTTP: current values, resets,
// batch ingestion, a confusion-matrix heatmap and stored run history.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/evalmetrics/internal/batchio"
	"github.com/banshee-data/evalmetrics/internal/httputil"
	"github.com/banshee-data/evalmetrics/internal/metrics"
	"github.com/banshee-data/evalmetrics/internal/monitoring"
	"github.com/banshee-data/evalmetrics/internal/report"
	"github.com/banshee-data/evalmetrics/internal/security"
	"github.com/banshee-data/evalmetrics/internal/store"
	"github.com/banshee-data/evalmetrics/internal/version"
)

// maxBatchBody caps POST /api/update bodies.
const maxBatchBody = 32 << 20

const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server exposes one collection. The store is optional; without it the run
// endpoints answer 404.
type Server struct {
	coll  *metrics.Collection
	store *store.Store
	suite string
}

// NewServer wraps coll. st may be nil.
func NewServer(coll *metrics.Collection, st *store.Store, suite string) *Server {
	return &Server{coll: coll, store: st, suite: suite}
}

// ServeMux registers every route. With a store, the loopback-only debug
// routes under /debug/ are mounted too.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/metrics", s.listMetrics)
	mux.HandleFunc("/api/metrics/{name}", s.showMetric)
	mux.HandleFunc("/api/reset", s.reset)
	mux.HandleFunc("/api/update", s.update)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}/snapshots", s.showSnapshots)
	mux.HandleFunc("/charts/confusion", s.confusionChart)
	if s.store != nil {
		if err := s.store.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("admin routes disabled: %v", err)
		}
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(s.ServeMux()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return <-errc
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
		"suite":      s.suite,
	})
}

func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.coll.Compute())
}

func (s *Server) showMetric(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	name := r.PathValue("name")
	m, ok := s.coll.Get(name)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown metric %q", name))
		return
	}
	httputil.WriteJSONOK(w, metrics.Result{Name: m.Name(), Value: m.Compute(), Params: m.Params()})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	s.coll.Reset()
	monitoring.Logf("reset %d metrics", s.coll.Len())
	httputil.WriteJSONOK(w, map[string]int{"reset": s.coll.Len()})
}

// update ingests one batch in the batchio line format. ?match= restricts it
// to members whose names match a glob.
func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}
	batch, err := batchio.NewReader(bytes.NewReader(body)).Next()
	if errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "empty batch")
		return
	}
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if pattern := r.URL.Query().Get("match"); pattern != "" {
		err = s.coll.UpdateMatching(pattern, batch.Predictions, batch.Labels)
	} else {
		err = s.coll.Update(batch.Predictions, batch.Labels)
	}
	if err != nil {
		httputil.WriteJSONError(w, statusFor(err), err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"observations": batch.Labels.Observations()})
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, metrics.ErrShapeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, metrics.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no run store configured")
		return
	}
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// showSnapshots returns a run's snapshots; ?latest=true limits them to the
// last recorded batch.
func (s *Server) showSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no run store configured")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid run id: %v", err))
		return
	}
	latest, _ := strconv.ParseBool(r.URL.Query().Get("latest"))

	var snaps []store.Snapshot
	if latest {
		snaps, err = s.store.LatestSnapshot(r.Context(), id)
	} else {
		snaps, err = s.store.Snapshots(r.Context(), id)
	}
	if err != nil {
		httputil.WriteJSONError(w, statusFor(err), err.Error())
		return
	}
	httputil.WriteJSONOK(w, snaps)
}

// confusionChart renders ?metric= (default: the first confusion-matrix
// member) as an HTML heatmap. ?download=true serves it as an attachment.
func (s *Server) confusionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	name := r.URL.Query().Get("metric")
	var cmm *metrics.ConfusionMatrixMetric
	if name == "" {
		for _, n := range s.coll.Names() {
			m, _ := s.coll.Get(n)
			if c, ok := m.(*metrics.ConfusionMatrixMetric); ok {
				cmm = c
				break
			}
		}
		if cmm == nil {
			httputil.NotFound(w, "collection has no confusion matrix")
			return
		}
	} else {
		m, ok := s.coll.Get(name)
		if !ok {
			httputil.NotFound(w, fmt.Sprintf("unknown metric %q", name))
			return
		}
		if cmm, ok = m.(*metrics.ConfusionMatrixMetric); !ok {
			httputil.BadRequest(w, fmt.Sprintf("metric %q is not a confusion matrix", name))
			return
		}
	}

	var buf bytes.Buffer
	if err := report.ConfusionHeatmap(&buf, cmm.Name(), cmm.Snapshot()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render heatmap chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		filename := security.SanitizeFilename(s.suite+"_"+cmm.Name()) + ".html"
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	_, _ = w.Write(buf.Bytes())
}
