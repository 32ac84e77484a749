// Package testutil provides helpers and fixtures shared by the host
// packages' tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/banshee-data/evalmetrics/internal/metrics"
	"github.com/banshee-data/evalmetrics/internal/monitoring"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// DecodeJSON unmarshals r into v, failing the test on error.
func DecodeJSON(t *testing.T, r io.Reader, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

// TempPath returns name inside a per-test temporary directory.
func TempPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// MuteLogs silences monitoring.Logf for the rest of the test. Tests that
// call it must not run in parallel with tests that capture logs.
func MuteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

// BinaryCollection builds accuracy, confusion_matrix, precision and recall
// over two classes.
func BinaryCollection(t *testing.T) *metrics.Collection {
	t.Helper()
	acc, err := metrics.NewAccuracy(metrics.Config{NumClasses: 2})
	mustNot(t, err)
	cm, err := metrics.NewConfusionMatrixMetric(metrics.Config{NumClasses: 2})
	mustNot(t, err)
	p, err := metrics.NewPrecision(metrics.Config{NumClasses: 2})
	mustNot(t, err)
	r, err := metrics.NewRecall(metrics.Config{NumClasses: 2})
	mustNot(t, err)
	c, err := metrics.NewCollection(acc, cm, p, r)
	mustNot(t, err)
	return c
}

// SoftBatch is four soft scores against labels 0,1,1,0; every prediction
// is correct.
func SoftBatch() (pred, truth *metrics.Tensor) {
	return metrics.MustFloats([]float64{0.1, 0.8, 0.51, 0.49}), metrics.MustInts([]int{0, 1, 1, 0})
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	mustNot(t, err)
}

func mustNot(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Get is a shorthand for building a request without a body.
func Get(path string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	return req
}
