package metrics

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("metrics: invalid configuration")

	// ErrShapeMismatch is matched by every ShapeMismatchError.
	ErrShapeMismatch = errors.New("metrics: shape mismatch")
)

// ConfigurationError reports an invalid construction parameter or an input
// that does not fit the metric's configuration (class-axis length, class id
// range). It is always returned before any running state is touched.
type ConfigurationError struct {
	Metric string // metric name, "" for package-level helpers
	Param  string // offending parameter, e.g. "nclasses"
	Cause  string
}

func (e *ConfigurationError) Error() string {
	if e.Metric == "" {
		return fmt.Sprintf("metrics: invalid %s: %s", e.Param, e.Cause)
	}
	return fmt.Sprintf("metrics: %s: invalid %s: %s", e.Metric, e.Param, e.Cause)
}

// Is lets callers test with errors.Is(err, ErrConfiguration).
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ShapeMismatchError reports prediction and label batches with differing
// observation counts.
type ShapeMismatchError struct {
	Metric      string
	Predictions int
	Labels      int
}

func (e *ShapeMismatchError) Error() string {
	prefix := "metrics"
	if e.Metric != "" {
		prefix = "metrics: " + e.Metric
	}
	return fmt.Sprintf("%s: %d predictions but %d labels", prefix, e.Predictions, e.Labels)
}

// Is lets callers test with errors.Is(err, ErrShapeMismatch).
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

func configError(metric, param, format string, args ...interface{}) error {
	return &ConfigurationError{Metric: metric, Param: param, Cause: fmt.Sprintf(format, args...)}
}

// withMetric stamps the metric name onto errors raised by the shared helpers.
func withMetric(name string, err error) error {
	var ce *ConfigurationError
	if errors.As(err, &ce) && ce.Metric == "" {
		cp := *ce
		cp.Metric = name
		return &cp
	}
	var se *ShapeMismatchError
	if errors.As(err, &se) && se.Metric == "" {
		cp := *se
		cp.Metric = name
		return &cp
	}
	return err
}
