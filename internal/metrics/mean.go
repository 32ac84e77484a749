package metrics

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// ElementFunc scores one (prediction, label) pair.
type ElementFunc func(pred, truth float64) float64

// MeanConfig configures a Mean metric.
type MeanConfig struct {
	Name string
	Fn   ElementFunc
}

// Mean is the running average of an elementwise measure over every
// observation seen. Batches of any size merge with weights proportional to
// their length, so the result never depends on how the data was split.
type Mean struct {
	name string
	fn   ElementFunc

	mu    sync.RWMutex
	avg   float64
	count int64
}

// NewMean creates a Mean metric. Name and Fn are required.
func NewMean(cfg MeanConfig) (*Mean, error) {
	if cfg.Name == "" {
		return nil, configError("", "name", "mean metrics need a name")
	}
	if cfg.Fn == nil {
		return nil, configError(cfg.Name, "fn", "element function is nil")
	}
	return &Mean{name: cfg.Name, fn: cfg.Fn}, nil
}

// NewMeanAbsoluteError creates a Mean of |pred-truth| named "mae".
func NewMeanAbsoluteError() *Mean {
	return &Mean{name: "mae", fn: func(p, t float64) float64 { return math.Abs(p - t) }}
}

// NewMeanSquaredError creates a Mean of (pred-truth)² named "mse".
func NewMeanSquaredError() *Mean {
	return &Mean{name: "mse", fn: func(p, t float64) float64 { d := p - t; return d * d }}
}

// Named returns a copy of the metric's configuration under a new name with
// fresh state.
func (m *Mean) Named(name string) *Mean {
	return &Mean{name: name, fn: m.fn}
}

func (m *Mean) Name() string { return m.name }

// Update scores every element pair, then folds the batch mean into the
// running average: avg' = avg·n/(n+m) + batch·m/(n+m). Inputs are compared
// element by element without canonicalization.
func (m *Mean) Update(pred, truth *Tensor) error {
	p, t := values(pred), values(truth)
	if len(p) != len(t) {
		return &ShapeMismatchError{Metric: m.name, Predictions: len(p), Labels: len(t)}
	}
	if len(p) == 0 {
		return nil
	}
	scores := make([]float64, len(p))
	for i := range p {
		scores[i] = m.fn(p[i], t[i])
	}
	batch := stat.Mean(scores, nil)
	size := int64(len(scores))

	m.mu.Lock()
	total := float64(m.count + size)
	m.avg = m.avg*(float64(m.count)/total) + batch*(float64(size)/total)
	m.count += size
	m.mu.Unlock()
	return nil
}

func values(t *Tensor) []float64 {
	if t == nil {
		return nil
	}
	return t.Values()
}

func (m *Mean) snapshot() (avg float64, count int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.avg, m.count
}

// Compute returns the running average, 0 before any update.
func (m *Mean) Compute() Value {
	avg, _ := m.snapshot()
	return Scalar(avg)
}

func (m *Mean) Reset() {
	m.mu.Lock()
	m.avg, m.count = 0, 0
	m.mu.Unlock()
}

func (m *Mean) Params() []Param {
	avg, count := m.snapshot()
	return []Param{{Name: "average", Value: avg}, {Name: "count", Value: count}}
}
