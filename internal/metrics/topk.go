package metrics

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// TopKConfig configures TopKAccuracy.
type TopKConfig struct {
	Name       string
	NumClasses int
	K          int
}

// TopKAccuracy is the fraction of observations whose true class is among the
// K highest-scoring predicted classes. Equal scores rank the lower class id
// first, matching Canonicalize's arg-max. Predictions without a full class
// axis carry no ranking and are scored by exact match.
type TopKAccuracy struct {
	name     string
	nclasses int
	k        int

	mu      sync.RWMutex
	correct int64
	total   int64
}

// NewTopKAccuracy creates a metric named "top_k_accuracy" by default.
func NewTopKAccuracy(cfg TopKConfig) (*TopKAccuracy, error) {
	name := cfg.Name
	if name == "" {
		name = "top_k_accuracy"
	}
	if err := checkClasses(cfg.NumClasses); err != nil {
		return nil, withMetric(name, err)
	}
	if cfg.K <= 0 {
		return nil, withMetric(name, configError("", "k", "must be positive, got %d", cfg.K))
	}
	return &TopKAccuracy{name: name, nclasses: cfg.NumClasses, k: cfg.K}, nil
}

func (m *TopKAccuracy) Name() string { return m.name }

func (m *TopKAccuracy) Update(pred, truth *Tensor) error {
	if err := checkBatch(pred, truth, m.nclasses); err != nil {
		return withMetric(m.name, err)
	}
	t, err := Canonicalize(truth, m.nclasses)
	if err != nil {
		return withMetric(m.name, err)
	}

	var correct int64
	if pred != nil && !pred.IsInt() && pred.Rank() >= 2 && pred.shape[ClassAxis] == m.nclasses && len(t) > 0 {
		scores, err := Flatten(pred)
		if err != nil {
			return withMetric(m.name, err)
		}
		col := make([]float64, m.nclasses)
		for j, target := range t {
			if target < 0 || target >= m.nclasses {
				return withMetric(m.name, configError("", "label", "class id %d at %d outside [0, %d)", target, j, m.nclasses))
			}
			mat.Col(col, j, scores)
			if rankOf(col, target) < m.k {
				correct++
			}
		}
	} else {
		p, err := Canonicalize(pred, m.nclasses)
		if err != nil {
			return withMetric(m.name, err)
		}
		for i := range p {
			if p[i] == t[i] {
				correct++
			}
		}
	}

	m.mu.Lock()
	m.correct += correct
	m.total += int64(len(t))
	m.mu.Unlock()
	return nil
}

// rankOf counts the classes ordered ahead of class c.
func rankOf(scores []float64, c int) int {
	ahead := 0
	for j, s := range scores {
		if s > scores[c] || (s == scores[c] && j < c) {
			ahead++
		}
	}
	return ahead
}

func (m *TopKAccuracy) snapshot() (correct, total int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.correct, m.total
}

func (m *TopKAccuracy) Compute() Value {
	correct, total := m.snapshot()
	return Scalar(float64(correct) / float64(max(total, 1)))
}

func (m *TopKAccuracy) Reset() {
	m.mu.Lock()
	m.correct, m.total = 0, 0
	m.mu.Unlock()
}

func (m *TopKAccuracy) Params() []Param {
	correct, total := m.snapshot()
	return []Param{
		{Name: "k", Value: m.k},
		{Name: "correct", Value: correct},
		{Name: "total", Value: total},
	}
}
