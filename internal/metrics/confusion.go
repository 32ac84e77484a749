package metrics

import "sync"

// ConfusionMatrixMetric accumulates a running confusion matrix with predicted
// classes on rows and true classes on columns.
type ConfusionMatrixMetric struct {
	name string

	mu     sync.RWMutex
	matrix ConfusionMatrix
}

// NewConfusionMatrixMetric creates a metric named "confusion_matrix" by default.
func NewConfusionMatrixMetric(cfg Config) (*ConfusionMatrixMetric, error) {
	name := cfg.name("confusion_matrix")
	if err := checkClasses(cfg.NumClasses); err != nil {
		return nil, withMetric(name, err)
	}
	return &ConfusionMatrixMetric{name: name, matrix: ZeroConfusion(cfg.NumClasses)}, nil
}

func (m *ConfusionMatrixMetric) Name() string { return m.name }

func (m *ConfusionMatrixMetric) Update(pred, truth *Tensor) error {
	if err := checkBatch(pred, truth, m.matrix.Classes()); err != nil {
		return withMetric(m.name, err)
	}
	cm, err := batchConfusion(pred, truth, m.matrix.Classes())
	if err != nil {
		return withMetric(m.name, err)
	}

	m.mu.Lock()
	m.matrix.Add(cm)
	m.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the running matrix.
func (m *ConfusionMatrixMetric) Snapshot() ConfusionMatrix {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matrix.Clone()
}

// Compute returns the matrix itself, unreduced.
func (m *ConfusionMatrixMetric) Compute() Value {
	return Matrix(m.Snapshot().Dense())
}

func (m *ConfusionMatrixMetric) Reset() {
	m.mu.Lock()
	clear(m.matrix.cells)
	m.mu.Unlock()
}

func (m *ConfusionMatrixMetric) Params() []Param {
	snap := m.Snapshot()
	return []Param{
		{Name: "nclasses", Value: snap.Classes()},
		{Name: "total", Value: snap.Total()},
	}
}
