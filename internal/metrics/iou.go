package metrics

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// MeanIoU is the class-averaged intersection over union. A class that was
// never predicted nor present scores exactly 1.
type MeanIoU struct {
	name     string
	nclasses int

	mu           sync.RWMutex
	intersection []int64
	union        []int64
}

// NewMeanIoU creates a mean-IoU metric named "mean_iou" by default.
func NewMeanIoU(cfg Config) (*MeanIoU, error) {
	name := cfg.name("mean_iou")
	if err := checkClasses(cfg.NumClasses); err != nil {
		return nil, withMetric(name, err)
	}
	return &MeanIoU{
		name:         name,
		nclasses:     cfg.NumClasses,
		intersection: make([]int64, cfg.NumClasses),
		union:        make([]int64, cfg.NumClasses),
	}, nil
}

func (m *MeanIoU) Name() string { return m.name }

// Update adds, per class c, count(pred==c AND true==c) to the intersection
// and count(pred==c OR true==c) to the union.
func (m *MeanIoU) Update(pred, truth *Tensor) error {
	if err := checkBatch(pred, truth, m.nclasses); err != nil {
		return withMetric(m.name, err)
	}
	cm, err := batchConfusion(pred, truth, m.nclasses)
	if err != nil {
		return withMetric(m.name, err)
	}
	cc := cm.Counts()

	m.mu.Lock()
	for c := 0; c < m.nclasses; c++ {
		m.intersection[c] += cc.TP[c]
		m.union[c] += cc.TP[c] + cc.FP[c] + cc.FN[c]
	}
	m.mu.Unlock()
	return nil
}

func (m *MeanIoU) snapshot() (inter, union []int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inter = append([]int64(nil), m.intersection...)
	union = append([]int64(nil), m.union...)
	return inter, union
}

// PerClass returns (I[c]+ε)/(U[c]+ε) for every class.
func (m *MeanIoU) PerClass() []float64 {
	inter, union := m.snapshot()
	out := make([]float64, len(inter))
	for c := range inter {
		out[c] = (float64(inter[c]) + Epsilon) / (float64(union[c]) + Epsilon)
	}
	return out
}

func (m *MeanIoU) Compute() Value {
	return Scalar(stat.Mean(m.PerClass(), nil))
}

func (m *MeanIoU) Reset() {
	m.mu.Lock()
	clear(m.intersection)
	clear(m.union)
	m.mu.Unlock()
}

func (m *MeanIoU) Params() []Param {
	inter, union := m.snapshot()
	return []Param{{Name: "intersection", Value: inter}, {Name: "union", Value: union}}
}
