package metrics

import "sync"

// Config configures the classification metrics. Fields a metric does not use
// are ignored.
type Config struct {
	// Name overrides the metric's default name.
	Name string

	// NumClasses is the number of classes; ids run over [0, NumClasses).
	NumClasses int

	// Average is the aggregation policy for per-class ratios. Empty means Macro.
	Average Average
}

func (c Config) name(def string) string {
	if c.Name != "" {
		return c.Name
	}
	return def
}

func (c Config) average() Average {
	if c.Average == "" {
		return Macro
	}
	return c.Average
}

func checkBatch(pred, truth *Tensor, nclasses int) error {
	np, nt := observations(pred, nclasses), observations(truth, nclasses)
	if np != nt {
		return &ShapeMismatchError{Predictions: np, Labels: nt}
	}
	return nil
}

func observations(t *Tensor, nclasses int) int {
	if t == nil {
		return 0
	}
	return t.ObservationsFor(nclasses)
}

// Accuracy is the fraction of observations whose predicted class equals the
// true class.
type Accuracy struct {
	name     string
	nclasses int

	mu      sync.RWMutex
	correct int64
	total   int64
}

// NewAccuracy creates an accuracy metric named "accuracy" by default.
func NewAccuracy(cfg Config) (*Accuracy, error) {
	name := cfg.name("accuracy")
	if err := checkClasses(cfg.NumClasses); err != nil {
		return nil, withMetric(name, err)
	}
	return &Accuracy{name: name, nclasses: cfg.NumClasses}, nil
}

func (a *Accuracy) Name() string { return a.name }

// Update adds the batch's matching count to correct and its length to total.
func (a *Accuracy) Update(pred, truth *Tensor) error {
	if err := checkBatch(pred, truth, a.nclasses); err != nil {
		return withMetric(a.name, err)
	}
	p, err := Canonicalize(pred, a.nclasses)
	if err != nil {
		return withMetric(a.name, err)
	}
	t, err := Canonicalize(truth, a.nclasses)
	if err != nil {
		return withMetric(a.name, err)
	}
	var correct int64
	for i := range p {
		if p[i] == t[i] {
			correct++
		}
	}

	a.mu.Lock()
	a.correct += correct
	a.total += int64(len(p))
	a.mu.Unlock()
	return nil
}

func (a *Accuracy) snapshot() (correct, total int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.correct, a.total
}

// Compute returns correct / max(total, 1), so an untouched metric reports 0.
func (a *Accuracy) Compute() Value {
	correct, total := a.snapshot()
	return Scalar(float64(correct) / float64(max(total, 1)))
}

func (a *Accuracy) Reset() {
	a.mu.Lock()
	a.correct, a.total = 0, 0
	a.mu.Unlock()
}

func (a *Accuracy) Params() []Param {
	correct, total := a.snapshot()
	return []Param{{Name: "correct", Value: correct}, {Name: "total", Value: total}}
}
