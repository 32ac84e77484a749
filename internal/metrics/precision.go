package metrics

import "sync"

// perClassRatio keeps two per-class count vectors, a numerator and the error
// count that completes its denominator, and reduces them with Aggregate.
type perClassRatio struct {
	name     string
	nclasses int
	avg      Average

	extract   func(ClassCounts) (num, other []int64)
	numName   string
	otherName string

	mu    sync.RWMutex
	num   []int64
	other []int64
}

func newPerClassRatio(cfg Config, defName, numName, otherName string, extract func(ClassCounts) ([]int64, []int64)) (*perClassRatio, error) {
	name := cfg.name(defName)
	if err := checkClasses(cfg.NumClasses); err != nil {
		return nil, withMetric(name, err)
	}
	avg := cfg.average()
	if err := avg.validate(); err != nil {
		return nil, withMetric(name, err)
	}
	return &perClassRatio{
		name:      name,
		nclasses:  cfg.NumClasses,
		avg:       avg,
		extract:   extract,
		numName:   numName,
		otherName: otherName,
		num:       make([]int64, cfg.NumClasses),
		other:     make([]int64, cfg.NumClasses),
	}, nil
}

func (r *perClassRatio) Name() string { return r.name }

// Average is the aggregation policy fixed at construction.
func (r *perClassRatio) Average() Average { return r.avg }

func (r *perClassRatio) Update(pred, truth *Tensor) error {
	if err := checkBatch(pred, truth, r.nclasses); err != nil {
		return withMetric(r.name, err)
	}
	cm, err := batchConfusion(pred, truth, r.nclasses)
	if err != nil {
		return withMetric(r.name, err)
	}
	num, other := r.extract(cm.Counts())

	r.mu.Lock()
	for c := 0; c < r.nclasses; c++ {
		r.num[c] += num[c]
		r.other[c] += other[c]
	}
	r.mu.Unlock()
	return nil
}

func (r *perClassRatio) snapshot() (num, other []int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.num...), append([]int64(nil), r.other...)
}

func (r *perClassRatio) Compute() Value {
	num, other := r.snapshot()
	return Aggregate(num, other, r.avg)
}

// PerClass returns the unreduced per-class ratios regardless of the policy.
func (r *perClassRatio) PerClass() []float64 {
	return Ratios(r.snapshot())
}

func (r *perClassRatio) Reset() {
	r.mu.Lock()
	clear(r.num)
	clear(r.other)
	r.mu.Unlock()
}

func (r *perClassRatio) Params() []Param {
	num, other := r.snapshot()
	return []Param{
		{Name: "average", Value: string(r.avg)},
		{Name: r.numName, Value: num},
		{Name: r.otherName, Value: other},
	}
}

// Precision is TP/(TP+FP) per class, reduced by the configured Average.
type Precision struct{ *perClassRatio }

// NewPrecision creates a precision metric named "precision" by default.
func NewPrecision(cfg Config) (*Precision, error) {
	r, err := newPerClassRatio(cfg, "precision", "true_positive", "false_positive",
		func(cc ClassCounts) ([]int64, []int64) { return cc.TP, cc.FP })
	if err != nil {
		return nil, err
	}
	return &Precision{r}, nil
}

// Recall is TP/(TP+FN) per class, reduced by the configured Average.
type Recall struct{ *perClassRatio }

// NewRecall creates a recall metric named "recall" by default.
func NewRecall(cfg Config) (*Recall, error) {
	r, err := newPerClassRatio(cfg, "recall", "true_positive", "false_negative",
		func(cc ClassCounts) ([]int64, []int64) { return cc.TP, cc.FN })
	if err != nil {
		return nil, err
	}
	return &Recall{r}, nil
}

// F1 is 2TP/(2TP+FP+FN) per class, the harmonic mean of precision and
// recall, reduced by the configured Average. Micro F1 pools the counts.
type F1 struct{ *perClassRatio }

// NewF1 creates an F1 metric named "f1" by default.
func NewF1(cfg Config) (*F1, error) {
	r, err := newPerClassRatio(cfg, "f1", "double_true_positive", "false_positive_plus_negative",
		func(cc ClassCounts) ([]int64, []int64) {
			num := make([]int64, len(cc.TP))
			other := make([]int64, len(cc.TP))
			for c := range cc.TP {
				num[c] = 2 * cc.TP[c]
				other[c] = cc.FP[c] + cc.FN[c]
			}
			return num, other
		})
	if err != nil {
		return nil, err
	}
	return &F1{r}, nil
}

// positiveClass is the class reported by the binary projections.
const positiveClass = 1

// BinaryPrecision reports class 1's precision for two-class problems. It reads
// the per-class state of an embedded Precision.
type BinaryPrecision struct {
	inner *Precision
}

// NewBinaryPrecision creates a metric named "binary_precision" by default.
// NumClasses may be left zero; any value other than 2 is rejected.
func NewBinaryPrecision(cfg Config) (*BinaryPrecision, error) {
	cfg, err := binaryConfig(cfg, "binary_precision")
	if err != nil {
		return nil, err
	}
	p, err := NewPrecision(cfg)
	if err != nil {
		return nil, err
	}
	return &BinaryPrecision{inner: p}, nil
}

func (b *BinaryPrecision) Name() string                     { return b.inner.Name() }
func (b *BinaryPrecision) Update(pred, truth *Tensor) error { return b.inner.Update(pred, truth) }
func (b *BinaryPrecision) Reset()                           { b.inner.Reset() }
func (b *BinaryPrecision) Params() []Param                  { return b.inner.Params() }
func (b *BinaryPrecision) Compute() Value {
	return Scalar(b.inner.PerClass()[positiveClass])
}

// BinaryRecall reports class 1's recall for two-class problems.
type BinaryRecall struct {
	inner *Recall
}

// NewBinaryRecall creates a metric named "binary_recall" by default.
func NewBinaryRecall(cfg Config) (*BinaryRecall, error) {
	cfg, err := binaryConfig(cfg, "binary_recall")
	if err != nil {
		return nil, err
	}
	r, err := NewRecall(cfg)
	if err != nil {
		return nil, err
	}
	return &BinaryRecall{inner: r}, nil
}

func (b *BinaryRecall) Name() string                     { return b.inner.Name() }
func (b *BinaryRecall) Update(pred, truth *Tensor) error { return b.inner.Update(pred, truth) }
func (b *BinaryRecall) Reset()                           { b.inner.Reset() }
func (b *BinaryRecall) Params() []Param                  { return b.inner.Params() }
func (b *BinaryRecall) Compute() Value {
	return Scalar(b.inner.PerClass()[positiveClass])
}

func binaryConfig(cfg Config, defName string) (Config, error) {
	cfg.Name = cfg.name(defName)
	if cfg.NumClasses == 0 {
		cfg.NumClasses = 2
	}
	if cfg.NumClasses != 2 {
		return cfg, withMetric(cfg.Name, configError("", "nclasses", "binary metrics need 2 classes, got %d", cfg.NumClasses))
	}
	cfg.Average = PerClass
	return cfg, nil
}
