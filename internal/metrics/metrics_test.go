package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-12

// scores canonicalize to [0, 1, 1, 0].
var scores = []float64{0.1, 0.8, 0.51, 0.49}

var (
	allCorrect = []int{0, 1, 1, 0}
	allWrong   = []int{1, 0, 0, 1}
	halfRight  = []int{0, 0, 1, 1}
)

// Three-class fixture: 5 of 8 correct.
var (
	pred3  = []int{0, 2, 1, 1, 2, 0, 2, 1}
	truth3 = []int{0, 1, 1, 2, 2, 0, 0, 1}
)

func mustUpdate(t *testing.T, m Metric, pred, truth *Tensor) {
	t.Helper()
	require.NoError(t, m.Update(pred, truth))
}

func scalarOf(t *testing.T, m Metric) float64 {
	t.Helper()
	v := m.Compute()
	require.Equal(t, ScalarKind, v.Kind, "%s should report a scalar", m.Name())
	return v.Scalar
}

func TestAccuracy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		labels []int
		want   float64
	}{
		{"all correct", allCorrect, 1},
		{"all wrong", allWrong, 0},
		{"half correct", halfRight, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			acc, err := NewAccuracy(Config{NumClasses: 2})
			require.NoError(t, err)
			mustUpdate(t, acc, MustFloats(scores), MustInts(tt.labels))
			assert.Equal(t, tt.want, scalarOf(t, acc))
		})
	}

	t.Run("untouched metric reports zero", func(t *testing.T) {
		t.Parallel()
		acc, err := NewAccuracy(Config{NumClasses: 2})
		require.NoError(t, err)
		assert.Equal(t, 0.0, scalarOf(t, acc))
		assert.Equal(t, []Param{{Name: "correct", Value: int64(0)}, {Name: "total", Value: int64(0)}}, acc.Params())
	})

	t.Run("integer one-hot matches real one-hot", func(t *testing.T) {
		t.Parallel()
		pred := []int{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
			1, 0, 0,
		}
		truth := []float64{
			1, 0, 0,
			0, 0, 1,
			0, 0, 1,
			0, 1, 0,
		}
		asFloats := make([]float64, len(pred))
		for i, v := range pred {
			asFloats[i] = float64(v)
		}

		fromFloats, err := NewAccuracy(Config{NumClasses: 3})
		require.NoError(t, err)
		mustUpdate(t, fromFloats, MustFloats(asFloats, 4, 3), MustFloats(truth, 4, 3))

		ints, err := NewAccuracy(Config{NumClasses: 3})
		require.NoError(t, err)
		mustUpdate(t, ints, MustInts(pred, 4, 3), MustFloats(truth, 4, 3))

		assert.Equal(t, 0.5, scalarOf(t, ints))
		assert.Equal(t, fromFloats.Params(), ints.Params())
	})

	t.Run("shape mismatch leaves state untouched", func(t *testing.T) {
		t.Parallel()
		acc, err := NewAccuracy(Config{NumClasses: 2})
		require.NoError(t, err)
		mustUpdate(t, acc, MustFloats(scores), MustInts(allCorrect))

		err = acc.Update(MustFloats(scores), MustInts([]int{0, 1}))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrShapeMismatch)
		var se *ShapeMismatchError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "accuracy", se.Metric)
		assert.Equal(t, 4, se.Predictions)
		assert.Equal(t, 2, se.Labels)
		assert.Equal(t, []Param{{Name: "correct", Value: int64(4)}, {Name: "total", Value: int64(4)}}, acc.Params())
	})

	t.Run("invalid class count", func(t *testing.T) {
		t.Parallel()
		_, err := NewAccuracy(Config{NumClasses: 0})
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestMeanIoU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pred   []float64
		labels []int
		want   float64
	}{
		{"all correct", scores, allCorrect, 1},
		{"all wrong", scores, allWrong, 0},
		{"half correct", scores, halfRight, 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			iou, err := NewMeanIoU(Config{NumClasses: 2})
			require.NoError(t, err)
			mustUpdate(t, iou, MustFloats(tt.pred), MustInts(tt.labels))
			assert.InDelta(t, tt.want, scalarOf(t, iou), tol)
		})
	}

	t.Run("no positive class is exactly one", func(t *testing.T) {
		t.Parallel()
		for _, fixture := range []struct {
			pred   []float64
			labels []int
		}{
			{[]float64{0.1, 0.2, 0.3, 0.4}, []int{0, 0, 0, 0}},
			{[]float64{0.6, 0.7, 0.8, 0.9}, []int{1, 1, 1, 1}},
		} {
			iou, err := NewMeanIoU(Config{NumClasses: 2})
			require.NoError(t, err)
			mustUpdate(t, iou, MustFloats(fixture.pred), MustInts(fixture.labels))
			assert.Equal(t, 1.0, scalarOf(t, iou))
		}
	})

	t.Run("intersection and union params", func(t *testing.T) {
		t.Parallel()
		iou, err := NewMeanIoU(Config{NumClasses: 2})
		require.NoError(t, err)
		mustUpdate(t, iou, MustFloats(scores), MustInts(halfRight))
		want := []Param{
			{Name: "intersection", Value: []int64{1, 1}},
			{Name: "union", Value: []int64{3, 3}},
		}
		if diff := cmp.Diff(want, iou.Params()); diff != "" {
			t.Errorf("params mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("out of range label is rejected before counting", func(t *testing.T) {
		t.Parallel()
		iou, err := NewMeanIoU(Config{NumClasses: 2})
		require.NoError(t, err)
		err = iou.Update(MustInts([]int{0, 1}), MustInts([]int{0, 2}))
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Equal(t, 1.0, scalarOf(t, iou))
	})
}

func TestConfusionMatrixMetric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		labels []int
		want   [][]float64
	}{
		{"all correct", allCorrect, [][]float64{{2, 0}, {0, 2}}},
		{"all wrong", allWrong, [][]float64{{0, 2}, {2, 0}}},
		{"mixed", halfRight, [][]float64{{1, 1}, {1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cm, err := NewConfusionMatrixMetric(Config{NumClasses: 2})
			require.NoError(t, err)
			mustUpdate(t, cm, MustFloats(scores), MustInts(tt.labels))
			v := cm.Compute()
			require.Equal(t, MatrixKind, v.Kind)
			if diff := cmp.Diff(tt.want, matrixRows(v.Matrix)); diff != "" {
				t.Errorf("matrix mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("accumulates across batches", func(t *testing.T) {
		t.Parallel()
		cm, err := NewConfusionMatrixMetric(Config{NumClasses: 2})
		require.NoError(t, err)
		mustUpdate(t, cm, MustFloats(scores), MustInts(allCorrect))
		mustUpdate(t, cm, MustFloats(scores), MustInts(halfRight))
		want := mat.NewDense(2, 2, []float64{3, 1, 1, 3})
		assert.True(t, mat.Equal(want, cm.Compute().Matrix))
		assert.Equal(t, int64(8), cm.Snapshot().Total())
	})
}

func TestPrecisionRecallMacro(t *testing.T) {
	t.Parallel()

	ctors := map[string]func(Config) (Metric, error){
		"precision": func(c Config) (Metric, error) { return NewPrecision(c) },
		"recall":    func(c Config) (Metric, error) { return NewRecall(c) },
		"f1":        func(c Config) (Metric, error) { return NewF1(c) },
	}
	tests := []struct {
		name   string
		pred   []float64
		labels []int
		want   float64
	}{
		{"all correct", scores, allCorrect, 1},
		{"all wrong", scores, allWrong, 0},
		{"half correct", scores, halfRight, 0.5},
		{"no positive labels", []float64{0.1, 0.2, 0.3, 0.4}, []int{0, 0, 0, 0}, 1},
	}
	for kind, ctor := range ctors {
		for _, tt := range tests {
			t.Run(kind+"/"+tt.name, func(t *testing.T) {
				t.Parallel()
				m, err := ctor(Config{NumClasses: 2, Average: Macro})
				require.NoError(t, err)
				mustUpdate(t, m, MustFloats(tt.pred), MustInts(tt.labels))
				assert.InDelta(t, tt.want, scalarOf(t, m), tol)
			})
		}
	}
}

func TestPrecisionRecallAverages(t *testing.T) {
	t.Parallel()

	build := func(t *testing.T, avg Average) (*Precision, *Recall, *F1) {
		t.Helper()
		cfg := Config{NumClasses: 3, Average: avg}
		p, err := NewPrecision(cfg)
		require.NoError(t, err)
		r, err := NewRecall(cfg)
		require.NoError(t, err)
		f, err := NewF1(cfg)
		require.NoError(t, err)
		for _, m := range []Metric{p, r, f} {
			mustUpdate(t, m, MustInts(pred3), MustInts(truth3))
		}
		return p, r, f
	}

	t.Run("macro", func(t *testing.T) {
		t.Parallel()
		p, r, f := build(t, Macro)
		assert.InDelta(t, 2.0/3, scalarOf(t, p), tol)
		assert.InDelta(t, 11.0/18, scalarOf(t, r), tol)
		assert.InDelta(t, 28.0/45, scalarOf(t, f), tol)
	})

	t.Run("micro pools counts", func(t *testing.T) {
		t.Parallel()
		p, r, f := build(t, Micro)
		// Single-label micro averages all equal accuracy.
		assert.InDelta(t, 5.0/8, scalarOf(t, p), tol)
		assert.InDelta(t, 5.0/8, scalarOf(t, r), tol)
		assert.InDelta(t, 5.0/8, scalarOf(t, f), tol)
	})

	t.Run("per class", func(t *testing.T) {
		t.Parallel()
		p, r, _ := build(t, PerClass)
		pv, rv := p.Compute(), r.Compute()
		require.Equal(t, VectorKind, pv.Kind)
		assert.InDeltaSlice(t, []float64{1, 2.0 / 3, 1.0 / 3}, pv.Vector, tol)
		assert.InDeltaSlice(t, []float64{2.0 / 3, 2.0 / 3, 0.5}, rv.Vector, tol)
		assert.Equal(t, PerClass, p.Average())
	})

	t.Run("params", func(t *testing.T) {
		t.Parallel()
		p, r, _ := build(t, Macro)
		wantP := []Param{
			{Name: "average", Value: "macro"},
			{Name: "true_positive", Value: []int64{2, 2, 1}},
			{Name: "false_positive", Value: []int64{0, 1, 2}},
		}
		wantR := []Param{
			{Name: "average", Value: "macro"},
			{Name: "true_positive", Value: []int64{2, 2, 1}},
			{Name: "false_negative", Value: []int64{1, 1, 1}},
		}
		if diff := cmp.Diff(wantP, p.Params()); diff != "" {
			t.Errorf("precision params (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wantR, r.Params()); diff != "" {
			t.Errorf("recall params (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown policy", func(t *testing.T) {
		t.Parallel()
		_, err := NewPrecision(Config{NumClasses: 3, Average: "weighted"})
		assert.ErrorIs(t, err, ErrConfiguration)
		_, err = NewRecall(Config{NumClasses: 3, Average: "weighted"})
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestBinaryProjections(t *testing.T) {
	t.Parallel()

	bp, err := NewBinaryPrecision(Config{})
	require.NoError(t, err)
	br, err := NewBinaryRecall(Config{})
	require.NoError(t, err)
	assert.Equal(t, "binary_precision", bp.Name())
	assert.Equal(t, "binary_recall", br.Name())

	// Untouched: class 1 has neither predictions nor labels.
	assert.Equal(t, 1.0, scalarOf(t, bp))
	assert.Equal(t, 1.0, scalarOf(t, br))

	// pred [0,1,1,1,0], truth [0,0,1,1,1]: TP=2 FP=1 FN=1 for class 1.
	pred := MustFloats([]float64{0.2, 0.7, 0.9, 0.6, 0.1})
	truth := MustInts([]int{0, 0, 1, 1, 1})
	mustUpdate(t, bp, pred, truth)
	mustUpdate(t, br, pred, truth)
	assert.InDelta(t, 2.0/3, scalarOf(t, bp), tol)
	assert.InDelta(t, 2.0/3, scalarOf(t, br), tol)

	// Class 1 never predicted: precision has no denominator and reports 1,
	// recall drops to zero.
	bp.Reset()
	mustUpdate(t, bp, MustFloats([]float64{0.1, 0.2}), MustInts([]int{1, 1}))
	assert.InDelta(t, 1.0, scalarOf(t, bp), tol)
	br.Reset()
	mustUpdate(t, br, MustFloats([]float64{0.1, 0.2}), MustInts([]int{1, 1}))
	assert.InDelta(t, 0.0, scalarOf(t, br), tol)

	_, err = NewBinaryPrecision(Config{NumClasses: 3})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewBinaryRecall(Config{NumClasses: 5})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestTopKAccuracy(t *testing.T) {
	t.Parallel()

	probs := MustFloats([]float64{
		0.5, 0.3, 0.2, // top-1 = 0
		0.1, 0.3, 0.6, // top-1 = 2, top-2 = {2, 1}
		0.4, 0.4, 0.2, // tie: 0 ranks before 1
	}, 3, 3)
	labels := MustInts([]int{0, 1, 1})

	top1, err := NewTopKAccuracy(TopKConfig{NumClasses: 3, K: 1})
	require.NoError(t, err)
	mustUpdate(t, top1, probs, labels)
	assert.InDelta(t, 1.0/3, scalarOf(t, top1), tol)

	top2, err := NewTopKAccuracy(TopKConfig{NumClasses: 3, K: 2})
	require.NoError(t, err)
	mustUpdate(t, top2, probs, labels)
	assert.InDelta(t, 1.0, scalarOf(t, top2), tol)

	// Hard predictions degrade to exact match.
	top2.Reset()
	mustUpdate(t, top2, MustInts([]int{0, 2, 1}), labels)
	assert.InDelta(t, 2.0/3, scalarOf(t, top2), tol)

	_, err = NewTopKAccuracy(TopKConfig{NumClasses: 3})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestMean(t *testing.T) {
	t.Parallel()

	t.Run("weights batches by size", func(t *testing.T) {
		t.Parallel()
		mae := NewMeanAbsoluteError()
		mse := NewMeanSquaredError()
		for _, m := range []Metric{mae, mse} {
			mustUpdate(t, m, MustFloats([]float64{1, 2, 3}), MustFloats([]float64{1, 1, 1}))
			mustUpdate(t, m, MustFloats([]float64{10}), MustFloats([]float64{0}))
		}
		// A plain mean of batch means would give 5.5.
		assert.InDelta(t, 3.25, scalarOf(t, mae), tol)
		assert.InDelta(t, 26.25, scalarOf(t, mse), tol)
		assert.Equal(t, int64(4), mae.Params()[1].Value)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		t.Parallel()
		mae := NewMeanAbsoluteError()
		mustUpdate(t, mae, MustFloats(nil), MustFloats(nil))
		assert.Equal(t, 0.0, scalarOf(t, mae))
		assert.Equal(t, int64(0), mae.Params()[1].Value)
	})

	t.Run("integer labels are compared as numbers", func(t *testing.T) {
		t.Parallel()
		mae := NewMeanAbsoluteError().Named("label_distance")
		assert.Equal(t, "label_distance", mae.Name())
		mustUpdate(t, mae, MustInts([]int{0, 3}), MustInts([]int{1, 1}))
		assert.InDelta(t, 1.5, scalarOf(t, mae), tol)
	})

	t.Run("custom function", func(t *testing.T) {
		t.Parallel()
		hits, err := NewMean(MeanConfig{Name: "within_one", Fn: func(p, y float64) float64 {
			if p-y <= 1 && y-p <= 1 {
				return 1
			}
			return 0
		}})
		require.NoError(t, err)
		mustUpdate(t, hits, MustFloats([]float64{1, 5, 2.5}), MustFloats([]float64{1.5, 1, 2}))
		assert.InDelta(t, 2.0/3, scalarOf(t, hits), tol)
	})

	t.Run("length mismatch", func(t *testing.T) {
		t.Parallel()
		mse := NewMeanSquaredError()
		err := mse.Update(MustFloats([]float64{1, 2}), MustFloats([]float64{1}))
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("config errors", func(t *testing.T) {
		t.Parallel()
		_, err := NewMean(MeanConfig{Fn: func(p, y float64) float64 { return 0 }})
		assert.ErrorIs(t, err, ErrConfiguration)
		_, err = NewMean(MeanConfig{Name: "x"})
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	tp := []int64{3, 0, 1}
	fp := []int64{1, 0, 3}

	assert.InDelta(t, (0.75+1+0.25)/3, Aggregate(tp, fp, Macro).Scalar, tol)
	assert.InDelta(t, 4.0/8, Aggregate(tp, fp, Micro).Scalar, tol)
	per := Aggregate(tp, fp, PerClass)
	require.Equal(t, VectorKind, per.Kind)
	assert.Equal(t, 1.0, per.Vector[1])
	assert.InDeltaSlice(t, []float64{0.75, 1, 0.25}, per.Vector, tol)
}

func TestParseAverage(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Average{
		"macro": Macro, "MICRO": Micro, " none ": PerClass, "per_class": PerClass, "per-class": PerClass,
	} {
		got, err := ParseAverage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAverage("weighted")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValueJSON(t *testing.T) {
	t.Parallel()

	b, err := Scalar(0.5).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `0.5`, string(b))

	b, err = Vector([]float64{1, 0.25}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 0.25]`, string(b))

	b, err = Matrix(mat.NewDense(2, 2, []float64{1, 2, 3, 4})).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[[1, 2], [3, 4]]`, string(b))

	assert.Equal(t, "0.5000", Scalar(0.5).String())
	assert.Equal(t, "[1.0000 0.2500]", Vector([]float64{1, 0.25}).String())
}

func TestValueJSONNonFinite(t *testing.T) {
	t.Parallel()

	mse := NewMeanSquaredError()
	mustUpdate(t, mse, MustFloats([]float64{1e200}), MustFloats([]float64{0}))
	require.True(t, math.IsInf(scalarOf(t, mse), 1))

	b, err := json.Marshal(Result{Name: mse.Name(), Value: mse.Compute(), Params: mse.Params()})
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Nil(t, decoded["value"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "average", "value": nil},
		map[string]interface{}{"name": "count", "value": 1.0},
	}, decoded["params"])

	b, err = Vector([]float64{0.5, math.NaN(), math.Inf(-1)}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[0.5, null, null]`, string(b))

	b, err = Matrix(mat.NewDense(1, 2, []float64{math.Inf(1), 2})).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[[null, 2]]`, string(b))
}
