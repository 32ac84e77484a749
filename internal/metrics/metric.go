package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Epsilon is added to the numerator and denominator of every ratio so that
// 0/0 resolves to 1 instead of NaN.
const Epsilon = 2.220446049250313e-16

// Metric is a running evaluation measure. Update is atomic with respect to
// concurrent callers; Compute and Params never mutate state and may be called
// at any time.
type Metric interface {
	Name() string
	Update(pred, truth *Tensor) error
	Compute() Value
	Reset()
	Params() []Param
}

// Param is one named piece of auxiliary running state.
type Param struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// MarshalJSON encodes the value as-is, except that non-finite floats become
// null as they do in Value.
func (p Param) MarshalJSON() ([]byte, error) {
	var v interface{} = p.Value
	switch x := p.Value.(type) {
	case float64:
		v = jsonFloat(x)
	case []float64:
		v = jsonFloats(x)
	}
	return json.Marshal(struct {
		Name  string      `json:"name"`
		Value interface{} `json:"value"`
	}{p.Name, v})
}

// ValueKind says which field of a Value is populated.
type ValueKind int

const (
	ScalarKind ValueKind = iota
	VectorKind
	MatrixKind
)

// Value is what a metric reports: a scalar, a per-class vector, or a matrix.
type Value struct {
	Kind   ValueKind
	Scalar float64
	Vector []float64
	Matrix *mat.Dense
}

// Scalar wraps a single number.
func Scalar(v float64) Value { return Value{Kind: ScalarKind, Scalar: v} }

// Vector wraps a per-class vector.
func Vector(v []float64) Value { return Value{Kind: VectorKind, Vector: v} }

// Matrix wraps a matrix.
func Matrix(m *mat.Dense) Value { return Value{Kind: MatrixKind, Matrix: m} }

// MarshalJSON encodes scalars as numbers, vectors as arrays and matrices as
// arrays of rows. NaN and ±Inf, which JSON cannot carry, become null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case VectorKind:
		return json.Marshal(jsonFloats(v.Vector))
	case MatrixKind:
		rows := matrixRows(v.Matrix)
		out := make([][]*float64, len(rows))
		for i, row := range rows {
			out[i] = jsonFloats(row)
		}
		return json.Marshal(out)
	default:
		return json.Marshal(jsonFloat(v.Scalar))
	}
}

func jsonFloat(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

func jsonFloats(xs []float64) []*float64 {
	out := make([]*float64, len(xs))
	for i, x := range xs {
		out[i] = jsonFloat(x)
	}
	return out
}

func matrixRows(m *mat.Dense) [][]float64 {
	if m == nil || m.IsEmpty() {
		return [][]float64{}
	}
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}

func (v Value) String() string {
	switch v.Kind {
	case VectorKind:
		parts := make([]string, len(v.Vector))
		for i, x := range v.Vector {
			parts[i] = fmt.Sprintf("%.4f", x)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case MatrixKind:
		rows := matrixRows(v.Matrix)
		parts := make([]string, len(rows))
		for i, row := range rows {
			parts[i] = fmt.Sprint(row)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprintf("%.4f", v.Scalar)
	}
}

// Average selects how per-class ratios are combined.
type Average string

const (
	// Macro is the unweighted mean of per-class ratios.
	Macro Average = "macro"
	// Micro is one ratio over counts pooled across classes.
	Micro Average = "micro"
	// PerClass reports the per-class ratios unreduced.
	PerClass Average = "none"
)

// ParseAverage accepts "macro", "micro", "none", "per_class" and "per-class".
func ParseAverage(s string) (Average, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "macro":
		return Macro, nil
	case "micro":
		return Micro, nil
	case "none", "per_class", "per-class":
		return PerClass, nil
	}
	return "", configError("", "average", "unknown aggregation policy %q", s)
}

func (a Average) validate() error {
	switch a {
	case Macro, Micro, PerClass:
		return nil
	}
	return configError("", "average", "unknown aggregation policy %q", string(a))
}

func checkClasses(nclasses int) error {
	if nclasses <= 0 {
		return configError("", "nclasses", "must be positive, got %d", nclasses)
	}
	return nil
}

// batchConfusion canonicalizes both sides of a batch and counts them. It is
// the shared input path for every classification metric and runs without
// touching any metric state.
func batchConfusion(pred, truth *Tensor, nclasses int) (ConfusionMatrix, error) {
	p, err := Canonicalize(pred, nclasses)
	if err != nil {
		return ConfusionMatrix{}, err
	}
	t, err := Canonicalize(truth, nclasses)
	if err != nil {
		return ConfusionMatrix{}, err
	}
	return NewConfusionMatrix(p, t, nclasses)
}
