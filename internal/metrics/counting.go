package metrics

import "gonum.org/v1/gonum/mat"

// ClassMask marks the observations whose id equals class.
func ClassMask(ids []int, class int) []bool {
	mask := make([]bool, len(ids))
	for i, id := range ids {
		mask[i] = id == class
	}
	return mask
}

// TruePositive counts observations set in both masks.
func TruePositive(pred, truth []bool) int64 { return countPairs(pred, truth, true, true) }

// FalsePositive counts observations predicted positive but labeled negative.
func FalsePositive(pred, truth []bool) int64 { return countPairs(pred, truth, true, false) }

// FalseNegative counts observations predicted negative but labeled positive.
func FalseNegative(pred, truth []bool) int64 { return countPairs(pred, truth, false, true) }

// TrueNegative counts observations clear in both masks.
func TrueNegative(pred, truth []bool) int64 { return countPairs(pred, truth, false, false) }

func countPairs(pred, truth []bool, p, t bool) int64 {
	var n int64
	for i := range pred {
		if pred[i] == p && truth[i] == t {
			n++
		}
	}
	return n
}

// ConfusionMatrix counts observations by (predicted, true) class pair.
// Rows are predicted classes and columns are true classes; every counting
// consumer in this package relies on that orientation.
type ConfusionMatrix struct {
	n     int
	cells []int64
}

// NewConfusionMatrix builds the matrix for one batch of canonical ids in a
// single pass. Ids outside [0, nclasses) and unequal lengths are rejected.
func NewConfusionMatrix(pred, truth []int, nclasses int) (ConfusionMatrix, error) {
	if nclasses <= 0 {
		return ConfusionMatrix{}, configError("", "nclasses", "must be positive, got %d", nclasses)
	}
	if len(pred) != len(truth) {
		return ConfusionMatrix{}, &ShapeMismatchError{Predictions: len(pred), Labels: len(truth)}
	}
	cm := ZeroConfusion(nclasses)
	for i := range pred {
		p, t := pred[i], truth[i]
		if p < 0 || p >= nclasses {
			return ConfusionMatrix{}, configError("", "prediction", "class id %d at %d outside [0, %d)", p, i, nclasses)
		}
		if t < 0 || t >= nclasses {
			return ConfusionMatrix{}, configError("", "label", "class id %d at %d outside [0, %d)", t, i, nclasses)
		}
		cm.cells[p*nclasses+t]++
	}
	return cm, nil
}

// ZeroConfusion returns an all-zero nclasses×nclasses matrix.
func ZeroConfusion(nclasses int) ConfusionMatrix {
	return ConfusionMatrix{n: nclasses, cells: make([]int64, nclasses*nclasses)}
}

// Classes is the matrix order.
func (m ConfusionMatrix) Classes() int { return m.n }

// At returns the count of observations predicted p and labeled t.
func (m ConfusionMatrix) At(p, t int) int64 { return m.cells[p*m.n+t] }

// Total is the number of observations counted.
func (m ConfusionMatrix) Total() int64 {
	var s int64
	for _, v := range m.cells {
		s += v
	}
	return s
}

// Add accumulates o into m. Both must have the same order.
func (m ConfusionMatrix) Add(o ConfusionMatrix) {
	for i, v := range o.cells {
		m.cells[i] += v
	}
}

// Clone returns an independent copy.
func (m ConfusionMatrix) Clone() ConfusionMatrix {
	cells := make([]int64, len(m.cells))
	copy(cells, m.cells)
	return ConfusionMatrix{n: m.n, cells: cells}
}

// Rows returns the counts as nested slices, predicted class first.
func (m ConfusionMatrix) Rows() [][]int64 {
	rows := make([][]int64, m.n)
	for p := range rows {
		rows[p] = make([]int64, m.n)
		copy(rows[p], m.cells[p*m.n:(p+1)*m.n])
	}
	return rows
}

// Dense returns the counts as a gonum matrix.
func (m ConfusionMatrix) Dense() *mat.Dense {
	if m.n == 0 {
		return &mat.Dense{}
	}
	data := make([]float64, len(m.cells))
	for i, v := range m.cells {
		data[i] = float64(v)
	}
	return mat.NewDense(m.n, m.n, data)
}

// ClassCounts holds per-class one-vs-rest counts.
type ClassCounts struct {
	TP, FP, FN, TN []int64
}

// Counts derives per-class TP/FP/FN/TN: TP is the diagonal, FP the rest of
// the predicted row, FN the rest of the true column, TN everything else.
func (m ConfusionMatrix) Counts() ClassCounts {
	cc := ClassCounts{
		TP: make([]int64, m.n),
		FP: make([]int64, m.n),
		FN: make([]int64, m.n),
		TN: make([]int64, m.n),
	}
	total := m.Total()
	for c := 0; c < m.n; c++ {
		var row, col int64
		for k := 0; k < m.n; k++ {
			row += m.At(c, k)
			col += m.At(k, c)
		}
		tp := m.At(c, c)
		cc.TP[c] = tp
		cc.FP[c] = row - tp
		cc.FN[c] = col - tp
		cc.TN[c] = total - row - col + tp
	}
	return cc
}
