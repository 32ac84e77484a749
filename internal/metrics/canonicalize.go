package metrics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Threshold separates class 0 from class 1 for soft binary scores.
const Threshold = 0.5

// Canonicalize converts predictions or labels in any supported encoding to one
// class id per observation:
//
//   - integer tensors are class ids already and pass through (row-major),
//     unless IsOneHot holds, in which case they are reduced like real scores;
//   - rank-1 real tensors are soft binary scores, class 1 when >= Threshold;
//   - real tensors whose class axis has length nclasses are reduced by arg-max
//     along that axis, ties going to the lowest class id;
//   - real tensors whose class axis has length 1 are thresholded elementwise.
//
// Thresholding requires nclasses == 2. Any other class-axis length is a
// ConfigurationError. Class ids are not range checked here.
func Canonicalize(x *Tensor, nclasses int) ([]int, error) {
	if nclasses <= 0 {
		return nil, configError("", "nclasses", "must be positive, got %d", nclasses)
	}
	if x == nil {
		return []int{}, nil
	}
	if x.IsInt() && !x.IsOneHot(nclasses) {
		return FlattenIDs(x), nil
	}

	width := 1
	if x.Rank() >= 2 {
		width = x.shape[ClassAxis]
	}
	argmax := x.Rank() >= 2 && width == nclasses
	if !argmax {
		if width != 1 {
			return nil, configError("", "class axis", "length %d matches neither 1 nor nclasses=%d", width, nclasses)
		}
		if nclasses != 2 {
			return nil, configError("", "nclasses", "soft scores need 2 classes, got %d", nclasses)
		}
	}
	if x.ObservationsFor(nclasses) == 0 {
		return []int{}, nil
	}

	m, err := Flatten(x)
	if err != nil {
		return nil, err
	}
	_, n := m.Dims()
	ids := make([]int, n)
	if !argmax {
		for j := range ids {
			if m.At(0, j) >= Threshold {
				ids[j] = 1
			}
		}
		return ids, nil
	}

	col := make([]float64, width)
	for j := range ids {
		mat.Col(col, j, m)
		ids[j] = floats.MaxIdx(col)
	}
	return ids, nil
}

// Flatten lays a real tensor out as [class, observation]. A rank-1 tensor
// becomes a 1×N row; a [B, C, S1..Sk] tensor becomes C×(B·S1·…·Sk) with the
// batch and spatial axes merged in their original order.
func Flatten(x *Tensor) (*mat.Dense, error) {
	if x.Size() == 0 {
		return nil, configError("", "shape", "cannot flatten empty tensor %v", x.shape)
	}
	data := x.floats
	if x.IsInt() {
		data = x.Values()
	}
	if x.Rank() < 2 {
		row := make([]float64, len(data))
		copy(row, data)
		return mat.NewDense(1, len(row), row), nil
	}

	batch, classes := x.shape[0], x.shape[ClassAxis]
	inner := 1
	for _, d := range x.shape[2:] {
		inner *= d
	}
	cols := batch * inner
	out := make([]float64, classes*cols)
	for b := 0; b < batch; b++ {
		for c := 0; c < classes; c++ {
			src := data[(b*classes+c)*inner : (b*classes+c+1)*inner]
			copy(out[c*cols+b*inner:], src)
		}
	}
	return mat.NewDense(classes, cols, out), nil
}

// FlattenIDs returns an integer tensor's class ids in row-major order.
func FlattenIDs(x *Tensor) []int {
	out := make([]int, len(x.ints))
	copy(out, x.ints)
	return out
}
