package metrics

import "gonum.org/v1/gonum/stat"

// Ratios returns (num[c]+ε)/(num[c]+other[c]+ε) for every class.
func Ratios(num, other []int64) []float64 {
	out := make([]float64, len(num))
	for c := range num {
		out[c] = ratio(float64(num[c]), float64(other[c]))
	}
	return out
}

func ratio(num, other float64) float64 {
	return (num + Epsilon) / (num + other + Epsilon)
}

// Aggregate combines per-class numerator counts (true positives) with the
// matching error counts (false positives for precision, false negatives for
// recall) under the given policy.
func Aggregate(num, other []int64, avg Average) Value {
	switch avg {
	case Micro:
		return Scalar(ratio(meanInt(num), meanInt(other)))
	case PerClass:
		return Vector(Ratios(num, other))
	default:
		return Scalar(stat.Mean(Ratios(num, other), nil))
	}
}

func meanInt(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	fs := make([]float64, len(xs))
	for i, x := range xs {
		fs[i] = float64(x)
	}
	return stat.Mean(fs, nil)
}
