package metrics

import "fmt"

// ClassAxis is the axis holding per-class scores in rank >= 2 real tensors:
// [batch, class, spatial...].
const ClassAxis = 1

// Tensor is a dense row-major array of either real scores or integer class
// ids. The zero value is an empty real vector.
type Tensor struct {
	shape  []int
	floats []float64
	ints   []int
}

// Floats wraps real-valued data. With no shape the tensor is 1-D.
func Floats(data []float64, shape ...int) (*Tensor, error) {
	s, err := resolveShape(len(data), shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{shape: s, floats: data}, nil
}

// Ints wraps integer class ids. With no shape the tensor is 1-D.
func Ints(data []int, shape ...int) (*Tensor, error) {
	s, err := resolveShape(len(data), shape)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []int{}
	}
	return &Tensor{shape: s, ints: data}, nil
}

// MustFloats is Floats for literals in tests and examples; it panics on a bad shape.
func MustFloats(data []float64, shape ...int) *Tensor {
	t, err := Floats(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// MustInts is Ints for literals; it panics on a bad shape.
func MustInts(data []int, shape ...int) *Tensor {
	t, err := Ints(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

func resolveShape(n int, shape []int) ([]int, error) {
	if len(shape) == 0 {
		return []int{n}, nil
	}
	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, configError("", "shape", "negative dimension in %v", shape)
		}
		size *= d
	}
	if size != n {
		return nil, configError("", "shape", "shape %v holds %d elements, data has %d", shape, size, n)
	}
	out := make([]int, len(shape))
	copy(out, shape)
	return out, nil
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	out := make([]int, len(t.shape))
	copy(out, t.shape)
	return out
}

// Rank is the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// IsInt reports whether the tensor holds integer class ids.
func (t *Tensor) IsInt() bool { return t.ints != nil }

// Size is the total element count.
func (t *Tensor) Size() int {
	if t.IsInt() {
		return len(t.ints)
	}
	return len(t.floats)
}

// Observations is the number of observations the tensor describes: every
// element for integer tensors and rank-1 real tensors, otherwise every
// element except the class axis.
func (t *Tensor) Observations() int {
	if t.IsInt() || t.Rank() < 2 {
		return t.Size()
	}
	if t.shape[ClassAxis] == 0 {
		return 0
	}
	return t.Size() / t.shape[ClassAxis]
}

// IsOneHot reports whether an integer tensor of rank >= 2 encodes one-hot
// rows: the class axis has length nclasses and every slice along it holds a
// single 1 among 0s. Label maps that fail this test are read as class ids.
func (t *Tensor) IsOneHot(nclasses int) bool {
	if !t.IsInt() || t.Rank() < 2 || t.shape[ClassAxis] != nclasses || len(t.ints) == 0 {
		return false
	}
	inner := 1
	for _, d := range t.shape[2:] {
		inner *= d
	}
	for b := 0; b < t.shape[0]; b++ {
		for s := 0; s < inner; s++ {
			ones := 0
			for c := 0; c < nclasses; c++ {
				switch t.ints[(b*nclasses+c)*inner+s] {
				case 0:
				case 1:
					ones++
				default:
					return false
				}
			}
			if ones != 1 {
				return false
			}
		}
	}
	return true
}

// ObservationsFor is Observations for a problem with nclasses classes: a
// one-hot integer tensor counts one observation per class-axis slice.
func (t *Tensor) ObservationsFor(nclasses int) int {
	if t.IsOneHot(nclasses) {
		return t.Size() / nclasses
	}
	return t.Observations()
}

// Values returns the elements as float64 in row-major order. Integer ids are
// converted; real data is copied.
func (t *Tensor) Values() []float64 {
	if t.IsInt() {
		out := make([]float64, len(t.ints))
		for i, v := range t.ints {
			out[i] = float64(v)
		}
		return out
	}
	out := make([]float64, len(t.floats))
	copy(out, t.floats)
	return out
}

func (t *Tensor) String() string {
	kind := "float"
	if t.IsInt() {
		kind = "int"
	}
	return fmt.Sprintf("Tensor(%s%v)", kind, t.shape)
}
