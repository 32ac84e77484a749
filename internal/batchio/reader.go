// Package batchio reads evaluation batches from JSON Lines streams.
//
// Each non-blank line holds one batch:
//
//	{"predictions": {"shape": [4], "data": [0.1, 0.8, 0.51, 0.49]},
//	 "labels":      {"data": [0, 1, 1, 0], "dtype": "int"}}
//
// A tensor's dtype is "float" (default) or "int"; its shape defaults to a
// 1-D vector of len(data).
package batchio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/banshee-data/evalmetrics/internal/metrics"
)

// MaxLineSize bounds a single batch line.
const MaxLineSize = 64 * 1024 * 1024

// Tensor dtypes.
const (
	DTypeFloat = "float"
	DTypeInt   = "int"
)

// TensorJSON is the wire form of a tensor.
type TensorJSON struct {
	Shape []int     `json:"shape,omitempty"`
	Data  []float64 `json:"data"`
	DType string    `json:"dtype,omitempty"`
}

type batchJSON struct {
	Predictions *TensorJSON `json:"predictions"`
	Labels      *TensorJSON `json:"labels"`
}

// Batch is one decoded line.
type Batch struct {
	Line        int
	Predictions *metrics.Tensor
	Labels      *metrics.Tensor
}

// LineError locates a malformed line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// Reader decodes batches one line at a time.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next batch, skipping blank lines and lines starting with
// '#'. It returns io.EOF after the last batch.
func (r *Reader) Next() (Batch, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		b, err := decodeBatch([]byte(text))
		if err != nil {
			return Batch{}, &LineError{Line: r.line, Err: err}
		}
		b.Line = r.line
		return b, nil
	}
	if err := r.sc.Err(); err != nil {
		return Batch{}, &LineError{Line: r.line + 1, Err: err}
	}
	return Batch{}, io.EOF
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]Batch, error) {
	var out []Batch
	for {
		b, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}

func decodeBatch(data []byte) (Batch, error) {
	var raw batchJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	if raw.Predictions == nil {
		return Batch{}, errors.New("missing predictions")
	}
	if raw.Labels == nil {
		return Batch{}, errors.New("missing labels")
	}
	pred, err := raw.Predictions.Tensor()
	if err != nil {
		return Batch{}, fmt.Errorf("predictions: %w", err)
	}
	labels, err := raw.Labels.Tensor()
	if err != nil {
		return Batch{}, fmt.Errorf("labels: %w", err)
	}
	return Batch{Predictions: pred, Labels: labels}, nil
}

// Tensor converts the wire form. Integer tensors must hold whole numbers
// within the int32 range.
func (t *TensorJSON) Tensor() (*metrics.Tensor, error) {
	switch t.DType {
	case "", DTypeFloat:
		return metrics.Floats(append([]float64(nil), t.Data...), t.Shape...)
	case DTypeInt:
		ids := make([]int, len(t.Data))
		for i, v := range t.Data {
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("element %d: %v is not an integer", i, v)
			}
			if math.Abs(v) > math.MaxInt32 {
				return nil, fmt.Errorf("element %d: %v is out of range for a class id", i, v)
			}
			ids[i] = int(v)
		}
		return metrics.Ints(ids, t.Shape...)
	}
	return nil, fmt.Errorf("unknown dtype %q", t.DType)
}

// FromTensor renders a tensor in wire form.
func FromTensor(t *metrics.Tensor) TensorJSON {
	out := TensorJSON{Shape: t.Shape(), Data: t.Values()}
	if t.IsInt() {
		out.DType = DTypeInt
	}
	return out
}

// Writer emits batches in the format Reader consumes.
type Writer struct {
	enc *json.Encoder
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write appends one batch line.
func (w *Writer) Write(pred, labels *metrics.Tensor) error {
	p, l := FromTensor(pred), FromTensor(labels)
	return w.enc.Encode(batchJSON{Predictions: &p, Labels: &l})
}
