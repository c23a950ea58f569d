package matrix

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyTensor is returned when there is nothing to summarize.
var ErrEmptyTensor = errors.New("tensor has no slices")

// Summarize returns the element-wise mean over the tensor depth, skipping
// NaN values, and the display range: the largest absolute value of the
// mean. A cell that is NaN in every slice stays NaN and does not contribute
// to the range.
func Summarize(t *Tensor) (*mat.Dense, float64, error) {
	if t == nil || t.Depth() == 0 {
		return nil, 0, ErrEmptyTensor
	}

	sum := mat.NewDense(t.Dim, t.Dim, nil)
	count := mat.NewDense(t.Dim, t.Dim, nil)
	for _, slice := range t.Slices {
		for i := 0; i < t.Dim; i++ {
			for j := 0; j < t.Dim; j++ {
				v := slice.At(i, j)
				if math.IsNaN(v) {
					continue
				}
				sum.Set(i, j, sum.At(i, j)+v)
				count.Set(i, j, count.At(i, j)+1)
			}
		}
	}

	mean := mat.NewDense(t.Dim, t.Dim, nil)
	var magnitudes []float64
	for i := 0; i < t.Dim; i++ {
		for j := 0; j < t.Dim; j++ {
			n := count.At(i, j)
			if n == 0 {
				mean.Set(i, j, math.NaN())
				continue
			}
			v := sum.At(i, j) / n
			mean.Set(i, j, v)
			magnitudes = append(magnitudes, math.Abs(v))
		}
	}

	if len(magnitudes) == 0 {
		return mean, 0, nil
	}
	return mean, floats.Max(magnitudes), nil
}
