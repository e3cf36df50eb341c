package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PadLen is the odd-extension length FiltFilt adds to each end of the input:
// three times the longer coefficient vector.
func PadLen(b, a []float64) int {
	return 3 * max(len(a), len(b))
}

// MinSamples is the shortest series FiltFilt accepts for a Butterworth
// filter of the given order. The input must be strictly longer than the
// padding, so this is 3*(order+1)+1.
func MinSamples(order int) int {
	return 3*(order+1) + 1
}

// LowPass filters series with a zero-phase Butterworth low-pass of the given
// order. The output has the same length and indexing as the input.
func LowPass(series []float64, cutoffHz, samplingRateHz float64, order int) ([]float64, error) {
	wn, err := NormalizedCutoff(cutoffHz, samplingRateHz)
	if err != nil {
		return nil, err
	}
	b, a, err := Butter(order, wn)
	if err != nil {
		return nil, err
	}
	return FiltFilt(b, a, series)
}

// FiltFilt applies the filter forward and then backward. Both ends are
// padded with an odd reflection of PadLen samples and each pass starts from
// the steady state for its first sample, which keeps edge transients small.
func FiltFilt(b, a []float64, x []float64) ([]float64, error) {
	if err := checkSeries(x); err != nil {
		return nil, err
	}
	padlen := PadLen(b, a)
	if len(x) <= padlen {
		return nil, fmt.Errorf("need more than %d samples for zero-phase filtering, got %d: %w",
			padlen, len(x), ErrInsufficientData)
	}

	zi, err := LFilterZI(b, a)
	if err != nil {
		return nil, err
	}

	ext := oddExtend(x, padlen)
	y, _, err := LFilter(b, a, ext, scaled(zi, ext[0]))
	if err != nil {
		return nil, err
	}
	reverse(y)
	y, _, err = LFilter(b, a, y, scaled(zi, y[0]))
	if err != nil {
		return nil, err
	}
	reverse(y)

	out := make([]float64, len(x))
	copy(out, y[padlen:len(y)-padlen])
	return out, nil
}

// LFilter runs the filter once over x using the transposed direct form II
// structure. zi is the initial delay-line state (length max(len(a),len(b))-1)
// and may be nil for a zero state. The final state is returned with y.
func LFilter(b, a []float64, x []float64, zi []float64) (y, zf []float64, err error) {
	bn, an, err := normalize(b, a)
	if err != nil {
		return nil, nil, err
	}
	n := len(bn)
	z := make([]float64, n-1)
	if zi != nil {
		if len(zi) != n-1 {
			return nil, nil, fmt.Errorf("initial state has %d values, want %d: %w", len(zi), n-1, ErrInvalidParameter)
		}
		copy(z, zi)
	}

	y = make([]float64, len(x))
	for k, xk := range x {
		if n == 1 {
			y[k] = bn[0] * xk
			continue
		}
		yk := bn[0]*xk + z[0]
		for i := 0; i < n-2; i++ {
			z[i] = bn[i+1]*xk + z[i+1] - an[i+1]*yk
		}
		z[n-2] = bn[n-1]*xk - an[n-1]*yk
		y[k] = yk
	}
	return y, z, nil
}

// LFilterZI returns the delay-line state that makes a step input of height
// one produce a constant output of the filter's DC gain. It solves
// (I - A) zi = B where A is the transposed companion matrix of a.
func LFilterZI(b, a []float64) ([]float64, error) {
	bn, an, err := normalize(b, a)
	if err != nil {
		return nil, err
	}
	n := len(bn) - 1
	if n == 0 {
		return []float64{}, nil
	}

	m := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
		m.Set(i, 0, m.At(i, 0)+an[i+1])
		if i+1 < n {
			m.Set(i, i+1, -1)
		}
		rhs.SetVec(i, bn[i+1]-an[i+1]*bn[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solve initial conditions: %v: %w", err, ErrInvalidParameter)
		}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// normalize pads b and a to equal length and divides both by a[0].
func normalize(b, a []float64) ([]float64, []float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, nil, fmt.Errorf("empty coefficient vector: %w", ErrInvalidParameter)
	}
	if a[0] == 0 {
		return nil, nil, fmt.Errorf("leading denominator coefficient is zero: %w", ErrInvalidParameter)
	}
	n := max(len(a), len(b))
	bn := make([]float64, n)
	an := make([]float64, n)
	copy(bn, b)
	copy(an, a)
	floats.Scale(1/a[0], bn)
	floats.Scale(1/a[0], an)
	return bn, an, nil
}

func checkSeries(x []float64) error {
	if len(x) == 0 {
		return fmt.Errorf("empty series: %w", ErrInvalidInput)
	}
	if floats.HasNaN(x) {
		return fmt.Errorf("series contains missing values: %w", ErrInvalidInput)
	}
	for i, v := range x {
		if math.IsInf(v, 0) {
			return fmt.Errorf("sample %d is infinite: %w", i, ErrInvalidInput)
		}
	}
	return nil
}

// oddExtend reflects padlen samples about each endpoint:
// 2*x[0]-x[padlen..1], x, 2*x[n-1]-x[n-2..n-padlen-1].
func oddExtend(x []float64, padlen int) []float64 {
	n := len(x)
	ext := make([]float64, 0, n+2*padlen)
	for i := padlen; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-padlen; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}
	return ext
}

func scaled(v []float64, c float64) []float64 {
	out := make([]float64, len(v))
	floats.ScaleTo(out, c, v)
	return out
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
