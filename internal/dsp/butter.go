// Package dsp designs and applies the digital low-pass filter used to smooth
// accelerometer channels.
//
// Filters are expressed as transfer-function coefficients (b, a) with
// a[0] == 1. Butter produces them from an order and a normalized cutoff;
// FiltFilt runs them forward and backward so the output has no phase lag.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

var (
	// ErrInvalidParameter reports an order or cutoff outside the design range.
	ErrInvalidParameter = errors.New("invalid filter parameter")
	// ErrInsufficientData reports a series shorter than the padding needs.
	ErrInsufficientData = errors.New("insufficient data for filter")
	// ErrInvalidInput reports an empty series or one with NaN/Inf samples.
	ErrInvalidInput = errors.New("invalid filter input")
)

// MaxOrder bounds the filter order. Higher orders in transfer-function form
// lose precision quickly at low normalized cutoffs.
const MaxOrder = 8

// NormalizedCutoff converts a cutoff in Hz to a fraction of the Nyquist
// frequency. The result must lie strictly between 0 and 1.
func NormalizedCutoff(cutoffHz, samplingRateHz float64) (float64, error) {
	if !(samplingRateHz > 0) || math.IsInf(samplingRateHz, 0) {
		return 0, fmt.Errorf("sampling rate %g Hz must be positive: %w", samplingRateHz, ErrInvalidParameter)
	}
	nyquist := 0.5 * samplingRateHz
	wn := cutoffHz / nyquist
	if !(wn > 0) {
		return 0, fmt.Errorf("cutoff %g Hz must be positive: %w", cutoffHz, ErrInvalidParameter)
	}
	if wn >= 1 {
		return 0, fmt.Errorf("cutoff %g Hz must be below the Nyquist frequency %g Hz: %w", cutoffHz, nyquist, ErrInvalidParameter)
	}
	return wn, nil
}

// Butter designs a digital Butterworth low-pass filter of the given order
// with cutoff wn in (0, 1), where 1 is the Nyquist frequency.
//
// The analog prototype poles are scaled to the pre-warped cutoff and mapped
// through the bilinear transform; all N zeros land at z = -1.
func Butter(order int, wn float64) (b, a []float64, err error) {
	if order < 1 || order > MaxOrder {
		return nil, nil, fmt.Errorf("order %d outside [1, %d]: %w", order, MaxOrder, ErrInvalidParameter)
	}
	if !(wn > 0 && wn < 1) {
		return nil, nil, fmt.Errorf("normalized cutoff %g outside (0, 1): %w", wn, ErrInvalidParameter)
	}

	// Design runs at fs = 2 so that wn maps directly onto the unit circle.
	const fs = 2.0
	warped := 2 * fs * math.Tan(math.Pi*wn/fs)

	n := float64(order)
	fs2 := complex(2*fs, 0)
	poles := make([]complex128, order)
	zeros := make([]complex128, order)
	gain := math.Pow(warped, n)
	denom := complex(1, 0)
	for i := 0; i < order; i++ {
		m := float64(-order + 1 + 2*i)
		p := -cmplx.Exp(complex(0, math.Pi*m/(2*n))) * complex(warped, 0)
		poles[i] = (fs2 + p) / (fs2 - p)
		denom *= fs2 - p
		zeros[i] = -1
	}
	gain *= real(1 / denom)

	bc := poly(zeros)
	ac := poly(poles)
	b = make([]float64, len(bc))
	a = make([]float64, len(ac))
	for i := range bc {
		b[i] = gain * real(bc[i])
		a[i] = real(ac[i])
	}
	return b, a, nil
}

// poly expands the monic polynomial with the given roots, highest power
// first.
func poly(roots []complex128) []complex128 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	return c
}
