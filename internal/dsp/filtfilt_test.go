package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, fs, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func rms(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestLowPass_PreservesDC(t *testing.T) {
	for order := 1; order <= 4; order++ {
		x := make([]float64, MinSamples(order))
		for i := range x {
			x[i] = -9.81
		}
		y, err := LowPass(x, 2, 10, order)
		require.NoError(t, err)
		assert.InDeltaSlice(t, x, y, 1e-9, "order %d", order)
	}
}

func TestLowPass_SameLength(t *testing.T) {
	x := sine(137, 10, 0.5, 1)
	y, err := LowPass(x, 2, 10, 2)
	require.NoError(t, err)
	assert.Len(t, y, len(x))
}

func TestLowPass_AttenuatesAboveCutoff(t *testing.T) {
	const fs = 100.0
	slow := sine(1000, fs, 1, 1)
	fast := sine(1000, fs, 30, 1)
	mixed := make([]float64, len(slow))
	for i := range mixed {
		mixed[i] = slow[i] + fast[i]
	}

	y, err := LowPass(mixed, 5, fs, 4)
	require.NoError(t, err)

	residual := make([]float64, len(y))
	for i := range y {
		residual[i] = y[i] - slow[i]
	}
	// Trim the edges where the reflection padding dominates.
	assert.Less(t, rms(residual[100:900]), 0.05)
}

func TestLowPass_NoPhaseLag(t *testing.T) {
	const fs = 50.0
	x := sine(500, fs, 0.5, 1)
	y, err := LowPass(x, 5, fs, 2)
	require.NoError(t, err)

	// A 0.5 Hz tone sits deep in the passband; zero-phase filtering must not
	// shift its zero crossings.
	for i := 100; i < 400; i++ {
		assert.InDelta(t, x[i], y[i], 0.01, "sample %d", i)
	}
}

func TestLowPass_RefilteringStaysBounded(t *testing.T) {
	x := sine(300, 10, 0.7, 3)
	for i := range x {
		x[i] += 0.5 * math.Sin(float64(i)*1.7)
	}
	y := x
	for pass := 0; pass < 5; pass++ {
		var err error
		y, err = LowPass(y, 2, 10, 3)
		require.NoError(t, err)
		for i, v := range y {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "pass %d sample %d", pass, i)
			require.LessOrEqual(t, math.Abs(v), 10.0)
		}
	}
}

func TestLowPass_InsufficientData(t *testing.T) {
	for order := 1; order <= 3; order++ {
		_, err := LowPass(make([]float64, MinSamples(order)-1), 2, 10, order)
		assert.ErrorIs(t, err, ErrInsufficientData, "order %d", order)

		_, err = LowPass(make([]float64, MinSamples(order)), 2, 10, order)
		assert.NoError(t, err, "order %d", order)
	}
}

func TestLowPass_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
	}{
		{"empty", nil},
		{"all nan", []float64{math.NaN(), math.NaN(), math.NaN()}},
		{"one nan", append(sine(40, 10, 1, 1), math.NaN())},
		{"infinite", append(sine(40, 10, 1, 1), math.Inf(-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LowPass(tt.x, 2, 10, 2)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLowPass_CutoffAtNyquist(t *testing.T) {
	_, err := LowPass(sine(100, 10, 1, 1), 5, 10, 2)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

// butter(2, 0.4) followed by filtfilt with odd padding of 9 samples and the
// steady-state initial conditions.
var filtFiltReference = struct {
	b, a, x, y []float64
}{
	b: []float64{0.20657208382614792, 0.41314416765229584, 0.20657208382614792},
	a: []float64{1, -0.36952737735124147, 0.19581571265583314},
	x: []float64{0, 1, 3, 2, 5, 4, 4, 7, 6, 3, 2, 1, 0, -2},
	y: []float64{
		-0.0000075679, 1.2300880302, 2.2771488530, 3.1284032478, 3.7998601170,
		4.3911937417, 5.1858332174, 5.8383912868, 5.3853132829, 3.8286075371,
		2.1866601130, 0.9165433010, -0.3878940570, -1.9999003286,
	},
}

func TestFiltFilt_ReferenceVector(t *testing.T) {
	ref := filtFiltReference
	y, err := FiltFilt(ref.b, ref.a, ref.x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ref.y, y, 1e-8)

	// Same filter through the design path: 2 Hz at 10 Hz is wn 0.4.
	y, err = LowPass(ref.x, 2, 10, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ref.y, y, 1e-6)
}

func TestLFilterZI_Butter2(t *testing.T) {
	zi, err := LFilterZI(filtFiltReference.b, filtFiltReference.a)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.7934279161738522, 0.010756371170314779}, zi, 1e-12)
}

func TestLFilterZI_StepResponseIsSteady(t *testing.T) {
	b, a, err := Butter(3, 0.3)
	require.NoError(t, err)
	zi, err := LFilterZI(b, a)
	require.NoError(t, err)
	require.Len(t, zi, 3)

	step := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	y, zf, err := LFilter(b, a, step, zi)
	require.NoError(t, err)
	assert.InDeltaSlice(t, step, y, 1e-12)
	assert.InDeltaSlice(t, zi, zf, 1e-12)
}

func TestLFilter_ImpulseResponse(t *testing.T) {
	// y[n] = 0.5 x[n] + 0.5 x[n-1]
	y, _, err := LFilter([]float64{0.5, 0.5}, []float64{1}, []float64{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0}, y)

	// y[n] = x[n] + 0.5 y[n-1]
	y, _, err = LFilter([]float64{1}, []float64{1, -0.5}, []float64{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0.5, 0.25, 0.125}, y, 1e-15)
}

func TestLFilter_NormalizesLeadingCoefficient(t *testing.T) {
	y, _, err := LFilter([]float64{2}, []float64{2}, []float64{3, 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, y)

	_, _, err = LFilter([]float64{1}, []float64{0, 1}, []float64{1}, nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, _, err = LFilter([]float64{1, 1}, []float64{1}, []float64{1}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestOddExtend(t *testing.T) {
	got := oddExtend([]float64{1, 2, 4, 7, 11}, 2)
	assert.Equal(t, []float64{-2, 0, 1, 2, 4, 7, 11, 15, 18}, got)
}

func TestMinSamples(t *testing.T) {
	b, a, err := Butter(2, 0.4)
	require.NoError(t, err)
	assert.Equal(t, PadLen(b, a)+1, MinSamples(2))
	assert.Equal(t, 10, MinSamples(2))
}
