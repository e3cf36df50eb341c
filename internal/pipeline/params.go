package pipeline

import (
	"fmt"
	"math"

	"github.com/banshee-data/signal.report/internal/align"
	"github.com/banshee-data/signal.report/internal/dsp"
	"github.com/banshee-data/signal.report/internal/sensorlog"
)

// Defaults used by the dashboard form and the CLI.
const (
	DefaultSamplingRateHz = 10
	DefaultCutoffHz       = 2.0
	DefaultFilterOrder    = 2
)

// Params are the user-tunable values of one run.
type Params struct {
	SamplingRateHz     int     `json:"sampling_rate"`
	CutoffHz           float64 `json:"cutoff_freq"`
	FilterOrder        int     `json:"filter_order"`
	CalibrationBufferS int     `json:"calibration_buffer"`
	PreviewRows        int     `json:"preview_rows"`
}

// DefaultParams returns the dashboard defaults.
func DefaultParams() Params {
	return Params{
		SamplingRateHz:     DefaultSamplingRateHz,
		CutoffHz:           DefaultCutoffHz,
		FilterOrder:        DefaultFilterOrder,
		CalibrationBufferS: align.DefaultCalibrationBuffer,
		PreviewRows:        sensorlog.DefaultPreviewRows,
	}
}

// Validate checks every parameter, including the cutoff against the
// Nyquist frequency of the sampling rate.
func (p Params) Validate() error {
	if p.SamplingRateHz < 1 {
		return newError(KindInvalidParameter, StageValidate, "sampling rate must be at least 1 Hz, got %d", p.SamplingRateHz)
	}
	if math.IsNaN(p.CutoffHz) || math.IsInf(p.CutoffHz, 0) || p.CutoffHz <= 0 {
		return newError(KindInvalidParameter, StageValidate, "cutoff frequency must be positive, got %v", p.CutoffHz)
	}
	if _, err := dsp.NormalizedCutoff(p.CutoffHz, float64(p.SamplingRateHz)); err != nil {
		return &Error{Kind: KindInvalidParameter, Stage: StageValidate, Err: err}
	}
	if p.FilterOrder < 1 || p.FilterOrder > dsp.MaxOrder {
		return newError(KindInvalidParameter, StageValidate, "filter order must be between 1 and %d, got %d", dsp.MaxOrder, p.FilterOrder)
	}
	if p.CalibrationBufferS < 0 {
		return newError(KindInvalidParameter, StageValidate, "calibration buffer must not be negative, got %d", p.CalibrationBufferS)
	}
	if p.PreviewRows < 0 {
		return newError(KindInvalidParameter, StageValidate, "preview rows must not be negative, got %d", p.PreviewRows)
	}
	return nil
}

func (p Params) previewRows() int {
	if p.PreviewRows == 0 {
		return sensorlog.DefaultPreviewRows
	}
	return p.PreviewRows
}

func (p Params) String() string {
	return fmt.Sprintf("fs=%dHz cutoff=%gHz order=%d buffer=%ds",
		p.SamplingRateHz, p.CutoffHz, p.FilterOrder, p.CalibrationBufferS)
}
