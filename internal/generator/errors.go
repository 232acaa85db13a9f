package generator

import "github.com/rjboer/radarcore/internal/fault"

var (
	ErrInvalidFrequency       = fault.New(fault.Validation, "invalid frequency")
	ErrInvalidModulationRange = fault.New(fault.Validation, "invalid modulation range")
	ErrInvalidBarkerLength    = fault.New(fault.Validation, "invalid barker length")
	ErrInvalidPhaseParams     = fault.New(fault.Validation, "invalid phase modulation parameters")
	ErrInvalidPulseTiming     = fault.New(fault.Validation, "invalid pulse timing")
	ErrInvalidWaveform        = fault.New(fault.Validation, "invalid waveform")
	ErrSampleRange            = fault.New(fault.Validation, "sample count out of range")

	ErrNotEnabled     = fault.New(fault.Validation, "generator not enabled")
	ErrDMA            = fault.New(fault.Hardware, "dma transfer failed")
	ErrCaptureEmpty   = fault.New(fault.Hardware, "debug capture empty")
	ErrCaptureTimeout = fault.New(fault.Timeout, "debug capture timed out")
)
