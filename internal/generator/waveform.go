package generator

import "github.com/rjboer/radarcore/internal/hw"

// Limits of the waveform generator core. Times are in microseconds and
// frequencies in kHz, both relative to the 125 MHz DDS clock.
const (
	FCLKMHz = hw.FCLKMHz
	FCLKKHz = FCLKMHz * 1000

	MaxFreqKHz          = 20000
	MaxPeriodUS         = 250
	MaxPulseLengthUS    = 200
	MinPulseLengthUS    = 5
	MinPeriodGapUS      = 5
	MinPeriodUS         = MinPulseLengthUS + MinPeriodGapUS
	MinBarkerSubpulseUS = 1

	MaxDebugSamples = 125000
	MaxDebugBytes   = MaxDebugSamples * 4
)

// TimingMode selects continuous or pulsed output.
type TimingMode int

const (
	TimingContinuous TimingMode = iota
	TimingPulsed
)

func (m TimingMode) String() string {
	if m == TimingPulsed {
		return "pulsed"
	}
	return "continuous"
}

// ModulationMode selects the intra-pulse modulation.
type ModulationMode int

const (
	ModulationNone ModulationMode = iota
	ModulationFrequency
	ModulationPhase
)

func (m ModulationMode) String() string {
	switch m {
	case ModulationFrequency:
		return "frequency"
	case ModulationPhase:
		return "phase"
	default:
		return "none"
	}
}

// Timing is one of ContinuousTiming or PulsedTiming.
type Timing interface{ timing() }

// ContinuousTiming keeps the output on without gating.
type ContinuousTiming struct{}

// PulsedTiming gates the output to PulseLengthUS out of every PeriodUS.
type PulsedTiming struct {
	PeriodUS      uint32
	PulseLengthUS uint32
}

func (ContinuousTiming) timing() {}
func (PulsedTiming) timing()     {}

// Modulation is one of ConstantFrequency, Chirp or BarkerCode.
type Modulation interface{ modulation() }

// ConstantFrequency is an unmodulated carrier.
type ConstantFrequency struct {
	FreqKHz uint32
}

// Chirp is a linear up-sweep from LowKHz to HighKHz. SweepUS applies to
// continuous timing only; pulsed chirps sweep over the pulse length.
type Chirp struct {
	LowKHz  uint32
	HighKHz uint32
	SweepUS uint32
}

// BarkerCode phase-codes a FreqKHz carrier with the Barker sequence of the
// given length. SequenceUS applies to continuous timing only; pulsed codes
// span the pulse length.
type BarkerCode struct {
	FreqKHz    uint32
	Length     uint32
	SequenceUS uint32
}

func (ConstantFrequency) modulation() {}
func (Chirp) modulation()             {}
func (BarkerCode) modulation()        {}

// Waveform is a complete generator request.
type Waveform struct {
	Timing     Timing
	Modulation Modulation
}

// State is the configuration last programmed into the core. Fields that do
// not apply to the active modes are zero.
type State struct {
	Timing     TimingMode
	Modulation ModulationMode
	Enabled    bool

	PeriodUS      uint32
	PulseLengthUS uint32

	ConstantFreqKHz uint32

	LowFreqKHz          uint32
	HighFreqKHz         uint32
	SweepUS             uint32
	DeltaPhaseIncrement uint32

	BarkerLength     uint32
	BarkerSubpulseUS uint32
}
