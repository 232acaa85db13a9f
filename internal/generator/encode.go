package generator

import (
	"fmt"

	"github.com/rjboer/radarcore/internal/hw"
)

// barkerChips holds each Barker sequence MSB first, 1 for a 0° chip and 0 for 180°.
var barkerChips = map[uint32]uint32{
	2:  0b10,
	3:  0b110,
	4:  0b1011,
	5:  0b11101,
	7:  0b1110010,
	11: 0b11100010010,
	13: 0b1111100110101,
}

// BarkerLengths lists the supported code lengths in ascending order.
var BarkerLengths = []uint32{2, 3, 4, 5, 7, 11, 13}

// BarkerChips returns the chip pattern of a supported code length.
func BarkerChips(length uint32) (uint32, bool) {
	c, ok := barkerChips[length]
	return c, ok
}

// PhaseIncrement converts a frequency to a 30-bit DDS phase increment.
func PhaseIncrement(freqKHz uint32) uint32 {
	return uint32((uint64(freqKHz)<<hw.PincBits)/FCLKKHz) & hw.PincMask
}

// DeltaPhaseIncrement is the per-tick increment step that sweeps from
// PhaseIncrement(low) to PhaseIncrement(high) in sweepUS.
func DeltaPhaseIncrement(lowKHz, highKHz, sweepUS uint32) uint32 {
	span := PhaseIncrement(highKHz) - PhaseIncrement(lowKHz)
	return (span / (sweepUS * FCLKMHz)) & hw.PincMask
}

// PulseWord packs pulse length (high half) and period (low half) in ticks.
func PulseWord(periodUS, pulseLengthUS uint32) uint32 {
	pulse := (pulseLengthUS * FCLKMHz) & hw.CounterMask
	period := (periodUS * FCLKMHz) & hw.CounterMask
	return pulse<<16 | period
}

// BarkerWord packs the code length and its chips for the pattern register.
func BarkerWord(length, chips uint32) uint32 {
	return length<<hw.BarkerLengthShift | chips&hw.BarkerChipsMask
}

// SubpulseTicks is the chip length register value: ticks per chip minus one.
func SubpulseTicks(subpulseUS uint32) uint32 {
	return (subpulseUS*FCLKMHz - 1) & hw.PincMask
}

func validateFrequency(freqKHz uint32) error {
	if freqKHz > MaxFreqKHz {
		return fmt.Errorf("%w: %d kHz exceeds %d kHz", ErrInvalidFrequency, freqKHz, MaxFreqKHz)
	}
	return nil
}

func validateChirp(lowKHz, highKHz, sweepUS uint32) error {
	switch {
	case sweepUS == 0 || sweepUS > MaxPeriodUS:
		return fmt.Errorf("%w: sweep length %d us outside 1..%d us", ErrInvalidModulationRange, sweepUS, MaxPeriodUS)
	case lowKHz > MaxFreqKHz || highKHz > MaxFreqKHz:
		return fmt.Errorf("%w: %d..%d kHz exceeds %d kHz", ErrInvalidModulationRange, lowKHz, highKHz, MaxFreqKHz)
	case lowKHz > highKHz:
		return fmt.Errorf("%w: low %d kHz above high %d kHz", ErrInvalidModulationRange, lowKHz, highKHz)
	}
	return nil
}

// barkerParams resolves the chip pattern and validates the per-chip length.
func barkerParams(freqKHz, length, subpulseUS uint32) (uint32, error) {
	chips, ok := barkerChips[length]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBarkerLength, length)
	}
	switch {
	case freqKHz > MaxFreqKHz:
		return 0, fmt.Errorf("%w: %d kHz exceeds %d kHz", ErrInvalidPhaseParams, freqKHz, MaxFreqKHz)
	case subpulseUS < MinBarkerSubpulseUS:
		return 0, fmt.Errorf("%w: subpulse shorter than %d us", ErrInvalidPhaseParams, MinBarkerSubpulseUS)
	case uint64(subpulseUS)*uint64(length) > MaxPulseLengthUS:
		return 0, fmt.Errorf("%w: sequence %d us exceeds %d us", ErrInvalidPhaseParams, uint64(subpulseUS)*uint64(length), MaxPulseLengthUS)
	}
	return chips, nil
}

// subpulseOf splits a sequence length into chips. The remainder is dropped.
func subpulseOf(sequenceUS, length uint32) uint32 {
	if length == 0 {
		return 0
	}
	return sequenceUS / length
}

func validatePulse(periodUS, pulseLengthUS uint32) error {
	switch {
	case periodUS > MaxPeriodUS:
		return fmt.Errorf("%w: period %d us exceeds %d us", ErrInvalidPulseTiming, periodUS, MaxPeriodUS)
	case pulseLengthUS < MinPulseLengthUS:
		return fmt.Errorf("%w: pulse %d us shorter than %d us", ErrInvalidPulseTiming, pulseLengthUS, MinPulseLengthUS)
	case periodUS < pulseLengthUS+MinPeriodGapUS:
		return fmt.Errorf("%w: period %d us needs %d us beyond pulse %d us", ErrInvalidPulseTiming, periodUS, MinPeriodGapUS, pulseLengthUS)
	}
	return nil
}
