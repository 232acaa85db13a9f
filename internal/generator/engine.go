package generator

import (
	"fmt"
	"time"

	"github.com/rjboer/radarcore/internal/hw"
	"github.com/rjboer/radarcore/internal/logging"
)

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	// PollInterval is the DMA busy poll period during a debug capture.
	PollInterval time.Duration
	// CaptureTimeout bounds a debug capture.
	CaptureTimeout time.Duration
	Logger         logging.Logger
}

const (
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultCaptureTimeout = 2 * time.Second
)

// Engine programs the DDS modulator core and keeps a mirror of its state.
// It is owned by a single goroutine and is not safe for concurrent use.
type Engine struct {
	regs hw.RegisterPort
	dma  hw.DMAEngine
	base uint32

	state State

	capture []byte
	valid   int

	poll    time.Duration
	timeout time.Duration
	logger  logging.Logger
}

// New binds an engine to the register block at base and its debug DMA
// channel. The core is left untouched until the first configuration call.
func New(regs hw.RegisterPort, dma hw.DMAEngine, base uint32, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultCaptureTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Engine{
		regs:    regs,
		dma:     dma,
		base:    base,
		poll:    opts.PollInterval,
		timeout: opts.CaptureTimeout,
		logger:  opts.Logger.With(logging.F("subsystem", "engine")),
	}
}

// State returns a copy of the last programmed configuration.
func (e *Engine) State() State { return e.state }

// ValidSamples reports how many samples the last debug capture produced.
func (e *Engine) ValidSamples() int { return e.valid }

// Start enables the output.
func (e *Engine) Start() error {
	if err := e.setEnabled(true); err != nil {
		return err
	}
	e.logger.Info("generator started", logging.F("timing", e.state.Timing), logging.F("modulation", e.state.Modulation))
	return nil
}

// Stop disables the output. Stopping a stopped generator is a no-op on state.
func (e *Engine) Stop() error {
	if err := e.setEnabled(false); err != nil {
		return err
	}
	e.logger.Info("generator stopped")
	return nil
}

func (e *Engine) setEnabled(on bool) error {
	if err := e.regs.WriteBit(e.base+hw.RegControl, hw.EnableBit, on); err != nil {
		return fmt.Errorf("set enable=%t: %w", on, err)
	}
	e.state.Enabled = on
	return nil
}

// SetContinuousConstantFrequency programs an unmodulated continuous carrier.
// The generator is stopped.
func (e *Engine) SetContinuousConstantFrequency(freqKHz uint32) error {
	if err := validateFrequency(freqKHz); err != nil {
		return err
	}
	w := e.program(true)
	w.bit(hw.RegMode, hw.ModEnableBit, false)
	w.word(hw.RegFreq, PhaseIncrement(freqKHz))
	return w.commit(State{
		Timing:          TimingContinuous,
		Modulation:      ModulationNone,
		ConstantFreqKHz: freqKHz,
	})
}

// SetContinuousFrequencyModulation programs a continuous sawtooth chirp from
// lowKHz to highKHz repeating every sweepUS. The generator is stopped.
func (e *Engine) SetContinuousFrequencyModulation(lowKHz, highKHz, sweepUS uint32) error {
	if err := validateChirp(lowKHz, highKHz, sweepUS); err != nil {
		return err
	}
	w := e.program(true)
	delta := w.chirp(lowKHz, highKHz, sweepUS)
	return w.commit(State{
		Timing:              TimingContinuous,
		Modulation:          ModulationFrequency,
		LowFreqKHz:          lowKHz,
		HighFreqKHz:         highKHz,
		SweepUS:             sweepUS,
		DeltaPhaseIncrement: delta,
	})
}

// SetContinuousPhaseModulation programs a repeating Barker code of the given
// length spread over sequenceUS. The generator is stopped.
func (e *Engine) SetContinuousPhaseModulation(freqKHz, length, sequenceUS uint32) error {
	sub := subpulseOf(sequenceUS, length)
	chips, err := barkerParams(freqKHz, length, sub)
	if err != nil {
		return err
	}
	w := e.program(true)
	w.barker(freqKHz, length, chips, sub)
	return w.commit(State{
		Timing:           TimingContinuous,
		Modulation:       ModulationPhase,
		ConstantFreqKHz:  freqKHz,
		BarkerLength:     length,
		BarkerSubpulseUS: sub,
	})
}

// SetPulsedConstantFrequency programs an unmodulated pulse train. The
// generator is stopped.
func (e *Engine) SetPulsedConstantFrequency(periodUS, pulseLengthUS, freqKHz uint32) error {
	if err := validatePulse(periodUS, pulseLengthUS); err != nil {
		return err
	}
	if err := validateFrequency(freqKHz); err != nil {
		return err
	}
	w := e.program(false)
	w.word(hw.RegTiming, PulseWord(periodUS, pulseLengthUS))
	w.bit(hw.RegMode, hw.ModEnableBit, false)
	w.word(hw.RegFreq, PhaseIncrement(freqKHz))
	return w.commit(State{
		Timing:          TimingPulsed,
		Modulation:      ModulationNone,
		PeriodUS:        periodUS,
		PulseLengthUS:   pulseLengthUS,
		ConstantFreqKHz: freqKHz,
	})
}

// SetPulsedFrequencyModulation programs a pulse train where each pulse sweeps
// from lowKHz to highKHz. The generator is stopped.
func (e *Engine) SetPulsedFrequencyModulation(periodUS, pulseLengthUS, lowKHz, highKHz uint32) error {
	if err := validatePulse(periodUS, pulseLengthUS); err != nil {
		return err
	}
	if err := validateChirp(lowKHz, highKHz, pulseLengthUS); err != nil {
		return err
	}
	w := e.program(false)
	w.word(hw.RegTiming, PulseWord(periodUS, pulseLengthUS))
	delta := w.chirp(lowKHz, highKHz, pulseLengthUS)
	return w.commit(State{
		Timing:              TimingPulsed,
		Modulation:          ModulationFrequency,
		PeriodUS:            periodUS,
		PulseLengthUS:       pulseLengthUS,
		LowFreqKHz:          lowKHz,
		HighFreqKHz:         highKHz,
		SweepUS:             pulseLengthUS,
		DeltaPhaseIncrement: delta,
	})
}

// SetPulsedPhaseModulation programs a pulse train where each pulse carries one
// Barker code of the given length. The generator is stopped.
func (e *Engine) SetPulsedPhaseModulation(periodUS, pulseLengthUS, freqKHz, length uint32) error {
	if err := validatePulse(periodUS, pulseLengthUS); err != nil {
		return err
	}
	sub := subpulseOf(pulseLengthUS, length)
	chips, err := barkerParams(freqKHz, length, sub)
	if err != nil {
		return err
	}
	w := e.program(false)
	w.word(hw.RegTiming, PulseWord(periodUS, pulseLengthUS))
	w.barker(freqKHz, length, chips, sub)
	return w.commit(State{
		Timing:           TimingPulsed,
		Modulation:       ModulationPhase,
		PeriodUS:         periodUS,
		PulseLengthUS:    pulseLengthUS,
		ConstantFreqKHz:  freqKHz,
		BarkerLength:     length,
		BarkerSubpulseUS: sub,
	})
}

// Apply programs a complete waveform request by dispatching to the matching
// Set operation.
func (e *Engine) Apply(wf Waveform) error {
	switch t := wf.Timing.(type) {
	case ContinuousTiming:
		switch m := wf.Modulation.(type) {
		case ConstantFrequency:
			return e.SetContinuousConstantFrequency(m.FreqKHz)
		case Chirp:
			return e.SetContinuousFrequencyModulation(m.LowKHz, m.HighKHz, m.SweepUS)
		case BarkerCode:
			return e.SetContinuousPhaseModulation(m.FreqKHz, m.Length, m.SequenceUS)
		}
	case PulsedTiming:
		switch m := wf.Modulation.(type) {
		case ConstantFrequency:
			return e.SetPulsedConstantFrequency(t.PeriodUS, t.PulseLengthUS, m.FreqKHz)
		case Chirp:
			return e.SetPulsedFrequencyModulation(t.PeriodUS, t.PulseLengthUS, m.LowKHz, m.HighKHz)
		case BarkerCode:
			return e.SetPulsedPhaseModulation(t.PeriodUS, t.PulseLengthUS, m.FreqKHz, m.Length)
		}
	}
	return fmt.Errorf("%w: timing %T with modulation %T", ErrInvalidWaveform, wf.Timing, wf.Modulation)
}

// program starts a register sequence. Every sequence first stops the output
// and then selects the timing mode.
func (e *Engine) program(continuous bool) *regWriter {
	w := &regWriter{e: e}
	w.bit(hw.RegControl, hw.EnableBit, false)
	w.stopped = w.err == nil
	w.bit(hw.RegMode, hw.ModeBit, continuous)
	return w
}

// regWriter runs a register sequence and keeps the first error.
type regWriter struct {
	e       *Engine
	err     error
	stopped bool
}

func (w *regWriter) bit(offset uint32, bit uint, value bool) {
	if w.err != nil {
		return
	}
	if err := w.e.regs.WriteBit(w.e.base+offset, bit, value); err != nil {
		w.err = fmt.Errorf("write bit %d at +0x%02x: %w", bit, offset, err)
	}
}

func (w *regWriter) word(offset, value uint32) {
	if w.err != nil {
		return
	}
	if err := w.e.regs.WriteWord(w.e.base+offset, value); err != nil {
		w.err = fmt.Errorf("write +0x%02x: %w", offset, err)
	}
}

func (w *regWriter) chirp(lowKHz, highKHz, sweepUS uint32) uint32 {
	delta := DeltaPhaseIncrement(lowKHz, highKHz, sweepUS)
	w.bit(hw.RegMode, hw.ModEnableBit, true)
	w.bit(hw.RegMode, hw.ModTypeBit, true)
	w.word(hw.RegFreq, PhaseIncrement(lowKHz))
	w.word(hw.RegAux, PhaseIncrement(highKHz))
	w.word(hw.RegPattern, delta)
	return delta
}

func (w *regWriter) barker(freqKHz, length, chips, subpulseUS uint32) {
	w.bit(hw.RegMode, hw.ModEnableBit, true)
	w.bit(hw.RegMode, hw.ModTypeBit, false)
	w.word(hw.RegAux, SubpulseTicks(subpulseUS))
	w.word(hw.RegPattern, BarkerWord(length, chips))
	w.word(hw.RegFreq, PhaseIncrement(freqKHz))
}

// commit records next as the engine state if the whole sequence landed. On a
// hardware error the core may be partially programmed; the mirror then keeps
// its previous configuration but reports the output as stopped when the
// sequence got past the stop write.
func (w *regWriter) commit(next State) error {
	e := w.e
	if w.err != nil {
		if w.stopped {
			e.state.Enabled = false
		}
		e.logger.Error("register programming failed", logging.F("error", w.err))
		return w.err
	}
	e.state = next
	e.logger.Debug("waveform programmed",
		logging.F("timing", next.Timing),
		logging.F("modulation", next.Modulation),
		logging.F("period_us", next.PeriodUS),
		logging.F("pulse_us", next.PulseLengthUS),
	)
	return nil
}
