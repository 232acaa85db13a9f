package generator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rjboer/radarcore/internal/fault"
	"github.com/rjboer/radarcore/internal/hw"
)

const testBase = 0x40600000

func newTestEngine(t *testing.T) (*Engine, *hw.Sim) {
	t.Helper()
	sim := hw.NewSim(testBase)
	return New(sim, sim.DMA(), testBase, Options{}), sim
}

func TestPhaseIncrement(t *testing.T) {
	cases := map[uint32]uint32{
		0:     0,
		1000:  8589934,
		5000:  42949672,
		20000: 171798691,
	}
	for f, want := range cases {
		if got := PhaseIncrement(f); got != want {
			t.Fatalf("PhaseIncrement(%d) = %d, want %d", f, got, want)
		}
	}
}

func TestPulseWordPacksTicks(t *testing.T) {
	got := PulseWord(100, 20)
	want := uint32(2500)<<16 | 12500
	if got != want {
		t.Fatalf("PulseWord(100, 20) = %#x, want %#x", got, want)
	}
}

func TestPulsedTimingValidation(t *testing.T) {
	for period := uint32(0); period <= 260; period++ {
		for pulse := uint32(0); pulse <= 260; pulse += 3 {
			e, sim := newTestEngine(t)
			err := e.SetPulsedConstantFrequency(period, pulse, 1000)
			valid := period <= MaxPeriodUS && pulse >= MinPulseLengthUS && period >= pulse+MinPeriodGapUS
			if valid != (err == nil) {
				t.Fatalf("period=%d pulse=%d: err=%v, want valid=%t", period, pulse, err, valid)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidPulseTiming) {
					t.Fatalf("period=%d pulse=%d: unexpected error %v", period, pulse, err)
				}
				if n := len(sim.Writes()); n != 0 {
					t.Fatalf("period=%d pulse=%d: %d registers written on rejected config", period, pulse, n)
				}
				continue
			}
			if got := sim.Register(hw.RegTiming); got != PulseWord(period, pulse) {
				t.Fatalf("period=%d pulse=%d: timing word %#x", period, pulse, got)
			}
		}
	}
}

func TestContinuousConstantFrequencyRegisters(t *testing.T) {
	e, sim := newTestEngine(t)
	if err := e.SetContinuousConstantFrequency(1000); err != nil {
		t.Fatalf("SetContinuousConstantFrequency: %v", err)
	}
	if got := sim.Register(hw.RegFreq); got != 8589934 {
		t.Fatalf("freq register = %d", got)
	}
	if got := sim.Register(hw.RegMode); got != 1<<hw.ModeBit {
		t.Fatalf("mode register = %#b, want continuous unmodulated", got)
	}
	st := e.State()
	if st.Timing != TimingContinuous || st.Modulation != ModulationNone || st.ConstantFreqKHz != 1000 || st.Enabled {
		t.Fatalf("unexpected state %+v", st)
	}

	if err := e.SetContinuousConstantFrequency(MaxFreqKHz + 1); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestContinuousChirpRegisters(t *testing.T) {
	e, sim := newTestEngine(t)
	if err := e.SetContinuousFrequencyModulation(1000, 5000, 100); err != nil {
		t.Fatalf("SetContinuousFrequencyModulation: %v", err)
	}
	if got := sim.Register(hw.RegMode); got != 0b111 {
		t.Fatalf("mode register = %#b, want continuous FM", got)
	}
	if got := sim.Register(hw.RegFreq); got != PhaseIncrement(1000) {
		t.Fatalf("start increment = %d", got)
	}
	if got := sim.Register(hw.RegAux); got != PhaseIncrement(5000) {
		t.Fatalf("stop increment = %d", got)
	}
	if got := sim.Register(hw.RegPattern); got != 2748 {
		t.Fatalf("delta increment = %d, want 2748", got)
	}
	if st := e.State(); st.DeltaPhaseIncrement != 2748 || st.SweepUS != 100 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestChirpValidation(t *testing.T) {
	cases := []struct {
		low, high, sweep uint32
		ok               bool
	}{
		{1000, 5000, 100, true},
		{3000, 3000, 1, true},
		{0, MaxFreqKHz, MaxPeriodUS, true},
		{5000, 1000, 100, false},
		{1000, 5000, 0, false},
		{1000, 5000, MaxPeriodUS + 1, false},
		{1000, MaxFreqKHz + 1, 100, false},
	}
	for _, tc := range cases {
		e, _ := newTestEngine(t)
		err := e.SetContinuousFrequencyModulation(tc.low, tc.high, tc.sweep)
		if tc.ok != (err == nil) {
			t.Fatalf("%+v: err=%v", tc, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidModulationRange) {
			t.Fatalf("%+v: unexpected error %v", tc, err)
		}
	}
}

func TestBarkerLengths(t *testing.T) {
	for length := uint32(0); length <= 14; length++ {
		e, sim := newTestEngine(t)
		err := e.SetContinuousPhaseModulation(5000, length, length*10)
		chips, supported := BarkerChips(length)
		if supported != (err == nil) {
			t.Fatalf("length %d: err=%v, supported=%t", length, err, supported)
		}
		if !supported {
			if !errors.Is(err, ErrInvalidBarkerLength) {
				t.Fatalf("length %d: unexpected error %v", length, err)
			}
			continue
		}
		if got := sim.Register(hw.RegPattern); got != length<<28|chips {
			t.Fatalf("length %d: pattern register %#x", length, got)
		}
		if got := sim.Register(hw.RegAux); got != 10*FCLKMHz-1 {
			t.Fatalf("length %d: subpulse register %d", length, got)
		}
		if got := sim.Register(hw.RegMode); got != 0b011 {
			t.Fatalf("length %d: mode register %#b, want continuous PM", length, got)
		}
	}
}

func TestBarkerChipTable(t *testing.T) {
	want := map[uint32]uint32{2: 2, 3: 6, 4: 11, 5: 29, 7: 114, 11: 1810, 13: 7989}
	for _, length := range BarkerLengths {
		got, ok := BarkerChips(length)
		if !ok || got != want[length] {
			t.Fatalf("BarkerChips(%d) = %d, %t; want %d", length, got, ok, want[length])
		}
	}
}

func TestPhaseModulationSubpulseLimits(t *testing.T) {
	cases := []struct {
		length, sequence uint32
		ok               bool
	}{
		{13, 195, true},
		{13, 200, true},  // 15 us chips after truncation
		{13, 210, false}, // 16 us chips exceed 200 us
		{13, 12, false},  // shorter than one microsecond per chip
		{2, 200, true},
		{2, 202, false},
	}
	for _, tc := range cases {
		e, _ := newTestEngine(t)
		err := e.SetContinuousPhaseModulation(1000, tc.length, tc.sequence)
		if tc.ok != (err == nil) {
			t.Fatalf("%+v: err=%v", tc, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidPhaseParams) {
			t.Fatalf("%+v: unexpected error %v", tc, err)
		}
	}

	e, _ := newTestEngine(t)
	if err := e.SetContinuousPhaseModulation(1000, 13, 200); err != nil {
		t.Fatalf("SetContinuousPhaseModulation: %v", err)
	}
	if got := e.State().BarkerSubpulseUS; got != 15 {
		t.Fatalf("subpulse = %d, want 15", got)
	}
}

func TestPulsedModulations(t *testing.T) {
	e, sim := newTestEngine(t)
	if err := e.SetPulsedFrequencyModulation(100, 40, 1000, 2000); err != nil {
		t.Fatalf("SetPulsedFrequencyModulation: %v", err)
	}
	if got := sim.Register(hw.RegMode); got != 0b110 {
		t.Fatalf("mode register = %#b, want pulsed FM", got)
	}
	if got := sim.Register(hw.RegPattern); got != DeltaPhaseIncrement(1000, 2000, 40) {
		t.Fatalf("delta register = %d", got)
	}
	if st := e.State(); st.SweepUS != 40 || st.PeriodUS != 100 || st.PulseLengthUS != 40 {
		t.Fatalf("unexpected state %+v", st)
	}

	if err := e.SetPulsedPhaseModulation(100, 26, 3000, 13); err != nil {
		t.Fatalf("SetPulsedPhaseModulation: %v", err)
	}
	if got := sim.Register(hw.RegMode); got != 0b010 {
		t.Fatalf("mode register = %#b, want pulsed PM", got)
	}
	if st := e.State(); st.BarkerSubpulseUS != 2 || st.Modulation != ModulationPhase || st.Timing != TimingPulsed {
		t.Fatalf("unexpected state %+v", st)
	}
	if err := e.SetPulsedPhaseModulation(100, 12, 3000, 13); !errors.Is(err, ErrInvalidPhaseParams) {
		t.Fatalf("expected ErrInvalidPhaseParams, got %v", err)
	}
}

func TestStartStop(t *testing.T) {
	e, sim := newTestEngine(t)
	if err := e.SetContinuousConstantFrequency(1000); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.State().Enabled || sim.Register(hw.RegControl)&1 != 1 {
		t.Fatalf("generator not enabled after Start")
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if e.State().Enabled || sim.Register(hw.RegControl)&1 != 0 {
		t.Fatalf("generator still enabled after Stop")
	}
}

func TestReconfigureStopsOutput(t *testing.T) {
	e, sim := newTestEngine(t)
	if err := e.SetContinuousConstantFrequency(1000); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.SetPulsedConstantFrequency(100, 20, 2000); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if e.State().Enabled || sim.Register(hw.RegControl)&1 != 0 {
		t.Fatalf("reconfiguration left the output running")
	}
	if e.State().ConstantFreqKHz != 2000 {
		t.Fatalf("state not updated: %+v", e.State())
	}
}

func TestRejectedConfigLeavesStateUntouched(t *testing.T) {
	e, sim := newTestEngine(t)
	if err := e.SetContinuousFrequencyModulation(1000, 5000, 100); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := e.State()
	sim.ResetWrites()

	rejected := []func() error{
		func() error { return e.SetContinuousConstantFrequency(MaxFreqKHz + 1) },
		func() error { return e.SetContinuousFrequencyModulation(5000, 1000, 100) },
		func() error { return e.SetContinuousPhaseModulation(1000, 6, 60) },
		func() error { return e.SetPulsedConstantFrequency(8, 5, 1000) },
		func() error { return e.SetPulsedFrequencyModulation(100, 40, 3000, 2000) },
		func() error { return e.SetPulsedPhaseModulation(100, 40, 1000, 9) },
		func() error { return e.Apply(Waveform{}) },
	}
	for i, call := range rejected {
		err := call()
		if !fault.Is(err, fault.Validation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if got := e.State(); got != before {
		t.Fatalf("state changed on rejected config: %+v -> %+v", before, got)
	}
	if n := len(sim.Writes()); n != 0 {
		t.Fatalf("%d registers written by rejected configs", n)
	}
}

func TestApplyDispatch(t *testing.T) {
	cases := []struct {
		wf    Waveform
		state State
	}{
		{
			Waveform{ContinuousTiming{}, ConstantFrequency{FreqKHz: 1500}},
			State{Timing: TimingContinuous, Modulation: ModulationNone, ConstantFreqKHz: 1500},
		},
		{
			Waveform{ContinuousTiming{}, BarkerCode{FreqKHz: 1000, Length: 7, SequenceUS: 70}},
			State{Timing: TimingContinuous, Modulation: ModulationPhase, ConstantFreqKHz: 1000, BarkerLength: 7, BarkerSubpulseUS: 10},
		},
		{
			Waveform{PulsedTiming{PeriodUS: 200, PulseLengthUS: 50}, Chirp{LowKHz: 100, HighKHz: 200, SweepUS: 999}},
			State{
				Timing: TimingPulsed, Modulation: ModulationFrequency, PeriodUS: 200, PulseLengthUS: 50,
				LowFreqKHz: 100, HighFreqKHz: 200, SweepUS: 50, DeltaPhaseIncrement: DeltaPhaseIncrement(100, 200, 50),
			},
		},
		{
			Waveform{PulsedTiming{PeriodUS: 200, PulseLengthUS: 55}, BarkerCode{FreqKHz: 800, Length: 11}},
			State{Timing: TimingPulsed, Modulation: ModulationPhase, PeriodUS: 200, PulseLengthUS: 55, ConstantFreqKHz: 800, BarkerLength: 11, BarkerSubpulseUS: 5},
		},
	}
	for _, tc := range cases {
		e, _ := newTestEngine(t)
		if err := e.Apply(tc.wf); err != nil {
			t.Fatalf("Apply(%+v): %v", tc.wf, err)
		}
		if got := e.State(); got != tc.state {
			t.Fatalf("Apply(%+v) state = %+v, want %+v", tc.wf, got, tc.state)
		}
	}

	e, _ := newTestEngine(t)
	if err := e.Apply(Waveform{Timing: ContinuousTiming{}}); !errors.Is(err, ErrInvalidWaveform) {
		t.Fatalf("expected ErrInvalidWaveform, got %v", err)
	}
}

// faultyPort fails writes to one register offset.
type faultyPort struct {
	*hw.Sim
	failAt uint32
}

func (p faultyPort) WriteWord(addr, value uint32) error {
	if addr == testBase+p.failAt {
		return fmt.Errorf("%w: injected", hw.ErrAccess)
	}
	return p.Sim.WriteWord(addr, value)
}

func (p faultyPort) WriteBit(addr uint32, bit uint, value bool) error {
	if addr == testBase+p.failAt {
		return fmt.Errorf("%w: injected", hw.ErrAccess)
	}
	return p.Sim.WriteBit(addr, bit, value)
}

func TestHardwareFaultDuringProgramming(t *testing.T) {
	sim := hw.NewSim(testBase)
	port := &faultyPort{Sim: sim, failAt: 0xFFF}
	e := New(port, sim.DMA(), testBase, Options{})
	if err := e.SetContinuousConstantFrequency(1000); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	port.failAt = hw.RegFreq
	err := e.SetContinuousConstantFrequency(2000)
	if !fault.Is(err, fault.Hardware) {
		t.Fatalf("expected hardware fault, got %v", err)
	}
	st := e.State()
	if st.Enabled {
		t.Fatalf("state reports running after the stop write landed")
	}
	if st.ConstantFreqKHz != 1000 {
		t.Fatalf("state took the failed configuration: %+v", st)
	}

	port.failAt = hw.RegControl
	if err := e.Start(); !fault.Is(err, fault.Hardware) {
		t.Fatalf("expected hardware fault from Start, got %v", err)
	}
	if e.State().Enabled {
		t.Fatalf("failed Start marked the generator enabled")
	}
}
