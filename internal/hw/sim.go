package hw

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// Write records one word written to the simulated register file.
type Write struct {
	Addr  uint32
	Value uint32
}

// Sim is an in-memory DDS modulator core with its debug DMA channel. Captured
// samples are synthesized from whatever the registers hold when the transfer
// completes, so tests can check the programmed waveform end to end.
type Sim struct {
	mu     sync.Mutex
	base   uint32
	regs   map[uint32]uint32
	writes []Write

	latency  time.Duration
	stall    bool
	limit    int
	startErr error
	busyErr  error

	armed       bool
	startedAt   time.Time
	dst         []byte
	maxBytes    int
	transferred uint32
	starts      int
}

// NewSim builds a simulator whose register block starts at base.
func NewSim(base uint32) *Sim {
	return &Sim{base: base, regs: make(map[uint32]uint32), limit: -1}
}

func (s *Sim) ReadWord(addr uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr], nil
}

func (s *Sim) WriteWord(addr uint32, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[addr] = value
	s.writes = append(s.writes, Write{Addr: addr, Value: value})
	return nil
}

func (s *Sim) ReadBit(addr uint32, bit uint) (bool, error) { return readBit(s, addr, bit) }

func (s *Sim) WriteBit(addr uint32, bit uint, value bool) error {
	return writeBit(s, addr, bit, value)
}

// Register returns the word at offset from the simulator base.
func (s *Sim) Register(offset uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[s.base+offset]
}

// Writes returns every register write in order.
func (s *Sim) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// ResetWrites clears the write history.
func (s *Sim) ResetWrites() {
	s.mu.Lock()
	s.writes = nil
	s.mu.Unlock()
}

// SetLatency sets how long a transfer stays busy after Start.
func (s *Sim) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// SetStall makes transfers never complete.
func (s *Sim) SetStall(stall bool) {
	s.mu.Lock()
	s.stall = stall
	s.mu.Unlock()
}

// SetTransferLimit caps the number of bytes a transfer delivers. Negative means no cap.
func (s *Sim) SetTransferLimit(n int) {
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
}

// FailStart makes the next Start calls fail with err until cleared with nil.
func (s *Sim) FailStart(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

// FailBusy makes Busy report err until cleared with nil.
func (s *Sim) FailBusy(err error) {
	s.mu.Lock()
	s.busyErr = err
	s.mu.Unlock()
}

// Starts reports how many transfers were armed.
func (s *Sim) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// DMA returns the simulator's debug DMA channel.
func (s *Sim) DMA() DMAEngine { return simDMA{s} }

type simDMA struct{ s *Sim }

func (d simDMA) Start(dst []byte, maxBytes int) error {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return fmt.Errorf("%w: %v", ErrAccess, s.startErr)
	}
	if maxBytes > len(dst) {
		return fmt.Errorf("%w: transfer of %d bytes exceeds %d byte buffer", ErrAccess, maxBytes, len(dst))
	}
	s.armed = true
	s.startedAt = time.Now()
	s.dst = dst
	s.maxBytes = maxBytes
	s.transferred = 0
	s.starts++
	return nil
}

func (d simDMA) Busy() (bool, error) {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyErr != nil {
		return false, fmt.Errorf("%w: %v", ErrAccess, s.busyErr)
	}
	if !s.armed {
		return false, nil
	}
	if s.stall || time.Since(s.startedAt) < s.latency {
		return true, nil
	}
	s.complete()
	return false, nil
}

func (d simDMA) BytesTransferred() (uint32, error) {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferred, nil
}

// complete runs with s.mu held.
func (s *Sim) complete() {
	s.armed = false
	ctrl := s.regs[s.base+RegControl]
	if ctrl&(1<<EnableBit) == 0 || ctrl&(1<<DebugBit) == 0 {
		s.transferred = 0
		return
	}
	n := s.maxBytes
	if s.limit >= 0 && s.limit < n {
		n = s.limit
	}
	n -= n % 4
	s.synthesize(s.dst[:n])
	s.transferred = uint32(n)
	// The core drops its debug flag once the capture window has been streamed.
	s.regs[s.base+RegControl] = ctrl &^ (1 << DebugBit)
}

// synthesize fills dst with packed [Q|I] words the way the DDS core streams them.
func (s *Sim) synthesize(dst []byte) {
	reg := func(off uint32) uint32 { return s.regs[s.base+off] }
	mode := reg(RegMode)
	continuous := mode&(1<<ModeBit) != 0
	modulated := mode&(1<<ModEnableBit) != 0
	fm := modulated && mode&(1<<ModTypeBit) != 0
	pm := modulated && !fm

	start := reg(RegFreq) & PincMask
	stop := reg(RegAux) & PincMask
	delta := reg(RegPattern) & PincMask

	pattern := reg(RegPattern)
	barkerLen := pattern >> BarkerLengthShift
	chips := pattern & BarkerChipsMask
	chipTicks := (reg(RegAux) & PincMask) + 1

	timing := reg(RegTiming)
	pulseTicks := (timing >> 16) & CounterMask
	periodTicks := timing & CounterMask

	var phase uint32
	pinc := start
	words := len(dst) / 4
	for n := 0; n < words; n++ {
		t := uint32(n)
		if !continuous && periodTicks > 0 {
			t = uint32(n) % periodTicks
			if t >= pulseTicks {
				binary.LittleEndian.PutUint32(dst[4*n:], 0)
				phase, pinc = 0, start
				continue
			}
		}
		offset := 0.0
		if pm && barkerLen > 0 {
			chip := (t / chipTicks) % barkerLen
			if (chips>>(barkerLen-1-chip))&1 == 0 {
				offset = math.Pi
			}
		}
		theta := 2*math.Pi*float64(phase)/float64(uint32(1)<<PincBits) + offset
		i := int16(math.Round(32767 * math.Cos(theta)))
		q := int16(math.Round(32767 * math.Sin(theta)))
		binary.LittleEndian.PutUint32(dst[4*n:], uint32(uint16(q))<<16|uint32(uint16(i)))

		phase = (phase + pinc) & PincMask
		if fm {
			pinc += delta
			if pinc > stop {
				pinc = start
			}
		}
	}
}
