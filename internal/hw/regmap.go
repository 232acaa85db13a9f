package hw

// Register map of the DDS modulator core, relative to its base address.
const (
	RegControl uint32 = 0x00 // enable, debug
	RegMode    uint32 = 0x04 // timing mode, modulation enable, modulation type
	RegTiming  uint32 = 0x08 // pulse length (high half) | period (low half), clock ticks
	RegFreq    uint32 = 0x0C // phase increment, or chirp start increment
	RegAux     uint32 = 0x10 // chirp stop increment, or Barker subpulse ticks-1
	RegPattern uint32 = 0x14 // chirp delta increment, or Barker length<<28 | chips
)

// RegControl bits.
const (
	EnableBit uint = 0
	DebugBit  uint = 1
)

// RegMode bits. ModeBit set means continuous; ModTypeBit set means frequency modulation.
const (
	ModeBit      uint = 0
	ModEnableBit uint = 1
	ModTypeBit   uint = 2
)

const (
	PincBits          = 30
	CounterBits       = 15
	BarkerLengthShift = 28
)

const (
	PincMask        uint32 = 1<<PincBits - 1
	CounterMask     uint32 = 1<<CounterBits - 1
	BarkerChipsMask uint32 = 1<<BarkerLengthShift - 1
)

// FCLKMHz is the DDS core clock.
const FCLKMHz = 125
