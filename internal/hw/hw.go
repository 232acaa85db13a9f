package hw

import (
	"fmt"

	"github.com/rjboer/radarcore/internal/fault"
)

// RegisterPort is primitive access to memory-mapped 32-bit hardware words.
type RegisterPort interface {
	ReadWord(addr uint32) (uint32, error)
	WriteWord(addr uint32, value uint32) error
	ReadBit(addr uint32, bit uint) (bool, error)
	WriteBit(addr uint32, bit uint, value bool) error
}

// DMAEngine is a device-to-memory transfer channel.
type DMAEngine interface {
	// Start arms a transfer of up to maxBytes into dst.
	Start(dst []byte, maxBytes int) error
	Busy() (bool, error)
	// BytesTransferred reports the length of the last completed transfer.
	BytesTransferred() (uint32, error)
}

// ErrAccess marks a failed register or DMA access.
var ErrAccess = fault.New(fault.Hardware, "hardware access failed")

type wordIO interface {
	ReadWord(addr uint32) (uint32, error)
	WriteWord(addr uint32, value uint32) error
}

func readBit(p wordIO, addr uint32, bit uint) (bool, error) {
	if bit > 31 {
		return false, fmt.Errorf("%w: bit %d out of range", ErrAccess, bit)
	}
	v, err := p.ReadWord(addr)
	if err != nil {
		return false, err
	}
	return v&(1<<bit) != 0, nil
}

// writeBit is a read-modify-write of a single bit.
func writeBit(p wordIO, addr uint32, bit uint, value bool) error {
	if bit > 31 {
		return fmt.Errorf("%w: bit %d out of range", ErrAccess, bit)
	}
	v, err := p.ReadWord(addr)
	if err != nil {
		return err
	}
	if value {
		v |= 1 << bit
	} else {
		v &^= 1 << bit
	}
	return p.WriteWord(addr, v)
}
