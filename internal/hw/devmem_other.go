//go:build !linux

package hw

import "fmt"

// DevMem is only available on linux.
type DevMem struct{}

func OpenDevMem(path string, phys, size uint32) (*DevMem, error) {
	return nil, fmt.Errorf("%w: /dev/mem access requires linux", ErrAccess)
}

func (d *DevMem) ReadWord(uint32) (uint32, error) {
	return 0, fmt.Errorf("%w: unsupported platform", ErrAccess)
}

func (d *DevMem) WriteWord(uint32, uint32) error {
	return fmt.Errorf("%w: unsupported platform", ErrAccess)
}

func (d *DevMem) ReadBit(addr uint32, bit uint) (bool, error) { return readBit(d, addr, bit) }

func (d *DevMem) WriteBit(addr uint32, bit uint, value bool) error {
	return writeBit(d, addr, bit, value)
}

func (d *DevMem) Close() error { return nil }
