//go:build linux

package hw

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem maps a physical register window through /dev/mem. Addresses passed
// to the RegisterPort methods are physical addresses inside the window.
type DevMem struct {
	phys uint32
	size uint32
	mem  []byte
	off  uint32 // distance from page-aligned mapping start to phys
}

// OpenDevMem maps size bytes of physical memory starting at phys.
func OpenDevMem(path string, phys, size uint32) (*DevMem, error) {
	if path == "" {
		path = "/dev/mem"
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrAccess, path, err)
	}
	defer unix.Close(fd)

	page := uint32(os.Getpagesize())
	aligned := phys &^ (page - 1)
	off := phys - aligned
	length := int(off + size)
	mem, err := unix.Mmap(fd, int64(aligned), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap 0x%08x+0x%x: %v", ErrAccess, phys, size, err)
	}
	return &DevMem{phys: phys, size: size, mem: mem, off: off}, nil
}

func (d *DevMem) word(addr uint32) (*uint32, error) {
	if d.mem == nil {
		return nil, fmt.Errorf("%w: devmem closed", ErrAccess)
	}
	if addr < d.phys || addr+4 > d.phys+d.size || addr%4 != 0 {
		return nil, fmt.Errorf("%w: address 0x%08x outside window 0x%08x+0x%x", ErrAccess, addr, d.phys, d.size)
	}
	return (*uint32)(unsafe.Pointer(&d.mem[d.off+addr-d.phys])), nil
}

// ReadWord performs a single 32-bit bus read.
func (d *DevMem) ReadWord(addr uint32) (uint32, error) {
	p, err := d.word(addr)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

// WriteWord performs a single 32-bit bus write.
func (d *DevMem) WriteWord(addr uint32, value uint32) error {
	p, err := d.word(addr)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, value)
	return nil
}

func (d *DevMem) ReadBit(addr uint32, bit uint) (bool, error) { return readBit(d, addr, bit) }

func (d *DevMem) WriteBit(addr uint32, bit uint, value bool) error {
	return writeBit(d, addr, bit, value)
}

// Close unmaps the window.
func (d *DevMem) Close() error {
	if d.mem == nil {
		return nil
	}
	err := unix.Munmap(d.mem)
	d.mem = nil
	return err
}
