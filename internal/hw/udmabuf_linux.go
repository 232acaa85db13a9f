//go:build linux

package hw

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// UDMABuf is a u-dma-buf kernel buffer: physically contiguous memory the
// AXI DMA can target, mapped into this process.
type UDMABuf struct {
	name string
	phys uint32
	mem  []byte
}

// OpenUDMABuf maps /dev/<name> and reads its physical address from sysfs.
func OpenUDMABuf(name string) (*UDMABuf, error) {
	sys := filepath.Join("/sys/class/u-dma-buf", name)
	phys, err := readSysfsUint(filepath.Join(sys, "phys_addr"))
	if err != nil {
		return nil, err
	}
	size, err := readSysfsUint(filepath.Join(sys, "size"))
	if err != nil {
		return nil, err
	}
	dev := filepath.Join("/dev", name)
	fd, err := unix.Open(dev, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrAccess, dev, err)
	}
	defer unix.Close(fd)
	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrAccess, dev, err)
	}
	return &UDMABuf{name: name, phys: uint32(phys), mem: mem}, nil
}

func (u *UDMABuf) PhysAddr() uint32 { return u.phys }
func (u *UDMABuf) Bytes() []byte    { return u.mem }

func (u *UDMABuf) Close() error {
	if u.mem == nil {
		return nil
	}
	err := unix.Munmap(u.mem)
	u.mem = nil
	return err
}

func readSysfsUint(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrAccess, path, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrAccess, path, err)
	}
	return v, nil
}
