//go:build !linux

package hw

import "fmt"

// UDMABuf is only available on linux.
type UDMABuf struct{}

func OpenUDMABuf(name string) (*UDMABuf, error) {
	return nil, fmt.Errorf("%w: u-dma-buf %s requires linux", ErrAccess, name)
}

func (u *UDMABuf) PhysAddr() uint32 { return 0 }
func (u *UDMABuf) Bytes() []byte    { return nil }
func (u *UDMABuf) Close() error     { return nil }
