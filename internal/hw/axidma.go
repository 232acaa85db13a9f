package hw

import "fmt"

// AXI DMA simple-mode S2MM (device to memory) channel registers.
const (
	s2mmControl uint32 = 0x30
	s2mmStatus  uint32 = 0x34
	s2mmDest    uint32 = 0x48
	s2mmLength  uint32 = 0x58
)

const (
	dmacrRunStop   = 1 << 0
	dmasrHalted    = 1 << 0
	dmasrIdle      = 1 << 1
	dmasrErrMask   = 0x70 // internal, slave, decode errors
	maxSimpleBytes = 1<<26 - 1
)

// Window is a physically contiguous buffer the DMA writes into.
type Window interface {
	PhysAddr() uint32
	Bytes() []byte
}

// AXIDMA drives the S2MM channel of a Xilinx AXI DMA core in simple
// (non scatter-gather) mode with interrupts disabled.
type AXIDMA struct {
	regs   RegisterPort
	base   uint32
	window Window
	dst    []byte
}

// NewAXIDMA binds the DMA core registered at base to a receive window.
func NewAXIDMA(regs RegisterPort, base uint32, window Window) *AXIDMA {
	return &AXIDMA{regs: regs, base: base, window: window}
}

func (d *AXIDMA) Start(dst []byte, maxBytes int) error {
	if maxBytes <= 0 || maxBytes > maxSimpleBytes {
		return fmt.Errorf("%w: transfer length %d out of range", ErrAccess, maxBytes)
	}
	if maxBytes > len(dst) || maxBytes > len(d.window.Bytes()) {
		return fmt.Errorf("%w: transfer of %d bytes exceeds buffer", ErrAccess, maxBytes)
	}
	if err := d.regs.WriteWord(d.base+s2mmControl, dmacrRunStop); err != nil {
		return err
	}
	status, err := d.regs.ReadWord(d.base + s2mmStatus)
	if err != nil {
		return err
	}
	if status&dmasrHalted != 0 {
		return fmt.Errorf("%w: dma channel halted (status 0x%08x)", ErrAccess, status)
	}
	if err := d.regs.WriteWord(d.base+s2mmDest, d.window.PhysAddr()); err != nil {
		return err
	}
	d.dst = dst
	// Writing the length register launches the transfer.
	return d.regs.WriteWord(d.base+s2mmLength, uint32(maxBytes))
}

func (d *AXIDMA) Busy() (bool, error) {
	status, err := d.regs.ReadWord(d.base + s2mmStatus)
	if err != nil {
		return false, err
	}
	if status&dmasrErrMask != 0 {
		return false, fmt.Errorf("%w: dma transfer error (status 0x%08x)", ErrAccess, status)
	}
	return status&dmasrIdle == 0, nil
}

// BytesTransferred reads the completed length and copies that many bytes from
// the receive window into the destination given to Start.
func (d *AXIDMA) BytesTransferred() (uint32, error) {
	n, err := d.regs.ReadWord(d.base + s2mmLength)
	if err != nil {
		return 0, err
	}
	src := d.window.Bytes()
	if int(n) > len(src) || int(n) > len(d.dst) {
		return 0, fmt.Errorf("%w: dma reported %d bytes, buffer holds %d", ErrAccess, n, len(d.dst))
	}
	copy(d.dst[:n], src[:n])
	return n, nil
}
