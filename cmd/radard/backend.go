package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rjboer/radarcore/internal/config"
	"github.com/rjboer/radarcore/internal/hw"
)

// hardware is the opened register and DMA backend.
type hardware struct {
	regs    hw.RegisterPort
	dma     hw.DMAEngine
	sim     *hw.Sim
	closers []io.Closer
}

func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	return errors.Join(errs...)
}

func selectBackend(cfg config.HardwareConfig) (*hardware, error) {
	switch cfg.Backend {
	case config.BackendSim:
		sim := hw.NewSim(cfg.CoreBase)
		sim.SetLatency(cfg.SimLatency)
		return &hardware{regs: sim, dma: sim.DMA(), sim: sim}, nil

	case config.BackendDevMem:
		lo := cfg.CoreBase
		if cfg.DMABase < lo {
			lo = cfg.DMABase
		}
		mem, err := hw.OpenDevMem(cfg.DevMemPath, lo, cfg.MapSize)
		if err != nil {
			return nil, err
		}
		buf, err := hw.OpenUDMABuf(cfg.UDMABuf)
		if err != nil {
			mem.Close()
			return nil, err
		}
		return &hardware{
			regs:    mem,
			dma:     hw.NewAXIDMA(mem, cfg.DMABase, buf),
			closers: []io.Closer{mem, buf},
		}, nil

	case config.BackendSSH:
		remote, err := hw.NewSSHDevMem(hw.SSHConfig{
			Host:       cfg.SSH.Host,
			Port:       cfg.SSH.Port,
			User:       cfg.SSH.User,
			Password:   cfg.SSH.Password,
			KeyPath:    cfg.SSH.KeyPath,
			DevmemPath: cfg.SSH.DevmemPath,
			Timeout:    cfg.SSH.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return &hardware{regs: remote, dma: noDataPath{}, closers: []io.Closer{remote}}, nil
	}
	return nil, fmt.Errorf("unknown backend %s", cfg.Backend)
}

// noDataPath stands in for the DMA channel when registers are reached over
// ssh; debug captures fail as a hardware fault.
type noDataPath struct{}

func (noDataPath) Start([]byte, int) error {
	return fmt.Errorf("%w: no capture data path over ssh", hw.ErrAccess)
}
func (noDataPath) Busy() (bool, error)               { return false, nil }
func (noDataPath) BytesTransferred() (uint32, error) { return 0, nil }
