package generator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/radarcore/internal/hw"
	"github.com/rjboer/radarcore/internal/logging"
)

var errTransferBusy = errors.New("dma transfer busy")

// TriggerDebugCapture records the DDS output of a running generator into the
// capture buffer. A trigger that fails before the transfer starts keeps the
// previous capture; once the DMA is armed ValidSamples is zero until it succeeds.
func (e *Engine) TriggerDebugCapture(ctx context.Context) error {
	if !e.state.Enabled {
		return ErrNotEnabled
	}
	if e.capture == nil {
		e.capture = make([]byte, MaxDebugBytes)
	}
	ctrl := e.base + hw.RegControl
	if err := e.regs.WriteBit(ctrl, hw.DebugBit, true); err != nil {
		return fmt.Errorf("set debug flag: %w", err)
	}
	began := time.Now()
	if err := e.dma.Start(e.capture, MaxDebugBytes); err != nil {
		e.clearDebug()
		return fmt.Errorf("%w: start: %v", ErrDMA, err)
	}
	// The buffer is being overwritten from here on.
	e.valid = 0
	if err := e.awaitTransfer(ctx); err != nil {
		e.clearDebug()
		return err
	}
	n, err := e.dma.BytesTransferred()
	if err != nil {
		return fmt.Errorf("%w: transferred length: %v", ErrDMA, err)
	}
	samples := int(n / 4)
	if samples > MaxDebugSamples {
		samples = MaxDebugSamples
	}
	if samples == 0 {
		return ErrCaptureEmpty
	}
	e.valid = samples
	e.logger.Debug("debug capture complete",
		logging.F("samples", samples),
		logging.F("elapsed", time.Since(began).Round(time.Millisecond)),
	)
	return nil
}

// awaitTransfer polls the DMA engine until it goes idle, the capture timeout
// expires or ctx is done.
func (e *Engine) awaitTransfer(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	poll := func() error {
		busy, err := e.dma.Busy()
		if err != nil {
			return backoff.Permanent(err)
		}
		if busy {
			return errTransferBusy
		}
		return nil
	}
	err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(e.poll), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w after %s", ErrCaptureTimeout, e.timeout)
	}
	return fmt.Errorf("%w: poll: %v", ErrDMA, err)
}

func (e *Engine) clearDebug() {
	if err := e.regs.WriteBit(e.base+hw.RegControl, hw.DebugBit, false); err != nil {
		e.logger.Warn("clear debug flag failed", logging.F("error", err))
	}
}

// ExtractInPhaseSamples copies the low half-word of the first count captured samples.
func (e *Engine) ExtractInPhaseSamples(count int) ([]int16, error) {
	return e.extract(count, 0)
}

// ExtractQuadratureSamples copies the high half-word of the first count captured samples.
func (e *Engine) ExtractQuadratureSamples(count int) ([]int16, error) {
	return e.extract(count, 16)
}

func (e *Engine) extract(count int, shift uint) ([]int16, error) {
	if count < 0 || count > e.valid {
		return nil, fmt.Errorf("%w: %d requested, %d captured", ErrSampleRange, count, e.valid)
	}
	out := make([]int16, count)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint32(e.capture[4*i:]) >> shift)
	}
	return out, nil
}
