package app

import (
	"context"
	"fmt"

	"github.com/rjboer/radarcore/internal/fault"
	"github.com/rjboer/radarcore/internal/generator"
	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/message"
)

var errBadDemodulatorConfig = fault.New(fault.Validation, "invalid demodulator config")

// demodulatorApp holds the session for the receive path. It has no hardware
// behind it yet: configs are accepted and lifecycle commands refused.
type demodulatorApp struct {
	centerKHz uint32
	logger    logging.Logger
}

func newDemodulatorApp(logger logging.Logger) *demodulatorApp {
	return &demodulatorApp{logger: logger.With(logging.F("subsystem", "demodulator"))}
}

func (d *demodulatorApp) configure(cfg message.DemodulatorConfig) error {
	if cfg.CenterFreqKHz > generator.MaxFreqKHz {
		return fmt.Errorf("%w: center %d kHz", errBadDemodulatorConfig, cfg.CenterFreqKHz)
	}
	d.centerKHz = cfg.CenterFreqKHz
	d.logger.Info("demodulator configured", logging.F("center_khz", d.centerKHz))
	return nil
}

func (d *demodulatorApp) handle(_ context.Context, m message.Message) outcome {
	switch v := m.(type) {
	case message.Config:
		if v.Demodulator == nil {
			if _, foreign := modeFor(v.Tag()); foreign {
				return outcome{handoff: &v}
			}
			return reply(message.RetvalBadConfig)
		}
		if v.Generator != nil {
			return reply(message.RetvalBadConfig)
		}
		if err := d.configure(*v.Demodulator); err != nil {
			return reply(message.RetvalBadConfig)
		}
		return reply(message.RetvalAck)
	case message.Control:
		if v.Command == message.BrokenConnection {
			return outcome{exit: true}
		}
		return reply(message.RetvalBadCommand)
	default:
		return reply(message.RetvalInvalidMsg)
	}
}

func (d *demodulatorApp) shutdown() {}
