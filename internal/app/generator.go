package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rjboer/radarcore/internal/dsp"
	"github.com/rjboer/radarcore/internal/fault"
	"github.com/rjboer/radarcore/internal/generator"
	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/message"
	"github.com/rjboer/radarcore/internal/telemetry"
)

// Engine is the waveform engine a generator actor drives.
type Engine interface {
	Apply(generator.Waveform) error
	Start() error
	Stop() error
	State() generator.State
	TriggerDebugCapture(ctx context.Context) error
	ValidSamples() int
	ExtractInPhaseSamples(count int) ([]int16, error)
	ExtractQuadratureSamples(count int) ([]int16, error)
}

var errBadGeneratorConfig = fault.New(fault.Validation, "invalid generator config")

// waveformOf converts a wire request into an engine waveform.
func waveformOf(cfg message.GeneratorConfig) (generator.Waveform, error) {
	set := 0
	for _, present := range []bool{cfg.ConstFreq != nil, cfg.FreqMod != nil, cfg.PhaseMod != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return generator.Waveform{}, fmt.Errorf("%w: %d modulations set", errBadGeneratorConfig, set)
	}

	var wf generator.Waveform
	switch cfg.Mode {
	case message.Continuous:
		wf.Timing = generator.ContinuousTiming{}
	case message.Pulsed:
		wf.Timing = generator.PulsedTiming{PeriodUS: cfg.PeriodUS, PulseLengthUS: cfg.PulseLengthUS}
	default:
		return generator.Waveform{}, fmt.Errorf("%w: mode %q", errBadGeneratorConfig, cfg.Mode)
	}

	switch {
	case cfg.ConstFreq != nil:
		wf.Modulation = generator.ConstantFrequency{FreqKHz: cfg.ConstFreq.FreqKHz}
	case cfg.FreqMod != nil:
		wf.Modulation = generator.Chirp{
			LowKHz:  cfg.FreqMod.LowFreqKHz,
			HighKHz: cfg.FreqMod.HighFreqKHz,
			SweepUS: cfg.FreqMod.LengthUS,
		}
	case cfg.PhaseMod != nil:
		p := cfg.PhaseMod
		seq := uint64(p.BarkerSubpulseUS) * uint64(p.BarkerSeqNum)
		if seq > math.MaxUint32 {
			seq = math.MaxUint32
		}
		wf.Modulation = generator.BarkerCode{FreqKHz: p.FreqKHz, Length: p.BarkerSeqNum, SequenceUS: uint32(seq)}
	}
	return wf, nil
}

type generatorApp struct {
	engine   Engine
	tone     *dsp.ToneEstimator
	reporter telemetry.Reporter
	logger   logging.Logger
}

func newGeneratorApp(engine Engine, tone *dsp.ToneEstimator, reporter telemetry.Reporter, logger logging.Logger) *generatorApp {
	return &generatorApp{
		engine:   engine,
		tone:     tone,
		reporter: reporter,
		logger:   logger.With(logging.F("subsystem", "generator")),
	}
}

func (g *generatorApp) configure(cfg message.GeneratorConfig) error {
	wf, err := waveformOf(cfg)
	if err != nil {
		return err
	}
	if err := g.engine.Apply(wf); err != nil {
		return err
	}
	st := g.engine.State()
	g.logger.Info("waveform configured", logging.F("timing", st.Timing), logging.F("modulation", st.Modulation))
	return nil
}

func (g *generatorApp) handle(ctx context.Context, m message.Message) outcome {
	switch v := m.(type) {
	case message.Config:
		if v.Generator == nil {
			if _, foreign := modeFor(v.Tag()); foreign {
				if err := g.engine.Stop(); err != nil {
					g.logger.Warn("stop before hand-off", logging.F("error", err))
				}
				return outcome{handoff: &v}
			}
			return reply(message.RetvalBadConfig)
		}
		if v.Demodulator != nil {
			return reply(message.RetvalBadConfig)
		}
		if err := g.configure(*v.Generator); err != nil {
			g.logger.Warn("config rejected", logging.F("error", err), logging.F("kind", fault.KindOf(err)))
			return reply(message.RetvalBadConfig)
		}
		return reply(message.RetvalAck)
	case message.Control:
		return g.control(ctx, v.Command)
	default:
		return reply(message.RetvalInvalidMsg)
	}
}

func (g *generatorApp) control(ctx context.Context, cmd message.Command) outcome {
	switch cmd {
	case message.Start:
		return g.toggle(g.engine.Start, "start")
	case message.Stop:
		return g.toggle(g.engine.Stop, "stop")
	case message.TriggerDebug:
		return g.capture(ctx)
	case message.BrokenConnection:
		return outcome{exit: true}
	default:
		g.logger.Warn("unknown command", logging.F("command", int(cmd)))
		return reply(message.RetvalBadCommand)
	}
}

func (g *generatorApp) toggle(fn func() error, name string) outcome {
	if err := fn(); err != nil {
		g.logger.Error(name+" failed", logging.F("error", err))
		return reply(message.RetvalBadCommand)
	}
	g.logger.Info("output " + name)
	return reply(message.RetvalAck)
}

func (g *generatorApp) capture(ctx context.Context) outcome {
	st := g.engine.State()
	summary := &telemetry.Capture{Timing: st.Timing.String(), Modulation: st.Modulation.String()}
	fail := func(err error) outcome {
		g.logger.Warn("debug capture failed", logging.F("error", err), logging.F("kind", fault.KindOf(err)))
		summary.Error = err.Error()
		g.reporter.Report(telemetry.Event{Time: time.Now(), Kind: telemetry.KindCapture, Capture: summary})
		return reply(message.RetvalDebugError)
	}

	if err := g.engine.TriggerDebugCapture(ctx); err != nil {
		return fail(err)
	}
	n := g.engine.ValidSamples()
	i, err := g.engine.ExtractInPhaseSamples(n)
	if err != nil {
		return fail(err)
	}
	q, err := g.engine.ExtractQuadratureSamples(n)
	if err != nil {
		return fail(err)
	}

	debug := &message.DebugSamples{NumSamples: n, I: i, Q: q}
	if g.tone != nil {
		if tone, err := g.tone.Estimate(i, q); err == nil {
			debug.ToneKHz = tone.FreqKHz
		}
	}
	summary.Samples, summary.ToneKHz, summary.I, summary.Q = n, debug.ToneKHz, i, q
	g.reporter.Report(telemetry.Event{Time: time.Now(), Kind: telemetry.KindCapture, Capture: summary})
	g.logger.Info("debug capture", logging.F("samples", n), logging.F("tone_khz", debug.ToneKHz))
	return outcome{ack: &message.Ack{Retval: message.RetvalDebugIsValid, Debug: debug}}
}

func (g *generatorApp) shutdown() {
	if err := g.engine.Stop(); err != nil {
		g.logger.Warn("stop on exit", logging.F("error", err))
	}
}
