package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rjboer/radarcore/internal/dsp"
	"github.com/rjboer/radarcore/internal/fault"
	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/message"
	"github.com/rjboer/radarcore/internal/telemetry"
)

// DefaultMailboxSize is the capacity of every actor mailbox.
const DefaultMailboxSize = 5

// ErrSessionActive is returned when a second session is started while one
// is being served.
var ErrSessionActive = fault.New(fault.Resource, "session already active")

// GeneratorFactory builds the engine for a new generator actor.
type GeneratorFactory func() (Engine, error)

// Options tune an Orchestrator. Zero values select the defaults.
type Options struct {
	MailboxSize int
	Logger      logging.Logger
	Reporter    telemetry.Reporter
	// Tone, when set, estimates the dominant tone of every debug capture.
	Tone *dsp.ToneEstimator
}

// Orchestrator owns the session mode and the active sub-application actor.
type Orchestrator struct {
	newGenerator GeneratorFactory
	mailbox      int
	logger       logging.Logger
	reporter     telemetry.Reporter
	tone         *dsp.ToneEstimator

	mode   modeCell
	serial sync.Mutex
}

// NewOrchestrator builds an orchestrator that spawns generators with factory.
func NewOrchestrator(factory GeneratorFactory, opts Options) *Orchestrator {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Reporter == nil {
		opts.Reporter = telemetry.Nop
	}
	return &Orchestrator{
		newGenerator: factory,
		mailbox:      opts.MailboxSize,
		logger:       opts.Logger.With(logging.F("subsystem", "orchestrator")),
		reporter:     opts.Reporter,
		tone:         opts.Tone,
	}
}

// Mode reports the current session mode. Safe for concurrent use.
func (o *Orchestrator) Mode() Mode { return o.mode.load() }

// MailboxSize is the inbox and outbox capacity sessions should use.
func (o *Orchestrator) MailboxSize() int { return o.mailbox }

// session is the state of one connection. It is confined to the RunSession
// goroutine.
type session struct {
	o      *Orchestrator
	outbox chan<- message.Ack
	active *actor
}

// RunSession serves one connection until BrokenConnection arrives, the inbox
// is closed or ctx is canceled. The active actor is torn down and the
// outbox closed before it returns. Only one session runs at a time.
func (o *Orchestrator) RunSession(ctx context.Context, inbox <-chan message.Message, outbox chan<- message.Ack) error {
	if !o.serial.TryLock() {
		close(outbox)
		return ErrSessionActive
	}
	defer o.serial.Unlock()
	defer close(outbox)

	s := &session{o: o, outbox: outbox}
	defer s.teardown()

	o.logger.Info("session started")
	defer o.logger.Info("session ended")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-inbox:
			if !ok {
				return nil
			}
			if c, isControl := m.(message.Control); isControl && c.Command == message.BrokenConnection {
				return nil
			}
			if err := s.dispatch(ctx, m); err != nil {
				return err
			}
		}
	}
}

func (s *session) dispatch(ctx context.Context, m message.Message) error {
	if s.active == nil {
		s.main(ctx, m)
		return ctx.Err()
	}
	a := s.active
	select {
	case a.inbox <- m:
	case <-a.done:
		s.o.logger.Warn("actor exited unexpectedly", logging.F("mode", a.mode))
		s.retire()
		s.main(ctx, m)
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}

	if cfg, ok := m.(message.Config); ok {
		if next, known := modeFor(cfg.Tag()); known && next != a.mode {
			return s.awaitHandoff(ctx, a)
		}
	}
	return nil
}

// awaitHandoff waits for the active actor to stop its hardware and return
// the foreign config, then dispatches it from Main.
func (s *session) awaitHandoff(ctx context.Context, a *actor) error {
	s.o.logger.Info("hand-off pending", logging.F("from", a.mode))
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.retire()
	select {
	case cfg := <-a.handoff:
		s.main(ctx, cfg)
	default:
		s.o.logger.Warn("actor exited without handing off", logging.F("mode", a.mode))
	}
	return ctx.Err()
}

// main handles a message while no sub-application owns the session.
func (s *session) main(ctx context.Context, m message.Message) {
	switch v := m.(type) {
	case message.Config:
		mode, ok := modeFor(v.Tag())
		if !ok {
			s.emit(ctx, message.Ack{Retval: message.RetvalBadConfig})
			return
		}
		s.spawn(ctx, mode, v)
	case message.Control:
		s.emit(ctx, message.Ack{Retval: message.RetvalNoConfig})
	default:
		s.emit(ctx, message.Ack{Retval: message.RetvalInvalidMsg})
	}
}

func (s *session) spawn(ctx context.Context, mode Mode, cfg message.Config) {
	app, err := s.build(mode, cfg)
	if err != nil {
		s.o.logger.Warn("sub-application rejected", logging.F("mode", mode), logging.F("error", err), logging.F("kind", fault.KindOf(err)))
		s.emit(ctx, message.Ack{Retval: message.RetvalBadConfig})
		return
	}
	s.active = startActor(ctx, mode, app, s.o.mailbox, s.emit)
	s.setMode(mode)
	s.emit(ctx, message.Ack{Retval: message.RetvalAck})
}

// build constructs and seeds a sub-application. A seed failure releases
// whatever was constructed, and the caller answers BadConfig and stays in
// Main rather than spawning an actor around a config the engine refused.
func (s *session) build(mode Mode, cfg message.Config) (subApp, error) {
	switch mode {
	case ModeGenerator:
		if s.o.newGenerator == nil {
			return nil, fault.New(fault.Resource, "no generator factory")
		}
		engine, err := s.o.newGenerator()
		if err != nil {
			return nil, err
		}
		g := newGeneratorApp(engine, s.o.tone, s.o.reporter, s.o.logger)
		if err := g.configure(*cfg.Generator); err != nil {
			g.shutdown()
			return nil, err
		}
		return g, nil
	case ModeDemodulator:
		d := newDemodulatorApp(s.o.logger)
		if err := d.configure(*cfg.Demodulator); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, errors.New("unknown sub-application")
}

// teardown stops the active actor if any and waits for it to exit.
func (s *session) teardown() {
	a := s.active
	if a == nil {
		return
	}
	select {
	case a.inbox <- message.Control{Command: message.BrokenConnection}:
	case <-a.done:
	}
	<-a.done
	s.retire()
}

func (s *session) retire() {
	s.active = nil
	s.setMode(ModeMain)
}

func (s *session) setMode(m Mode) {
	if s.o.mode.load() == m {
		return
	}
	s.o.mode.store(m)
	s.o.logger.Info("mode changed", logging.F("mode", m))
	s.o.reporter.Report(telemetry.Event{Time: time.Now(), Kind: telemetry.KindMode, Mode: m.String()})
}

// emit queues an ack on the outbox. It reports false if ctx ended first.
// Actors share it, so it only touches concurrency-safe state.
func (s *session) emit(ctx context.Context, a message.Ack) bool {
	select {
	case s.outbox <- a:
	case <-ctx.Done():
		return false
	}
	s.o.reporter.Report(telemetry.Event{Time: time.Now(), Kind: telemetry.KindAck, Retval: a.Retval.String()})
	return true
}
