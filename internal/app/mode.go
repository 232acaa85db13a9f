package app

import "sync/atomic"

// Mode is the sub-application that owns the session.
type Mode int32

const (
	ModeMain Mode = iota
	ModeGenerator
	ModeDemodulator
)

func (m Mode) String() string {
	switch m {
	case ModeGenerator:
		return "generator"
	case ModeDemodulator:
		return "demodulator"
	default:
		return "main"
	}
}

// modeFor maps a config tag to the sub-application it selects.
func modeFor(tag string) (Mode, bool) {
	switch tag {
	case "generator":
		return ModeGenerator, true
	case "demodulator":
		return ModeDemodulator, true
	default:
		return ModeMain, false
	}
}

// modeCell publishes the session mode. The orchestrator loop is its only writer.
type modeCell struct{ v atomic.Int32 }

func (c *modeCell) load() Mode   { return Mode(c.v.Load()) }
func (c *modeCell) store(m Mode) { c.v.Store(int32(m)) }
