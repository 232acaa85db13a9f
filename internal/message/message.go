// Package message defines the typed values exchanged between a session's
// transport and the orchestrator, plus their JSON wire form.
package message

// Message is an inbound session message: a Config or a Control.
type Message interface{ isMessage() }

// Config selects and configures a sub-application. Exactly one of the
// fields is expected; anything else is a bad configuration.
type Config struct {
	Generator   *GeneratorConfig   `json:"generator,omitempty"`
	Demodulator *DemodulatorConfig `json:"demodulator,omitempty"`
}

// Control is a lifecycle command for the active sub-application.
type Control struct {
	Command Command `json:"command"`
}

func (Config) isMessage()  {}
func (Control) isMessage() {}

// Mode is the generator timing mode on the wire.
type Mode string

const (
	Continuous Mode = "CONTINUOUS"
	Pulsed     Mode = "PULSED"
)

// GeneratorConfig is a waveform request. PeriodUS and PulseLengthUS apply to
// pulsed mode only. Exactly one modulation must be set.
type GeneratorConfig struct {
	Mode          Mode       `json:"mode"`
	PeriodUS      uint32     `json:"period_us,omitempty"`
	PulseLengthUS uint32     `json:"pulse_length_us,omitempty"`
	ConstFreq     *ConstFreq `json:"const_freq,omitempty"`
	FreqMod       *FreqMod   `json:"freq_mod,omitempty"`
	PhaseMod      *PhaseMod  `json:"phase_mod,omitempty"`
}

type ConstFreq struct {
	FreqKHz uint32 `json:"freq_khz"`
}

// FreqMod is a linear chirp. LengthUS is the sweep length in continuous mode;
// pulsed chirps sweep over the pulse.
type FreqMod struct {
	LowFreqKHz  uint32 `json:"low_freq_khz"`
	HighFreqKHz uint32 `json:"high_freq_khz"`
	LengthUS    uint32 `json:"length_us,omitempty"`
}

// PhaseMod is a Barker phase code. BarkerSubpulseUS is the chip length in
// continuous mode; pulsed codes split the pulse evenly.
type PhaseMod struct {
	FreqKHz          uint32 `json:"freq_khz"`
	BarkerSeqNum     uint32 `json:"barker_seq_num"`
	BarkerSubpulseUS uint32 `json:"barker_subpulse_length_us,omitempty"`
}

// DemodulatorConfig configures the demodulator sub-application.
type DemodulatorConfig struct {
	CenterFreqKHz uint32 `json:"center_freq_khz,omitempty"`
}

// Tag names the sub-application a Config selects, or "" when it selects none
// or both.
func (c Config) Tag() string {
	switch {
	case c.Generator != nil && c.Demodulator == nil:
		return "generator"
	case c.Demodulator != nil && c.Generator == nil:
		return "demodulator"
	default:
		return ""
	}
}
