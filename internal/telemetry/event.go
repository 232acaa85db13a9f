package telemetry

import "time"

// Kind classifies a telemetry event.
type Kind string

const (
	KindMode    Kind = "mode"
	KindAck     Kind = "ack"
	KindCapture Kind = "capture"
)

// Event is one observable step of a control session.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Mode    string    `json:"mode,omitempty"`
	Retval  string    `json:"retval,omitempty"`
	Capture *Capture  `json:"capture,omitempty"`
}

// Capture summarizes a debug capture. I and Q hold the raw samples and are
// left out of JSON summaries.
type Capture struct {
	Samples    int     `json:"samples"`
	ToneKHz    float64 `json:"tone_khz"`
	Timing     string  `json:"timing"`
	Modulation string  `json:"modulation"`
	Error      string  `json:"error,omitempty"`
	I          []int16 `json:"-"`
	Q          []int16 `json:"-"`
}

// Reporter receives telemetry events. Implementations must be safe for
// concurrent use and must not block the caller for long.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// Report forwards the event to each configured reporter.
func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// Nop discards events.
var Nop Reporter = ReporterFunc(func(Event) {})
