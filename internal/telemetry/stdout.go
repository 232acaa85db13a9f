package telemetry

import "github.com/rjboer/radarcore/internal/logging"

// LogReporter writes session events to a logger.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a log reporter with the provided logger.
func NewLogReporter(logger logging.Logger) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger}
}

func (r LogReporter) Report(e Event) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "kind", Value: e.Kind},
	}
	if e.Mode != "" {
		fields = append(fields, logging.Field{Key: "mode", Value: e.Mode})
	}
	if e.Retval != "" {
		fields = append(fields, logging.Field{Key: "retval", Value: e.Retval})
	}
	if c := e.Capture; c != nil {
		fields = append(fields,
			logging.Field{Key: "samples", Value: c.Samples},
			logging.Field{Key: "tone_khz", Value: c.ToneKHz},
			logging.Field{Key: "timing", Value: c.Timing},
			logging.Field{Key: "modulation", Value: c.Modulation},
		)
		if c.Error != "" {
			fields = append(fields, logging.Field{Key: "error", Value: c.Error})
		}
	}
	r.logger.Info("session event", fields...)
}
