package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
)

// Level is a logging severity. Entries below a logger's level are dropped.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = [...]string{Debug: "DEBUG", Info: "INFO", Warn: "WARN", Error: "ERROR"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

var levelAliases = map[string]Level{
	"":        Info,
	"debug":   Debug,
	"info":    Info,
	"warn":    Warn,
	"warning": Warn,
	"error":   Error,
}

// ParseLevel accepts a case-insensitive level name. Empty selects Info.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return Debug, fmt.Errorf("unsupported log level %q", s)
}

// Format selects the entry encoding.
type Format int

const (
	Text Format = iota
	JSON
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case JSON:
		return "json"
	}
	return "unknown"
}

// ParseFormat accepts "text" or "json". Empty selects Text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return Text, nil
	case "json":
		return JSON, nil
	}
	return Text, fmt.Errorf("unsupported log format %q", s)
}

// Field is one key/value pair attached to an entry.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Logger is the leveled structured logger every component takes.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a child logger that prepends fields to every entry.
	With(fields ...Field) Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(Info, Text, io.Discard)
)

// Default returns the process-wide logger, a discarding one until SetDefault
// is called. It may race with SetDefault safely.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault swaps the process-wide logger under the same lock Default reads
// with. A nil logger is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

type logger struct {
	min    Level
	format Format
	fields []Field
	out    *log.Logger
}

// New builds a logger writing entries at or above level to out.
func New(level Level, format Format, out io.Writer) Logger {
	return &logger{min: level, format: format, out: log.New(out, "", log.LstdFlags)}
}

func (l *logger) With(fields ...Field) Logger {
	child := *l
	child.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return &child
}

func (l *logger) Debug(msg string, fields ...Field) { l.emit(Debug, msg, fields) }
func (l *logger) Info(msg string, fields ...Field)  { l.emit(Info, msg, fields) }
func (l *logger) Warn(msg string, fields ...Field)  { l.emit(Warn, msg, fields) }
func (l *logger) Error(msg string, fields ...Field) { l.emit(Error, msg, fields) }

func (l *logger) emit(level Level, msg string, fields []Field) {
	if level < l.min {
		return
	}
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(append(all, l.fields...), fields...)
	if l.format == JSON {
		l.out.Print(encodeJSON(level, msg, all))
		return
	}
	l.out.Print(encodeText(level, msg, all))
}

// encodeText renders "[LEVEL] msg k=v k=v". Fields without a key are skipped.
func encodeText(level Level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

func encodeJSON(level Level, msg string, fields []Field) string {
	entry := make(map[string]any, len(fields)+3)
	for _, f := range fields {
		if f.Key != "" {
			entry[f.Key] = f.Value
		}
	}
	entry["time"] = time.Now().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf("[ERROR] encode log entry %q: %v", msg, err)
	}
	return string(data)
}
