// Package archive stores debug captures as parquet files, one per capture.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"

	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/telemetry"
)

// Sample is one archived row.
type Sample struct {
	Index int32 `parquet:"index"`
	I     int32 `parquet:"i"`
	Q     int32 `parquet:"q"`
}

// Metadata keys written to every capture file.
const (
	KeyToneKHz = "tone_khz"
	KeySamples = "samples"
	KeyMode    = "mode"
)

const queueDepth = 4

var ErrClosed = errors.New("archive closed")

// Parquet is a telemetry.Reporter that writes successful captures under Dir.
// Files are written by a background goroutine; captures arriving while the
// queue is full are dropped and logged.
type Parquet struct {
	Dir    string
	logger logging.Logger

	queue chan telemetry.Event
	wg    sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	seq     int
	written []string
}

// NewParquet creates dir if needed and starts the writer.
func NewParquet(dir string, logger logging.Logger) (*Parquet, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	p := &Parquet{
		Dir:    dir,
		logger: logger.With(logging.F("subsystem", "archive")),
		queue:  make(chan telemetry.Event, queueDepth),
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

// Report queues capture events that carry samples. Everything else is ignored.
func (p *Parquet) Report(e telemetry.Event) {
	if e.Kind != telemetry.KindCapture || e.Capture == nil || e.Capture.Error != "" || len(e.Capture.I) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("archive queue full, capture dropped", logging.F("samples", e.Capture.Samples))
	}
}

// Close flushes queued captures and stops the writer.
func (p *Parquet) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// Files lists the paths written so far.
func (p *Parquet) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func (p *Parquet) run() {
	defer p.wg.Done()
	for e := range p.queue {
		p.mu.Lock()
		p.seq++
		seq := p.seq
		p.mu.Unlock()

		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		name := fmt.Sprintf("capture-%s-%04d.parquet", e.Time.UTC().Format("20060102T150405.000"), seq)
		path := filepath.Join(p.Dir, name)
		if err := WriteCapture(path, e.Capture); err != nil {
			p.logger.Error("write capture", logging.F("path", path), logging.F("error", err))
			continue
		}
		p.mu.Lock()
		p.written = append(p.written, path)
		p.mu.Unlock()
		p.logger.Debug("capture archived", logging.F("path", path), logging.F("samples", e.Capture.Samples))
	}
}

// WriteCapture writes c's samples to a new parquet file at path.
func WriteCapture(path string, c *telemetry.Capture) error {
	n := len(c.I)
	if len(c.Q) < n {
		n = len(c.Q)
	}
	rows := make([]Sample, n)
	for k := range rows {
		rows[k] = Sample{Index: int32(k), I: int32(c.I[k]), Q: int32(c.Q[k])}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[Sample](f,
		parquet.KeyValueMetadata(KeyToneKHz, strconv.FormatFloat(c.ToneKHz, 'f', -1, 64)),
		parquet.KeyValueMetadata(KeySamples, strconv.Itoa(n)),
		parquet.KeyValueMetadata(KeyMode, c.Timing+"/"+c.Modulation),
	)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
