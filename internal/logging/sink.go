package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures a size-rotated log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Open resolves a log destination. "stdout", "stderr" and "" map to the
// process streams; anything else is treated as a file path and rotated.
func Open(dest string, opts FileOptions) (io.WriteCloser, error) {
	switch strings.ToLower(strings.TrimSpace(dest)) {
	case "", "stderr":
		return nopCloser{os.Stderr}, nil
	case "stdout":
		return nopCloser{os.Stdout}, nil
	}
	opts.Path = dest
	return NewRotatingFile(opts)
}

// NewRotatingFile returns a writer that rolls the file over at MaxSizeMB.
func NewRotatingFile(opts FileOptions) (io.WriteCloser, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
