// Package logging builds the shared output behind each component's
// *log.Logger.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log lines go.
type Options struct {
	// File enables a size-rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Verbose also writes to Stderr.
	Verbose bool
	Stderr  io.Writer // default os.Stderr
}

// Sink fans log output out to the configured destinations. With no file and
// no verbose flag, everything is discarded.
type Sink struct {
	out  io.Writer
	file *lumberjack.Logger
}

// New creates a sink.
func New(opts Options) *Sink {
	s := &Sink{}
	var writers []io.Writer

	if opts.File != "" {
		s.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, s.file)
	}
	if opts.Verbose {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		s.out = io.Discard
	case 1:
		s.out = writers[0]
	default:
		s.out = io.MultiWriter(writers...)
	}
	return s
}

// Writer returns the combined destination.
func (s *Sink) Writer() io.Writer {
	return s.out
}

// Logger returns a logger whose lines start with "[component] ".
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.out, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
