package logger

import (
	"io"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 5
	defaultMaxAgeDays = 14
)

// CombinedWriter fans writes out to several writers. A failing writer does
// not stop the others; errors are aggregated.
type CombinedWriter struct {
	writers []io.Writer
}

// NewCombinedWriter returns a writer writing to all of writers.
func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	cw := &CombinedWriter{}
	for _, w := range writers {
		if w != nil {
			cw.writers = append(cw.writers, w)
		}
	}
	return cw
}

func (cw *CombinedWriter) Write(p []byte) (int, error) {
	var err error
	for _, w := range cw.writers {
		if _, werr := w.Write(p); werr != nil {
			err = multierr.Append(err, werr)
		}
	}
	// slog handlers treat short writes as failures; report the full length
	// unless every sink failed.
	if err != nil && len(multierr.Errors(err)) == len(cw.writers) {
		return 0, err
	}
	return len(p), err
}

func newRollingFile(o options) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   o.file,
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		MaxAge:     o.maxAgeDays,
		Compress:   true,
	}
	if l.MaxSize <= 0 {
		l.MaxSize = defaultMaxSizeMB
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = defaultMaxBackups
	}
	if l.MaxAge <= 0 {
		l.MaxAge = defaultMaxAgeDays
	}
	return l
}

func combine(a, b error) error {
	return multierr.Combine(a, b)
}
