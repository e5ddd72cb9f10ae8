// Package logs is a small subsystem-tagged leveled logger, modeled on the
// btclog-style backend the teacher's logger package builds on: a Backend
// fans each line out to a set of BackendWriters, and per-subsystem Loggers
// are cheap handles carrying only a tag and a minimum level.
package logs

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level is a logging severity level, ordered from most to least verbose.
type Level uint8

// The defined Levels, most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRC"
	case LevelDebug:
		return "DBG"
	case LevelInfo:
		return "INF"
	case LevelWarn:
		return "WRN"
	case LevelError:
		return "ERR"
	case LevelCritical:
		return "CRT"
	default:
		return "OFF"
	}
}

// BackendWriter receives every log line at or above its minLevel.
type BackendWriter struct {
	w        io.Writer
	minLevel Level
}

// NewAllLevelsBackendWriter writes every level, LevelTrace and up.
func NewAllLevelsBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelTrace}
}

// NewErrorBackendWriter writes only LevelError and LevelCritical lines,
// mirroring the teacher's split stdout/errlog rotator pair.
func NewErrorBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelError}
}

// Backend fans a formatted line out to every registered BackendWriter.
type Backend struct {
	mu      sync.Mutex
	writers []*BackendWriter
}

// NewBackend constructs a Backend over the given writers.
func NewBackend(writers []*BackendWriter) *Backend {
	return &Backend{writers: writers}
}

func (b *Backend) print(tag string, level Level, format string, args []interface{}) {
	line := fmt.Sprintf("%s [%s] %s %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05.000"),
		level, tag, fmt.Sprintf(format, args...))

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.writers {
		if level >= w.minLevel {
			_, _ = io.WriteString(w.w, line)
		}
	}
}

// Logger is a cheap per-subsystem handle into a shared Backend.
type Logger struct {
	backend  *Backend
	tag      string
	minLevel Level
}

// Logger returns a new Logger tagged with subsystem, writing through b.
func (b *Backend) Logger(subsystem string) Logger {
	return Logger{backend: b, tag: subsystem, minLevel: LevelInfo}
}

// SetLevel changes the minimum level this Logger emits.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

func (l Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.minLevel {
		return
	}
	l.backend.print(l.tag, level, format, args)
}

func (l Logger) Tracef(format string, args ...interface{})    { l.logf(LevelTrace, format, args...) }
func (l Logger) Debugf(format string, args ...interface{})    { l.logf(LevelDebug, format, args...) }
func (l Logger) Infof(format string, args ...interface{})     { l.logf(LevelInfo, format, args...) }
func (l Logger) Warnf(format string, args ...interface{})     { l.logf(LevelWarn, format, args...) }
func (l Logger) Errorf(format string, args ...interface{})    { l.logf(LevelError, format, args...) }
func (l Logger) Criticalf(format string, args ...interface{}) { l.logf(LevelCritical, format, args...) }
