// Package logging writes the scheduler's operator event stream: one line
// per state change or failure, stamped with the UT at which the event
// happened rather than the machine's local clock, optionally carrying
// structured key=value context appended by With.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is the minimum severity a Logger will emit.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// utStamp is the timestamp layout for every emitted line. The stream is
// read next to the observation log and the history file, which are both
// JD/UT-denominated, so local wall-clock stamps would be misleading.
const utStamp = "2006-01-02T15:04:05Z"

// Logger emits leveled, UT-stamped event lines. Derived loggers made
// with With share the parent's writer and its mutex, so lines from the
// whole family never interleave mid-line.
type Logger struct {
	mu      *sync.Mutex
	min     Level
	w       io.Writer
	now     func() time.Time
	context string // pre-rendered " key=value ..." suffix
}

// New returns a Logger writing to stderr, stamping events with the wall
// clock.
func New(min Level) *Logger {
	return NewWithWriter(min, os.Stderr)
}

// NewWithWriter returns a Logger writing to w.
func NewWithWriter(min Level, w io.Writer) *Logger {
	return &Logger{mu: &sync.Mutex{}, min: min, w: w, now: time.Now}
}

// Discard returns a Logger that emits nothing, for tests.
func Discard() *Logger {
	return &Logger{mu: &sync.Mutex{}, min: LevelError + 1, w: io.Discard, now: time.Now}
}

// With returns a derived Logger whose every line carries an extra
// key=value pair after the message. The derived Logger shares the
// parent's writer, level, and lock.
func (l *Logger) With(key string, value any) *Logger {
	d := *l
	d.context = l.context + fmt.Sprintf(" %s=%v", key, value)
	return &d
}

// SetClock replaces the wall clock used for unstamped events, so a
// simulation clock can drive the stream in tests.
func (l *Logger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// emit is the single write path every public method funnels through.
func (l *Logger) emit(lv Level, at time.Time, format string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lv < l.min {
		return
	}
	fmt.Fprintf(l.w, "%s [%s] %s%s\n",
		at.UTC().Format(utStamp), lv, fmt.Sprintf(format, args...), l.context)
}

// Debug, Info, Warn, and Error stamp the event with the current wall
// clock; the At variants are for the tick loop, where the Supervisor's
// own notion of now should stamp the line instead.

func (l *Logger) Debug(format string, args ...any) { l.emit(LevelDebug, l.now(), format, args) }
func (l *Logger) Info(format string, args ...any)  { l.emit(LevelInfo, l.now(), format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.emit(LevelWarn, l.now(), format, args) }
func (l *Logger) Error(format string, args ...any) { l.emit(LevelError, l.now(), format, args) }

// InfoAt stamps the event with an externally supplied UT.
func (l *Logger) InfoAt(ut time.Time, format string, args ...any) {
	l.emit(LevelInfo, ut, format, args)
}

// WarnAt stamps the event with an externally supplied UT.
func (l *Logger) WarnAt(ut time.Time, format string, args ...any) {
	l.emit(LevelWarn, ut, format, args)
}

// ErrorAt stamps the event with an externally supplied UT.
func (l *Logger) ErrorAt(ut time.Time, format string, args ...any) {
	l.emit(LevelError, ut, format, args)
}
