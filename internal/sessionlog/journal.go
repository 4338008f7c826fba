// Package sessionlog writes session journals in the header grammar read by
// logparse, so a live capture can be converted and replayed like any
// archived log.
package sessionlog

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/timeutil"
)

// Journal serialises records from any number of component loggers onto one
// writer.
type Journal struct {
	mu    sync.Mutex
	w     io.Writer
	clock timeutil.Clock
	err   error
}

// New returns a journal writing to w. A nil clock uses the wall clock.
func New(w io.Writer, clock timeutil.Clock) *Journal {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Journal{w: w, clock: clock}
}

// Path returns the journal file for a session started at t, laid out as
// <root>/<2006_Jan_02>/<15;04;05>.log.
func Path(root string, clock timeutil.Clock) string {
	now := clock.Now().UTC()
	return filepath.Join(root, now.Format("2006_Jan_02"), now.Format("15;04;05")+".log")
}

// Create opens a new journal file under root through fs.
func Create(fs fsutil.FileSystem, root string, clock timeutil.Clock) (*Journal, io.Closer, string, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	path := Path(root, clock)
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, "", fmt.Errorf("create journal dir: %w", err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("create journal: %w", err)
	}
	return New(f, clock), f, path, nil
}

// Write appends one record. The message may span lines.
func (j *Journal) Write(component, file string, line int, level logparse.Level, msg string) {
	now := j.clock.Now().UTC()
	rec := fmt.Sprintf("[%s @ %s:%d][%s] %s,%03d: %s\n",
		component, file, line, level,
		now.Format("2006-01-02 15:04:05"), now.Nanosecond()/1e6,
		strings.TrimRight(msg, "\n"))

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	if _, err := io.WriteString(j.w, rec); err != nil {
		j.err = err
	}
}

// MarkStart writes the record the tokenizer treats as the session start.
func (j *Journal) MarkStart(m logparse.StartMarker) {
	j.Write(m.Component, m.File, 1, m.Level, m.Message)
}

// Err returns the first write error.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Logger writes records for one component. File and line come from the
// caller.
type Logger struct {
	j    *Journal
	name string
}

// Component returns a logger for name.
func (j *Journal) Component(name string) *Logger {
	return &Logger{j: j, name: name}
}

func (l *Logger) logf(level logparse.Level, format string, args []interface{}) {
	file, line := "unknown", 0
	if _, f, n, ok := runtime.Caller(2); ok {
		file, line = filepath.Base(f), n
	}
	l.j.Write(l.name, file, line, level, fmt.Sprintf(format, args...))
}

// Debugf logs at DEBUG.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(logparse.LevelDebug, format, args)
}

// Infof logs at INFO.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(logparse.LevelInfo, format, args)
}

// Warnf logs at WARNING.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(logparse.LevelWarning, format, args)
}

// Errorf logs at ERROR.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(logparse.LevelError, format, args)
}
