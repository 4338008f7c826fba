// Package testutil provides shared test utilities and fixtures.
//
// It builds synthetic session logs in the header grammar the tokenizer
// reads, so converter, replay and pipeline tests share one fixture format.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// SessionStart is the timestamp synthetic logs begin at.
var SessionStart = time.Date(2017, time.June, 5, 10, 30, 1, 45*int(time.Millisecond), time.UTC)

// LogLine describes one synthetic log record.
type LogLine struct {
	Component string
	File      string
	Line      int
	Level     string
	At        time.Time
	Message   string
}

// Format renders l as "[name @ file:line][LEVEL] date time,ms: message".
func (l LogLine) Format() string {
	return fmt.Sprintf("[%s @ %s:%d][%s] %s,%03d: %s",
		l.Component, l.File, l.Line, l.Level,
		l.At.Format("2006-01-02 15:04:05"), l.At.Nanosecond()/int(time.Millisecond),
		l.Message)
}

// LogBuilder accumulates synthetic records 10ms apart.
type LogBuilder struct {
	at    time.Time
	step  time.Duration
	lines []LogLine
}

// NewLogBuilder starts a log at SessionStart.
func NewLogBuilder() *LogBuilder {
	return &LogBuilder{at: SessionStart, step: 10 * time.Millisecond}
}

// Add appends one record and returns the builder.
func (b *LogBuilder) Add(component, file, level, message string) *LogBuilder {
	b.lines = append(b.lines, LogLine{
		Component: component,
		File:      file,
		Line:      10 + len(b.lines),
		Level:     level,
		At:        b.at,
		Message:   message,
	})
	b.at = b.at.Add(b.step)
	return b
}

// Lines returns the records added so far.
func (b *LogBuilder) Lines() []LogLine {
	return append([]LogLine(nil), b.lines...)
}

// Formatted returns each record rendered on its own.
func (b *LogBuilder) Formatted() []string {
	out := make([]string, len(b.lines))
	for i, l := range b.lines {
		out[i] = l.Format()
	}
	return out
}

// String joins all records with newlines, ending with a newline.
func (b *LogBuilder) String() string {
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.Formatted(), "\n") + "\n"
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}
