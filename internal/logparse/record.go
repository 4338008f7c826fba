// Package logparse tokenizes interleaved session logs into ordered records.
//
// A session log is written by several components into one text stream. Each
// record starts with a header of the form
//
//	[name @ file:line][LEVEL] YYYY-MM-DD HH:MM:SS,mmm: message
//
// and its message runs until the next line that begins with '['.
package logparse

import (
	"fmt"
	"sort"
	"time"
)

// Level is a normalised severity rank.
type Level int

// Severity ranks used by the session logs.
const (
	LevelNotSet   Level = 0
	LevelDebug    Level = 10
	LevelInfo     Level = 20
	LevelWarning  Level = 30
	LevelError    Level = 40
	LevelCritical Level = 50
)

var levelByName = map[string]Level{
	"NOTSET":   LevelNotSet,
	"DEBUG":    LevelDebug,
	"INFO":     LevelInfo,
	"WARN":     LevelWarning,
	"WARNING":  LevelWarning,
	"ERROR":    LevelError,
	"FATAL":    LevelCritical,
	"CRITICAL": LevelCritical,
}

// LevelFromName maps a level name to its rank. Unknown names rank as
// LevelNotSet.
func LevelFromName(name string) Level {
	return levelByName[name]
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	case LevelNotSet:
		return "NOTSET"
	default:
		return fmt.Sprintf("Level %d", int(l))
	}
}

// Record is one parsed log record. Records are values and are never
// modified after the tokenizer produces them.
type Record struct {
	// Index is the ordinal of the record in the raw stream, counting
	// records discarded by start trimming.
	Index int

	Component string
	File      string
	Line      int

	LevelName string
	Level     Level

	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int

	// Timestamp is seconds since the Unix epoch, derived from the date and
	// time fields interpreted as UTC.
	Timestamp float64

	// Message is the record body without trailing newlines.
	Message string

	// Header is the record header exactly as it appeared, including the
	// trailing ": ".
	Header string

	// Full is the complete original text of the record.
	Full string
}

// Time returns the record time as a UTC time.Time.
func (r Record) Time() time.Time {
	return time.Date(r.Year, time.Month(r.Month), r.Day, r.Hour, r.Minute, r.Second,
		r.Millisecond*int(time.Millisecond), time.UTC)
}

// Canonical renders the record in the canonical header+message form with
// zero-padded date fields.
func (r Record) Canonical() string {
	return fmt.Sprintf("[%s @ %s:%d][%s] %04d-%02d-%02d %02d:%02d:%02d,%03d: %s",
		r.Component, r.File, r.Line, r.LevelName,
		r.Year, r.Month, r.Day, r.Hour, r.Minute, r.Second, r.Millisecond,
		r.Message)
}

func epochSeconds(year, month, day, hour, minute, second, millisecond int) float64 {
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return float64(t.Unix()) + float64(millisecond)/1e3
}

// Session is the ordered record list produced by one tokenizer run.
type Session struct {
	Records []Record

	// Components holds every distinct component name in Records, sorted.
	Components []string
}

func newSession(records []Record, names map[string]struct{}) *Session {
	components := make([]string, 0, len(names))
	for name := range names {
		components = append(components, name)
	}
	sort.Strings(components)
	return &Session{Records: records, Components: components}
}

// Len returns the number of records in the session.
func (s *Session) Len() int {
	return len(s.Records)
}

// ByComponent returns the records of one component in session order.
func (s *Session) ByComponent(name string) []Record {
	var out []Record
	for _, r := range s.Records {
		if r.Component == name {
			out = append(out, r)
		}
	}
	return out
}
