package logparse

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// boundary is the text that separates one record from the next: a newline
// followed by the '[' that opens the next header.
const boundary = "\n["

// StartMarker identifies the record that announces the start of a session.
type StartMarker struct {
	Component string
	File      string
	Level     Level
	Message   string
}

// DefaultStartMarker is the announcement written by the robot's main loop.
var DefaultStartMarker = StartMarker{
	Component: "Robot",
	File:      "robot.py",
	Level:     LevelDebug,
	Message:   "Starting coroutine",
}

// Matches reports whether r is the marker record.
func (m StartMarker) Matches(r Record) bool {
	return r.Component == m.Component &&
		r.File == m.File &&
		r.Level == m.Level &&
		r.Message == m.Message
}

// ParseError reports a malformed record header. The session cannot be used
// past Offset.
type ParseError struct {
	// Offset is the byte offset into the raw stream.
	Offset int
	// Record is the ordinal of the record being parsed.
	Record int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed header in record %d at offset %d: %s", e.Record, e.Offset, e.Reason)
}

// Tokenizer scans a raw log with two cursors: one matching the header at
// the current record start and one searching for the next record boundary.
type Tokenizer struct {
	content   string
	marker    *StartMarker
	listeners *ListenerRegistry
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithStartMarker sets the record used for start-of-session trimming.
func WithStartMarker(m StartMarker) Option {
	return func(t *Tokenizer) {
		t.marker = &m
	}
}

// WithoutStartMarker disables start-of-session trimming. Converted logs no
// longer contain the marker, so playback tokenizes them this way.
func WithoutStartMarker() Option {
	return func(t *Tokenizer) {
		t.marker = nil
	}
}

// WithListeners delivers every session record to the listeners registered
// under its component while tokenizing.
func WithListeners(reg *ListenerRegistry) Option {
	return func(t *Tokenizer) {
		t.listeners = reg
	}
}

// NewTokenizer reads the whole stream and prepares it for tokenizing. A
// virtual boundary is appended so the final record closes exactly like
// every other record.
func NewTokenizer(r io.Reader, opts ...Option) (*Tokenizer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	marker := DefaultStartMarker
	t := &Tokenizer{
		content: string(data) + boundary,
		marker:  &marker,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Parse tokenizes r into a Session.
func Parse(ctx context.Context, r io.Reader, opts ...Option) (*Session, error) {
	t, err := NewTokenizer(r, opts...)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx)
}

// ParseFile opens path (decompressing by extension) and tokenizes it.
func ParseFile(ctx context.Context, path string, opts ...Option) (*Session, error) {
	rc, err := OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	s, err := Parse(ctx, rc, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// Run tokenizes the stream. The first pass looks for the start marker; the
// second pass resumes right after it (or from the first record when there
// is no marker) and produces the session.
func (t *Tokenizer) Run(ctx context.Context) (*Session, error) {
	pos := t.firstHeader()
	index := 0

	if t.marker != nil {
		found := false
		for p, i := pos, 0; p >= 0; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, next, err := t.next(p, i)
			if err != nil {
				return nil, err
			}
			if t.marker.Matches(rec) {
				pos, index, found = next, i+1, true
				break
			}
			p = next
		}
		if !found {
			index = 0
		}
	}

	var records []Record
	names := make(map[string]struct{})
	for p := pos; p >= 0; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, next, err := t.next(p, index)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		names[rec.Component] = struct{}{}
		if t.listeners != nil {
			t.listeners.Dispatch(rec)
		}
		p = next
	}
	return newSession(records, names), nil
}

// firstHeader returns the offset just past the '[' of the first line that
// starts with '[', or -1 if the stream holds no records.
func (t *Tokenizer) firstHeader() int {
	if strings.HasPrefix(t.content, "[") {
		return 1
	}
	i := strings.Index(t.content, boundary)
	if i < 0 || i+len(boundary) >= len(t.content) {
		return -1
	}
	return i + len(boundary)
}

// next parses the record whose header starts at pos (just past its '[')
// and returns it with the start of the following record, or -1 once the
// virtual boundary has been consumed.
func (t *Tokenizer) next(pos, index int) (Record, int, error) {
	rec, bodyStart, err := matchHeader(t.content, pos, index)
	if err != nil {
		return Record{}, -1, err
	}

	end := bodyStart + strings.Index(t.content[bodyStart:], boundary)
	lookaheadEnd := end + len(boundary)

	// The captured span runs through the '[' of the next header, so the
	// '[' that opened this record sits at the far end of it.
	rec.Full = rotate(t.content[pos:lookaheadEnd])
	rec.Message = trimBody(t.content[bodyStart : lookaheadEnd-1])

	if lookaheadEnd >= len(t.content) {
		return rec, -1, nil
	}
	return rec, lookaheadEnd, nil
}

// rotate moves the last character of a captured span to the front and
// strips trailing newlines, recovering the original record text.
func rotate(captured string) string {
	last, size := utf8.DecodeLastRuneInString(captured)
	if size == 0 {
		return captured
	}
	return strings.TrimRight(string(last)+captured[:len(captured)-size], "\n")
}

// trimBody strips trailing newlines from a message body.
func trimBody(body string) string {
	return strings.TrimRight(body, "\n")
}

// headerLexer walks one record header.
type headerLexer struct {
	s     string
	i     int
	index int
}

func (l *headerLexer) fail(format string, args ...interface{}) error {
	return &ParseError{Offset: l.i, Record: l.index, Reason: fmt.Sprintf(format, args...)}
}

func (l *headerLexer) expect(lit string) error {
	if !strings.HasPrefix(l.s[l.i:], lit) {
		return l.fail("expected %q", lit)
	}
	l.i += len(lit)
	return nil
}

func (l *headerLexer) span(accept func(byte) bool) string {
	start := l.i
	for l.i < len(l.s) && accept(l.s[l.i]) {
		l.i++
	}
	return l.s[start:l.i]
}

func (l *headerLexer) number(field string) (int, error) {
	digits := l.span(isDigit)
	if digits == "" {
		return 0, l.fail("%s is not numeric", field)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, l.fail("%s: %v", field, err)
	}
	return n, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isNameChar(c byte) bool {
	return isDigit(c) || isUpper(c) || (c >= 'a' && c <= 'z')
}

// matchHeader parses "name @ file:line][LEVEL] YYYY-MM-DD HH:MM:SS,mmm: "
// at pos and returns the typed record fields and the offset of the body.
func matchHeader(s string, pos, index int) (Record, int, error) {
	l := &headerLexer{s: s, i: pos, index: index}
	rec := Record{Index: index}

	rec.Component = l.span(isNameChar)
	if err := l.expect(" @ "); err != nil {
		return Record{}, 0, err
	}

	// file:line runs up to the "][" that opens the level.
	rest := s[l.i:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	closing := strings.Index(rest, "][")
	if closing < 0 {
		return Record{}, 0, l.fail("missing level")
	}
	colon := strings.LastIndexByte(rest[:closing], ':')
	if colon <= 0 {
		return Record{}, 0, l.fail("missing source file")
	}
	rec.File = rest[:colon]
	if strings.ContainsRune(rec.File, ']') {
		return Record{}, 0, l.fail("invalid source file %q", rec.File)
	}
	l.i += colon + 1

	var err error
	if rec.Line, err = l.number("line number"); err != nil {
		return Record{}, 0, err
	}
	if err := l.expect("]["); err != nil {
		return Record{}, 0, err
	}
	rec.LevelName = l.span(isUpper)
	if rec.LevelName == "" {
		return Record{}, 0, l.fail("level is not upper case")
	}
	rec.Level = LevelFromName(rec.LevelName)
	if err := l.expect("] "); err != nil {
		return Record{}, 0, err
	}

	fields := []struct {
		name string
		dst  *int
		sep  string
	}{
		{"year", &rec.Year, "-"},
		{"month", &rec.Month, "-"},
		{"day", &rec.Day, " "},
		{"hour", &rec.Hour, ":"},
		{"minute", &rec.Minute, ":"},
		{"second", &rec.Second, ","},
		{"millisecond", &rec.Millisecond, ": "},
	}
	for _, f := range fields {
		if *f.dst, err = l.number(f.name); err != nil {
			return Record{}, 0, err
		}
		if err := l.expect(f.sep); err != nil {
			return Record{}, 0, err
		}
	}

	rec.Timestamp = epochSeconds(rec.Year, rec.Month, rec.Day, rec.Hour, rec.Minute, rec.Second, rec.Millisecond)
	rec.Header = "[" + s[pos:l.i]
	return rec, l.i, nil
}
