package testutil

import (
	"strings"
	"testing"
)

func TestLogLineFormat(t *testing.T) {
	l := LogLine{
		Component: "LMS200",
		File:      "lms200.py",
		Line:      97,
		Level:     "DEBUG",
		At:        SessionStart,
		Message:   "posted scan #1",
	}
	want := "[LMS200 @ lms200.py:97][DEBUG] 2017-06-05 10:30:01,045: posted scan #1"
	if got := l.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestLogBuilder(t *testing.T) {
	b := NewLogBuilder().
		Add("Robot", "robot.py", "DEBUG", "Starting coroutine").
		Add("LMS200", "lms200.py", "INFO", "scan #1 @ 5.0hz")

	lines := b.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if d := lines[1].At.Sub(lines[0].At); d.Milliseconds() != 10 {
		t.Errorf("records should be 10ms apart, got %v", d)
	}

	s := b.String()
	if !strings.HasSuffix(s, "\n") || strings.Count(s, "\n") != 2 {
		t.Errorf("unexpected rendering %q", s)
	}
	if NewLogBuilder().String() != "" {
		t.Error("empty builder should render empty string")
	}
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, 200, 200)
}
