package sessionlog

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/timeutil"
)

var start = time.Date(2017, time.June, 5, 10, 30, 1, 45e6, time.UTC)

func TestJournalRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	clock := timeutil.NewMockClock(start)
	j := New(&buf, clock)

	j.Component("Sensor").Infof("scan #%d @ %shz", 1, "5.0")
	j.MarkStart(logparse.DefaultStartMarker)
	clock.Advance(250 * time.Millisecond)
	j.Component("Sensor").Debugf("scan: (%d, %d)", 10, 20)
	j.Component("Sensor").Warnf("multi\nline\n")
	if err := j.Err(); err != nil {
		t.Fatalf("journal error: %v", err)
	}

	sess, err := logparse.Parse(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sess.Len() != 2 {
		t.Fatalf("session has %d records, want 2", sess.Len())
	}

	rec := sess.Records[0]
	if rec.Component != "Sensor" || rec.File != "journal_test.go" || rec.Line <= 0 {
		t.Errorf("header = %s @ %s:%d", rec.Component, rec.File, rec.Line)
	}
	if rec.Level != logparse.LevelDebug || rec.Message != "scan: (10, 20)" {
		t.Errorf("record = %v %q", rec.Level, rec.Message)
	}
	if rec.Millisecond != 295 {
		t.Errorf("millisecond = %d, want 295", rec.Millisecond)
	}

	if got := sess.Records[1]; got.Message != "multi\nline" || got.Level != logparse.LevelWarning {
		t.Errorf("second record = %v %q", got.Level, got.Message)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJournalKeepsFirstError(t *testing.T) {
	j := New(failWriter{}, timeutil.NewMockClock(start))
	j.Component("A").Errorf("x")
	j.Component("A").Errorf("y")
	if err := j.Err(); err == nil || err.Error() != "disk full" {
		t.Errorf("Err() = %v, want disk full", err)
	}
}

func TestCreate(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	j, closer, path, err := Create(mfs, "logs", timeutil.NewMockClock(start))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := filepath.Join("logs", "2017_Jun_05", "10;30;01.log"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	j.Component("A").Infof("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := mfs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "[A @ journal_test.go:") {
		t.Errorf("unexpected header in %q", data)
	}
	if !strings.Contains(string(data), "][INFO] 2017-06-05 10:30:01,045: hello\n") {
		t.Errorf("unexpected record in %q", data)
	}
}
