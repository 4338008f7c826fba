package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/logconvert"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/monitoring"
	"github.com/banshee-data/scanlog/internal/replay"
	"github.com/banshee-data/scanlog/internal/scanstore"
	"github.com/banshee-data/scanlog/internal/serialdev"
	"github.com/banshee-data/scanlog/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = prev })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--quiet"}, args...))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func rawSession() string {
	return testutil.NewLogBuilder().
		Add("LMS200", "lms.py", "INFO", "scan #7 @ 1.0hz").
		Add("Robot", "robot.py", "DEBUG", "Starting coroutine").
		Add("LMS200", "lms.py", "DEBUG", "Selected baud: 38400").
		Add("LMS200", "lms.py", "DEBUG", "Scan angle: 180").
		Add("LMS200", "lms.py", "INFO", "scan #1 @ 4.5hz").
		Add("LMS200", "lms.py", "DEBUG", "posted scan #1").
		Add("LMS200", "lms.py", "DEBUG", "scan: (100, 200, 300)").
		Add("Robot", "robot.py", "INFO", "driving").
		Add("LMS200", "lms.py", "INFO", "scan #2 @ 4.75hz").
		Add("LMS200", "lms.py", "DEBUG", "posted scan #2").
		Add("LMS200", "lms.py", "DEBUG", "scan: (101, 201, 301)").
		String()
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func decodeReplay(t *testing.T, out string) replayOutput {
	t.Helper()
	var got replayOutput
	if err := sonic.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode replay output %q: %v", out, err)
	}
	return got
}

func storedScans(t *testing.T, db string) (scanstore.SessionInfo, int) {
	t.Helper()
	store, err := scanstore.Open(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	sessions, err := store.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 stored session, got %d", len(sessions))
	}
	n, err := store.CountScans(sessions[0].ID)
	if err != nil {
		t.Fatalf("CountScans: %v", err)
	}
	return sessions[0], n
}

type replayOutput struct {
	Device  replay.DeviceState `json:"device"`
	Summary replay.Summary     `json:"summary"`
}

func TestConvertThenReplay(t *testing.T) {
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	converted := filepath.Join(dir, "converted")
	writeFile(t, filepath.Join(logs, "2017_Jun_05", "10;30;01.log"), rawSession())

	out, err := execute(t, "convert", "--logs-root", logs, "--out-root", converted)
	if err != nil {
		t.Fatalf("convert: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 scans folded") {
		t.Errorf("convert output = %q", out)
	}

	sensor := filepath.Join(converted, "2017_Jun_05", "LMS200", "10;30;01")
	for _, p := range []string{sensor, filepath.Join(converted, "2017_Jun_05", "Robot", "10;30;01")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing split file: %v", err)
		}
	}

	db := filepath.Join(dir, "scans.db")
	out, err = execute(t, "replay", "--speed", "0", "--db", db, sensor)
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}

	got := decodeReplay(t, out)
	if got.Summary.Scans != 2 || got.Device.Baud != 38400 || got.Device.ScanAngle != 180 {
		t.Errorf("replay output = %+v", got)
	}
	if _, n := storedScans(t, db); n != 2 {
		t.Errorf("stored %d scans, want 2", n)
	}
}

func TestReplayRaw(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "session.log")
	writeFile(t, raw, rawSession())

	out, err := execute(t, "replay", "--raw", raw)
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}

	got := decodeReplay(t, out)
	// the scan before the marker is not part of the session
	if got.Summary.Scans != 2 {
		t.Errorf("scans = %d, want 2", got.Summary.Scans)
	}
	if d := got.Summary.MeanRate - 4.625; d > 1e-9 || d < -1e-9 {
		t.Errorf("mean rate = %v, want 4.625", got.Summary.MeanRate)
	}
}

func TestRewriteCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor")
	writeFile(t, path, testutil.NewLogBuilder().
		Add("LMS200", "lms.py", "INFO", "scan #1 @ 4.5hz").
		Add("LMS200", "lms.py", "DEBUG", "scan: (1, 2)").
		String())

	out, err := execute(t, "rewrite", path)
	if err != nil {
		t.Fatalf("rewrite: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 folded") {
		t.Errorf("rewrite output = %q", out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "LmsScan(t=") {
		t.Errorf("file not rewritten:\n%s", data)
	}
}

func TestConfigFileFeedsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "scanlog.json")
	writeFile(t, cfg, `{"logs_root": "`+filepath.ToSlash(filepath.Join(dir, "nothing"))+`"}`)

	out, err := execute(t, "--config", cfg, "convert")
	if err != nil {
		t.Fatalf("convert: %v\n%s", err, out)
	}
	if out != "" {
		t.Errorf("expected no output for an empty logs root, got %q", out)
	}

	if _, err := execute(t, "--config", filepath.Join(dir, "missing.json"), "convert"); err == nil {
		t.Error("expected error for a missing config file")
	}

	bad := filepath.Join(dir, "fast.json")
	writeFile(t, bad, `{"baud_rate": 500000}`)
	if _, err := execute(t, "--config", bad, "convert"); err == nil {
		t.Error("expected a baud without an update rate to be rejected")
	}
}

func TestRunAcquisition_JournalConvertsBack(t *testing.T) {
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = prev })

	port := serialdev.NewTestablePort()
	port.AddReadData("#operating_mode=0\n#measuring_mode=0\n#measuring_units=1\n" +
		"#scan_resolution=1\n#scan_angle=180\n#end\n10,20,30\n11,21,31\n12,22,32\n")
	dev := serialdev.NewLineDevice(port)

	mfs := fsutil.NewMemoryFileSystem()
	db := filepath.Join(t.TempDir(), "scans.db")

	done := make(chan error, 1)
	go func() {
		done <- runAcquisition(context.Background(), acquisitionOptions{
			Device:    dev,
			Source:    "test",
			Baud:      38400,
			Sensor:    "LMS200",
			LogsRoot:  "logs",
			Marker:    logparse.DefaultStartMarker,
			Broadcast: lms.BroadcasterOptions{Quantum: time.Millisecond, Window: time.Second},
			Sinks:     sinkFlags{dbPath: db},
			FS:        mfs,
		})
	}()

	// once the configuration has been requested only reads remain; closing
	// the port lets the worker drain the scripted scans and stop
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(port.Written(), "CONFIG?") {
		if time.Now().After(deadline) {
			t.Fatalf("configuration never requested, wrote %q", port.Written())
		}
		time.Sleep(time.Millisecond)
	}
	port.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runAcquisition: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("acquisition did not finish")
	}
	if !strings.Contains(port.Written(), "INIT 38400") {
		t.Errorf("port writes = %q", port.Written())
	}

	converted, err := logconvert.ConvertAll(context.Background(), logconvert.Options{FS: mfs, LogsRoot: "logs", OutRoot: "converted"})
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(converted))
	}
	if converted[0].Rewrite.Folded != 3 {
		t.Errorf("folded %d scans, want 3", converted[0].Rewrite.Folded)
	}

	data, err := mfs.ReadFile(converted[0].Files["LMS200"])
	if err != nil {
		t.Fatalf("read sensor file: %v", err)
	}
	p := replay.New(lms.NewHub(), replay.Options{})
	if err := p.Play(context.Background(), bytes.NewReader(data)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if p.Stats().Scans != 3 || p.State().Baud != 38400 || p.State().ScanAngle != 180 {
		t.Errorf("playback stats %+v, state %+v", p.Stats(), p.State())
	}

	session, n := storedScans(t, db)
	if session.ScanAngle != 180 {
		t.Errorf("stored scan angle = %v", session.ScanAngle)
	}
	if n != 3 {
		t.Errorf("stored %d scans, want 3", n)
	}
}

func TestRunAcquisition_InitFailure(t *testing.T) {
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = prev })

	port := serialdev.NewTestablePort()
	port.Close()
	err := runAcquisition(context.Background(), acquisitionOptions{
		Device:   serialdev.NewLineDevice(port),
		Baud:     38400,
		Sensor:   "LMS200",
		LogsRoot: "logs",
		Marker:   logparse.DefaultStartMarker,
		FS:       fsutil.NewMemoryFileSystem(),
	})
	if err == nil {
		t.Error("expected initialization to fail on a closed port")
	}
}
