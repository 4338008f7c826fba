package logconvert

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/monitoring"
)

var logf = monitoring.Tagged("Convert")

// Markers recognised in the scanner's records.
const (
	ScanInfoPrefix = "scan #"
	ScanDataPrefix = "scan: ("
	PostedPrefix   = "posted scan"
	infoSeparator  = " @ "
)

// RewriteResult counts what a rewrite did to each record.
type RewriteResult struct {
	Folded  int
	Dropped int
	Passed  int
}

// ScanRewriter folds each "scan #n @ rate" / "scan: (...)" pair of a split
// sensor file into one LmsScan line.
type ScanRewriter struct {
	FS fsutil.FileSystem
}

// Rewrite transforms the records of one component and returns the output
// lines without trailing newlines.
func Rewrite(records []logparse.Record) ([]string, RewriteResult) {
	var (
		res   RewriteResult
		out   = make([]string, 0, len(records))
		seq   int
		rate  float64
		known bool
	)
	for _, rec := range records {
		msg := rec.Message
		switch {
		case strings.HasPrefix(msg, ScanInfoPrefix):
			n, r, err := parseScanInfo(msg[len(ScanInfoPrefix):])
			if err != nil {
				logf("record %d: %v", rec.Index, err)
				out = append(out, rec.Full)
				res.Passed++
				continue
			}
			seq, rate, known = n, r, true

		case strings.HasPrefix(msg, ScanDataPrefix):
			payload := strings.TrimSuffix(msg[len(ScanDataPrefix):], ")")
			payload = strings.Map(func(r rune) rune {
				if unicode.IsSpace(r) {
					return -1
				}
				return r
			}, payload)
			distances, err := lms.ParseDistances(payload)
			if err != nil {
				logf("record %d: scan payload: %v", rec.Index, err)
				out = append(out, rec.Full)
				res.Passed++
				continue
			}
			if !known {
				logf("record %d: scan data without scan info", rec.Index)
			}
			m := lms.ScanMessage{Timestamp: rec.Timestamp, Seq: seq, AvgRate: rate, Distances: distances}
			out = append(out, rec.Header+m.String())
			res.Folded++

		case strings.HasPrefix(msg, PostedPrefix):
			res.Dropped++

		default:
			out = append(out, rec.Full)
			res.Passed++
		}
	}
	return out, res
}

func parseScanInfo(s string) (int, float64, error) {
	i := strings.Index(s, infoSeparator)
	if i < 0 {
		return 0, 0, fmt.Errorf("scan info %q: missing %q", s, infoSeparator)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, 0, fmt.Errorf("scan number: %w", err)
	}
	rate, err := strconv.ParseFloat(strings.TrimSuffix(s[i+len(infoSeparator):], "hz"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("scan rate: %w", err)
	}
	return n, rate, nil
}

// RewriteFile rewrites path in place. The new content goes to a temporary
// file in the same directory which replaces path only once fully written;
// on any failure the original is left untouched.
func (s *ScanRewriter) RewriteFile(ctx context.Context, path string) (RewriteResult, error) {
	r, err := s.FS.Open(path)
	if err != nil {
		return RewriteResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	sess, err := logparse.Parse(ctx, r, logparse.WithoutStartMarker())
	r.Close()
	if err != nil {
		return RewriteResult{}, fmt.Errorf("parse %s: %w", path, err)
	}

	lines, res := Rewrite(sess.Records)
	if err := s.replace(path, lines); err != nil {
		return RewriteResult{}, err
	}
	return res, nil
}

func (s *ScanRewriter) replace(path string, lines []string) error {
	tmp, err := s.FS.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			s.FS.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", tmp.Name(), err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := s.FS.Rename(tmp.Name(), path); err != nil {
		s.FS.Remove(tmp.Name())
		committed = true
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}
