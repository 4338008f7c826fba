package lms

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ScanSample is one acquisition as produced by the worker. The queue owns
// it until the broadcaster dequeues it.
type ScanSample struct {
	Seq        int
	CapturedAt time.Time
	Distances  []int
	// AvgRate is the tracker average right after this scan was counted.
	AvgRate float64
}

// ScanMessage is the published scan, identical for live and replayed
// sources. Subscribers must treat it as read-only.
type ScanMessage struct {
	Timestamp float64 `json:"t"`
	Seq       int     `json:"n"`
	AvgRate   float64 `json:"avg"`
	Distances []int   `json:"scan"`
}

// ErrNotScanMessage is returned by ParseScanMessage for text that is not a
// compact scan line.
var ErrNotScanMessage = errors.New("not a scan message")

var scanMessageRe = regexp.MustCompile(`^LmsScan\(t=([\d.]*), n=(\d*), avg=([\d.]*), scan=\((.*)\)\)`)

// Time returns Timestamp as a time.Time.
func (m ScanMessage) Time() time.Time {
	sec, frac := math.Modf(m.Timestamp)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}

// String renders the compact form LmsScan(t=..., n=..., avg=..., scan=(...)).
func (m ScanMessage) String() string {
	return fmt.Sprintf("LmsScan(t=%s, n=%d, avg=%s, scan=(%s))",
		FormatFloat(m.Timestamp), m.Seq, FormatFloat(m.AvgRate), JoinDistances(m.Distances, ","))
}

// ParseScanMessage parses the compact form produced by String.
func ParseScanMessage(s string) (ScanMessage, error) {
	match := scanMessageRe.FindStringSubmatch(s)
	if match == nil {
		return ScanMessage{}, ErrNotScanMessage
	}
	var m ScanMessage
	var err error
	if m.Timestamp, err = strconv.ParseFloat(match[1], 64); err != nil {
		return ScanMessage{}, fmt.Errorf("scan timestamp: %w", err)
	}
	if m.Seq, err = strconv.Atoi(match[2]); err != nil {
		return ScanMessage{}, fmt.Errorf("scan number: %w", err)
	}
	if m.AvgRate, err = strconv.ParseFloat(match[3], 64); err != nil {
		return ScanMessage{}, fmt.Errorf("scan rate: %w", err)
	}
	if m.Distances, err = ParseDistances(match[4]); err != nil {
		return ScanMessage{}, err
	}
	return m, nil
}

// ParseDistances parses a comma-separated integer list. Whitespace around
// items is ignored and an empty string yields no distances.
func ParseDistances(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("distance %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// JoinDistances renders distances separated by sep.
func JoinDistances(d []int, sep string) string {
	var b strings.Builder
	for i, v := range d {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// FormatFloat renders f in the shortest form that keeps at least one
// decimal place, so whole numbers read as "5.0".
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
