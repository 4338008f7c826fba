package replay

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/logparse"
)

var scanInfoRe = regexp.MustCompile(`^scan #([0-9]*) @ ([0-9.-]*)hz`)

// Simulator stands in for the scanner while an unconverted log is being
// tokenized. Registered as a listener, it tracks configuration and scan
// info records and publishes a scan for every scan data record.
type Simulator struct {
	hub *lms.Hub

	mu    sync.Mutex
	state DeviceState
	seq   int
	avg   float64
	scans int
}

// NewSimulator creates a simulator publishing to hub.
func NewSimulator(hub *lms.Hub) *Simulator {
	return &Simulator{hub: hub}
}

// Attach registers the simulator for component's records.
func (s *Simulator) Attach(reg *logparse.ListenerRegistry, component string) logparse.ListenerHandle {
	return reg.Register(component, s.Receive)
}

// Receive handles one record. It has the logparse.Listener signature.
func (s *Simulator) Receive(_ logparse.Level, message string, rec logparse.Record) {
	s.mu.Lock()
	if matched, err := s.state.applyConfig(message); matched {
		s.mu.Unlock()
		if err != nil {
			logf("config line failed to parse: %q: %v", message, err)
		}
		return
	}

	if m := scanInfoRe.FindStringSubmatch(message); m != nil {
		n, nerr := strconv.Atoi(m[1])
		avg, aerr := strconv.ParseFloat(m[2], 64)
		if nerr == nil && aerr == nil {
			s.seq, s.avg = n, avg
		}
		s.mu.Unlock()
		return
	}

	if !strings.HasPrefix(message, "scan: (") {
		s.mu.Unlock()
		return
	}
	distances, err := lms.ParseDistances(strings.TrimSuffix(message[len("scan: ("):], ")"))
	if err != nil {
		s.mu.Unlock()
		logf("scan data failed to parse: %v", err)
		return
	}
	msg := lms.ScanMessage{Timestamp: rec.Timestamp, Seq: s.seq, AvgRate: s.avg, Distances: distances}
	s.scans++
	s.mu.Unlock()

	s.hub.Publish(msg)
}

// State returns the configuration seen so far.
func (s *Simulator) State() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scans returns the number of scans published.
func (s *Simulator) Scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}
