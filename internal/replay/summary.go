package replay

import (
	"math"
	"sync"

	"github.com/banshee-data/scanlog/internal/lms"
)

// Summary describes a stream of scans.
type Summary struct {
	Scans      int     `json:"scans"`
	FirstTime  float64 `json:"first_t"`
	LastTime   float64 `json:"last_t"`
	MeanRate   float64 `json:"mean_rate_hz"`
	StdRate    float64 `json:"std_rate_hz"`
	MeanPoints float64 `json:"mean_points"`
	// MaxRange is the largest distance reading in the stream.
	MaxRange float64 `json:"max_range"`
}

// Recorder is a hub subscriber that accumulates scan statistics in
// constant memory. Rate variance uses Welford's update, so StdRate matches
// the sample standard deviation of every recorded rate.
type Recorder struct {
	mu     sync.Mutex
	n      int
	first  float64
	last   float64
	mean   float64
	m2     float64
	points float64
	max    float64
}

// Record adds m. It has the lms.Subscriber signature.
func (r *Recorder) Record(m lms.ScanMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		r.first = m.Timestamp
	}
	r.last = m.Timestamp
	r.n++
	delta := m.AvgRate - r.mean
	r.mean += delta / float64(r.n)
	r.m2 += delta * (m.AvgRate - r.mean)
	r.points += float64(len(m.Distances))
	for _, v := range m.Distances {
		if d := float64(v); d > r.max {
			r.max = d
		}
	}
}

// Summary returns the statistics so far.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Scans: r.n, FirstTime: r.first, LastTime: r.last, MaxRange: r.max}
	if r.n == 0 {
		return s
	}
	s.MeanPoints = r.points / float64(r.n)
	s.MeanRate = r.mean
	if r.n > 1 {
		s.StdRate = math.Sqrt(r.m2 / float64(r.n-1))
	}
	return s
}
