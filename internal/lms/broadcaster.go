package lms

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/scanlog/internal/monitoring"
	"github.com/banshee-data/scanlog/internal/sessionlog"
	"github.com/banshee-data/scanlog/internal/timeutil"
)

var broadcastLogf = monitoring.Tagged("Broadcast")

// Broadcaster defaults.
const (
	DefaultQuantum = 10 * time.Millisecond
	DefaultWindow  = 3 * time.Second
)

// Producer is the acquisition side seen by the broadcaster.
type Producer interface {
	Queue() *Queue
	Rate() *RateTracker
	Active() bool
}

// BroadcasterOptions configures a Broadcaster. Zero values select defaults.
type BroadcasterOptions struct {
	Quantum time.Duration
	Window  time.Duration
	Clock   timeutil.Clock
	// Journal receives one scan info, post and data record per scan. May
	// be nil.
	Journal *sessionlog.Logger
}

// BroadcastStats summarises delivery so far.
type BroadcastStats struct {
	Delivered   int       `json:"delivered"`
	QueueLen    int       `json:"queue_len"`
	AvgRate     float64   `json:"avg_rate_hz"`
	OverallRate float64   `json:"overall_rate_hz"`
	Started     time.Time `json:"started"`
	Running     bool      `json:"running"`
}

// Broadcaster drains a producer's queue and publishes each sample to a hub.
type Broadcaster struct {
	src     Producer
	hub     *Hub
	quantum time.Duration
	window  time.Duration
	clock   timeutil.Clock
	journal *sessionlog.Logger

	mu      sync.Mutex
	stats   BroadcastStats
	latest  ScanMessage
	hasLast bool
}

// NewBroadcaster creates a broadcaster from src to hub.
func NewBroadcaster(src Producer, hub *Hub, opts BroadcasterOptions) *Broadcaster {
	if opts.Quantum <= 0 {
		opts.Quantum = DefaultQuantum
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Broadcaster{
		src:     src,
		hub:     hub,
		quantum: opts.Quantum,
		window:  opts.Window,
		clock:   opts.Clock,
		journal: opts.Journal,
	}
}

// Run delivers samples until the producer is inactive and its queue is
// drained, or ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	start := b.clock.Now()
	b.mu.Lock()
	b.stats.Started = start
	b.stats.Running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.stats.Running = false
		b.mu.Unlock()
	}()

	windowStart := start
	inWindow := 0
	total := 0
	queue := b.src.Queue()

	for {
		if err := ctx.Err(); err != nil {
			broadcastLogf("context done after %d scans: %v", total, err)
			return err
		}

		if now := b.clock.Now(); now.Sub(windowStart) >= b.window {
			elapsed := now.Sub(start).Seconds()
			overall := 0.0
			if elapsed > 0 {
				overall = float64(total) / elapsed
			}
			broadcastLogf("%d scans in the last %s, %d total, %.2f scans/s overall",
				inWindow, b.window, total, overall)
			windowStart = now
			inWindow = 0
		}

		s, ok := queue.TryPop()
		if !ok {
			// Active must be read before Len: once the producer is
			// inactive nothing else will be pushed.
			if !b.src.Active() && queue.Len() == 0 {
				broadcastLogf("producer stopped, shutting down after %d scans", total)
				b.clock.Sleep(b.quantum)
				return nil
			}
			b.clock.Sleep(b.quantum)
			continue
		}

		msg := ScanMessage{
			Timestamp: epochSeconds(s.CapturedAt),
			Seq:       s.Seq,
			AvgRate:   b.src.Rate().Average(),
			Distances: s.Distances,
		}
		if b.journal != nil {
			b.journal.Infof("scan #%d @ %shz", msg.Seq, FormatFloat(msg.AvgRate))
		}
		b.hub.Publish(msg)
		if b.journal != nil {
			b.journal.Debugf("posted scan #%d", msg.Seq)
			b.journal.Debugf("scan: (%s)", JoinDistances(msg.Distances, ", "))
		}

		total++
		inWindow++
		b.record(msg, total, start)
	}
}

func (b *Broadcaster) record(msg ScanMessage, total int, start time.Time) {
	elapsed := b.clock.Since(start).Seconds()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = msg
	b.hasLast = true
	b.stats.Delivered = total
	if elapsed > 0 {
		b.stats.OverallRate = float64(total) / elapsed
	}
}

// Stats returns delivery counters.
func (b *Broadcaster) Stats() BroadcastStats {
	b.mu.Lock()
	s := b.stats
	b.mu.Unlock()
	s.QueueLen = b.src.Queue().Len()
	s.AvgRate = b.src.Rate().Average()
	return s
}

// Latest returns the most recently published scan.
func (b *Broadcaster) Latest() (ScanMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLast
}

func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
