package replay

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/monitoring"
	"github.com/banshee-data/scanlog/internal/timeutil"
)

var logf = monitoring.Tagged("Playback")

// Options configures a Playback.
type Options struct {
	// Speed paces delivery by the original timestamp gaps divided by
	// Speed. Zero or negative delivers as fast as possible.
	Speed float64
	Clock timeutil.Clock
}

// Stats counts how a playback run classified records.
type Stats struct {
	Scans    int `json:"scans"`
	Config   int `json:"config"`
	Failures int `json:"failures"`
}

// Playback publishes the scans of a rewritten sensor log.
type Playback struct {
	hub   *lms.Hub
	speed float64
	clock timeutil.Clock

	mu    sync.Mutex
	state DeviceState
	stats Stats
}

// New creates a playback publishing to hub.
func New(hub *lms.Hub, opts Options) *Playback {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Playback{hub: hub, speed: opts.Speed, clock: opts.Clock}
}

// PlayFile replays a converted file, decompressing by extension.
func (p *Playback) PlayFile(ctx context.Context, path string) error {
	rc, err := logparse.OpenSource(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return p.Play(ctx, rc)
}

// Play tokenizes r and replays its records in order. Lines that are
// neither scans nor configuration are logged and skipped.
func (p *Playback) Play(ctx context.Context, r io.Reader) error {
	sess, err := logparse.Parse(ctx, r, logparse.WithoutStartMarker())
	if err != nil {
		return fmt.Errorf("playback: %w", err)
	}

	var prev float64
	for i, rec := range sess.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.speed > 0 && i > 0 {
			if gap := rec.Timestamp - prev; gap > 0 {
				p.clock.Sleep(time.Duration(gap / p.speed * float64(time.Second)))
			}
		}
		prev = rec.Timestamp
		p.handle(rec)
		runtime.Gosched()
	}
	return nil
}

func (p *Playback) handle(rec logparse.Record) {
	p.mu.Lock()
	matched, err := p.state.applyConfig(rec.Message)
	if matched {
		if err != nil {
			p.stats.Failures++
			p.mu.Unlock()
			logf("config line failed to parse: %q: %v", rec.Message, err)
			return
		}
		p.stats.Config++
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	m, err := lms.ParseScanMessage(rec.Message)
	if err != nil {
		p.mu.Lock()
		p.stats.Failures++
		p.mu.Unlock()
		logf("message failed to parse: %s", rec.Message)
		return
	}
	p.mu.Lock()
	p.stats.Scans++
	p.mu.Unlock()
	p.hub.Publish(m)
}

// State returns the device configuration seen so far.
func (p *Playback) State() DeviceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns the record counters.
func (p *Playback) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
