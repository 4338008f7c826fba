package logconvert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a raw log must go unmodified before Watch
// converts it.
const DefaultSettle = 2 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	Options
	Settle time.Duration
	// OnConverted, if set, is called after each conversion attempt.
	OnConverted func(Converted, error)
}

// Watch converts raw logs that appear under LogsRoot until ctx is done.
// Session directories created while watching are picked up automatically.
// Watch works on the real filesystem only.
func Watch(ctx context.Context, opts WatchOptions) error {
	opts.Options = opts.Options.withDefaults()
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	pending := &pendingSet{last: make(map[string]time.Time)}
	if err := w.Add(opts.LogsRoot); err != nil {
		return fmt.Errorf("watch %s: %w", opts.LogsRoot, err)
	}
	sessions, err := filepath.Glob(filepath.Join(opts.LogsRoot, "*"))
	if err != nil {
		return err
	}
	for _, dir := range sessions {
		if isDir(dir) {
			if err := w.Add(dir); err != nil {
				logf("watch %s: %v", dir, err)
			}
		}
	}
	logf("watching %s", opts.LogsRoot)

	tick := time.NewTicker(opts.Settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logf("watch error: %v", err)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if filepath.Dir(ev.Name) == filepath.Clean(opts.LogsRoot) {
				if ev.Has(fsnotify.Create) && isDir(ev.Name) {
					if err := w.Add(ev.Name); err != nil {
						logf("watch %s: %v", ev.Name, err)
						continue
					}
					// files may land before the watch is in place
					existing, _ := filepath.Glob(filepath.Join(ev.Name, "*"))
					for _, p := range existing {
						pending.touch(p, time.Now())
					}
				}
				continue
			}
			pending.touch(ev.Name, time.Now())

		case now := <-tick.C:
			for _, path := range pending.settled(now, opts.Settle) {
				c, err := ConvertFile(ctx, opts.Options, path)
				if err != nil {
					logf("%v", err)
				}
				if opts.OnConverted != nil {
					opts.OnConverted(c, err)
				}
			}
		}
	}
}

type pendingSet struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (p *pendingSet) touch(path string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[path] = at
}

// settled removes and returns paths untouched for at least d.
func (p *pendingSet) settled(now time.Time, d time.Duration) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for path, at := range p.last {
		if now.Sub(at) >= d {
			out = append(out, path)
			delete(p.last, path)
		}
	}
	sort.Strings(out)
	return out
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
