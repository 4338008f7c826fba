package lms

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/scanlog/internal/monitoring"
	"github.com/banshee-data/scanlog/internal/sessionlog"
	"github.com/banshee-data/scanlog/internal/timeutil"
)

var workerLogf = monitoring.Tagged("Worker")

// DefaultBaud is the fastest supported baud.
const DefaultBaud = 38400

// WorkerOptions configures a Worker. Zero values select defaults.
type WorkerOptions struct {
	Baud  int
	Clock timeutil.Clock
	// Journal receives the configuration and failure records. May be nil.
	Journal *sessionlog.Logger
}

// DeviceInfo is the configuration a worker read after initializing.
type DeviceInfo struct {
	DeviceConfig
	Baud        int
	UpdateRate  float64
	MaxDistance float64
}

// Worker polls a Device on a dedicated OS thread and pushes samples onto a
// Queue. It shares nothing with consumers except the queue and the rate
// tracker.
type Worker struct {
	dev     Device
	baud    int
	clock   timeutil.Clock
	journal *sessionlog.Logger

	queue *Queue
	rate  *RateTracker

	active      atomic.Bool
	stop        chan struct{}
	stopOnce    sync.Once
	initialized chan struct{}
	done        chan struct{}

	// written before initialized or done is closed
	info DeviceInfo
	err  error
}

// NewWorker creates a worker for dev. Call Start to begin polling.
func NewWorker(dev Device, opts WorkerOptions) *Worker {
	if opts.Baud == 0 {
		opts.Baud = DefaultBaud
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Worker{
		dev:         dev,
		baud:        opts.Baud,
		clock:       opts.Clock,
		journal:     opts.Journal,
		queue:       &Queue{},
		rate:        &RateTracker{},
		stop:        make(chan struct{}),
		initialized: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Queue returns the handoff queue the worker fills.
func (w *Worker) Queue() *Queue { return w.queue }

// Rate returns the worker's rate tracker.
func (w *Worker) Rate() *RateTracker { return w.rate }

// Active reports whether the poll loop may still push samples.
func (w *Worker) Active() bool { return w.active.Load() }

// Initialized is closed once the device is initialized and its
// configuration read.
func (w *Worker) Initialized() <-chan struct{} { return w.initialized }

// Done is closed after the loop has exited and the device is released.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Err returns the error that ended the worker. Valid after Done is closed.
func (w *Worker) Err() error {
	<-w.done
	return w.err
}

// Info returns the device configuration once initialized. ok is false if
// the worker failed before reading it.
func (w *Worker) Info() (info DeviceInfo, ok bool) {
	select {
	case <-w.initialized:
		return w.info, true
	case <-w.done:
		select {
		case <-w.initialized:
			return w.info, true
		default:
			return DeviceInfo{}, false
		}
	}
}

// Stop asks the loop to exit after the current device call returns.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Start launches the worker goroutine. The worker is active from this call
// until its loop exits.
func (w *Worker) Start(ctx context.Context) {
	w.active.Store(true)
	go w.run(ctx)
}

// WaitInitialized blocks until the device is ready or the worker fails.
func (w *Worker) WaitInitialized(ctx context.Context) error {
	select {
	case <-w.initialized:
		return nil
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)
	defer w.active.Store(false)

	if err := w.initialize(); err != nil {
		w.err = err
		w.logError("initialize: %v", err)
		return
	}
	close(w.initialized)

	defer w.safeUninitialize()
	if err := w.poll(ctx); err != nil {
		w.err = err
		w.logError("poll loop stopped: %v", err)
	}
}

func (w *Worker) initialize() (err error) {
	ready := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device panic: %v", r)
		}
		// an initialized device is released whenever initialize fails
		if ready && err != nil {
			w.safeUninitialize()
		}
	}()

	w.debugf("Selected baud: %d", w.baud)
	rate, err := UpdateRate(w.baud)
	if err != nil {
		return err
	}
	if err := w.dev.Initialize(w.baud); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	ready = true
	cfg, err := w.dev.Config()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	w.info = DeviceInfo{
		DeviceConfig: cfg,
		Baud:         w.baud,
		UpdateRate:   rate,
		MaxDistance:  MaxDistance(cfg.MeasuringMode),
	}
	w.debugf("Operating mode: %d", cfg.OperatingMode)
	w.debugf("Measuring mode: %d", cfg.MeasuringMode)
	w.debugf("Measuring units: %d", cfg.MeasuringUnits)
	w.debugf("Scan resolution: %s", FormatFloat(cfg.ScanResolution))
	w.debugf("Scan angle: %s", FormatFloat(cfg.ScanAngle))
	w.debugf("Update rate: %s", FormatFloat(rate))
	w.debugf("Max distance: %s", FormatFloat(w.info.MaxDistance))
	return nil
}

// safeUninitialize releases the device. Failures are logged; a panic also
// becomes the worker error unless one is already set.
func (w *Worker) safeUninitialize() {
	defer func() {
		if r := recover(); r != nil {
			w.logError("uninitialize: device panic: %v", r)
			if w.err == nil {
				w.err = fmt.Errorf("uninitialize: device panic: %v", r)
			}
		}
	}()
	if err := w.dev.Uninitialize(); err != nil {
		w.logError("uninitialize: %v", err)
	}
}

func (w *Worker) poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device panic: %v", r)
		}
	}()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		default:
		}

		started := w.clock.Now()
		scan, err := w.dev.GetScan()
		if err != nil {
			if errors.Is(err, ErrDeviceClosed) {
				workerLogf("device closed after %d scans", seq)
				return nil
			}
			return fmt.Errorf("get scan: %w", err)
		}
		seq++
		snap := w.rate.Add(w.clock.Since(started).Seconds())
		w.queue.Push(ScanSample{
			Seq:        seq,
			CapturedAt: started,
			Distances:  scan,
			AvgRate:    snap.Average,
		})
	}
}

func (w *Worker) debugf(format string, args ...interface{}) {
	if w.journal != nil {
		w.journal.Debugf(format, args...)
	}
}

func (w *Worker) logError(format string, args ...interface{}) {
	workerLogf(format, args...)
	if w.journal != nil {
		w.journal.Errorf(format, args...)
	}
}
