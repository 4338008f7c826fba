package lms

import (
	"sync"
	"time"

	"github.com/banshee-data/scanlog/internal/timeutil"
)

// fakeDevice replays a fixed list of scans, advancing clock by the matching
// duration on each GetScan. After the last scan it returns ErrDeviceClosed
// unless failErr or panicMsg is set.
type fakeDevice struct {
	mu       sync.Mutex
	clock    *timeutil.MockClock
	scans    [][]int
	dts      []time.Duration
	cfg      DeviceConfig
	initErr  error
	cfgErr   error
	failErr  error
	panicMsg string
	// cfgPanic and uninitPanic make Config and Uninitialize panic.
	cfgPanic    string
	uninitPanic string

	initBaud int
	calls    int
	uninits  int
}

func (d *fakeDevice) Initialize(baud int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initBaud = baud
	return d.initErr
}

func (d *fakeDevice) Config() (DeviceConfig, error) {
	if d.cfgPanic != "" {
		panic(d.cfgPanic)
	}
	return d.cfg, d.cfgErr
}

func (d *fakeDevice) GetScan() ([]int, error) {
	d.mu.Lock()
	i := d.calls
	d.calls++
	d.mu.Unlock()

	if i >= len(d.scans) {
		if d.panicMsg != "" {
			panic(d.panicMsg)
		}
		if d.failErr != nil {
			return nil, d.failErr
		}
		return nil, ErrDeviceClosed
	}
	if d.clock != nil && i < len(d.dts) {
		d.clock.Advance(d.dts[i])
	}
	return d.scans[i], nil
}

func (d *fakeDevice) Uninitialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uninits++
	if d.uninitPanic != "" {
		panic(d.uninitPanic)
	}
	return nil
}

func (d *fakeDevice) uninitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uninits
}

// blockingDevice returns scans until released, then blocks on GetScan
// until stop is closed.
type blockingDevice struct {
	fakeDevice
	release chan struct{}
}

func (d *blockingDevice) GetScan() ([]int, error) {
	<-d.release
	return []int{1, 2, 3}, nil
}
