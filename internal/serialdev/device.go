// Package serialdev drives a scanner that speaks a line protocol over a
// serial port: one comma-separated sweep per line, and "#key=value"
// configuration lines in reply to a CONFIG? query.
package serialdev

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/scanlog/internal/lms"
)

// ErrWriteFailed is returned when a command was only partly written.
var ErrWriteFailed = errors.New("failed to write to serial port")

// Port is the subset of a serial port the device needs.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Open opens the serial port at path.
func Open(path string, opts PortOptions) (*LineDevice, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewLineDevice(port), nil
}

// LineDevice implements lms.Device over a Port.
type LineDevice struct {
	port    Port
	scan    *bufio.Scanner
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

var _ lms.Device = (*LineDevice)(nil)

// NewLineDevice wraps an open port.
func NewLineDevice(port Port) *LineDevice {
	s := bufio.NewScanner(port)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &LineDevice{port: port, scan: s}
}

func (d *LineDevice) send(command string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := d.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

func (d *LineDevice) readLine() (string, error) {
	for d.scan.Scan() {
		line := strings.TrimSpace(d.scan.Text())
		if line != "" {
			return line, nil
		}
	}
	if err := d.scan.Err(); err != nil {
		if d.isClosed() {
			return "", lms.ErrDeviceClosed
		}
		return "", err
	}
	return "", lms.ErrDeviceClosed
}

func (d *LineDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Initialize asks the scanner to start streaming at baud.
func (d *LineDevice) Initialize(baud int) error {
	if err := d.send(fmt.Sprintf("INIT %d", baud)); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// Config queries the scanner configuration. Scan lines that arrive before
// the reply are discarded.
func (d *LineDevice) Config() (lms.DeviceConfig, error) {
	var cfg lms.DeviceConfig
	if err := d.send("CONFIG?"); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	for {
		line, err := d.readLine()
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if !strings.HasPrefix(line, "#") {
			continue
		}
		if line == "#end" {
			return cfg, nil
		}
		key, value, ok := strings.Cut(line[1:], "=")
		if !ok {
			return cfg, fmt.Errorf("config: malformed line %q", line)
		}
		if err := setConfig(&cfg, key, value); err != nil {
			return cfg, fmt.Errorf("config %s: %w", key, err)
		}
	}
}

func setConfig(cfg *lms.DeviceConfig, key, value string) error {
	var err error
	switch key {
	case "operating_mode":
		cfg.OperatingMode, err = strconv.Atoi(value)
	case "measuring_mode":
		cfg.MeasuringMode, err = strconv.Atoi(value)
	case "measuring_units":
		cfg.MeasuringUnits, err = strconv.Atoi(value)
	case "scan_resolution":
		cfg.ScanResolution, err = strconv.ParseFloat(value, 64)
	case "scan_angle":
		cfg.ScanAngle, err = strconv.ParseFloat(value, 64)
	}
	return err
}

// GetScan blocks until the next sweep line arrives.
func (d *LineDevice) GetScan() ([]int, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		return lms.ParseDistances(line)
	}
}

// Uninitialize stops streaming and closes the port. Later calls return
// lms.ErrDeviceClosed.
func (d *LineDevice) Uninitialize() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return lms.ErrDeviceClosed
	}
	d.closed = true
	d.mu.Unlock()

	serr := d.send("STOP")
	if err := d.port.Close(); err != nil {
		return fmt.Errorf("close port: %w", err)
	}
	return serr
}
