// Package lms runs the laser scanner acquisition pipeline: a worker that
// polls the device on its own OS thread, a handoff queue, and a broadcaster
// that fans scans out to subscribers.
package lms

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBaud is returned for a baud rate the scanner does not support.
	ErrInvalidBaud = errors.New("invalid baud")
	// ErrDeviceClosed is returned by a device that has been uninitialized.
	ErrDeviceClosed = errors.New("device closed")
)

// Device is the scanner driver. GetScan blocks until the next full sweep is
// available.
type Device interface {
	Initialize(baud int) error
	GetScan() ([]int, error)
	Uninitialize() error
	Config() (DeviceConfig, error)
}

// Measuring modes reported by the scanner.
const (
	ModeDazzle8      = 0x00
	ModeReflector8   = 0x01
	ModeFaFbFc8      = 0x02
	ModeReflector16  = 0x03
	ModeFaFb16       = 0x04
	ModeReflector32  = 0x05
	ModeFa32         = 0x06
	ModeReflectivity = 0x0E
	ModeImmediate32  = 0x0F
	ModeUnknown      = 0xFF
)

// Measuring units reported by the scanner.
const (
	UnitsCentimeters = 0x00
	UnitsMillimeters = 0x01
)

// DeviceConfig is the configuration read once after Initialize.
type DeviceConfig struct {
	OperatingMode  int
	MeasuringMode  int
	MeasuringUnits int
	// ScanResolution is the angular step in degrees.
	ScanResolution float64
	// ScanAngle is the sweep width in degrees.
	ScanAngle float64
}

// UpdateRate returns the nominal scan rate in Hz for a supported baud.
func UpdateRate(baud int) (float64, error) {
	switch baud {
	case 9600:
		return 1.0, nil
	case 19200:
		return 2.5, nil
	case 38400:
		return 5.0, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidBaud, baud)
}

// MaxDistance returns the range in metres of a measuring mode, or 0 when
// the mode has no fixed range.
func MaxDistance(measuringMode int) float64 {
	switch measuringMode {
	case ModeDazzle8, ModeReflector8, ModeFaFbFc8:
		return 8.0
	case ModeReflector16, ModeFaFb16:
		return 16.0
	case ModeReflector32, ModeFa32, ModeImmediate32:
		return 32.0
	}
	return 0.0
}
