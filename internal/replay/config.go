// Package replay turns converted session logs back into the scan stream a
// live acquisition would have published.
package replay

import (
	"strconv"
	"strings"
)

// DeviceState is the scanner configuration recovered from a log.
type DeviceState struct {
	Baud           int     `json:"baud"`
	OperatingMode  int     `json:"operating_mode"`
	MeasuringMode  int     `json:"measuring_mode"`
	MeasuringUnits int     `json:"measuring_units"`
	ScanResolution float64 `json:"scan_resolution"`
	ScanAngle      float64 `json:"scan_angle"`
	MaxDistance    float64 `json:"max_distance"`
}

type configField struct {
	prefix string
	set    func(*DeviceState, string) error
}

func intField(dst func(*DeviceState) *int) func(*DeviceState, string) error {
	return func(s *DeviceState, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(s) = n
		return nil
	}
}

func floatField(dst func(*DeviceState) *float64) func(*DeviceState, string) error {
	return func(s *DeviceState, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst(s) = f
		return nil
	}
}

var configFields = []configField{
	{"Selected baud: ", intField(func(s *DeviceState) *int { return &s.Baud })},
	{"Operating mode: ", intField(func(s *DeviceState) *int { return &s.OperatingMode })},
	{"Measuring mode: ", intField(func(s *DeviceState) *int { return &s.MeasuringMode })},
	{"Measuring units: ", intField(func(s *DeviceState) *int { return &s.MeasuringUnits })},
	{"Scan resolution: ", floatField(func(s *DeviceState) *float64 { return &s.ScanResolution })},
	{"Scan angle: ", floatField(func(s *DeviceState) *float64 { return &s.ScanAngle })},
	{"Max distance: ", floatField(func(s *DeviceState) *float64 { return &s.MaxDistance })},
}

// applyConfig updates s from a configuration line. matched reports whether
// msg carried a known prefix; err is set when its value did not parse.
func (s *DeviceState) applyConfig(msg string) (matched bool, err error) {
	for _, f := range configFields {
		if strings.HasPrefix(msg, f.prefix) {
			return true, f.set(s, msg[len(f.prefix):])
		}
	}
	return false, nil
}
