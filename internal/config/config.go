package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/serialdev"
)

// ExampleConfigPath is the example configuration shipped with the repo.
const ExampleConfigPath = "config/scanlog.example.json"

// Config is the scanlog configuration file. Every field is optional; the
// Get* accessors supply defaults for fields the file leaves out, and
// command line flags override both.
type Config struct {
	// Serial device
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty"`

	// Broadcast loop
	WindowInterval *string `json:"window_interval,omitempty"` // duration string like "3s"
	PollQuantum    *string `json:"poll_quantum,omitempty"`    // duration string like "10ms"

	// Conversion
	LogsRoot        *string       `json:"logs_root,omitempty"`
	ConvertedRoot   *string       `json:"converted_root,omitempty"`
	SensorComponent *string       `json:"sensor_component,omitempty"`
	StartMarker     *MarkerConfig `json:"start_marker,omitempty"`
	WatchSettle     *string       `json:"watch_settle,omitempty"`

	// Sinks
	DBPath      *string  `json:"db_path,omitempty"`
	MQTTBroker  *string  `json:"mqtt_broker,omitempty"`
	MQTTTopic   *string  `json:"mqtt_topic,omitempty"`
	ListenAddr  *string  `json:"listen_addr,omitempty"`
	PlotPath    *string  `json:"plot_path,omitempty"`
	PlotEvery   *int     `json:"plot_every,omitempty"`
	ReplaySpeed *float64 `json:"replay_speed,omitempty"`
}

// MarkerConfig names the record that opens a session.
type MarkerConfig struct {
	Component string `json:"component"`
	File      string `json:"file"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.BaudRate != nil {
		if _, err := lms.UpdateRate(*c.BaudRate); err != nil {
			return fmt.Errorf("baud_rate must be one of 9600, 19200, 38400: %w", err)
		}
	}
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}

	for name, v := range map[string]*string{
		"window_interval": c.WindowInterval,
		"poll_quantum":    c.PollQuantum,
		"watch_settle":    c.WatchSettle,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.StartMarker != nil {
		m := c.StartMarker
		if m.Component == "" || m.File == "" || m.Message == "" {
			return fmt.Errorf("start_marker needs component, file and message")
		}
		if lvl := strings.ToUpper(m.Level); lvl != "" && lvl != "NOTSET" && logparse.LevelFromName(lvl) == logparse.LevelNotSet {
			return fmt.Errorf("start_marker level %q is not a known level", m.Level)
		}
	}

	if c.PlotEvery != nil && *c.PlotEvery < 0 {
		return fmt.Errorf("plot_every must be non-negative, got %d", *c.PlotEvery)
	}
	if c.ReplaySpeed != nil && *c.ReplaySpeed < 0 {
		return fmt.Errorf("replay_speed must be non-negative, got %f", *c.ReplaySpeed)
	}
	return nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetSerialPort returns the device path, default /dev/ttyUSB0.
func (c *Config) GetSerialPort() string { return stringOr(c.SerialPort, "/dev/ttyUSB0") }

// GetBaudRate returns the scanner baud rate, default 38400.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return 38400
	}
	return *c.BaudRate
}

// PortOptions returns the serial options for the configured port.
func (c *Config) PortOptions() serialdev.PortOptions {
	opts := serialdev.PortOptions{BaudRate: c.GetBaudRate()}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// GetWindowInterval returns the broadcast statistics window, default 3s.
func (c *Config) GetWindowInterval() time.Duration {
	return durationOr(c.WindowInterval, 3*time.Second)
}

// GetPollQuantum returns the broadcast loop sleep quantum, default 10ms.
func (c *Config) GetPollQuantum() time.Duration {
	return durationOr(c.PollQuantum, 10*time.Millisecond)
}

// GetWatchSettle returns how long a raw file must be quiet before watch
// mode converts it, default 2s.
func (c *Config) GetWatchSettle() time.Duration {
	return durationOr(c.WatchSettle, 2*time.Second)
}

func (c *Config) GetLogsRoot() string      { return stringOr(c.LogsRoot, "logs") }
func (c *Config) GetConvertedRoot() string { return stringOr(c.ConvertedRoot, "converted") }
func (c *Config) GetSensorComponent() string {
	return stringOr(c.SensorComponent, "LMS200")
}

// GetStartMarker returns the configured marker or logparse.DefaultStartMarker.
// An empty level means DEBUG.
func (c *Config) GetStartMarker() logparse.StartMarker {
	if c.StartMarker == nil {
		return logparse.DefaultStartMarker
	}
	level := logparse.LevelDebug
	if c.StartMarker.Level != "" {
		level = logparse.LevelFromName(strings.ToUpper(c.StartMarker.Level))
	}
	return logparse.StartMarker{
		Component: c.StartMarker.Component,
		File:      c.StartMarker.File,
		Level:     level,
		Message:   c.StartMarker.Message,
	}
}

// GetDBPath returns the scan database path. Empty disables the store.
func (c *Config) GetDBPath() string { return stringOr(c.DBPath, "") }

// GetMQTTBroker returns the broker address. Empty disables MQTT.
func (c *Config) GetMQTTBroker() string { return stringOr(c.MQTTBroker, "") }

func (c *Config) GetMQTTTopic() string { return stringOr(c.MQTTTopic, "scanlog/scans") }

// GetListenAddr returns the HTTP listen address, default :8081.
func (c *Config) GetListenAddr() string { return stringOr(c.ListenAddr, ":8081") }

// GetPlotPath returns the snapshot PNG path. Empty disables plotting.
func (c *Config) GetPlotPath() string { return stringOr(c.PlotPath, "") }

// GetPlotEvery returns how many scans pass between snapshots, default 25.
func (c *Config) GetPlotEvery() int {
	if c.PlotEvery == nil || *c.PlotEvery == 0 {
		return 25
	}
	return *c.PlotEvery
}

// GetReplaySpeed returns the playback speed factor. Zero means as fast as
// possible; the default is real time.
func (c *Config) GetReplaySpeed() float64 {
	if c.ReplaySpeed == nil {
		return 1
	}
	return *c.ReplaySpeed
}
