package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/pointcloud"
	"github.com/banshee-data/scanlog/internal/replay"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		speed float64
		raw   bool
		sf    sinkFlags
	)
	cmd := &cobra.Command{
		Use:   "replay <log>",
		Short: "Publish the scans of a converted (or raw) log as a scan stream",
		Long: `replay reads a converted sensor log and publishes one message per
LmsScan(...) line, paced by the original timestamps divided by --speed.
With --raw the log is an unconverted session log and the scanner's info
and data records are matched as they are tokenized.

A JSON summary of the stream is printed when the log is exhausted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("speed") {
				speed = a.cfg.GetReplaySpeed()
			}
			sf = a.sinkDefaults(cmd, sf)

			hub := lms.NewHub()
			rec := &replay.Recorder{}
			hub.Subscribe("summary", rec.Record)

			var (
				state func() replay.DeviceState
				run   func() error
			)
			if raw {
				sim := replay.NewSimulator(hub)
				reg := logparse.NewListenerRegistry()
				sim.Attach(reg, stringFlag(cmd, "sensor", a.cfg.GetSensorComponent()))
				state = sim.State
				run = func() error {
					_, err := logparse.ParseFile(cmd.Context(), args[0],
						logparse.WithStartMarker(*a.marker()), logparse.WithListeners(reg))
					return err
				}
			} else {
				p := replay.New(hub, replay.Options{Speed: speed})
				state = p.State
				run = func() error { return p.PlayFile(cmd.Context(), args[0]) }
			}

			geom := func() pointcloud.Geometry { return geometryFromState(state()) }
			out, err := attachSinks(cmd.Context(), hub, sf, "replay:"+args[0], 0, lms.DeviceInfo{}, geom)
			if err != nil {
				return err
			}
			defer out.Close()

			if err := run(); err != nil {
				return err
			}

			body, err := sonic.ConfigStd.MarshalIndent(struct {
				Device  replay.DeviceState `json:"device"`
				Summary replay.Summary     `json:"summary"`
			}{state(), rec.Summary()}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 1, "Playback speed factor (0 = as fast as possible)")
	cmd.Flags().BoolVar(&raw, "raw", false, "The log is a raw session log")
	cmd.Flags().String("sensor", "LMS200", "Scanner component name in raw logs")
	addSinkFlags(cmd, &sf)
	return cmd
}

func addSinkFlags(cmd *cobra.Command, sf *sinkFlags) {
	cmd.Flags().StringVar(&sf.dbPath, "db", "", "SQLite database recording every scan")
	cmd.Flags().StringVar(&sf.mqttBroker, "mqtt", "", "MQTT broker to publish scans to (host:port)")
	cmd.Flags().StringVar(&sf.mqttTopic, "mqtt-topic", "scanlog/scans", "MQTT topic")
	cmd.Flags().StringVar(&sf.plotPath, "plot", "", "PNG file receiving point-cloud snapshots")
	cmd.Flags().IntVar(&sf.plotEvery, "plot-every", 25, "Scans between snapshots")
}

// sinkDefaults fills sink flags the user did not set from the config file.
func (a *app) sinkDefaults(cmd *cobra.Command, sf sinkFlags) sinkFlags {
	sf.dbPath = stringFlag(cmd, "db", a.cfg.GetDBPath())
	sf.mqttBroker = stringFlag(cmd, "mqtt", a.cfg.GetMQTTBroker())
	sf.mqttTopic = stringFlag(cmd, "mqtt-topic", a.cfg.GetMQTTTopic())
	sf.plotPath = stringFlag(cmd, "plot", a.cfg.GetPlotPath())
	if !cmd.Flags().Changed("plot-every") {
		sf.plotEvery = a.cfg.GetPlotEvery()
	}
	return sf
}
