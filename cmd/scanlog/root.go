package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/banshee-data/scanlog/internal/config"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/monitoring"
	"github.com/banshee-data/scanlog/internal/version"
)

// app carries the flags shared by every subcommand.
type app struct {
	configPath string
	quiet      bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "scanlog",
		Short: "Convert, replay and record LMS200 laser scanner session logs",
		Long: `scanlog works with the session logs written by the robot software.

Raw logs are split per component and the scanner's records are folded into
one LmsScan(...) line per scan. Converted logs can be replayed as a live
scan stream, and a scanner on a serial port can be recorded directly.

Examples:
  scanlog convert                          # convert every log under logs/
  scanlog convert logs/2017_Jun_05/10.log  # convert one raw log
  scanlog rewrite converted/.../LMS200/x   # fold scan lines in place
  scanlog replay --speed 2 converted/.../LMS200/x
  scanlog acquire --port /dev/ttyUSB0 --db scans.db
  scanlog watch                            # convert logs as they land`,
		Version:       version.Current().String(),
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"JSON configuration file")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false,
		"Suppress diagnostic logging")

	root.AddCommand(
		newConvertCmd(a),
		newRewriteCmd(a),
		newReplayCmd(a),
		newAcquireCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) load() error {
	if a.quiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(log.Printf)
	}
	if a.configPath == "" {
		a.cfg = config.Empty()
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) marker() *logparse.StartMarker {
	m := a.cfg.GetStartMarker()
	return &m
}

// stringFlag returns the flag value when it was set on the command line and
// fallback otherwise.
func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return f.Value.String()
	}
	return fallback
}
