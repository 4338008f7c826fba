package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/scanlog/internal/logconvert"
)

func newConvertCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [raw-log...]",
		Short: "Split raw session logs per component and fold scanner records",
		Long: `convert tokenizes raw session logs (plain, .gz, .zst or .xz), writes one
file per component under <out-root>/<session date>/<component>/ and rewrites
the sensor component's file into LmsScan(...) lines.

Without arguments every log matching <logs-root>/*/* is converted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.convertOptions(cmd)
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				done, err := logconvert.ConvertAll(cmd.Context(), opts)
				for _, c := range done {
					printConverted(out, c)
				}
				return err
			}
			for _, path := range args {
				c, err := logconvert.ConvertFile(cmd.Context(), opts, path)
				if err != nil {
					return err
				}
				printConverted(out, c)
			}
			return nil
		},
	}
	addConvertFlags(cmd)
	return cmd
}

func addConvertFlags(cmd *cobra.Command) {
	cmd.Flags().String("logs-root", "logs", "Directory holding raw logs as <date>/<file>")
	cmd.Flags().String("out-root", "converted", "Directory receiving converted logs")
	cmd.Flags().String("sensor", logconvert.DefaultSensorComponent, "Component whose records are folded into scans")
}

func (a *app) convertOptions(cmd *cobra.Command) logconvert.Options {
	return logconvert.Options{
		LogsRoot:        stringFlag(cmd, "logs-root", a.cfg.GetLogsRoot()),
		OutRoot:         stringFlag(cmd, "out-root", a.cfg.GetConvertedRoot()),
		SensorComponent: stringFlag(cmd, "sensor", a.cfg.GetSensorComponent()),
		Marker:          a.marker(),
	}
}

func printConverted(w io.Writer, c logconvert.Converted) {
	fmt.Fprintf(w, "%s: %d records, %d components", c.RawPath, c.Records, len(c.Files))
	if c.Rewritten {
		fmt.Fprintf(w, ", %d scans folded", c.Rewrite.Folded)
	}
	fmt.Fprintln(w)
	for _, path := range logconvert.SortedPaths(c.Files) {
		fmt.Fprintf(w, "  %s\n", path)
	}
}
