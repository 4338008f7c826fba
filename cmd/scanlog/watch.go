package main

import (
	"context"
	"errors"
	"log"

	"github.com/spf13/cobra"

	"github.com/banshee-data/scanlog/internal/logconvert"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Convert raw logs as they appear under the logs root",
		Long: `watch converts every existing raw log, then keeps converting logs that are
created or appended to under <logs-root>/<date>/ once they have been quiet
for --settle. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.convertOptions(cmd)
			wait := a.cfg.GetWatchSettle()
			if cmd.Flags().Changed("settle") {
				d, err := cmd.Flags().GetDuration("settle")
				if err != nil {
					return err
				}
				wait = d
			}

			if done, err := logconvert.ConvertAll(cmd.Context(), opts); err != nil {
				log.Printf("[Watch] initial conversion: %v", err)
			} else {
				log.Printf("[Watch] converted %d existing logs", len(done))
			}

			err := logconvert.Watch(cmd.Context(), logconvert.WatchOptions{
				Options: opts,
				Settle:  wait,
				OnConverted: func(c logconvert.Converted, err error) {
					if err != nil {
						log.Printf("[Watch] %v", err)
						return
					}
					printConverted(cmd.OutOrStdout(), c)
				},
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	addConvertFlags(cmd)
	cmd.Flags().Duration("settle", logconvert.DefaultSettle, "Quiet period before a changed log is converted")
	return cmd
}
