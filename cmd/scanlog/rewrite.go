package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/logconvert"
)

func newRewriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite <sensor-log>...",
		Short: "Fold scan info and data lines of split sensor logs in place",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rw := logconvert.ScanRewriter{FS: fsutil.OSFileSystem{}}
			for _, path := range args {
				res, err := rw.RewriteFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d folded, %d dropped, %d passed through\n",
					path, res.Folded, res.Dropped, res.Passed)
			}
			return nil
		},
	}
}
