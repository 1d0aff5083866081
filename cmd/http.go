package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/scheduler"
	"github.com/tanq16/vidgrab/internal/utils"
)

func newHTTPCmd() *cobra.Command {
	var dest, prefix, ext, strategy string

	cmd := &cobra.Command{
		Use:   "http [URL] [-d DEST]",
		Short: "Download a video via HTTP/HTTPS",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job, err := newJob(args[0], dest, prefix, ext, strategy, buildHTTPConfig())
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := scheduler.Run([]utils.VideoJob{job}, 1); err != nil {
				output.PrintError("Encountered failed download(s)")
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination directory, s3://bucket/prefix or bucket URL (default current directory)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "File name prefix (default \"video\")")
	cmd.Flags().StringVar(&ext, "ext", "", "File extension (default \"mp4\")")
	cmd.Flags().StringVar(&strategy, "strategy", "auto", "Fetch strategy: auto, sequential or parallel")
	return cmd
}
