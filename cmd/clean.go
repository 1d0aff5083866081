package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "clean [-d DIR]",
		Short: "Remove leftover partial files from interrupted downloads",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := utils.CleanTemp(dir); err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess("Temporary files cleaned up")
		},
	}
	cmd.Flags().StringVarP(&dir, "dest", "d", ".", "Directory whose temporary files should be removed")
	return cmd
}
