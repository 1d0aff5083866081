package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/scheduler"
	"github.com/tanq16/vidgrab/internal/utils"
	"gopkg.in/yaml.v3"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every video listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error reading YAML file: %v", err))
				os.Exit(1)
			}
			jobs, err := buildJobsFromBatch(data, buildHTTPConfig())
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(jobs) == 0 {
				output.PrintError("No valid jobs found in the batch file")
				os.Exit(1)
			}
			if err := scheduler.Run(jobs, workers); err != nil {
				output.PrintError("Encountered failed download(s)")
				os.Exit(1)
			}
		},
	}
	return cmd
}

func buildJobsFromBatch(data []byte, cfg utils.HTTPClientConfig) ([]utils.VideoJob, error) {
	var entries []utils.BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	var jobs []utils.VideoJob
	for i, entry := range entries {
		if entry.Link == "" {
			output.PrintWarning(fmt.Sprintf("Entry %d has no link, skipping...", i+1))
			continue
		}
		job, err := newJob(entry.Link, entry.Dest, entry.Prefix, entry.Ext, entry.Strategy, cfg)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %v", i+1, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
