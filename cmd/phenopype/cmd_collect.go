package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Imageomics/phenopype/internal/export"
	"github.com/Imageomics/phenopype/internal/logging"
)

var collectFlags struct {
	tag     string
	out     string
	names   []string
	logArgs struct{ level, format string }
}

var collectCmd = &cobra.Command{
	Use:   "collect <data-dir>",
	Short: "Gather tagged result files from a data tree",
	Long: `Walk a data tree and copy result files for one tag into a flat results
directory, prefixed with their parent directory name:

  phenopype collect ./data --tag v1 --out ./results
  phenopype collect ./data --tag v1 --name canvas --name annotations`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

func init() {
	f := collectCmd.Flags()
	f.StringVarP(&collectFlags.tag, "tag", "t", "v1", "Tag whose results to collect")
	f.StringVarP(&collectFlags.out, "out", "o", "results", "Destination directory")
	f.StringArrayVar(&collectFlags.names, "name", nil, "Artifact names to include (default: all tagged files)")
	f.StringVar(&collectFlags.logArgs.level, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&collectFlags.logArgs.format, "log-format", "text", "Log format: text, json")
}

func runCollect(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(collectFlags.logArgs.level)
	if err != nil {
		return err
	}
	logging.Init(level, collectFlags.logArgs.format)

	n, err := export.Collect(args[0], collectFlags.out, collectFlags.tag, collectFlags.names)
	if err != nil {
		return err
	}
	fmt.Printf("collected %d files into %s\n", n, collectFlags.out)
	return nil
}
