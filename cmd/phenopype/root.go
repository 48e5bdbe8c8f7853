package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "phenopype",
	Short: "Interactive pipeline engine for image measurement",
	Long: "Phenopype runs declarative image-measurement pipelines: edit a YAML\n" +
		"document of processing steps, watch the result, and loop until done.\n" +
		"Annotations persist across iterations so results can be refined\n" +
		"incrementally.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
