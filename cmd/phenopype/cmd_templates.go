package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Imageomics/phenopype/internal/templates"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [name]",
	Short: "List builtin pipeline templates or print one",
	Long: `Without arguments, list the builtin templates. With a name, print that
template's YAML so it can be redirected into a project:

  phenopype templates
  phenopype templates segmentation1 > fish1_pype_config_v1.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplates,
}

func runTemplates(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, name := range templates.Names() {
			fmt.Println(name)
		}
		return nil
	}
	data, err := templates.Raw(args[0])
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
