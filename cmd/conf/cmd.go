package conf

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omero-biomero/tusgate/internal/config"
	"github.com/omero-biomero/tusgate/pkg"
)

var out string

// Cmd prints the default configuration
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default configuration",
	Long:  `Print the default configuration, or write it to --out`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yml := config.DefaultConfigYaml()
		if out == "" {
			fmt.Print(yml)
			return nil
		}
		if pkg.FileExists(out) {
			return fmt.Errorf("%s already exists", out)
		}
		if !pkg.WriteFile(out, yml) {
			return fmt.Errorf("write %s failed", out)
		}
		return nil
	},
}

func init() {
	Cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
}
