package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set from main, which receives them through -ldflags
var (
	VERSION     string
	BUILD_TIME  string
	GO_VERSION  string
	GIT_VERSION string
)

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "version",
	Long:  `version`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version   : %s\n", VERSION)
		fmt.Printf("GO_VERSION: %s\n", GO_VERSION)
		fmt.Printf("GIT_COMMIT: %s\n", GIT_VERSION)
		fmt.Printf("BUILD_TIME: %s\n", BUILD_TIME)
	},
}
