package main

import (
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs" // set GOMAXPROCS from the container quota

	"github.com/omero-biomero/tusgate/cmd/conf"
	"github.com/omero-biomero/tusgate/cmd/server"
	"github.com/omero-biomero/tusgate/cmd/token"
	"github.com/omero-biomero/tusgate/cmd/upload"
	"github.com/omero-biomero/tusgate/cmd/version"
)

var (
	VERSION     string
	BUILD_TIME  string
	GO_VERSION  string
	GIT_VERSION string
)

func main() {
	version.VERSION = VERSION
	version.BUILD_TIME = BUILD_TIME
	version.GO_VERSION = GO_VERSION
	version.GIT_VERSION = GIT_VERSION
	root := cobra.Command{Use: "tusgate", Short: "Resumable upload gateway for OMERO"}
	root.AddCommand(
		version.Cmd,
		conf.Cmd,
		token.Cmd,
		server.Cmd,
		upload.Cmd,
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
