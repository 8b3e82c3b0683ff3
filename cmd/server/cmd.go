package server

import (
	"fmt"

	log "github.com/sjqzhang/seelog"
	"github.com/spf13/cobra"

	"github.com/omero-biomero/tusgate/internal/config"
	"github.com/omero-biomero/tusgate/internal/logger"
	"github.com/omero-biomero/tusgate/internal/server"
)

var configFile string

// Cmd run http server
var Cmd = &cobra.Command{
	Use:   "server",
	Short: "Run tusgate server",
	Long:  `Run tusgate server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "config file, written with defaults when missing")
}

func run() error {
	conf, err := config.NewConfig(configFile)
	if err != nil {
		return err
	}
	if err = logger.Init(conf.LogDir(), conf.LogLevel()); err != nil {
		conf.RegisterExit()
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info(fmt.Sprintf("tusgate serves %s on %s, uploads in %s, finalized into %s",
		conf.BasePath(), conf.Addr(), conf.UploadDir(), conf.DestinationDir()))
	return server.Start(conf)
}
