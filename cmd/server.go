package cmd

import (
	"github.com/spf13/cobra"
	"video-relay/config"
	server2 "video-relay/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server and generation workers",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
