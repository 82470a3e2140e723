package cmd

import (
	"github.com/spf13/cobra"
	"video-relay/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "video-relay",
		Short: "text-to-video relay over free generation APIs",
	}
	rootCmd.AddCommand(server(config))
	return rootCmd
}
