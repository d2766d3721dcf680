package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tubegrab/tubegrab/config"
	srv "github.com/tubegrab/tubegrab/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "tubegrab"}

	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP download server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr == "" {
				serveAddr = os.Getenv("TUBEGRAB_HTTP_ADDR")
			}
			cfg := config.LoadConfig(cfgPath)
			return srv.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	root.AddCommand(serve)
	_ = root.Execute()
}
