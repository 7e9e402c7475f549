// lexiad is the Lexia service daemon: the request-orchestration core of the
// practice-management assistant, exposed over HTTP.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sweetpotato0/lexia/pkg/logging"
)

var providerFile string

func main() {
	root := &cobra.Command{
		Use:   "lexiad",
		Short: "Lexia legal assistant service",
		PersistentPreRun: func(*cobra.Command, []string) {
			// Missing .env is fine; the environment itself still applies.
			_ = godotenv.Load()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&providerFile, "providers", "providers.yaml",
		"optional YAML file with provider priority and model overrides")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		logging.Logger().Error("lexiad failed", "error", err)
		os.Exit(1)
	}
}
