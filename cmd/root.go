package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const app = "screening-agent"

var (
	// Used for flags.
	cfgFile   string
	debugMode bool
	jsonLogs  bool

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "screening-agent ranks resumes against a job description and serves the results over HTTP",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		// Optional; real deployments set environment variables directly.
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is screening-agent.yaml in current directory)")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&jsonLogs, "json", "j", false, "json format for logging")
}
