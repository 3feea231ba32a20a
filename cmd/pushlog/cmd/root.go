package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pushlog/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pushlog",
	Short: "pushlog relays pushup submissions behind a shared passcode",
	Long: `A small service that exchanges a shared passcode for a signed session
cookie and relays authenticated pushup submissions to a webhook.

Configuration is read from an optional YAML file, a .env file and PUSHUP_*
environment variables, in increasing order of precedence.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
