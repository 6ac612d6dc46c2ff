package main

import (
	_ "embed"
	"os"

	"github.com/spf13/cobra"
	"lecca.io/oasys-watchtower/internal/logger"
)

//go:embed config.example.yml
var configExample []byte

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "oasys-watchtower",
	Short:         "Oasys validator monitor",
	Long:          "Periodically checks Oasys validators for activity, jailing and block production, and alerts on problems.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ~/.oasys-watchtower/config.yml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newSummaryCmd(),
		newNotifyTestCmd(),
		newVersionCmd(),
	)
}

func main() {
	logger.Init()

	if err := rootCmd.Execute(); err != nil {
		logger.Error("SYS", "%v", err)
		os.Exit(1)
	}
}
