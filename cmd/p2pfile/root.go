package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Gokul-labb/p2p-proto/config"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "p2pfile",
	Short: "Encrypted peer-to-peer file transfer with text/PDF conversion",
	Long: `p2pfile transfers files between peers over an encrypted transport.
Files travel in chunks with automatic retry; the receiving side can
convert between text and PDF before storing or returning the result.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		logrus.SetLevel(level)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// loadConfig reads configuration from the environment for commands that run
// a node.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// shortID abbreviates a transfer or peer identifier for display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
