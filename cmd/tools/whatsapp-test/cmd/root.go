// Package cmd contains the whatsapp-test commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fms-alerts/internal/common/config"
	"fms-alerts/internal/common/logger"
)

var (
	configPath string
	output     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "whatsapp-test",
	Short: "Diagnostic sends for FMS WhatsApp alerts",
	Long: `whatsapp-test builds sample FMS alerts and pushes them through the same
template resolution, storage and delivery path as the webhook.

Examples:
  # Queue a sample overspeed alert
  whatsapp-test send overspeed 966500000000

  # Send immediately, bypassing the queue
  whatsapp-test send ignition_on 966500000000 --vehicle-id V-42 --direct

  # List configured templates
  whatsapp-test templates

  # Show placeholders and fallback text without sending
  whatsapp-test render door_open`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "plain", "output format (plain, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(sendCmd, templatesCmd, renderCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func newLogger() *zap.Logger {
	if verbose {
		return logger.New("debug", "console")
	}
	return logger.New("warn", "console")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printErr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
