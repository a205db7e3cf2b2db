package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	envFile    string
	logLevel   string
	rootCmd    = &cobra.Command{
		Use:   "musicgen-worker",
		Short: "MusicGen batch worker - render prompts to audio in object storage",
		Long: `musicgen-worker reads a job file of "prompt ; seconds ; filename" lines,
renders each prompt with the music model, uploads the audio under a
content-addressed key and publishes a CSV cost report. Jobs whose key already
exists in storage are skipped, so re-running a job file is cheap.`,
		SilenceUsage: true,
		Version:      version,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
