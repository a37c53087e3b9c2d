package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/output"
	"github.com/jackzampolin/toolrun/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "toolrun",
	Short: "Run agent tool invocations with caching, concurrency limits and retries",
	Long: `toolrun executes the tool invocations an agent asks for: reading and
searching files, running commands, calling HTTP APIs and managing containers.

Every invocation goes through the same pipeline:
  - read-only results are cached for a TTL
  - a fixed number of permits bounds how many run at once
  - recoverable failures are retried with exponential backoff

Environment variables are loaded from ./.env when present.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		f, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		output.SetFormat(f)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.toolrun/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "toolrun home directory (default: ~/.toolrun)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or text",
	)
	rootCmd.PersistentFlags().BoolVar(
		&debug, "debug", false, "enable debug logging",
	)

	rootCmd.AddCommand(versionCmd)
}
