package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/config"
	"github.com/jackzampolin/toolrun/internal/home"
	"github.com/jackzampolin/toolrun/internal/output"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to the home directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if h.ConfigExists() && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		if !output.IsStructured() {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", h.ConfigPath())
			return nil
		}
		return output.Print(map[string]string{"config": h.ConfigPath()})
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (defaults, file and environment merged)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		return output.Print(config.Entries(mgr.Get()))
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show one effective configuration value",
	Example: `  toolrun config get limits.max_concurrent_tools
  TOOLRUN_CACHE_TTL=0s toolrun config get cache.ttl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		e, err := config.Lookup(mgr.Get(), args[0])
		if err != nil {
			return err
		}
		if def := config.GetDefault(e.Key); def != nil && !output.IsStructured() {
			fmt.Fprintf(cmd.OutOrStdout(), "%v\t(default %v)\n", e.Value, def.Value)
			return nil
		}
		return output.Print(e)
	},
}

func loadConfig() (*config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	return config.NewManager(cfgFile, h.Path())
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}
