package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xdg/tether/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage agent configuration",
	Long: `Manage tether's configuration.

The configuration file is stored at ~/.config/tether/config.yaml
(or $XDG_CONFIG_HOME/tether/config.yaml if XDG_CONFIG_HOME is set).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective config",
	Long: `Print the effective configuration as YAML.

If no config file exists, shows the default configuration.`,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	Run:   runConfigPathCmd,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default config file",
	Long: `Create the default configuration file if it doesn't exist.

This creates a fully-commented configuration file with all default
values. If the file already exists, this command does nothing.`,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

func runConfigPathCmd(cmd *cobra.Command, args []string) {
	fmt.Println(config.Path())
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefaultConfig(); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	fmt.Printf("Created default config at: %s\n", config.Path())
	return nil
}
