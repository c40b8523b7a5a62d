package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vpsdash/internal/config"
	"vpsdash/internal/ui"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the agent configuration",
		Long: `Show the effective configuration (file, VPSDASH_* environment and defaults merged)
or write a starter file.

Examples:
  vpsdash config show
  vpsdash config init                 # writes ~/.vpsdash/config.yaml
  vpsdash config init -c /etc/vpsdash/config.yaml`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(ConfigPath)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ConfigPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				ui.PrintStatus("warning", fmt.Sprintf("%s already exists; use --force to overwrite", path))
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.SaveConfig(config.Default(), path); err != nil {
				ui.PrintStatus("error", err.Error())
				return err
			}
			ui.PrintStatus("success", "Configuration written to "+path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
