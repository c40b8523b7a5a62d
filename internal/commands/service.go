package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"vpsdash/internal/service"
	"vpsdash/internal/ui"
)

// NewServiceCmd creates the service command with subcommands
func NewServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the vpsdash system service",
		Long: `Register the agent with the host supervisor (systemd on Linux, launchd on macOS).

Examples:
  vpsdash service install   # install and enable the service
  vpsdash service start     # start it
  vpsdash service status    # check it
  vpsdash service remove    # stop and remove it`,
	}

	cmd.AddCommand(newServiceInstallCmd())
	cmd.AddCommand(newServiceAction("remove", "Stop and remove the service", func(s *service.Service) (string, error) {
		_, _ = s.Stop()
		return s.Remove()
	}))
	cmd.AddCommand(newServiceAction("start", "Start the service", (*service.Service).Start))
	cmd.AddCommand(newServiceAction("stop", "Stop the service", (*service.Service).Stop))
	cmd.AddCommand(newServiceAction("status", "Show the service status", (*service.Service).Status))

	return cmd
}

func newServiceInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install vpsdash as a system service",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.New()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to create service: %v", err))
				return err
			}

			var extra []string
			if ConfigPath != "" {
				extra = append(extra, "--config", ConfigPath)
			}
			status, err := svc.Install(extra...)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to install: %v", err))
				return err
			}

			ui.PrintStatus("success", status)
			ui.PrintStatus("info", "Run 'vpsdash service start' to start the agent")
			return nil
		},
	}
}

func newServiceAction(use, short string, action func(*service.Service) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.New()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to create service: %v", err))
				return err
			}
			status, err := action(svc)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to %s: %v", use, err))
				return err
			}
			ui.PrintStatus("success", status)
			return nil
		},
	}
}
