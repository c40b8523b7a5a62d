package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	constants "vpsdash/config"
	"vpsdash/internal/client"
	"vpsdash/internal/config"
	"vpsdash/internal/process"
	"vpsdash/internal/ui"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	var addr string
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the agent's current health snapshot",
		Long: `Fetch the latest health snapshot from a running agent and render it.

Examples:
  vpsdash status                      # agent from the config file
  vpsdash status --addr 10.0.0.2:8088 # another agent
  vpsdash status --history 5          # also show the last 5 overall statuses`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := client.New(resolveAddr(addr))
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			snap, age, err := cl.Health(ctx)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				printDaemonState()
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderSnapshot(snap, age))

			if history > 0 {
				snaps, err := cl.History(ctx, history)
				if err != nil {
					return err
				}
				ui.PrintSection("History")
				for _, s := range snaps {
					fmt.Fprintln(cmd.OutOrStdout(), ui.RenderKeyValue(s.TakenAt.Local().Format(time.DateTime), ui.RenderBadge(s.OverallStatus)))
				}
				ui.PrintSectionEnd()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "agent API address (default from config)")
	cmd.Flags().IntVar(&history, "history", 0, "number of recent snapshots to list")
	return cmd
}

// resolveAddr prefers the flag, then the config file, then the default
func resolveAddr(flag string) string {
	if flag != "" {
		return flag
	}
	if cfg, err := config.LoadConfig(ConfigPath); err == nil && cfg.API.Listen != "" {
		return cfg.API.Listen
	}
	return constants.DEFAULT_API_LISTEN
}

func printDaemonState() {
	pidFile := constants.PID_FILE
	if cfg, err := config.LoadConfig(ConfigPath); err == nil && cfg.PIDFile != "" {
		pidFile = cfg.PIDFile
	}
	running, pid, err := process.Check(pidFile)
	switch {
	case err != nil:
		ui.PrintStatus("warning", fmt.Sprintf("Could not read %s: %v", pidFile, err))
	case running:
		ui.PrintStatus("info", fmt.Sprintf("Daemon is running (pid %d) but its API did not answer", pid))
	default:
		ui.PrintStatus("info", "Daemon is not running; start it with 'vpsdash service start'")
	}
}
