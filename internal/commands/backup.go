package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	constants "vpsdash/config"
	"vpsdash/internal/backup"
	"vpsdash/internal/client"
	"vpsdash/internal/ui"
)

// NewBackupCmd creates the backup command with subcommands
func NewBackupCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Trigger, inspect and cancel backup runs",
		Long: `Talk to the running agent's backup orchestrator.

Examples:
  vpsdash backup run --wait     # start a run and follow it
  vpsdash backup list           # recent runs, the active one first
  vpsdash backup show 12        # one run with its step log
  vpsdash backup cancel 12      # stop run 12 at the next step boundary`,
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "agent API address (default from config)")

	cl := func() *client.Client { return client.New(resolveAddr(addr)) }

	cmd.AddCommand(newBackupRunCmd(cl))
	cmd.AddCommand(newBackupListCmd(cl))
	cmd.AddCommand(newBackupShowCmd(cl))
	cmd.AddCommand(newBackupCancelCmd(cl))
	return cmd
}

func newBackupRunCmd(cl func() *client.Client) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a manual backup run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cl()
			id, err := c.Trigger(cmd.Context())
			if errors.Is(err, client.ErrAlreadyRunning) {
				ui.PrintStatus("warning", "A backup run is already in progress; see 'vpsdash backup list'")
				return err
			}
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return err
			}
			ui.PrintStatus("success", fmt.Sprintf("Backup run #%d started", id))
			if !wait {
				return nil
			}

			var final backup.Run
			_, err = ui.Spin(os.Stdout, fmt.Sprintf("Waiting for run #%d", id), func(update func(string)) (string, error) {
				run, err := c.WaitRun(cmd.Context(), id, time.Second, progress(update))
				final = run
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Run #%d finished: %s", id, run.Outcome), nil
			})
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderRun(final))
			if final.Outcome != backup.OutcomeSuccess {
				return fmt.Errorf("run #%d ended %s", id, final.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the run to finish")
	return cmd
}

func progress(update func(string)) func(backup.Run) {
	return func(run backup.Run) {
		if step, ok := run.LastStep(); ok {
			update(fmt.Sprintf("Run #%d: %s attempt %d %s", run.ID, step.Step, step.Attempt, step.Outcome))
		}
	}
}

func newBackupListCmd(cl func() *client.Client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent backup runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := cl().Runs(cmd.Context(), limit)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderRuns(runs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", constants.DEFAULT_RUNS_LIMIT, "maximum number of runs")
	return cmd
}

func newBackupShowCmd(cl func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one backup run with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			run, err := cl().Run(cmd.Context(), id)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderRun(run))
			return nil
		},
	}
}

func newBackupCancelCmd(cl func() *client.Client) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel the active run at its next step boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			if err := cl().Cancel(cmd.Context(), id, reason); err != nil {
				ui.PrintStatus("error", err.Error())
				return err
			}
			ui.PrintStatus("success", fmt.Sprintf("Cancellation of run #%d requested", id))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the run")
	return cmd
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}
