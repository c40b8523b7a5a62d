package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vpsdash/internal/commands"
	"vpsdash/internal/ui"
)

// VERSION is set during build via ldflags
var VERSION string

// getCurrentVersion retrieves the current version from build flags or version.txt
func getCurrentVersion() string {
	version := VERSION
	if version == "" {
		if versionData, err := os.ReadFile("version.txt"); err == nil {
			version = strings.TrimSpace(string(versionData))
		}
	}
	return version
}

func main() {
	commands.GetCurrentVersion = getCurrentVersion

	rootCmd := &cobra.Command{
		Use:                "vpsdash",
		Short:              "Host health sampling and backup agent",
		DisableSuggestions: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()

			ui.PrintSection("Commands")
			fmt.Print(ui.CreateBeautifulList(map[string]string{
				"status":          "Show the current health snapshot",
				"backup run":      "Start a manual backup",
				"backup list":     "Recent backup runs",
				"config init":     "Write a starter config file",
				"service install": "Run the agent under systemd",
			}))
			ui.PrintSectionEnd()

			ui.PrintStatus("info", "Use 'vpsdash [command] --help' for detailed help")
		},
	}

	rootCmd.PersistentFlags().StringVarP(&commands.ConfigPath, "config", "c", "", "config file (default ~/.vpsdash/config.yaml or /etc/vpsdash/config.yaml)")

	rootCmd.AddCommand(commands.NewDaemonCmd())
	rootCmd.AddCommand(commands.NewStatusCmd())
	rootCmd.AddCommand(commands.NewBackupCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewServiceCmd())
	rootCmd.AddCommand(commands.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
