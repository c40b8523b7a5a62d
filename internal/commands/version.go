package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// GetCurrentVersion is set by main.go so commands can report the build version
var GetCurrentVersion func() string

// ConfigPath is the --config flag shared by every command
var ConfigPath string

func currentVersion() string {
	if GetCurrentVersion == nil {
		return "dev"
	}
	if v := GetCurrentVersion(); v != "" {
		return v
	}
	return "dev"
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vpsdash v%s (%s/%s, %s)\n", currentVersion(), runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
