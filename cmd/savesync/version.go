package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: "setup",
	Short:   "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		commit := ""
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 12 {
					commit = s.Value[:12]
				}
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "savesync %s", Version)
		if commit != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", commit)
		}
		fmt.Fprintf(cmd.OutOrStdout(), " %s/%s %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
