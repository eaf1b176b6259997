// Command savesync watches a directory of emulator memory cards and pushes
// every change to a git remote.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/savesync/savesync/internal/config"
)

var (
	cfgFile string

	// v holds layered configuration; it is rebuilt before every command.
	v *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "savesync",
	Short: "Push emulator save files to git as soon as they change",
	Long: `savesync watches a git working tree of memory card files (*.ps2 by default)
and, whenever one is written, re-stages it, commits and pushes to the remote.

Pushes never overlap: changes that arrive while a push is running are queued
and pushed by the next attempt. On Ctrl+C or SIGTERM any pending files get
one last push before exit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v = config.New(cfgFile)
		if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}
		if err := v.BindPFlag("log.format", cmd.Root().PersistentFlags().Lookup("log-format")); err != nil {
			return err
		}
		return config.Read(v)
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
		&cobra.Group{ID: "setup", Title: "Setup and inspection:"},
	)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./savesync.toml, then $XDG_CONFIG_HOME/savesync/savesync.toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
