package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/savesync/savesync/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Write a starter savesync.toml",
	Long: `Write a savesync.toml with the default settings.

When run in a terminal the main settings are asked for interactively;
otherwise (or with --yes) the defaults, adjusted by any flags, are written
as is.

Example usage:
  savesync init                             # interactive, writes ./savesync.toml
  savesync init --yes --watch-dir ~/memcards
  savesync init --path ~/.config/savesync/savesync.toml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")
		yes, _ := cmd.Flags().GetBool("yes")

		cfg := config.Defaults()
		if dir, _ := cmd.Flags().GetString("watch-dir"); dir != "" {
			cfg.WatchDir = dir
		}

		if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
			if err := askConfig(cfg); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted, nothing written")
					return nil
				}
				return err
			}
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.WriteFile(path, cfg, force); err != nil {
			return err
		}

		abs, _ := filepath.Abs(path)
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", abs)
		fmt.Fprintln(cmd.OutOrStdout(), "Start syncing with: savesync run")
		return nil
	},
}

// askConfig fills the main settings of cfg from an interactive form.
func askConfig(cfg *config.Config) error {
	required := func(name string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", name)
			}
			return nil
		}
	}

	enableDashboard := cfg.Dashboard.Addr != ""
	checkConnectivity := !cfg.Connectivity.Skip
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Save directory").
				Description("Root of the git working tree holding your memory cards").
				Value(&cfg.WatchDir).
				Validate(required("save directory")),
			huh.NewInput().
				Title("File extension").
				Value(&cfg.Watch.Extension).
				Validate(required("extension")),
			huh.NewInput().
				Title("Remote").
				Value(&cfg.Remote).
				Validate(required("remote")),
			huh.NewInput().
				Title("Branch").
				Value(&cfg.Branch).
				Validate(required("branch")),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Poll the directory?").
				Description("Needed on network shares that do not deliver file notifications").
				Value(&cfg.Watch.UsePolling),
			huh.NewConfirm().
				Title("Check internet reachability at startup?").
				Value(&checkConnectivity),
			huh.NewConfirm().
				Title("Serve a live dashboard on 127.0.0.1:7777?").
				Value(&enableDashboard),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Connectivity.Skip = !checkConnectivity

	if enableDashboard && cfg.Dashboard.Addr == "" {
		cfg.Dashboard.Addr = "127.0.0.1:7777"
	} else if !enableDashboard {
		cfg.Dashboard.Addr = ""
	}
	return nil
}

func init() {
	initCmd.Flags().String("path", config.FileName+".toml", "where to write the config file")
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	initCmd.Flags().BoolP("yes", "y", false, "write defaults without asking")
	initCmd.Flags().String("watch-dir", "", "save directory to record")

	rootCmd.AddCommand(initCmd)
}
