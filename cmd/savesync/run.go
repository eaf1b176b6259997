package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/savesync/savesync/internal/config"
	"github.com/savesync/savesync/internal/daemon"
	"github.com/savesync/savesync/internal/dashboard"
	"github.com/savesync/savesync/internal/journal"
	"github.com/savesync/savesync/internal/logging"
	"github.com/savesync/savesync/internal/vcs"
	"github.com/savesync/savesync/internal/vcs/git"
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "daemon",
	Short:   "Watch the save directory and push changes until interrupted",
	Long: `Watch the save directory and push every changed save file to the remote.

The directory must be the root of a git working tree with the configured
remote. Before watching, savesync checks that the internet is reachable and
exits with status 1 if it is not (disable with --skip-connectivity).

Each push re-stages the changed files, commits them in one commit and pushes
the branch. A stale .git/index.lock left by a crashed git process is removed
first. On SIGINT or SIGTERM pending files get one last push; if that push
fails the exit status is 1.

Example usage:
  savesync run                              # watch the current directory
  savesync run --watch-dir ~/memcards       # watch another working tree
  savesync run --poll --dashboard :7777     # poll a network share, serve a live view`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindings := map[string]string{
			"watch_dir":         "watch-dir",
			"remote":            "remote",
			"branch":            "branch",
			"batch_delay":       "batch-delay",
			"git_timeout":       "git-timeout",
			"watch.extension":   "extension",
			"watch.use_polling": "poll",
			"connectivity.skip": "skip-connectivity",
			"dashboard.addr":    "dashboard",
			"history.enabled":   "history",
		}
		for key, flag := range bindings {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Decode(v)
		if err != nil {
			return err
		}

		logger, closeLog, err := logging.New(logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runDaemon(ctx, cfg, logger)
	},
}

// runDaemon wires every component from cfg and blocks until ctx is
// cancelled and the final drain is done.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Connectivity.Skip {
		logger.Info("connectivity check skipped")
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Connectivity.Timeout)
		err := daemon.CheckConnectivity(probeCtx, daemon.NewHTTPProber(cfg.Connectivity.URL, cfg.Connectivity.Timeout), logger)
		cancel()
		if err != nil {
			return err
		}
	}

	runner := vcs.NewExecRunner(logger.With("component", "git"))
	runner.Timeout = cfg.GitTimeout
	repo, err := git.Detect(ctx, cfg.WatchDir, runner)
	if err != nil {
		return fmt.Errorf("watch directory must be a git repository root: %w", err)
	}

	hasRemote, err := repo.HasRemote(ctx, cfg.Remote)
	if err != nil {
		return err
	}
	if !hasRemote {
		return fmt.Errorf("remote %q: %w", cfg.Remote, vcs.ErrNoRemote)
	}
	preflight(ctx, repo, cfg, logger)

	coordinator, err := daemon.NewCoordinator(daemon.NewChangeQueue(), repo, daemon.CoordinatorConfig{
		Remote:       cfg.Remote,
		Branch:       cfg.Branch,
		CommitPrefix: cfg.CommitPrefix,
		BatchDelay:   cfg.BatchDelay,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	watcher, err := daemon.NewWatcher(daemon.WatcherConfig{
		Root:               repo.RepoRoot(),
		UsePolling:         cfg.Watch.UsePolling,
		PollInterval:       cfg.Watch.PollInterval,
		IgnoreInitial:      cfg.Watch.IgnoreInitial,
		Ignore:             cfg.Watch.Ignore,
		StabilityThreshold: cfg.Watch.StabilityThreshold,
		SettlePoll:         cfg.Watch.SettlePoll,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	d, err := daemon.New(watcher, coordinator, daemon.Config{
		Extension:     cfg.Watch.Extension,
		ShutdownGrace: cfg.Shutdown.Grace,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		j, err := journal.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		coordinator.AddObserver(journal.NewRecorder(j, logger))
		logger.Debug("recording attempts", "path", j.Path())
	}

	if cfg.Dashboard.Addr != "" {
		server := dashboard.NewServer(dashboard.Config{
			Addr: cfg.Dashboard.Addr,
			Status: func() ([]string, bool) {
				return coordinator.Queue().Snapshot(), coordinator.InProgress()
			},
			Logger: logger,
		})
		coordinator.AddObserver(dashboard.NewHandler(server, logger))
		d.AddService(server.Run)
	}

	err = d.Run(ctx)
	if errors.Is(err, daemon.ErrDrainFailed) {
		logger.Error("final push failed, exiting with error", "error", err)
	}
	return err
}

// preflight warns about repository states in which pushes will fail or go
// somewhere unexpected. None of them stops the daemon.
func preflight(ctx context.Context, repo *git.Git, cfg *config.Config, logger *slog.Logger) {
	if version, err := repo.Version(ctx); err == nil {
		logger.Info("using git", "version", version)
	}
	if url, err := repo.RemoteURL(ctx, cfg.Remote); err == nil {
		logger.Info("pushing to remote", "remote", cfg.Remote, "url", url, "branch", cfg.Branch)
	}

	branch, err := repo.CurrentBranch(ctx)
	switch {
	case err != nil:
		logger.Warn("could not determine current branch", "error", err)
	case branch == "":
		logger.Warn("HEAD is detached; commits will not be on the pushed branch", "branch", cfg.Branch)
	case branch != cfg.Branch:
		logger.Warn("checked-out branch differs from the pushed branch", "checked_out", branch, "branch", cfg.Branch)
	}

	if repo.IsInRebaseOrMerge() {
		logger.Warn("repository is in the middle of a rebase or merge; commits will fail until it is finished")
	}
	if conflicts, err := repo.ConflictedFiles(ctx); err == nil && len(conflicts) > 0 {
		logger.Warn("repository has unresolved conflicts", "files", conflicts)
	}
}

func init() {
	runCmd.Flags().StringP("watch-dir", "d", ".", "git working tree holding the save files")
	runCmd.Flags().String("remote", "origin", "remote to push to")
	runCmd.Flags().String("branch", "main", "branch to push")
	runCmd.Flags().Duration("batch-delay", 0, "wait this long after a change before pushing, to batch bursts")
	runCmd.Flags().Duration("git-timeout", 0, "kill a git command that runs longer than this (0 waits)")
	runCmd.Flags().String("extension", ".ps2", "only files with this suffix are pushed")
	runCmd.Flags().Bool("poll", false, "poll the directory instead of using file system notifications")
	runCmd.Flags().Bool("skip-connectivity", false, "do not check internet reachability at startup")
	runCmd.Flags().String("dashboard", "", "serve a live WebSocket dashboard on this address (e.g. 127.0.0.1:7777)")
	runCmd.Flags().Bool("history", true, "record attempts in the history database")

	rootCmd.AddCommand(runCmd)
}
