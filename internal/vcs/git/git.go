// Package git drives the git command line for savesync.
//
// It wraps exactly the commands the push coordinator needs: untracking and
// re-adding a single file, committing, pushing one branch, and recovering
// from a stale index lock. Every command runs with the repository root as
// working directory through a vcs.Runner, so tests can substitute a fake.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/savesync/savesync/internal/vcs"
)

// Git runs git commands against one repository.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// vcsDir is the .git directory path
	vcsDir string

	runner vcs.Runner
}

// Option configures a Git instance.
type Option func(*Git)

// WithRunner sets the command runner. The default is a vcs.ExecRunner
// logging to slog.Default().
func WithRunner(r vcs.Runner) Option {
	return func(g *Git) {
		g.runner = r
	}
}

// WithVCSDir overrides the metadata directory (default <root>/.git).
func WithVCSDir(dir string) Option {
	return func(g *Git) {
		g.vcsDir = dir
	}
}

// New creates a Git instance rooted at repoRoot without probing the
// repository. Use Detect to validate an on-disk repository first.
func New(repoRoot string, opts ...Option) (*Git, error) {
	if repoRoot == "" {
		return nil, fmt.Errorf("repository root cannot be empty")
	}

	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	g := &Git{
		repoRoot: abs,
		vcsDir:   filepath.Join(abs, ".git"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.runner == nil {
		g.runner = vcs.NewExecRunner(slog.Default())
	}

	return g, nil
}

// Detect verifies that path is the top level of a git repository and returns
// a Git instance for it. The metadata directory is taken from git itself, so
// repositories with a separate git dir work too.
func Detect(ctx context.Context, path string, runner vcs.Runner) (*Git, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	out, err := runner.Run(ctx, absPath, "git", "rev-parse", "--git-dir", "--show-toplevel")
	if err != nil {
		if vcs.IsFatal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", absPath, vcs.ErrNotInVCS)
	}

	lines := vcs.ParseLines(out.Stdout)
	if len(lines) < 2 {
		return nil, fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	gitDir := lines[0]
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}

	top := normalizeRepoRoot(lines[1])
	if top != normalizeRepoRoot(absPath) {
		return nil, fmt.Errorf("%s is inside repository %s but is not its root: %w", absPath, top, vcs.ErrNotInVCS)
	}

	return New(absPath, WithRunner(runner), WithVCSDir(gitDir))
}

// normalizeRepoRoot normalizes the repository root path
// Resolves symlinks and canonicalizes slashes
func normalizeRepoRoot(path string) string {
	// Normalize Windows paths
	path = filepath.FromSlash(path)

	// Resolve symlinks
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return filepath.Clean(path)
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() string {
	return g.repoRoot
}

// VCSDir returns the .git directory path
func (g *Git) VCSDir() string {
	return g.vcsDir
}

// Version returns the git version string
func (g *Git) Version(ctx context.Context) (string, error) {
	out, err := g.runner.Run(ctx, g.repoRoot, "git", "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	return strings.TrimPrefix(vcs.TrimOutput(out.Stdout), "git version "), nil
}

// Exec executes a raw git command in the repository root
func (g *Git) Exec(ctx context.Context, args ...string) (vcs.Output, error) {
	return g.runner.Run(ctx, g.repoRoot, "git", args...)
}
