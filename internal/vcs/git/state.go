package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/savesync/savesync/internal/vcs"
)

// CurrentBranch returns the checked-out branch name.
// Returns empty string if in detached HEAD state
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.Exec(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		// --quiet exits 1 without output when HEAD is detached
		if vcs.GetExitCode(err) == 1 && strings.TrimSpace(out.Stderr) == "" {
			return "", nil
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}

	return vcs.TrimOutput(out.Stdout), nil
}

// RemoteURL returns the fetch URL of the named remote.
func (g *Git) RemoteURL(ctx context.Context, name string) (string, error) {
	out, err := g.Exec(ctx, "remote", "get-url", name)
	if err != nil {
		return "", fmt.Errorf("remote %q: %w", name, vcs.ErrNoRemote)
	}
	return vcs.TrimOutput(out.Stdout), nil
}

// IsInRebaseOrMerge returns true if currently in a rebase or merge operation
func (g *Git) IsInRebaseOrMerge() bool {
	for _, marker := range []string{"rebase-merge", "rebase-apply", "MERGE_HEAD"} {
		if _, err := os.Stat(filepath.Join(g.vcsDir, marker)); err == nil {
			return true
		}
	}
	return false
}

// unmergedCodes are the porcelain XY codes of conflicted paths.
var unmergedCodes = map[string]bool{
	"DD": true, "AU": true, "UD": true, "UA": true, "DU": true, "AA": true, "UU": true,
}

// ConflictedFiles returns paths with unresolved merge conflicts.
func (g *Git) ConflictedFiles(ctx context.Context) ([]string, error) {
	out, err := g.Exec(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}

	var conflicts []string
	for _, line := range strings.Split(out.Stdout, "\n") {
		if len(line) < 4 {
			continue
		}
		if unmergedCodes[line[:2]] {
			conflicts = append(conflicts, strings.TrimSpace(line[3:]))
		}
	}

	return conflicts, nil
}
