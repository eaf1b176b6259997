package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/savesync/savesync/internal/vcs"
)

// HasRemote returns true if the named remote is configured
func (g *Git) HasRemote(ctx context.Context, name string) (bool, error) {
	out, err := g.Exec(ctx, "remote")
	if err != nil {
		return false, fmt.Errorf("git remote failed: %w", err)
	}

	for _, line := range vcs.ParseLines(out.Stdout) {
		if line == name {
			return true, nil
		}
	}

	return false, nil
}

// Push pushes branch to remote
func (g *Git) Push(ctx context.Context, remote, branch string) error {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}

	out, err := g.Exec(ctx, "push", remote, branch)
	if err != nil {
		combined := out.Stdout + out.Stderr

		// Check for push rejection
		if strings.Contains(combined, "rejected") || strings.Contains(combined, "non-fast-forward") {
			return fmt.Errorf("git push failed: %w: %w", vcs.ErrPushRejected, err)
		}

		return fmt.Errorf("git push failed: %w", err)
	}

	return nil
}
