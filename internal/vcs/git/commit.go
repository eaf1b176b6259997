package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/savesync/savesync/internal/vcs"
)

// Untrack removes a file from the index while keeping it on disk.
//
// --ignore-unmatch lets this succeed for a file git has never tracked, so a
// brand new save goes through the same untrack/add sequence as an update.
func (g *Git) Untrack(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	if _, err := g.Exec(ctx, "rm", "--cached", "--ignore-unmatch", "--", path); err != nil {
		return fmt.Errorf("git rm --cached failed: %w", err)
	}

	return nil
}

// Add stages a single file for commit
func (g *Git) Add(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	if _, err := g.Exec(ctx, "add", "--", path); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}

	return nil
}

// Commit records the staged index with the given message
func (g *Git) Commit(ctx context.Context, message string) error {
	if message == "" {
		return fmt.Errorf("commit message is required")
	}

	out, err := g.Exec(ctx, "commit", "-m", message)
	if err != nil {
		// git reports "nothing to commit" on stdout with exit status 1
		if strings.Contains(out.Stdout, "nothing to commit") || strings.Contains(out.Stdout, "nothing added to commit") {
			return fmt.Errorf("git commit failed: %w: %w", vcs.ErrNothingToCommit, err)
		}
		return fmt.Errorf("git commit failed: %w", err)
	}

	return nil
}

// CommitMessage builds the message for a re-upload commit listing every file.
func CommitMessage(prefix string, files []string) string {
	if prefix == "" {
		prefix = "Force re-upload saves"
	}
	return prefix + ": " + strings.Join(files, ", ")
}
