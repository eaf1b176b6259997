package vcs

import "errors"

// Sentinel errors. Callers match them with errors.Is; the git package
// wraps them with the failing command and its output.
var (
	// ErrNotInVCS means the watched directory is not a repository root.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable means the git binary could not be started.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrCommandFailed wraps every non-zero exit.
	ErrCommandFailed = errors.New("command failed")

	// ErrLockBusy means index.lock exists and could not be removed.
	ErrLockBusy = errors.New("index lock could not be removed")

	// ErrNoRemote means the configured remote does not exist.
	ErrNoRemote = errors.New("no remote configured")

	// ErrPushRejected means the remote refused the push, usually
	// because it holds commits the local branch lacks.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrNothingToCommit means the staged tree equals HEAD.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrTimeout means a command outlived its runner timeout.
	ErrTimeout = errors.New("operation timed out")
)

// IsRetryable reports whether a later attempt could succeed without
// anyone touching the repository.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrPushRejected), errors.Is(err, ErrLockBusy):
		return true
	}
	return false
}

// IsFatal reports whether no attempt can ever succeed in this process.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotInVCS) || errors.Is(err, ErrVCSNotAvailable)
}
