package git

import "context"

// Poll is the result of one polling pass over the repository history.
type Poll struct {
	// Commits holds the new commits since the cursor, oldest first,
	// capped at ReadOptions.MaxCommits.
	Commits []CommitChangeSet
	// Head is the SHA the watched revision pointed at during the poll.
	// The cursor advances here once the commits have been reported.
	Head string
	// Skipped counts new commits dropped because of the MaxCommits cap.
	Skipped int
	// CursorLost reports that the cursor was not found in reachable
	// history (rewritten or foreign); the poll fell back to the most
	// recent commits.
	CursorLost bool
}

// HistorySource defines the interface for inspecting a Git repository.
// This abstraction allows for easier testing and alternative backends.
type HistorySource interface {
	// CommitsSince returns the commits after the given cursor SHA.
	// An empty cursor means a first run: only the head commit is returned.
	CommitsSince(ctx context.Context, cursor string) (*Poll, error)

	// WorktreeStatus returns the uncommitted changes in the working tree.
	WorktreeStatus(ctx context.Context) ([]StatusEntry, error)

	// Fetch updates the configured remote before polling.
	Fetch(ctx context.Context) error
}

// Compile-time interface conformance checks.
var (
	_ HistorySource = (*HistoryReader)(nil)
	_ HistorySource = (*MockHistorySource)(nil)
)
