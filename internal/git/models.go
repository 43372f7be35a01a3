package git

import (
	"fmt"
	"strings"
	"time"
)

// CommitInfo represents minimal information about a Git commit.
type CommitInfo struct {
	SHA     string
	When    time.Time
	Author  AuthorInfo
	Message string
}

// ShortSHA returns the abbreviated commit hash used in reports.
func (c CommitInfo) ShortSHA() string {
	if len(c.SHA) <= 7 {
		return c.SHA
	}
	return c.SHA[:7]
}

// AuthorInfo represents commit author information.
type AuthorInfo struct {
	Name  string
	Email string
}

// String returns the author in "Name <email>" form.
func (a AuthorInfo) String() string {
	if a.Email == "" {
		return a.Name
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// FileChange represents a file change within a commit.
type FileChange struct {
	Path         string
	OldPath      string // For renames
	LinesAdded   int
	LinesDeleted int
	Kind         ChangeKind
}

// Churn returns total lines changed (added + deleted).
func (f FileChange) Churn() int {
	return f.LinesAdded + f.LinesDeleted
}

// ChangeKind represents the type of change.
type ChangeKind int

const (
	ChangeKindAdded ChangeKind = iota
	ChangeKindModified
	ChangeKindDeleted
	ChangeKindRenamed
)

// String returns a string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeKindAdded:
		return "added"
	case ChangeKindModified:
		return "modified"
	case ChangeKindDeleted:
		return "deleted"
	case ChangeKindRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Letter returns the single-letter marker used in change listings.
func (k ChangeKind) Letter() string {
	switch k {
	case ChangeKindAdded:
		return "A"
	case ChangeKindModified:
		return "M"
	case ChangeKindDeleted:
		return "D"
	case ChangeKindRenamed:
		return "R"
	default:
		return "?"
	}
}

// CommitChangeSet bundles a commit with its file changes.
type CommitChangeSet struct {
	Commit  CommitInfo
	Changes []FileChange
}

// StatusEntry represents one uncommitted change in the working tree,
// in the shape of a `git status --porcelain` line.
type StatusEntry struct {
	Staging  byte
	Worktree byte
	Path     string
}

// Line renders the entry as a porcelain status line.
func (s StatusEntry) Line() string {
	return fmt.Sprintf("%c%c %s", s.Staging, s.Worktree, s.Path)
}

// Backend selects how repository history is read.
type Backend string

const (
	// BackendGoGit reads history in-process through go-git.
	BackendGoGit Backend = "gogit"
	// BackendCLI shells out to the git executable.
	BackendCLI Backend = "cli"
)

// ParseBackend parses a backend name from configuration.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(BackendGoGit), "go-git":
		return BackendGoGit, nil
	case string(BackendCLI), "git":
		return BackendCLI, nil
	default:
		return "", fmt.Errorf("unknown git backend %q", s)
	}
}

// ReadOptions configures the history reader.
type ReadOptions struct {
	RepoPath   string
	Branch     string // Revision to watch; empty means HEAD
	MaxCommits int    // Upper bound on commits returned per poll
	Remote     string // Remote fetched before polling; empty means "origin"
	Backend    Backend
}
