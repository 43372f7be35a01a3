package git

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// DefaultMaxCommits bounds the number of commits reported per poll when
// the configuration does not say otherwise.
const DefaultMaxCommits = 5

// HistoryReader reads commit history from a Git repository. The
// repository is reopened on every call, so a path that is missing on one
// poll can succeed on the next.
type HistoryReader struct {
	opts ReadOptions
}

// NewHistoryReader creates a new history reader for the given repository.
func NewHistoryReader(opts ReadOptions) (*HistoryReader, error) {
	if strings.TrimSpace(opts.RepoPath) == "" {
		return nil, errors.New("repository path is required")
	}
	if opts.MaxCommits <= 0 {
		opts.MaxCommits = DefaultMaxCommits
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.Backend == "" {
		opts.Backend = BackendGoGit
	}
	return &HistoryReader{opts: opts}, nil
}

// CommitsSince returns the commits after the cursor SHA, oldest first,
// capped at MaxCommits. An empty cursor reports only the head commit; a
// cursor missing from reachable history falls back to the most recent
// commits and sets CursorLost.
func (r *HistoryReader) CommitsSince(ctx context.Context, cursor string) (*Poll, error) {
	if r.opts.Backend == BackendCLI {
		return r.commitsSinceCLI(ctx, cursor)
	}

	repo, err := r.open()
	if err != nil {
		return nil, err
	}
	head, err := r.resolveHead(repo)
	if err != nil {
		return nil, err
	}

	poll := &Poll{Head: head.String()}
	if cursor == poll.Head {
		return poll, nil
	}

	if cursor == "" {
		c, err := repo.CommitObject(head)
		if err != nil {
			return nil, fmt.Errorf("read commit %s: %w", head, err)
		}
		cs, err := r.changeSet(ctx, c)
		if err != nil {
			return nil, err
		}
		poll.Commits = []CommitChangeSet{cs}
		return poll, nil
	}

	// Committer-time order keeps the walk from visiting commits older
	// than the cursor before the cursor itself on merge topologies.
	iter, err := repo.Log(&gogit.LogOptions{From: head, Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var newestFirst []CommitChangeSet
	found := false
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Hash.String() == cursor {
			found = true
			return storer.ErrStop
		}
		cs, err := r.changeSet(ctx, c)
		if err != nil {
			return err
		}
		newestFirst = append(newestFirst, cs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk history: %w", err)
	}

	poll.CursorLost = !found
	poll.Commits, poll.Skipped = window(newestFirst, r.opts.MaxCommits)
	return poll, nil
}

// WorktreeStatus returns the uncommitted changes in the working tree,
// sorted by path.
func (r *HistoryReader) WorktreeStatus(ctx context.Context) ([]StatusEntry, error) {
	if r.opts.Backend == BackendCLI {
		return r.worktreeStatusCLI(ctx)
	}

	repo, err := r.open()
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}

	entries := make([]StatusEntry, 0, len(status))
	for path, fs := range status {
		if fs.Staging == gogit.Unmodified && fs.Worktree == gogit.Unmodified {
			continue
		}
		entries = append(entries, StatusEntry{
			Staging:  byte(fs.Staging),
			Worktree: byte(fs.Worktree),
			Path:     path,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Fetch updates the configured remote. A remote that is already up to
// date is not an error.
func (r *HistoryReader) Fetch(ctx context.Context) error {
	if r.opts.Backend == BackendCLI {
		return r.fetchCLI(ctx)
	}

	repo, err := r.open()
	if err != nil {
		return err
	}
	err = repo.FetchContext(ctx, &gogit.FetchOptions{RemoteName: r.opts.Remote})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", r.opts.Remote, err)
	}
	return nil
}

func (r *HistoryReader) open() (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(r.opts.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", r.opts.RepoPath, err)
	}
	return repo, nil
}

func (r *HistoryReader) resolveHead(repo *gogit.Repository) (plumbing.Hash, error) {
	if rev := strings.TrimSpace(r.opts.Branch); rev != "" && !strings.EqualFold(rev, "HEAD") {
		h, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("resolve revision %q: %w", rev, err)
		}
		return *h, nil
	}
	ref, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash(), nil
}

func (r *HistoryReader) changeSet(ctx context.Context, c *object.Commit) (CommitChangeSet, error) {
	changes, err := r.commitChanges(ctx, c)
	if err != nil {
		return CommitChangeSet{}, err
	}
	return CommitChangeSet{
		Commit: CommitInfo{
			SHA:     c.Hash.String(),
			When:    c.Committer.When,
			Author:  AuthorInfo{Name: c.Author.Name, Email: c.Author.Email},
			Message: messageSubject(c.Message),
		},
		Changes: changes,
	}, nil
}

// commitChanges extracts file changes from a commit. The root commit
// reports its whole tree as added; merge commits carry no file list,
// matching `git log --name-status`.
func (r *HistoryReader) commitChanges(ctx context.Context, c *object.Commit) ([]FileChange, error) {
	switch c.NumParents() {
	case 0:
		return initialCommitChanges(c)
	case 1:
	default:
		return nil, nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("read parent of %s: %w", c.Hash, err)
	}
	patch, err := parent.PatchContext(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", c.Hash, err)
	}

	var changes []FileChange
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()

		var path, oldPath string
		var kind ChangeKind

		switch {
		case from == nil && to != nil:
			path = to.Path()
			kind = ChangeKindAdded
		case from != nil && to == nil:
			path = from.Path()
			kind = ChangeKindDeleted
		case from != nil && to != nil && from.Path() != to.Path():
			path = to.Path()
			oldPath = from.Path()
			kind = ChangeKindRenamed
		default:
			if to != nil {
				path = to.Path()
			} else if from != nil {
				path = from.Path()
			}
			kind = ChangeKindModified
		}

		if path == "" {
			continue
		}

		added, deleted := chunkLineCounts(fp)
		changes = append(changes, FileChange{
			Path:         path,
			OldPath:      oldPath,
			LinesAdded:   added,
			LinesDeleted: deleted,
			Kind:         kind,
		})
	}

	return changes, nil
}

func initialCommitChanges(c *object.Commit) ([]FileChange, error) {
	iter, err := c.Files()
	if err != nil {
		return nil, fmt.Errorf("read tree of %s: %w", c.Hash, err)
	}
	var changes []FileChange
	err = iter.ForEach(func(f *object.File) error {
		lines := 0
		if bin, err := f.IsBinary(); err == nil && !bin {
			if ls, err := f.Lines(); err == nil {
				lines = len(ls)
			}
		}
		changes = append(changes, FileChange{
			Path:       f.Name,
			LinesAdded: lines,
			Kind:       ChangeKindAdded,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files of %s: %w", c.Hash, err)
	}
	return changes, nil
}

func chunkLineCounts(fp fdiff.FilePatch) (added, deleted int) {
	for _, chunk := range fp.Chunks() {
		n := lineCount(chunk.Content())
		switch chunk.Type() {
		case fdiff.Add:
			added += n
		case fdiff.Delete:
			deleted += n
		}
	}
	return added, deleted
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// messageSubject extracts the first line of a commit message.
func messageSubject(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx != -1 {
		message = message[:idx]
	}
	return strings.TrimSpace(message)
}

// window keeps the most recent max commits of a newest-first slice and
// returns them oldest first, along with the number dropped.
func window(newestFirst []CommitChangeSet, max int) ([]CommitChangeSet, int) {
	skipped := 0
	if max > 0 && len(newestFirst) > max {
		skipped = len(newestFirst) - max
		newestFirst = newestFirst[:max]
	}
	if len(newestFirst) == 0 {
		return nil, skipped
	}
	oldestFirst := make([]CommitChangeSet, len(newestFirst))
	for i, cs := range newestFirst {
		oldestFirst[len(oldestFirst)-1-i] = cs
	}
	return oldestFirst, skipped
}
