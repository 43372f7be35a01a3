package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Each commit record is prefixed by 0x1e (record separator), then
// NUL-separated header fields ending with a newline, then the --raw and
// --numstat sections. This makes the combined output reliably
// parseable as records split by 0x1e.
const gitLogFormat = "%x1e%H%x00%P%x00%cI%x00%an%x00%ae%x00%s%n"

type gitRawEntry struct {
	srcMode gitFileMode
	dstMode gitFileMode
	status  string // e.g. "M", "A", "D", "R100"
	path    string // destination path (or path for non-renames)
	oldPath string // source path for renames
}

type gitNumstat struct {
	added   int
	deleted int
}

// gitFileMode represents a Git file mode as an octal value, as printed
// by git --raw output.
type gitFileMode uint32

const (
	gitFileModeEmpty   gitFileMode = 0
	gitFileModeRegular gitFileMode = 0100644
	gitFileModeExec    gitFileMode = 0100755
	gitFileModeSymlink gitFileMode = 0120000
)

// IsFile returns true for regular files, executables and symlinks.
// Submodule entries (160000) are not files.
func (m gitFileMode) IsFile() bool {
	return m == gitFileModeRegular || m == gitFileModeExec || m == gitFileModeSymlink
}

func parseGitFileMode(s string) (gitFileMode, error) {
	if s == "" {
		return gitFileModeEmpty, nil
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return gitFileModeEmpty, fmt.Errorf("parse file mode %q: %w", s, err)
	}
	return gitFileMode(v), nil
}

func (r *HistoryReader) commitsSinceCLI(ctx context.Context, cursor string) (*Poll, error) {
	head, err := r.headCLI(ctx)
	if err != nil {
		return nil, err
	}

	poll := &Poll{Head: head}
	if cursor == head {
		return poll, nil
	}

	if cursor == "" {
		commits, err := r.logCLI(ctx, "-n", "1", head)
		if err != nil {
			return nil, err
		}
		poll.Commits = commits
		return poll, nil
	}

	reachable, err := r.isAncestorCLI(ctx, cursor, head)
	if err != nil {
		return nil, err
	}
	if !reachable {
		poll.CursorLost = true
		commits, err := r.logCLI(ctx, "-n", strconv.Itoa(r.opts.MaxCommits), head)
		if err != nil {
			return nil, err
		}
		poll.Commits, _ = window(commits, r.opts.MaxCommits)
		total, err := r.revListCountCLI(ctx, head)
		if err != nil {
			return nil, err
		}
		if total > len(poll.Commits) {
			poll.Skipped = total - len(poll.Commits)
		}
		return poll, nil
	}

	commits, err := r.logCLI(ctx, cursor+".."+head)
	if err != nil {
		return nil, err
	}
	poll.Commits, poll.Skipped = window(commits, r.opts.MaxCommits)
	return poll, nil
}

func (r *HistoryReader) worktreeStatusCLI(ctx context.Context) ([]StatusEntry, error) {
	out, err := r.gitOutput(ctx, "status", "--porcelain", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	entries, err := parseStatusPorcelain(out)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (r *HistoryReader) fetchCLI(ctx context.Context) error {
	_, err := r.gitOutput(ctx, "fetch", "--quiet", r.opts.Remote)
	return err
}

// headCLI resolves the configured revision to a full commit SHA.
func (r *HistoryReader) headCLI(ctx context.Context) (string, error) {
	rev := strings.TrimSpace(r.opts.Branch)
	if rev == "" {
		rev = "HEAD"
	}
	out, err := r.gitOutput(ctx, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// isAncestorCLI reports whether the cursor commit is reachable from
// head. A non-zero exit covers both "not an ancestor" and "unknown
// object".
func (r *HistoryReader) isAncestorCLI(ctx context.Context, cursor, head string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", r.opts.RepoPath,
		"merge-base", "--is-ancestor", cursor, head)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("git merge-base failed: %w", err)
}

func (r *HistoryReader) revListCountCLI(ctx context.Context, rev string) (int, error) {
	out, err := r.gitOutput(ctx, "rev-list", "--count", rev)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parse rev-list count: %w", err)
	}
	return n, nil
}

// logCLI runs git log with the record-separator format and returns the
// parsed commits in git's newest-first order. log.showRoot is pinned so
// the initial commit reports its tree as added regardless of user
// config.
func (r *HistoryReader) logCLI(ctx context.Context, extra ...string) ([]CommitChangeSet, error) {
	args := []string{
		"-C", r.opts.RepoPath,
		"-c", "log.showRoot=true",
		"log",
		"--no-color",
		"--pretty=format:" + gitLogFormat,
		"--raw", "-z",
		"--numstat", "-z",
	}
	args = append(args, extra...)

	out, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return nil, gitError("log", err)
	}
	return parseLogRecords(out)
}

// gitOutput runs a git subcommand and returns its stdout. Stderr is kept
// out of the stream because the callers parse stdout strictly; on failure
// it is folded into the error instead.
func (r *HistoryReader) gitOutput(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-C", r.opts.RepoPath}, args...)
	out, err := exec.CommandContext(ctx, "git", full...).Output()
	if err != nil {
		return nil, gitError(args[0], err)
	}
	return out, nil
}

func gitError(sub string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("git %s failed: %w: %s", sub, err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return fmt.Errorf("git %s failed: %w", sub, err)
}

// parseLogRecords parses combined --raw/-z and --numstat/-z log output.
// Merge commits carry no diff sections and come back with an empty
// change list.
func parseLogRecords(out []byte) ([]CommitChangeSet, error) {
	records := bytes.Split(out, []byte{0x1e})
	results := make([]CommitChangeSet, 0, len(records))

	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}

		header, body := splitHeaderBody(rec)
		if len(header) == 0 {
			continue
		}

		fields := bytes.SplitN(header, []byte{0x00}, 6)
		if len(fields) < 6 {
			return nil, fmt.Errorf("unexpected git log header format")
		}

		when, err := time.Parse(time.RFC3339, string(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("parse committer date: %w", err)
		}

		rawEntries, pos, err := parseGitRawEntries(body)
		if err != nil {
			return nil, err
		}
		stats, err := parseGitNumstat(body[pos:], len(rawEntries))
		if err != nil {
			return nil, err
		}

		changes := make([]FileChange, 0, len(rawEntries))
		for i, e := range rawEntries {
			if !e.srcMode.IsFile() && !e.dstMode.IsFile() {
				continue
			}
			if e.path == "" {
				continue
			}
			kind, oldPath := kindFromGitStatus(e.status, e.oldPath)
			changes = append(changes, FileChange{
				Path:         e.path,
				OldPath:      oldPath,
				LinesAdded:   stats[i].added,
				LinesDeleted: stats[i].deleted,
				Kind:         kind,
			})
		}

		results = append(results, CommitChangeSet{
			Commit: CommitInfo{
				SHA:     string(fields[0]),
				When:    when,
				Author:  AuthorInfo{Name: string(fields[3]), Email: string(fields[4])},
				Message: string(fields[5]),
			},
			Changes: changes,
		})
	}

	return results, nil
}

func splitHeaderBody(rec []byte) (header []byte, body []byte) {
	// The pretty line is followed by '\n', then diff output.
	if idx := bytes.IndexByte(rec, '\n'); idx != -1 {
		return rec[:idx], rec[idx+1:]
	}
	return rec, nil
}

func parseGitRawEntries(body []byte) ([]gitRawEntry, int, error) {
	i := 0
	for i < len(body) && (body[i] == '\n' || body[i] == '\r') {
		i++
	}

	var entries []gitRawEntry

	for i < len(body) && body[i] == ':' {
		meta, ok := readUntilNUL(body, &i)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected git --raw format (missing NUL)")
		}

		fields := strings.Fields(string(meta))
		if len(fields) < 5 {
			return nil, 0, fmt.Errorf("unexpected git --raw meta: %q", string(meta))
		}

		srcMode, err := parseGitFileMode(strings.TrimPrefix(fields[0], ":"))
		if err != nil {
			return nil, 0, err
		}
		dstMode, err := parseGitFileMode(fields[1])
		if err != nil {
			return nil, 0, err
		}

		status := fields[len(fields)-1]

		path1, ok := readStringUntilNUL(body, &i)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected git --raw format (missing path)")
		}

		path := path1
		oldPath := ""
		if len(status) > 0 && (status[0] == 'R' || status[0] == 'C') {
			path2, ok := readStringUntilNUL(body, &i)
			if !ok {
				return nil, 0, fmt.Errorf("unexpected git --raw format (missing rename path)")
			}
			oldPath = path1
			path = path2
		}

		entries = append(entries, gitRawEntry{
			srcMode: srcMode,
			dstMode: dstMode,
			status:  status,
			path:    path,
			oldPath: oldPath,
		})
	}

	return entries, i, nil
}

// parseGitNumstat parses count entries of `--numstat -z` output. A
// rename entry has an empty name field followed by the two paths, so it
// is self-delimiting.
func parseGitNumstat(body []byte, count int) ([]gitNumstat, error) {
	stats := make([]gitNumstat, 0, count)
	i := 0
	for i < len(body) && (body[i] == '\n' || body[i] == '\r') {
		i++
	}

	for len(stats) < count {
		added, ok, err := readNumstatInt(body, &i, '\t')
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("unexpected git --numstat format (added)")
		}

		deleted, ok, err := readNumstatInt(body, &i, '\t')
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("unexpected git --numstat format (deleted)")
		}

		// Paths come from --raw, so the names here are only consumed.
		name, ok := readStringUntilNUL(body, &i)
		if !ok {
			return nil, fmt.Errorf("unexpected git --numstat format (path)")
		}
		if name == "" {
			if _, ok := readStringUntilNUL(body, &i); !ok {
				return nil, fmt.Errorf("unexpected git --numstat format (old path)")
			}
			if _, ok := readStringUntilNUL(body, &i); !ok {
				return nil, fmt.Errorf("unexpected git --numstat format (new path)")
			}
		}

		stats = append(stats, gitNumstat{added: added, deleted: deleted})
	}

	return stats, nil
}

// parseStatusPorcelain parses `git status --porcelain -z` output.
// Entries are `XY path`, NUL-terminated, with renames adding the
// original path as an extra NUL field.
func parseStatusPorcelain(data []byte) ([]StatusEntry, error) {
	parts := bytes.Split(data, []byte{0x00})
	entries := make([]StatusEntry, 0, len(parts))

	skipNext := false
	for _, part := range parts {
		if skipNext {
			skipNext = false
			continue
		}
		if len(part) == 0 {
			continue
		}
		if len(part) < 4 || part[2] != ' ' {
			return nil, fmt.Errorf("unexpected git status entry: %q", string(part))
		}

		x, y := part[0], part[1]
		if x == 'R' || x == 'C' || y == 'R' || y == 'C' {
			skipNext = true
		}
		entries = append(entries, StatusEntry{
			Staging:  x,
			Worktree: y,
			Path:     string(part[3:]),
		})
	}

	return entries, nil
}

func kindFromGitStatus(status, oldPath string) (ChangeKind, string) {
	if status == "" {
		return ChangeKindModified, ""
	}
	switch status[0] {
	case 'A':
		return ChangeKindAdded, ""
	case 'D':
		return ChangeKindDeleted, ""
	case 'R':
		return ChangeKindRenamed, oldPath
	default:
		return ChangeKindModified, ""
	}
}

func readUntilNUL(b []byte, i *int) ([]byte, bool) {
	if *i >= len(b) {
		return nil, false
	}
	j := bytes.IndexByte(b[*i:], 0)
	if j == -1 {
		return nil, false
	}
	start := *i
	end := *i + j
	*i = end + 1
	return b[start:end], true
}

func readStringUntilNUL(b []byte, i *int) (string, bool) {
	raw, ok := readUntilNUL(b, i)
	if !ok {
		return "", false
	}
	return string(raw), true
}

func readNumstatInt(b []byte, i *int, delim byte) (int, bool, error) {
	if *i >= len(b) {
		return 0, false, nil
	}
	j := bytes.IndexByte(b[*i:], delim)
	if j == -1 {
		return 0, false, nil
	}
	field := b[*i : *i+j]
	*i = *i + j + 1

	if len(field) == 1 && field[0] == '-' {
		return 0, true, nil
	}
	n, err := strconv.Atoi(string(field))
	if err != nil {
		return 0, true, fmt.Errorf("parse numstat int %q: %w", string(field), err)
	}
	return n, true, nil
}
