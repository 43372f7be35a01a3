// Package report shapes raw commit change sets into the summaries the
// notifiers render: ignored files removed, surviving files grouped by
// category, bugfix commits flagged, long listings truncated to a count.
package report

import (
	"path"
	"strings"
	"time"

	"github.com/gitreporter/git-reporter/internal/bugfix"
	"github.com/gitreporter/git-reporter/internal/git"
	"github.com/gitreporter/git-reporter/internal/ignore"
)

// DefaultMaxFilesPerCategory is how many files a category lists before
// the remainder collapses into a count.
const DefaultMaxFilesPerCategory = 5

// OtherCategory collects files whose extension matches no category.
const OtherCategory = "Other"

// Category maps a display name to the file extensions it covers.
type Category struct {
	Name       string
	Extensions []string
}

// DefaultCategories returns the stock categories for an Unreal Engine
// project tree.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Blueprints", Extensions: []string{".uasset"}},
		{Name: "C++", Extensions: []string{".cpp", ".h"}},
		{Name: "Content", Extensions: []string{".umap", ".uproject"}},
		{Name: "Config", Extensions: []string{".ini", ".config"}},
	}
}

// CategoryChanges lists the surviving files of one category, truncated
// to the builder's per-category cap.
type CategoryChanges struct {
	Name  string
	Files []git.FileChange
	More  int // files beyond the cap, 0 when nothing was truncated
}

// CommitReport is the shaped summary of a single commit.
type CommitReport struct {
	Commit     git.CommitInfo
	Categories []CategoryChanges
	Bugfix     bool
	TotalFiles int // files kept after filtering
	Filtered   int // files dropped by the ignore rules
}

// Digest summarizes one polling cycle: uncommitted work in the tree
// plus the commits the cycle picked up, newest first.
type Digest struct {
	Project     string
	When        time.Time
	Uncommitted []git.StatusEntry
	Recent      []git.CommitInfo
}

// Options configures a Builder. Zero values select the defaults.
type Options struct {
	Rules      *ignore.RuleSet
	Categories []Category
	Bugfix     *bugfix.Detector
	MaxFiles   int
}

// Builder turns commit change sets into reports using a fixed rule set
// and category map.
type Builder struct {
	rules    *ignore.RuleSet
	detector *bugfix.Detector
	byExt    map[string]string
	maxFiles int
}

// NewBuilder creates a Builder. Extension lookups are first match wins,
// so an extension claimed by two categories stays with the earlier one.
func NewBuilder(opts Options) *Builder {
	categories := opts.Categories
	if categories == nil {
		categories = DefaultCategories()
	}
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFilesPerCategory
	}

	byExt := make(map[string]string)
	for _, cat := range categories {
		for _, ext := range cat.Extensions {
			key := strings.ToLower(ext)
			if !strings.HasPrefix(key, ".") {
				key = "." + key
			}
			if _, taken := byExt[key]; !taken {
				byExt[key] = cat.Name
			}
		}
	}

	return &Builder{
		rules:    opts.Rules,
		detector: opts.Bugfix,
		byExt:    byExt,
		maxFiles: maxFiles,
	}
}

// Build shapes one commit. The second return is false when the commit
// touched files but every one was filtered out; commits with no changes
// at all (merges) still produce a report.
func (b *Builder) Build(cs git.CommitChangeSet) (*CommitReport, bool) {
	kept := b.rules.Filter(cs.Changes)
	if len(cs.Changes) > 0 && len(kept) == 0 {
		return nil, false
	}

	rep := &CommitReport{
		Commit:     cs.Commit,
		Bugfix:     b.detector.IsBugfix(cs.Commit.Message),
		TotalFiles: len(kept),
		Filtered:   len(cs.Changes) - len(kept),
	}

	// Categories appear in the order their first file does, and files
	// keep their change-set order within each category.
	index := make(map[string]int)
	for _, change := range kept {
		name := b.Categorize(change.Path)
		i, seen := index[name]
		if !seen {
			i = len(rep.Categories)
			index[name] = i
			rep.Categories = append(rep.Categories, CategoryChanges{Name: name})
		}
		if len(rep.Categories[i].Files) < b.maxFiles {
			rep.Categories[i].Files = append(rep.Categories[i].Files, change)
		} else {
			rep.Categories[i].More++
		}
	}
	return rep, true
}

// Categorize returns the category name for a file path.
func (b *Builder) Categorize(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if name, ok := b.byExt[ext]; ok {
		return name
	}
	return OtherCategory
}

// BuildDigest shapes a cycle digest. Commits arrive oldest first from
// the poll and are listed newest first, the way git log prints them.
func (b *Builder) BuildDigest(project string, when time.Time, status []git.StatusEntry, commits []git.CommitInfo) *Digest {
	d := &Digest{
		Project:     project,
		When:        when,
		Uncommitted: b.rules.FilterStatus(status),
	}
	for i := len(commits) - 1; i >= 0; i-- {
		d.Recent = append(d.Recent, commits[i])
	}
	return d
}
