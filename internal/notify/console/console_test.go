package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gitreporter/git-reporter/internal/git"
	"github.com/gitreporter/git-reporter/internal/report"
)

func TestWriter_Notify(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	rep := &report.CommitReport{
		Commit: git.CommitInfo{
			SHA:     "abc1234def5678900000",
			When:    time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
			Author:  git.AuthorInfo{Name: "Alice", Email: "alice@example.com"},
			Message: "update movement code",
		},
		Categories: []report.CategoryChanges{
			{Name: "C++", Files: []git.FileChange{
				{Path: "Source/Player.cpp", Kind: git.ChangeKindModified},
			}, More: 2},
		},
		TotalFiles: 3,
		Filtered:   1,
	}

	if err := w.Notify(context.Background(), rep); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	out := buf.String()
	for _, expected := range []string{
		"New Commit: abc1234",
		"update movement code",
		"Author: Alice <alice@example.com>",
		"Date:   2025-03-01 10:30:00",
		"C++ Changes:",
		"• [M] Source/Player.cpp",
		"... and 2 more",
		"1 ignored file(s) not shown",
	} {
		if !strings.Contains(out, expected) {
			t.Errorf("output missing %q:\n%s", expected, out)
		}
	}
}

func TestWriter_Notify_BugfixMarker(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	rep := &report.CommitReport{
		Commit: git.CommitInfo{SHA: "abc1234def5678900000", Message: "fix crash"},
		Bugfix: true,
	}
	if err := w.Notify(context.Background(), rep); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if !strings.Contains(buf.String(), "(bugfix)") {
		t.Errorf("output missing bugfix marker:\n%s", buf.String())
	}
}

func TestWriter_NotifyDigest(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	d := &report.Digest{
		Project: "Demo Project",
		When:    time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		Uncommitted: []git.StatusEntry{
			{Staging: ' ', Worktree: 'M', Path: "Config/DefaultEngine.ini"},
		},
		Recent: []git.CommitInfo{
			{SHA: "abc1234def5678900000", Message: "update movement code",
				Author: git.AuthorInfo{Name: "Alice"}, When: time.Now().Add(-time.Hour)},
		},
	}
	if err := w.NotifyDigest(context.Background(), d); err != nil {
		t.Fatalf("NotifyDigest() error: %v", err)
	}

	out := buf.String()
	for _, expected := range []string{
		"Demo Project Update",
		"Report Time: 2025-03-01 10:30:00",
		"Uncommitted Changes:",
		" M Config/DefaultEngine.ini",
		"Recent Commits:",
		"abc1234 - update movement code - by Alice (",
	} {
		if !strings.Contains(out, expected) {
			t.Errorf("output missing %q:\n%s", expected, out)
		}
	}
}

func TestWriter_NotifyDigest_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	d := &report.Digest{Project: "Demo", When: time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)}
	if err := w.NotifyDigest(context.Background(), d); err != nil {
		t.Fatalf("NotifyDigest() error: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "Uncommitted Changes:") {
		t.Errorf("output has an uncommitted section for an empty digest:\n%s", out)
	}
	if strings.Contains(out, "Recent Commits:") {
		t.Errorf("output has a recent commits section for an empty digest:\n%s", out)
	}
}
