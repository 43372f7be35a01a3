// Package console prints reports to the terminal instead of delivering
// them, for dry runs.
package console

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/gitreporter/git-reporter/internal/notify"
	"github.com/gitreporter/git-reporter/internal/report"
)

// Compile-time interface conformance check.
var _ notify.Notifier = (*Writer)(nil)

const timestampLayout = "2006-01-02 15:04:05"

// Writer renders reports as colored text.
type Writer struct {
	out io.Writer
}

// NewWriter creates a console writer. A nil out defaults to stdout.
func NewWriter(out io.Writer) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{out: out}
}

// Notify prints a commit report.
func (w *Writer) Notify(_ context.Context, rep *report.CommitReport) error {
	header := color.New(color.FgGreen, color.Bold)
	marker := ""
	if rep.Bugfix {
		header = color.New(color.FgRed, color.Bold)
		marker = " (bugfix)"
	}
	header.Fprintf(w.out, "New Commit: %s%s\n", rep.Commit.ShortSHA(), marker)
	fmt.Fprintln(w.out, rep.Commit.Message)
	fmt.Fprintf(w.out, "Author: %s\n", rep.Commit.Author)
	fmt.Fprintf(w.out, "Date:   %s\n", rep.Commit.When.Format(timestampLayout))

	for _, cat := range rep.Categories {
		fmt.Fprintf(w.out, "\n%s Changes:\n", cat.Name)
		for _, f := range cat.Files {
			fmt.Fprintf(w.out, "  • [%s] %s\n", f.Kind.Letter(), f.Path)
		}
		if cat.More > 0 {
			fmt.Fprintf(w.out, "  ... and %d more\n", cat.More)
		}
	}
	if rep.Filtered > 0 {
		fmt.Fprintf(w.out, "\n%d ignored file(s) not shown\n", rep.Filtered)
	}
	fmt.Fprintln(w.out)
	return nil
}

// NotifyDigest prints a cycle digest.
func (w *Writer) NotifyDigest(_ context.Context, d *report.Digest) error {
	color.New(color.FgGreen, color.Bold).Fprintf(w.out, "🎮 %s Update\n", d.Project)
	fmt.Fprintf(w.out, "Report Time: %s\n", d.When.Format(timestampLayout))

	if len(d.Uncommitted) > 0 {
		fmt.Fprintln(w.out, "\n📝 Uncommitted Changes:")
		for _, e := range d.Uncommitted {
			fmt.Fprintf(w.out, "  %s\n", e.Line())
		}
	}
	if len(d.Recent) > 0 {
		fmt.Fprintln(w.out, "\n🔄 Recent Commits:")
		for _, c := range d.Recent {
			fmt.Fprintf(w.out, "  %s - %s - by %s (%s)\n",
				c.ShortSHA(), c.Message, c.Author.Name, humanize.Time(c.When))
		}
	}
	fmt.Fprintln(w.out)
	return nil
}
