// Package watch runs the polling loop: poll the repository for new
// commits, shape them into reports, deliver them, advance the cursor.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gitreporter/git-reporter/internal/git"
	"github.com/gitreporter/git-reporter/internal/notify"
	"github.com/gitreporter/git-reporter/internal/report"
	"github.com/gitreporter/git-reporter/internal/state"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = 30 * time.Minute

// Mode selects how a cycle's findings are delivered.
type Mode string

const (
	// ModeEmbed sends one rich message per commit.
	ModeEmbed Mode = "embed"
	// ModeDigest sends one plain summary per cycle.
	ModeDigest Mode = "digest"
)

// ParseMode validates a message format name. An empty name selects
// ModeEmbed.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeEmbed):
		return ModeEmbed, nil
	case string(ModeDigest):
		return ModeDigest, nil
	default:
		return "", fmt.Errorf("unknown message format %q", s)
	}
}

// Stats counts what the loop did over its lifetime.
type Stats struct {
	Cycles   int
	Reported int // commits delivered
	Dropped  int // messages lost to delivery failures
	Failures int // poll and state-save failures
}

// Options configures a Watcher.
type Options struct {
	Source   git.HistorySource
	Builder  *report.Builder
	Notifier notify.Notifier
	Store    *state.Store

	Interval time.Duration
	Mode     Mode
	Fetch    bool   // fetch the remote before each poll
	Project  string // digest header name
	Status   bool   // include worktree status in digests
}

// Watcher polls a repository on an interval and reports what it finds.
// Cycle failures are logged and retried on the next tick; only context
// cancellation stops the loop.
type Watcher struct {
	source   git.HistorySource
	builder  *report.Builder
	notifier notify.Notifier
	store    *state.Store

	interval time.Duration
	mode     Mode
	fetch    bool
	project  string
	status   bool

	stats Stats
}

// NewWatcher creates a watcher.
func NewWatcher(opts Options) (*Watcher, error) {
	if opts.Source == nil {
		return nil, errors.New("watcher: history source is required")
	}
	if opts.Builder == nil {
		return nil, errors.New("watcher: report builder is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("watcher: notifier is required")
	}
	if opts.Store == nil {
		return nil, errors.New("watcher: state store is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeEmbed
	}

	return &Watcher{
		source:   opts.Source,
		builder:  opts.Builder,
		notifier: opts.Notifier,
		store:    opts.Store,
		interval: interval,
		mode:     mode,
		fetch:    opts.Fetch,
		project:  opts.Project,
		status:   opts.Status,
	}, nil
}

// Stats returns the loop counters.
func (w *Watcher) Stats() Stats {
	return w.stats
}

// Run polls immediately, then on every interval tick until the context
// is canceled. Cancellation is the clean shutdown path and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"interval": w.interval,
		"mode":     w.mode,
	}).Info("watcher started")

	if err := w.cycle(ctx); err != nil {
		w.logCycleError(err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logShutdown()
			return nil
		case <-ticker.C:
			if err := w.cycle(ctx); err != nil {
				w.logCycleError(err)
			}
		}
	}
}

// RunOnce runs a single cycle and surfaces its error, for one-shot
// invocations.
func (w *Watcher) RunOnce(ctx context.Context) error {
	return w.cycle(ctx)
}

func (w *Watcher) cycle(ctx context.Context) error {
	w.stats.Cycles++
	cycleLog := log.WithField("cycle", w.stats.Cycles)

	if w.fetch {
		if err := w.source.Fetch(ctx); err != nil {
			cycleLog.WithError(err).Warn("fetch failed, polling local state")
		}
	}

	cursor := w.store.Cursor()
	poll, err := w.source.CommitsSince(ctx, cursor)
	if err != nil {
		w.stats.Failures++
		return fmt.Errorf("poll repository: %w", err)
	}

	if poll.CursorLost {
		cycleLog.WithField("cursor", cursor).Warn("cursor not found in history, reporting the most recent commits")
	}
	if poll.Skipped > 0 {
		cycleLog.WithField("skipped", poll.Skipped).Info("too many new commits, oldest not reported")
	}
	if len(poll.Commits) == 0 {
		cycleLog.Debug("no new commits")
		return nil
	}

	var reported int
	if w.mode == ModeDigest {
		reported = w.deliverDigest(ctx, cycleLog, poll)
	} else {
		reported = w.deliverEmbeds(ctx, cycleLog, poll)
	}
	w.stats.Reported += reported

	// The cursor advances past undeliverable commits too: a failed
	// webhook call must not cause a repeat report next cycle.
	if err := w.store.Advance(poll.Head, reported); err != nil {
		w.stats.Failures++
		cycleLog.WithError(err).Error("state save failed, cursor kept in memory")
	}
	return nil
}

func (w *Watcher) deliverEmbeds(ctx context.Context, cycleLog *log.Entry, poll *git.Poll) int {
	reported := 0
	for _, cs := range poll.Commits {
		shaLog := cycleLog.WithField("sha", cs.Commit.ShortSHA())

		rep, ok := w.builder.Build(cs)
		if !ok {
			shaLog.Debug("every file ignored, nothing to report")
			continue
		}
		if err := w.notifier.Notify(ctx, rep); err != nil {
			w.stats.Dropped++
			shaLog.WithError(err).Error("delivery failed, message dropped")
			continue
		}
		reported++
		shaLog.Info("commit reported")
	}
	return reported
}

func (w *Watcher) deliverDigest(ctx context.Context, cycleLog *log.Entry, poll *git.Poll) int {
	var status []git.StatusEntry
	if w.status {
		var err error
		status, err = w.source.WorktreeStatus(ctx)
		if err != nil {
			cycleLog.WithError(err).Warn("worktree status unavailable")
		}
	}

	commits := make([]git.CommitInfo, 0, len(poll.Commits))
	for _, cs := range poll.Commits {
		commits = append(commits, cs.Commit)
	}

	d := w.builder.BuildDigest(w.project, time.Now(), status, commits)
	if err := w.notifier.NotifyDigest(ctx, d); err != nil {
		w.stats.Dropped++
		cycleLog.WithError(err).Error("digest delivery failed, dropped")
		return 0
	}
	cycleLog.WithField("commits", len(commits)).Info("digest reported")
	return len(commits)
}

func (w *Watcher) logCycleError(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	log.WithError(err).Error("cycle failed, cursor retained")
}

func (w *Watcher) logShutdown() {
	log.WithFields(log.Fields{
		"cycles":   w.stats.Cycles,
		"reported": w.stats.Reported,
		"dropped":  w.stats.Dropped,
		"failures": w.stats.Failures,
	}).Info("watcher stopped")
}
