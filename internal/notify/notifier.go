// Package notify defines the delivery contract for shaped reports.
// Implementations live in the discord and console subpackages.
package notify

import (
	"context"

	"github.com/gitreporter/git-reporter/internal/report"
)

// Compile-time interface conformance check for the in-package mock.
// The discord and console implementations carry their own.
var _ Notifier = (*MockNotifier)(nil)

// Notifier delivers commit reports and cycle digests.
type Notifier interface {
	// Notify delivers the report for a single commit.
	Notify(ctx context.Context, rep *report.CommitReport) error

	// NotifyDigest delivers a whole-cycle digest.
	NotifyDigest(ctx context.Context, d *report.Digest) error
}
