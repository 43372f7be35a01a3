package notify

import (
	"context"

	"github.com/gitreporter/git-reporter/internal/report"
)

// MockNotifier records deliveries for testing. Configure Err or
// DigestErr to simulate delivery failures.
type MockNotifier struct {
	Reports []*report.CommitReport
	Digests []*report.Digest

	Err       error
	DigestErr error

	NotifyCalls int
	DigestCalls int
}

// NewMockNotifier creates an empty mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records the report, or returns the configured error.
func (m *MockNotifier) Notify(_ context.Context, rep *report.CommitReport) error {
	m.NotifyCalls++
	if m.Err != nil {
		return m.Err
	}
	m.Reports = append(m.Reports, rep)
	return nil
}

// NotifyDigest records the digest, or returns the configured error.
func (m *MockNotifier) NotifyDigest(_ context.Context, d *report.Digest) error {
	m.DigestCalls++
	if m.DigestErr != nil {
		return m.DigestErr
	}
	m.Digests = append(m.Digests, d)
	return nil
}

// ReportedSHAs returns the SHAs of the recorded reports, in delivery
// order.
func (m *MockNotifier) ReportedSHAs() []string {
	shas := make([]string, 0, len(m.Reports))
	for _, rep := range m.Reports {
		shas = append(shas, rep.Commit.SHA)
	}
	return shas
}
