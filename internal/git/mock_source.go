package git

import (
	"context"
	"errors"
)

// MockHistorySource is a test double for HistoryReader. It holds a
// predefined history, oldest first, and applies the same cursor and
// window semantics as the real reader.
type MockHistorySource struct {
	History    []CommitChangeSet // oldest first
	Status     []StatusEntry
	MaxCommits int

	Err       error // returned by CommitsSince when set
	StatusErr error
	FetchErr  error

	PollCalls  int
	FetchCalls int
}

// NewMockHistorySource creates a mock over the given history.
func NewMockHistorySource(history []CommitChangeSet) *MockHistorySource {
	return &MockHistorySource{History: history, MaxCommits: DefaultMaxCommits}
}

// Append adds commits past the current head of the mock history.
func (m *MockHistorySource) Append(commits ...CommitChangeSet) {
	m.History = append(m.History, commits...)
}

// Head returns the SHA of the most recent commit in the mock history.
func (m *MockHistorySource) Head() string {
	if len(m.History) == 0 {
		return ""
	}
	return m.History[len(m.History)-1].Commit.SHA
}

// CommitsSince mirrors HistoryReader.CommitsSince over the in-memory
// history.
func (m *MockHistorySource) CommitsSince(_ context.Context, cursor string) (*Poll, error) {
	m.PollCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.History) == 0 {
		return nil, errors.New("mock: empty history")
	}

	poll := &Poll{Head: m.Head()}
	if cursor == poll.Head {
		return poll, nil
	}

	if cursor == "" {
		poll.Commits = []CommitChangeSet{m.History[len(m.History)-1]}
		return poll, nil
	}

	idx := -1
	for i, cs := range m.History {
		if cs.Commit.SHA == cursor {
			idx = i
			break
		}
	}

	var newer []CommitChangeSet
	if idx == -1 {
		poll.CursorLost = true
		newer = m.History
	} else {
		newer = m.History[idx+1:]
	}

	max := m.MaxCommits
	if max <= 0 {
		max = DefaultMaxCommits
	}
	if len(newer) > max {
		poll.Skipped = len(newer) - max
		newer = newer[len(newer)-max:]
	}
	poll.Commits = append([]CommitChangeSet(nil), newer...)
	return poll, nil
}

// WorktreeStatus returns the predefined status entries or error.
func (m *MockHistorySource) WorktreeStatus(_ context.Context) ([]StatusEntry, error) {
	if m.StatusErr != nil {
		return nil, m.StatusErr
	}
	return m.Status, nil
}

// Fetch records the call and returns the predefined error.
func (m *MockHistorySource) Fetch(_ context.Context) error {
	m.FetchCalls++
	return m.FetchErr
}
