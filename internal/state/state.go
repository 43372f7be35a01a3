// Package state persists the polling cursor between runs.
package state

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gitreporter/git-reporter/internal/atomicfile"
)

// ErrCursorRegression is returned when an advance would clear the
// cursor. SHAs carry no ordering, so this is the one rewind the store
// can detect on its own.
var ErrCursorRegression = errors.New("cursor regression")

// State is the persisted cursor document.
type State struct {
	Cursor        string    `json:"cursor"`
	UpdatedAt     time.Time `json:"updated_at"`
	TotalReported int       `json:"total_reported"`
}

// Store reads and writes the state file, keeping an in-memory mirror
// between polling cycles.
type Store struct {
	path    string
	current State
}

// NewStore creates a store for the given path. Call Load before the
// first cycle.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// State returns the in-memory state.
func (s *Store) State() State {
	return s.current
}

// Cursor returns the in-memory cursor SHA.
func (s *Store) Cursor() string {
	return s.current.Cursor
}

// Load reads the state file into the store. A missing file yields a
// zero state, so a first run starts with an empty cursor.
func (s *Store) Load() (State, error) {
	var st State
	if err := atomicfile.ReadJSON(s.path, &st); err != nil {
		if os.IsNotExist(err) {
			s.current = State{}
			return s.current, nil
		}
		return State{}, fmt.Errorf("load state: %w", err)
	}
	s.current = st
	return st, nil
}

// Save writes the state atomically and updates the mirror.
func (s *Store) Save(st State) error {
	s.current = st
	if err := atomicfile.WriteJSON(s.path, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Advance moves the cursor to sha, adds reported to the running total
// and persists the result. The cursor only moves forward: advancing to
// the SHA already recorded writes nothing, and an empty sha is
// rejected. The in-memory state advances even when the write fails, so
// a failed save never makes the run re-report commits.
func (s *Store) Advance(sha string, reported int) error {
	if sha == "" {
		return fmt.Errorf("advance to empty cursor: %w", ErrCursorRegression)
	}
	if sha == s.current.Cursor && reported == 0 {
		return nil
	}
	return s.Save(State{
		Cursor:        sha,
		UpdatedAt:     time.Now(),
		TotalReported: s.current.TotalReported + reported,
	})
}
