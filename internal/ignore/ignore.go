// Package ignore filters noise files out of change lists using the
// configured ignore patterns. A pattern takes one of three forms:
//
//   - "*.ext" drops every file with that extension, anywhere in the tree
//   - "dir/*" drops everything under that directory, at any depth
//   - anything else is a doublestar glob matched against the full path
//
// Matching is pure and deterministic; path separators are normalized to
// forward slashes first, and extension matching ignores case.
package ignore

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gitreporter/git-reporter/internal/git"
)

type ruleKind int

const (
	ruleSuffix ruleKind = iota
	rulePrefix
	ruleGlob
)

type rule struct {
	kind  ruleKind
	value string // ".uasset" (lowercase), "Saved/", or a glob pattern
}

// RuleSet is a compiled, immutable set of ignore rules.
type RuleSet struct {
	rules    []rule
	patterns []string
}

// Compile classifies each pattern into a suffix, prefix or glob rule.
// Empty and whitespace-only patterns are dropped; an invalid glob is a
// configuration error.
func Compile(patterns []string) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, pattern := range patterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" {
			continue
		}
		norm := normalize(trimmed)

		switch {
		case strings.HasPrefix(norm, "*.") && !strings.ContainsAny(norm[2:], "*?[{/"):
			rs.rules = append(rs.rules, rule{kind: ruleSuffix, value: strings.ToLower(norm[1:])})
		case strings.HasSuffix(norm, "/*") && !strings.ContainsAny(strings.TrimSuffix(norm, "/*"), "*?[{"):
			rs.rules = append(rs.rules, rule{kind: rulePrefix, value: strings.TrimSuffix(norm, "*")})
		default:
			if !doublestar.ValidatePattern(norm) {
				return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
			}
			rs.rules = append(rs.rules, rule{kind: ruleGlob, value: norm})
		}
		rs.patterns = append(rs.patterns, trimmed)
	}
	return rs, nil
}

// Patterns returns the accepted source patterns, for logging.
func (rs *RuleSet) Patterns() []string {
	if rs == nil {
		return nil
	}
	return append([]string(nil), rs.patterns...)
}

// Match reports whether the path is ignored by any rule.
func (rs *RuleSet) Match(path string) bool {
	if rs == nil || len(rs.rules) == 0 {
		return false
	}
	p := normalize(path)
	lower := strings.ToLower(p)

	for _, r := range rs.rules {
		switch r.kind {
		case ruleSuffix:
			if strings.HasSuffix(lower, r.value) {
				return true
			}
		case rulePrefix:
			if strings.HasPrefix(p, r.value) {
				return true
			}
		case ruleGlob:
			if ok, err := doublestar.Match(r.value, p); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Filter returns the changes whose paths are not ignored, preserving
// order. The input slice is never mutated.
func (rs *RuleSet) Filter(changes []git.FileChange) []git.FileChange {
	if rs == nil || len(rs.rules) == 0 || len(changes) == 0 {
		return changes
	}
	out := make([]git.FileChange, 0, len(changes))
	for _, ch := range changes {
		if !rs.Match(ch.Path) {
			out = append(out, ch)
		}
	}
	return out
}

// FilterStatus is Filter for uncommitted-change entries.
func (rs *RuleSet) FilterStatus(entries []git.StatusEntry) []git.StatusEntry {
	if rs == nil || len(rs.rules) == 0 || len(entries) == 0 {
		return entries
	}
	out := make([]git.StatusEntry, 0, len(entries))
	for _, e := range entries {
		if !rs.Match(e.Path) {
			out = append(out, e)
		}
	}
	return out
}

func normalize(path string) string {
	p := strings.ReplaceAll(path, `\`, "/")
	return strings.TrimPrefix(p, "./")
}
