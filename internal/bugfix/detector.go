// Package bugfix flags commits whose messages look like bugfixes, so
// notifications can call them out.
package bugfix

import (
	"regexp"
	"strings"
)

// Detector matches commit messages against a list of regex patterns.
type Detector struct {
	patterns []*regexp.Regexp
}

// NewDetector compiles the given patterns, case-insensitive. Blank
// patterns are skipped; an invalid pattern is an error.
func NewDetector(patterns []string) (*Detector, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "(?i)") {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &Detector{patterns: compiled}, nil
}

// IsBugfix returns true if the message matches any configured pattern.
// A nil detector or one with no patterns never matches.
func (d *Detector) IsBugfix(message string) bool {
	if d == nil {
		return false
	}
	for _, re := range d.patterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}
