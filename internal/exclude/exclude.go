package exclude

import (
	"path"
	"path/filepath"
	"strings"
)

// Set holds a compiled list of shell-glob exclusion patterns. A path is
// excluded when any pattern matches either its forward-slash relative path
// or its basename, which lets "*.tmp" catch files at any depth while
// "cache/*" stays anchored to the tree root.
type Set struct {
	patterns []string
}

// Compile builds a Set from raw pattern strings. Blank and syntactically
// invalid entries are dropped. A nil or empty Set excludes nothing.
func Compile(patterns []string) *Set {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = filepath.ToSlash(p)
		if _, err := path.Match(p, "probe"); err != nil {
			continue
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return &Set{patterns: cleaned}
}

// Match reports whether relPath is excluded. relPath may use either
// separator; it is normalized to forward slashes before matching.
func (s *Set) Match(relPath string) bool {
	if s == nil {
		return false
	}

	rel := filepath.ToSlash(relPath)
	base := path.Base(rel)

	for _, p := range s.patterns {
		// path.Match returns an error only for malformed patterns; those
		// simply never match.
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Patterns returns the compiled pattern list, mainly for logging.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}
