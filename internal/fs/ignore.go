package fs

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// IgnoreMatcher checks directory entry names against shell-style patterns.
// Patterns follow fnmatch rules and are matched against the bare entry name,
// never the full path: '*' and '?' as usual, "[...]" classes negated with
// "[!...]", a backslash is an ordinary character and an unclosed '[' is
// matched literally.
type IgnoreMatcher struct {
	patterns []string
}

// NewIgnoreMatcher creates an IgnoreMatcher from the union of the given
// pattern lists. Blank patterns and patterns starting with '#' are skipped.
func NewIgnoreMatcher(lists ...[]string) *IgnoreMatcher {
	var patterns []string
	for _, list := range lists {
		for _, raw := range list {
			raw = strings.TrimSpace(raw)
			if raw == "" || strings.HasPrefix(raw, "#") {
				continue
			}
			patterns = append(patterns, translatePattern(raw))
		}
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether an entry with the given name should be ignored.
func (m *IgnoreMatcher) Match(name string) bool {
	for _, p := range m.patterns {
		matched, err := filepath.Match(p, name)
		if err != nil {
			// Bad pattern; ValidatePatterns rejects these at config time.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ValidatePatterns returns an error for the first pattern that can never
// match an entry name: one holding a path separator, or one the matcher
// cannot parse.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if strings.ContainsRune(p, '/') || strings.ContainsRune(p, filepath.Separator) {
			return fmt.Errorf("invalid ignore pattern %q: patterns match entry names, not paths", p)
		}
		if _, err := filepath.Match(translatePattern(p), ""); err != nil {
			return fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
	}
	return nil
}

// translatePattern rewrites an fnmatch pattern into filepath.Match syntax.
func translatePattern(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '\\':
			b.WriteString(literal(c))
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				b.WriteString("[[]")
				continue
			}
			b.WriteString(translateClass(p[i+1 : end]))
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// classEnd returns the index of the ']' closing the class opened at p[open],
// or -1 when the class is unclosed. A ']' right after "[" or "[!" is a member.
func classEnd(p string, open int) int {
	j := open + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	for j < len(p) && p[j] != ']' {
		j++
	}
	if j >= len(p) {
		return -1
	}
	return j
}

// translateClass converts the members of an fnmatch class. A '-' between two
// members is a range; anywhere else it is a member.
func translateClass(members string) string {
	var b strings.Builder
	b.WriteByte('[')
	if strings.HasPrefix(members, "!") {
		b.WriteByte('^')
		members = members[1:]
	}
	for k := 0; k < len(members); k++ {
		c := members[k]
		switch {
		case c == '-' && k > 0 && k < len(members)-1:
			b.WriteByte(c)
		case c == '\\' || c == ']' || c == '^' || c == '-':
			b.WriteString(literal(c))
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(']')
	return b.String()
}

// literal escapes a special character. filepath.Match has no escapes on
// Windows, where '\\' is a separator.
func literal(c byte) string {
	if runtime.GOOS == "windows" {
		return string(c)
	}
	return `\` + string(c)
}
