package pagecache

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type patternKind int

const (
	patternSubstring patternKind = iota
	patternPrefix
	patternRegexp
	patternGlob
)

// Pattern selects keys for Invalidate. Build one with Substring, Prefix,
// Regexp, CompilePattern or Glob.
type Pattern struct {
	kind patternKind
	text string
	re   *regexp.Regexp
}

// Substring matches keys containing text.
func Substring(text string) Pattern {
	return Pattern{kind: patternSubstring, text: text}
}

// Prefix matches keys starting with text, e.g. a query base plus "-".
func Prefix(text string) Pattern {
	return Pattern{kind: patternPrefix, text: text}
}

// Regexp matches keys against re.
func Regexp(re *regexp.Regexp) Pattern {
	return Pattern{kind: patternRegexp, re: re}
}

// CompilePattern compiles expr into a regexp Pattern. Compile errors are
// returned unchanged.
func CompilePattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Regexp(re), nil
}

// Glob matches keys against a doublestar pattern such as "users-page-*".
func Glob(pattern string) Pattern {
	return Pattern{kind: patternGlob, text: pattern}
}

// Match reports whether key is selected by p.
func (p Pattern) Match(key string) bool {
	switch p.kind {
	case patternPrefix:
		return strings.HasPrefix(key, p.text)
	case patternRegexp:
		return p.re != nil && p.re.MatchString(key)
	case patternGlob:
		ok, err := doublestar.Match(p.text, key)
		return err == nil && ok
	default:
		return strings.Contains(key, p.text)
	}
}

func (p Pattern) String() string {
	switch p.kind {
	case patternPrefix:
		return "prefix:" + p.text
	case patternRegexp:
		if p.re == nil {
			return "regexp:"
		}
		return "regexp:" + p.re.String()
	case patternGlob:
		return "glob:" + p.text
	default:
		return "substring:" + p.text
	}
}

// Invalidate marks every entry whose key matches p as stale and returns how
// many matched. Entries stay readable and loading state is untouched.
func (c *Cache[T]) Invalidate(p Pattern) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, entry := range c.entries {
		if p.Match(key) {
			entry.Stale = true
			count++
		}
	}
	return count
}
