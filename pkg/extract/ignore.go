package extract

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/src-d/enry/v2"
)

// IgnoreSpec decides which changed files are left out of the emitted patches.
type IgnoreSpec struct {
	patterns []string
	vendor   bool
}

// NewIgnoreSpec validates patterns. Patterns use doublestar syntax
// ("**/*.min.js", "docs/**"); a pattern without a slash also matches the
// base name at any depth. With vendor set, paths enry classifies as
// vendored or generated dependencies are ignored as well.
func NewIgnoreSpec(patterns []string, vendor bool) (*IgnoreSpec, error) {
	clean := make([]string, 0, len(patterns))

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		err := validatePattern(p)
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}

		clean = append(clean, p)
	}

	return &IgnoreSpec{patterns: clean, vendor: vendor}, nil
}

// Match reports whether filePath is ignored. A nil spec ignores nothing.
func (s *IgnoreSpec) Match(filePath string) bool {
	if s == nil || filePath == "" {
		return false
	}

	if s.vendor && enry.IsVendor(filePath) {
		return true
	}

	base := path.Base(filePath)

	for _, p := range s.patterns {
		if ok, _ := doublestar.Match(p, filePath); ok {
			return true
		}

		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
		}
	}

	return false
}

// validatePattern rejects patterns doublestar would fail on at match time.
// doublestar reports a bad pattern only once matching reaches it, so
// brackets and braces are checked for balance up front.
func validatePattern(p string) error {
	braces := 0
	inClass := false

	for i := 0; i < len(p); i++ {
		switch c := p[i]; {
		case c == '\\':
			i++
			if i == len(p) {
				return doublestar.ErrBadPattern
			}
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '{':
			braces++
		case c == '}':
			braces--
			if braces < 0 {
				return doublestar.ErrBadPattern
			}
		}
	}

	if inClass || braces != 0 {
		return doublestar.ErrBadPattern
	}

	_, err := doublestar.Match(p, "")

	return err
}

// Empty reports whether the spec can never match.
func (s *IgnoreSpec) Empty() bool {
	return s == nil || (len(s.patterns) == 0 && !s.vendor)
}
