package revset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// StringPattern matches commit metadata and branch names. The zero value
// matches everything.
type StringPattern struct {
	kind string
	text string
	g    glob.Glob
}

// ParseStringPattern builds a pattern of the given kind: "substring" (also
// the empty kind), "exact" or "glob".
func ParseStringPattern(kind, text string) (StringPattern, error) {
	switch kind {
	case "", "substring":
		return StringPattern{kind: "substring", text: text}, nil
	case "exact":
		return StringPattern{kind: kind, text: text}, nil
	case "glob":
		g, err := glob.Compile(text)
		if err != nil {
			return StringPattern{}, fmt.Errorf("invalid glob %q: %w", text, err)
		}
		return StringPattern{kind: kind, text: text, g: g}, nil
	}
	return StringPattern{}, fmt.Errorf("invalid string pattern kind %q", kind)
}

// Match reports whether s matches.
func (p StringPattern) Match(s string) bool {
	switch p.kind {
	case "exact":
		return s == p.text
	case "glob":
		return p.g.Match(s)
	}
	return strings.Contains(s, p.text)
}

func (p StringPattern) String() string {
	if p.kind == "" {
		return `""`
	}
	return p.kind + ":" + strconv.Quote(p.text)
}

// PathPattern matches repository paths. A pattern without glob
// metacharacters matches the path itself and everything below it.
type PathPattern struct {
	text string
	g    glob.Glob
}

// ParsePathPattern compiles text with '/' as the path separator.
func ParsePathPattern(text string) (PathPattern, error) {
	text = strings.Trim(text, "/")
	if text == "" {
		return PathPattern{}, nil
	}
	if glob.QuoteMeta(text) == text {
		return PathPattern{text: text}, nil
	}
	g, err := glob.Compile(text, '/')
	if err != nil {
		return PathPattern{}, fmt.Errorf("invalid path glob %q: %w", text, err)
	}
	return PathPattern{text: text, g: g}, nil
}

// Match reports whether path is selected. The empty pattern selects every
// path.
func (p PathPattern) Match(path string) bool {
	switch {
	case p.text == "":
		return true
	case p.g != nil:
		return p.g.Match(path)
	}
	return path == p.text || strings.HasPrefix(path, p.text+"/")
}

func (p PathPattern) String() string { return strconv.Quote(p.text) }
