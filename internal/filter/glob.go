package filter

import (
	"regexp"
	"strings"
)

// glob is an rsync-style pattern compiled to a regular expression.
//
// A trailing "/" restricts the pattern to directories. A pattern with a
// leading or inner "/" is anchored at the root; otherwise it matches any
// trailing path component sequence.
type glob struct {
	re      *regexp.Regexp
	source  string
	dirOnly bool
}

func compileGlob(pattern string) (*glob, error) {
	g := &glob{source: pattern}

	body, dirOnly := strings.CutSuffix(pattern, "/")
	g.dirOnly = dirOnly

	anchored := strings.Contains(body, "/")
	body = strings.TrimPrefix(body, "/")

	prefix := "(^|/)"
	if anchored {
		prefix = "^"
	}
	re, err := regexp.Compile(prefix + translate(body) + "$")
	if err != nil {
		return nil, err
	}
	g.re = re
	return g, nil
}

func (g *glob) match(rel string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(rel)
}

// translate rewrites glob syntax as regexp syntax: "**/" is zero or more
// directories, "**" is anything, "*" and "?" stop at "/", and bracket
// classes pass through with "!" negation.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		rest := pattern[i:]
		switch {
		case strings.HasPrefix(rest, "**/"):
			b.WriteString("(.*/)?")
			i += 3
		case strings.HasPrefix(rest, "**"):
			b.WriteString(".*")
			i += 2
		case rest[0] == '*':
			b.WriteString("[^/]*")
			i++
		case rest[0] == '?':
			b.WriteString("[^/]")
			i++
		case rest[0] == '[':
			if cls, n, ok := bracket(rest); ok {
				b.WriteString(cls)
				i += n
				continue
			}
			b.WriteString(`\[`)
			i++
		default:
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			i++
		}
	}
	return b.String()
}

// bracket parses a character class at the start of s and returns its
// regexp form and length. A "]" directly after the opening bracket (or
// after "!") is literal.
func bracket(s string) (string, int, bool) {
	j := 1
	if j < len(s) && s[j] == '!' {
		j++
	}
	if j < len(s) && s[j] == ']' {
		j++
	}
	end := strings.IndexByte(s[j:], ']')
	if end < 0 {
		return "", 0, false
	}
	end += j
	cls := s[1:end]
	if rest, ok := strings.CutPrefix(cls, "!"); ok {
		cls = "^" + rest
	}
	return "[" + cls + "]", end + 1, true
}
