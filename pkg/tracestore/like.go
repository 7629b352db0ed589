package tracestore

import (
	"regexp"
	"strings"
	"sync"
)

var likeCache sync.Map

// Like reports whether s matches the SQL LIKE pattern. '%' matches any run,
// '_' matches one character, and ASCII letters compare case-insensitively,
// as SQLite does by default.
func Like(pattern, s string) bool {
	return compileLike(pattern).MatchString(s)
}

func compileLike(pattern string) *regexp.Regexp {
	if cached, ok := likeCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)

		return re
	}

	var sb strings.Builder

	sb.WriteString("(?is)^")

	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	sb.WriteString("$")

	re := regexp.MustCompile(sb.String())
	likeCache.Store(pattern, re)

	return re
}
