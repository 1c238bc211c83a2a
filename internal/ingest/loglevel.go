package ingest

import (
	"regexp"
	"strings"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI colour escape sequences from a scraper log line.
func StripANSI(line string) string {
	return ansiRe.ReplaceAllString(line, "")
}

// ParseLevel infers a log level from the content markers scrapers emit:
// the symbols ✗/⚠/✓/ℹ and bracketed prefixes like [ERROR]. Unmarked lines
// default to info.
func ParseLevel(line string) string {
	switch {
	case strings.Contains(line, "✗"):
		return "error"
	case strings.Contains(line, "⚠"):
		return "warning"
	case strings.Contains(line, "✓"), strings.Contains(line, "ℹ"):
		return "info"
	}

	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "[ERROR]"), strings.Contains(upper, "[FATAL]"):
		return "error"
	case strings.Contains(upper, "[WARN]"), strings.Contains(upper, "[WARNING]"):
		return "warning"
	case strings.Contains(upper, "[DEBUG]"):
		return "debug"
	case strings.Contains(upper, "[INFO]"), strings.Contains(upper, "[OK]"):
		return "info"
	}
	return "info"
}
