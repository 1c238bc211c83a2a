package ingest

import (
	"encoding/json"
	"strings"

	"github.com/antonkoetzler/arbihawk/internal/validate"
)

// Source is the scraper kind being ingested. It determines both the dispatch
// path and the expected JSON root shape.
type Source string

const (
	SourceBetano     Source = "betano"
	SourceFlashscore Source = "flashscore"
	SourceLivescore  Source = "livescore"
	SourceStocks     Source = "stocks"
	SourceCrypto     Source = "crypto"
)

// RootMatches reports whether raw parses to the top-level shape expected for
// the source.
func (s Source) RootMatches(raw []byte) bool {
	switch s {
	case SourceBetano:
		return validate.LooksLikeOddsRoot(raw)
	case SourceFlashscore, SourceLivescore:
		return validate.LooksLikeScoresRoot(raw)
	case SourceStocks, SourceCrypto:
		return validate.LooksLikeMarketRoot(raw)
	}
	return false
}

// IsJSONCandidate reports whether a line could start a JSON document.
func IsJSONCandidate(line string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// isContinuation reports whether a line plausibly belongs to a pretty-printed
// JSON document already in progress.
func isContinuation(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case ' ', '\t', ',', '"', '}', ']', '{', '[':
		return true
	}
	return false
}

// TryParseLine attempts a single-line parse of a JSON candidate.
func TryParseLine(line string, source Source) ([]byte, bool) {
	trimmed := strings.TrimSpace(line)
	if !json.Valid([]byte(trimmed)) {
		return nil, false
	}
	if !source.RootMatches([]byte(trimmed)) {
		return nil, false
	}
	return []byte(trimmed), true
}

// TryReassemble scans back over recent lines from a candidate's position,
// accumulating continuation lines, and attempts to parse the joined block.
// lines[start] is the candidate that failed a single-line parse.
func TryReassemble(lines []string, start int, source Source) ([]byte, bool) {
	end := start + 1
	for end < len(lines) && isContinuation(lines[end]) {
		end++
	}
	block := strings.Join(lines[start:end], "\n")
	if !json.Valid([]byte(block)) {
		return nil, false
	}
	if !source.RootMatches([]byte(block)) {
		return nil, false
	}
	return []byte(block), true
}

// ExtractLast is the last-resort extractor over the full accumulated output.
// It finds every '{' and '[' start, walks forward tracking brace and bracket
// depth with string-escape awareness, and attempts a parse at each
// balance-to-zero point. Candidates are tried latest-first so the terminal
// payload wins over intermediate diagnostic snippets.
func ExtractLast(output string, source Source) ([]byte, bool) {
	return ExtractLastFunc(output, source.RootMatches)
}

// ExtractLastFunc is ExtractLast with a caller-supplied root predicate, for
// payloads outside the scraper source shapes.
func ExtractLastFunc(output string, accept func([]byte) bool) ([]byte, bool) {
	var starts []int
	for i := 0; i < len(output); i++ {
		if output[i] == '{' || output[i] == '[' {
			starts = append(starts, i)
		}
	}
	for s := len(starts) - 1; s >= 0; s-- {
		if raw, ok := walkBalanced(output, starts[s], accept); ok {
			return raw, true
		}
	}
	return nil, false
}

// walkBalanced walks forward from start tracking delimiter depth. A '}' or
// ']' inside a quoted string must not decrement depth, hence the in-string
// and escape flags.
func walkBalanced(output string, start int, accept func([]byte) bool) ([]byte, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(output); i++ {
		c := output[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				candidate := output[start : i+1]
				if json.Valid([]byte(candidate)) && accept([]byte(candidate)) {
					return []byte(candidate), true
				}
				return nil, false
			}
			if depth < 0 {
				return nil, false
			}
		}
	}
	return nil, false
}
