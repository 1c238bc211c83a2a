package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"✗ scrape failed":            "error",
		"⚠ retrying league 42":       "warning",
		"✓ collected 120 fixtures":   "info",
		"ℹ starting run":             "info",
		"[ERROR] connection refused": "error",
		"[fatal] out of memory":      "error",
		"[WARN] slow response":       "warning",
		"[warning] partial page":     "warning",
		"[DEBUG] raw html cached":    "debug",
		"[INFO] done":                "info",
		"[OK] flushed":               "info",
		"plain progress line":        "info",
	}
	for line, want := range cases {
		assert.Equal(t, want, ParseLevel(line), line)
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "✓ done", StripANSI("\x1b[32m✓ done\x1b[0m"))
	assert.Equal(t, "plain", StripANSI("plain"))
}

func TestTryParseLine(t *testing.T) {
	raw, ok := TryParseLine(`{"matches": []}`, SourceFlashscore)
	require.True(t, ok)
	assert.JSONEq(t, `{"matches": []}`, string(raw))

	// Valid JSON with the wrong root shape is rejected.
	_, ok = TryParseLine(`{"matches": []}`, SourceBetano)
	assert.False(t, ok)

	_, ok = TryParseLine(`{"matches": [}`, SourceFlashscore)
	assert.False(t, ok)
}

func TestTryReassemblePrettyPrinted(t *testing.T) {
	lines := []string{
		"✓ scrape complete",
		"{",
		`  "matches": [`,
		`    {"home_team": "Team A", "away_team": "Team B"}`,
		"  ]",
		"}",
		"exiting",
	}
	raw, ok := TryReassemble(lines, 1, SourceFlashscore)
	require.True(t, ok)
	assert.Contains(t, string(raw), "Team A")

	// A candidate whose continuation never balances fails.
	_, ok = TryReassemble([]string{"{", `  "matches": [`}, 0, SourceFlashscore)
	assert.False(t, ok)
}

func TestExtractLastPrefersLatest(t *testing.T) {
	output := strings.Join([]string{
		`debug dump: {"matches": [{"home_team": "Old"}]}`,
		"some progress",
		`{"matches": [{"home_team": "New", "away_team": "Other"}]}`,
	}, "\n")
	raw, ok := ExtractLast(output, SourceFlashscore)
	require.True(t, ok)
	assert.Contains(t, string(raw), "New")
	assert.NotContains(t, string(raw), "Old")
}

func TestExtractLastEscapeAware(t *testing.T) {
	// Braces and escaped quotes inside string values must not end the walk.
	output := `noise {"matches": [{"home_team": "FC } \" Brace", "away_team": "B"}]} trailing`
	raw, ok := ExtractLast(output, SourceFlashscore)
	require.True(t, ok)
	assert.Contains(t, string(raw), "Brace")
}

func TestExtractLastNoPayload(t *testing.T) {
	_, ok := ExtractLast("just logs\nno json here", SourceBetano)
	assert.False(t, ok)

	// Balanced JSON of the wrong shape does not match.
	_, ok = ExtractLast(`{"unrelated": 1}`, SourceFlashscore)
	assert.False(t, ok)
}
