// Package matchid is a pure library for team-name identity: normalisation,
// fuzzy similarity scoring, and synthetic fixture-id handling. It has no
// dependencies on the store or any service.
package matchid

import (
	"fmt"
	"strings"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// clubSuffixes are trailing club-type tokens stripped during normalisation.
var clubSuffixes = []string{" fc", " cf", " sc", " ac", " afc", " bc"}

// SyntheticID is the parsed form of a synthetic fixture identifier. Team
// names with underscores are lossy through this format, so the parsed tuple
// must never be treated as authoritative identity; reconciliation always
// goes back through similarity plus a time window.
type SyntheticID struct {
	Source string
	Home   string
	Away   string
	Date   time.Time
}

// Identifier normalises team names, scores their similarity, and recognises
// synthetic fixture ids for a configured set of source prefixes.
type Identifier struct {
	aliases  map[string]string
	prefixes []string
	useFuzzy bool
}

// Option configures an Identifier.
type Option func(*Identifier)

// WithAliases installs the alias map applied after suffix stripping
// (e.g. "man utd" -> "manchester united"). Keys must be pre-normalised.
func WithAliases(aliases map[string]string) Option {
	return func(i *Identifier) {
		i.aliases = aliases
	}
}

// WithSyntheticPrefixes sets the source prefixes recognised by
// ParseSyntheticID (e.g. "flashscore", "livescore").
func WithSyntheticPrefixes(prefixes []string) Option {
	return func(i *Identifier) {
		i.prefixes = prefixes
	}
}

// WithoutFuzzyBackend forces the degraded similarity path (substring
// containment, then token Jaccard).
func WithoutFuzzyBackend() Option {
	return func(i *Identifier) {
		i.useFuzzy = false
	}
}

// New creates an Identifier with default prefixes and an empty alias map.
func New(opts ...Option) *Identifier {
	i := &Identifier{
		prefixes: []string{"flashscore", "livescore"},
		useFuzzy: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Normalize lowercases, trims, strips trailing club-type suffixes, and
// applies the alias map. It is idempotent.
func (i *Identifier) Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range clubSuffixes {
		if strings.HasSuffix(n, suffix) {
			n = strings.TrimSpace(strings.TrimSuffix(n, suffix))
			break
		}
	}
	if alias, ok := i.aliases[n]; ok {
		n = alias
	}
	return n
}

// Similarity returns a score in [0,100] for two team names. Exact equality
// after normalisation scores 100; otherwise the maximum of simple, partial,
// and token-sort ratios. Without the fuzzy backend it degrades to substring
// containment (85) or token Jaccard scaled to 100.
func (i *Identifier) Similarity(a, b string) int {
	na, nb := i.Normalize(a), i.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}
	if !i.useFuzzy {
		return fallbackSimilarity(na, nb)
	}

	best := fuzzy.Ratio(na, nb)
	if p := fuzzy.PartialRatio(na, nb); p > best {
		best = p
	}
	if ts := fuzzy.TokenSortRatio(na, nb); ts > best {
		best = ts
	}
	return best
}

func fallbackSimilarity(na, nb string) int {
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 85
	}

	tokensA := strings.Fields(na)
	tokensB := strings.Fields(nb)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(tokensA))
	for _, t := range tokensA {
		setA[t] = struct{}{}
	}
	union := make(map[string]struct{}, len(tokensA)+len(tokensB))
	for t := range setA {
		union[t] = struct{}{}
	}
	intersection := 0
	for _, t := range tokensB {
		if _, ok := setA[t]; ok {
			intersection++
		}
		union[t] = struct{}{}
	}
	return intersection * 100 / len(union)
}

// FormatSyntheticID builds <source>_<home>_<away>_<YYYY-MM-DD> with team-name
// spaces replaced by underscores.
func (i *Identifier) FormatSyntheticID(source, home, away string, date time.Time) string {
	h := strings.ReplaceAll(strings.TrimSpace(home), " ", "_")
	a := strings.ReplaceAll(strings.TrimSpace(away), " ", "_")
	return fmt.Sprintf("%s_%s_%s_%s", source, h, a, date.Format("2006-01-02"))
}

// ParseSyntheticID decomposes a synthetic id into its source, teams, and
// date. IDs without a configured prefix or without the expected shape return
// nil. Underscores inside the team segment are rejoined as spaces; when more
// than two team tokens remain, all but the last belong to the home side.
func (i *Identifier) ParseSyntheticID(id string) *SyntheticID {
	var source string
	for _, prefix := range i.prefixes {
		if strings.HasPrefix(id, prefix+"_") {
			source = prefix
			break
		}
	}
	if source == "" {
		return nil
	}

	rest := strings.TrimPrefix(id, source+"_")
	parts := strings.Split(rest, "_")
	if len(parts) < 3 {
		return nil
	}

	date, err := time.Parse("2006-01-02", parts[len(parts)-1])
	if err != nil {
		return nil
	}

	teams := parts[:len(parts)-1]
	away := teams[len(teams)-1]
	home := strings.Join(teams[:len(teams)-1], " ")
	if home == "" || away == "" {
		return nil
	}

	return &SyntheticID{
		Source: source,
		Home:   home,
		Away:   away,
		Date:   date,
	}
}

// IsSynthetic reports whether the id carries one of the configured prefixes.
func (i *Identifier) IsSynthetic(id string) bool {
	for _, prefix := range i.prefixes {
		if strings.HasPrefix(id, prefix+"_") {
			return true
		}
	}
	return false
}
