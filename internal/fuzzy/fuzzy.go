// Package fuzzy scores name and title similarity for entity resolution.
//
// The score is a token-sort ratio in [0,100]: both strings are lowercased,
// tokenized on non-alphanumeric runs, the tokens sorted and rejoined, and the
// joined forms compared by Levenshtein similarity. Token sorting makes the
// score insensitive to word order ("Danson Ted" vs "Ted Danson").
//
// The same scorer serves guest deduplication and pick-to-catalog resolution
// with different thresholds, so behavior stays centrally tunable.
package fuzzy

import (
	"sort"
	"strings"
)

// Default thresholds for the two matcher entry points.
const (
	DefaultNameThreshold  = 80
	DefaultTitleThreshold = 85
)

// Score returns the token-sort similarity of two strings in [0,100].
// Empty input scores 0.
func Score(a, b string) int {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	sa := tokenSort(a)
	sb := tokenSort(b)
	if sa == sb {
		return 100
	}
	total := len(sa) + len(sb)
	if total == 0 {
		return 0
	}
	dist := levenshtein(sa, sb)
	// Rounded similarity ratio over the combined length.
	return (100*(total-dist) + total/2) / total
}

// MatchName reports whether two person names refer to the same entity.
func MatchName(a, b string, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultNameThreshold
	}
	return Score(a, b) >= threshold
}

// MatchTitle reports whether two film titles refer to the same film. When
// both years are known and differ by more than one, the match fails
// regardless of string similarity; this guards against same-title remakes.
func MatchTitle(a string, yearA *int, b string, yearB *int, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultTitleThreshold
	}
	if Score(a, b) < threshold {
		return false
	}
	return YearsCompatible(yearA, yearB)
}

// YearsCompatible reports whether two optional years could describe the same
// film: unknown years always pass, known years must be within one.
func YearsCompatible(a, b *int) bool {
	if a == nil || b == nil || *a == 0 || *b == 0 {
		return true
	}
	d := *a - *b
	if d < 0 {
		d = -d
	}
	return d <= 1
}

// Candidate is one possible resolution target for a title.
type Candidate struct {
	Title         string
	Year          *int
	HasExternalID bool
	Index         int
}

// BestTitle scores a title against all candidates and returns the winner's
// Index. Near-ties resolve to the higher score, then to the candidate with a
// known external ID. The year guard applies to every candidate.
func BestTitle(title string, year *int, candidates []Candidate, threshold int) (Candidate, int, bool) {
	if threshold <= 0 {
		threshold = DefaultTitleThreshold
	}
	var best Candidate
	bestScore := 0
	found := false
	for _, c := range candidates {
		if !YearsCompatible(year, c.Year) {
			continue
		}
		s := Score(title, c.Title)
		if s < threshold {
			continue
		}
		switch {
		case !found, s > bestScore:
			best, bestScore, found = c, s, true
		case s == bestScore && c.HasExternalID && !best.HasExternalID:
			best = c
		}
	}
	return best, bestScore, found
}

func tokenSort(s string) string {
	tokens := tokenize(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			cur.WriteRune(r)
			continue
		}
		if r > 127 {
			// Keep non-ASCII letters; caption text and foreign titles
			// carry meaning in them.
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// levenshtein computes weighted edit distance over bytes of the token-sorted
// forms. Substitutions cost 2 so that the ratio matches the conventional
// 2*matches/total similarity measure.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 2
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
