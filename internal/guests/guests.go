// Package guests maintains the guest store. Records arrive from two upstream
// sources: the curated list site (authoritative for names and membership) and
// the collection site (supplies page URLs and video linkage). Merging is
// reproducible regardless of input ordering: conflicts resolve by source
// priority, never last-write-wins.
package guests

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"closetpicks/internal/fuzzy"
	"closetpicks/internal/model"
	"closetpicks/internal/slug"
)

// MergeResult summarizes a guest merge pass.
type MergeResult struct {
	Added   int
	Updated int
}

// Merge folds both upstream sources into the existing guest set. Slugs are
// assigned on first sighting and kept forever; a known slug merges
// field-by-field (fill empty only), a new one appends. The list source may
// correct a guest's display name; the catalog source never does. Nothing is
// ever deleted here.
func Merge(existing, listSource, catalogSource []model.Guest) ([]model.Guest, *MergeResult) {
	r := &MergeResult{}
	merged := make([]model.Guest, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	table := slug.NewTable()
	for i, g := range merged {
		index[g.Slug] = i
		table.Seed(g.Slug)
	}

	// Two records with the same slug from one source are distinct people
	// (the second gets a counter suffix); across sources or runs the same
	// slug is the same person.
	absorb := func(in model.Guest, authoritativeName bool, seen map[string]bool) {
		base := in.Slug
		if base == "" {
			base = slug.Make(in.Name)
		}
		if base == "" {
			log.Printf("skipping guest record with no name: %+v", in)
			return
		}
		if i, ok := index[base]; ok && !seen[base] {
			seen[base] = true
			changed := fillGuest(&merged[i], in)
			if authoritativeName && in.Name != "" && merged[i].Name != in.Name {
				merged[i].Name = in.Name
				changed = true
			}
			if changed {
				r.Updated++
			}
			return
		}
		if _, taken := index[base]; taken {
			in.Slug = table.Claim(in.Name)
		} else {
			in.Slug = base
			table.Seed(base)
		}
		seen[in.Slug] = true
		index[in.Slug] = len(merged)
		merged = append(merged, in)
		r.Added++
	}

	seen := make(map[string]bool)
	for _, in := range listSource {
		absorb(in, true, seen)
	}
	seen = make(map[string]bool)
	for _, in := range catalogSource {
		absorb(in, false, seen)
	}

	return merged, r
}

// fillGuest copies non-empty fields from src into empty fields of dst.
func fillGuest(dst *model.Guest, src model.Guest) bool {
	changed := false
	if dst.Name == "" && src.Name != "" {
		dst.Name = src.Name
		changed = true
	}
	if dst.GuestType == "" && src.GuestType != "" {
		dst.GuestType = src.GuestType
		changed = true
	}
	for _, f := range []struct{ dst, src **string }{
		{&dst.Profession, &src.Profession},
		{&dst.PhotoURL, &src.PhotoURL},
		{&dst.YouTubeVideoID, &src.YouTubeVideoID},
		{&dst.YouTubeVideoURL, &src.YouTubeVideoURL},
		{&dst.VimeoVideoID, &src.VimeoVideoID},
		{&dst.EpisodeDate, &src.EpisodeDate},
		{&dst.LetterboxdListURL, &src.LetterboxdListURL},
		{&dst.CriterionPageURL, &src.CriterionPageURL},
	} {
		if *f.dst == nil && *f.src != nil {
			*f.dst = *f.src
			changed = true
		}
	}
	return changed
}

// NewVisit captures a guest's current episode linkage as a visit record.
func NewVisit(g model.Guest, index int) model.Visit {
	return model.Visit{
		Index:             index,
		YouTubeVideoID:    g.YouTubeVideoID,
		YouTubeVideoURL:   g.YouTubeVideoURL,
		VimeoVideoID:      g.VimeoVideoID,
		EpisodeDate:       g.EpisodeDate,
		LetterboxdListURL: g.LetterboxdListURL,
		CriterionPageURL:  g.CriterionPageURL,
	}
}

// EpisodeVideo is one uploads-feed entry considered for guest matching.
type EpisodeVideo struct {
	VideoID   string
	Title     string
	Published string
}

// MatchResult summarizes a video matching pass.
type MatchResult struct {
	Matched   int
	Unmatched []string
}

var episodePhrases = []string{"closet picks", "closet favorites", "dvd picks"}

// IsEpisodeTitle reports whether a feed video title looks like an actual
// episode rather than a trailer or related upload.
func IsEpisodeTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, phrase := range episodePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

var titlePatterns = []*regexp.Regexp{
	// "Barry Jenkins's Closet Picks", "Bong Joon Ho's DVD Picks"
	regexp.MustCompile(`(?i)^(.+?)(?:'s|’s)\s+(?:Criterion\s+)?(?:Closet\s+|DVD\s+)?(?:Picks?|Favorites?)`),
	// "Barry Jenkins Picks His Criterion Closet Favorites"
	regexp.MustCompile(`(?i)^(.+?)\s+Picks?\s+(?:His|Her|Their)\s+(?:Criterion\s+)?(?:Closet\s+)?(?:Favorites?|Picks?)`),
	// "Barry Jenkins | Closet Picks"
	regexp.MustCompile(`(?i)^(.+?)\s*[|\-–—]\s*(?:Criterion\s+)?Closet`),
}

// "Criterion Closet Picks: Barry Jenkins"
var titleSuffixPattern = regexp.MustCompile(`(?i)(?:Criterion\s+)?Closet\s+Picks?[:\s]+(.+)`)

// ParseGuestName extracts the guest name from an episode video title.
// Falls back to the whole title when no known pattern matches.
func ParseGuestName(title string) string {
	title = strings.TrimSpace(title)
	for _, p := range titlePatterns {
		if m := p.FindStringSubmatch(title); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if m := titleSuffixPattern.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	return title
}

var spaceRun = regexp.MustCompile(`\s+`)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "'s", "")
	name = strings.ReplaceAll(name, "’s", "")
	return spaceRun.ReplaceAllString(name, " ")
}

// MatchVideos assigns feed videos to guests lacking video linkage, by fuzzy
// matching the name parsed from the video title against the guest name.
// Compound titles ("Cate Blanchett and Todd Field") also match on either
// half. Each guest gets at most the single best-scoring video; the pass
// never touches guests that already carry a video ID.
func MatchVideos(guests []model.Guest, videos []EpisodeVideo, threshold int) *MatchResult {
	r := &MatchResult{}

	type scored struct {
		video EpisodeVideo
		score int
	}
	candidates := make(map[string][]scored)

	var needing []int
	for i, g := range guests {
		if g.YouTubeVideoID != nil || g.VimeoVideoID != nil {
			continue
		}
		needing = append(needing, i)
	}

	for _, v := range videos {
		if !IsEpisodeTitle(v.Title) {
			continue
		}
		parsed := ParseGuestName(v.Title)
		parsedNorm := normalizeName(parsed)

		var parts []string
		if strings.Contains(strings.ToLower(parsed), " and ") {
			parts = strings.Split(strings.ToLower(parsed), " and ")
		}

		for _, i := range needing {
			guestNorm := normalizeName(guests[i].Name)
			score := fuzzy.Score(parsedNorm, guestNorm)
			for _, part := range parts {
				if s := fuzzy.Score(strings.TrimSpace(part), guestNorm); s > score {
					score = s
				}
			}
			if score >= threshold {
				candidates[guests[i].Slug] = append(candidates[guests[i].Slug], scored{v, score})
			}
		}
	}

	for _, i := range needing {
		g := &guests[i]
		cands := candidates[g.Slug]
		if len(cands) == 0 {
			r.Unmatched = append(r.Unmatched, g.Name)
			continue
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].score > cands[b].score })
		best := cands[0].video

		id := best.VideoID
		url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
		g.YouTubeVideoID = &id
		g.YouTubeVideoURL = &url
		if g.EpisodeDate == nil && best.Published != "" {
			date := best.Published
			g.EpisodeDate = &date
		}
		log.Printf("matched %s -> %q (score %d)", g.Name, best.Title, cands[0].score)
		r.Matched++
	}

	return r
}

// RecomputePickCounts refreshes every guest's pick count from the pick
// snapshots. Guests whose picks have not been processed yet fall back to
// their raw pick count.
func RecomputePickCounts(guests []model.Guest, picks []model.Pick, raw []model.RawPick) {
	counts := make(map[string]int)
	for _, p := range picks {
		counts[p.GuestSlug]++
	}
	rawCounts := make(map[string]int)
	for _, p := range raw {
		rawCounts[p.GuestSlug]++
	}
	for i := range guests {
		if n, ok := counts[guests[i].Slug]; ok {
			guests[i].PickCount = n
		} else {
			guests[i].PickCount = rawCounts[guests[i].Slug]
		}
	}
}
