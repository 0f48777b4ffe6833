// Package validate checks cross-store integrity and produces a structured
// report. Data problems are findings, never errors: the pipeline surfaces
// them for curation instead of halting on them.
package validate

import (
	"fmt"
	"net/url"
	"time"

	"closetpicks/internal/model"
)

// Finding kinds.
const (
	KindUnknownGuest    = "unknown_guest"
	KindUnknownFilm     = "unknown_film"
	KindDuplicatePick   = "duplicate_pick"
	KindEmptyBoxSet     = "empty_box_set"
	KindImplausibleYear = "implausible_year"
	KindMalformedURL    = "malformed_url"
	KindDuplicateSpine  = "duplicate_spine"
	KindMissingSlug     = "missing_slug"
	KindMissingName     = "missing_name"
	KindMissingTitle    = "missing_title"
)

// Finding is one data problem, identified by the offending key.
type Finding struct {
	Kind   string `json:"kind"`
	Key    string `json:"key"`
	Detail string `json:"detail,omitempty"`
}

// Stats is the coverage summary for one validation run.
type Stats struct {
	Films  int `json:"films"`
	Guests int `json:"guests"`
	Picks  int `json:"picks"`

	FilmsWithPoster  int `json:"films_with_poster"`
	FilmsWithGenres  int `json:"films_with_genres"`
	FilmsWithYear    int `json:"films_with_year"`
	GuestsWithVideo  int `json:"guests_with_video"`
	GuestsWithPhoto  int `json:"guests_with_photo"`
	PicksWithQuote   int `json:"picks_with_quote"`
	PicksWithSpine   int `json:"picks_with_spine"`
	BoxSetPicks      int `json:"box_set_picks"`
	ConfidenceHigh   int `json:"confidence_high"`
	ConfidenceMedium int `json:"confidence_medium"`
	ConfidenceLow    int `json:"confidence_low"`
	ConfidenceNone   int `json:"confidence_none"`

	MatchMethodCounts map[string]int `json:"match_method_counts"`
}

// Report is the full validation result.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Findings    []Finding      `json:"findings"`
	Counts      map[string]int `json:"counts"`
	Stats       Stats          `json:"stats"`
}

// Clean reports whether the run produced no findings.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

func (r *Report) add(kind, key, detail string) {
	r.Findings = append(r.Findings, Finding{Kind: kind, Key: key, Detail: detail})
	r.Counts[kind]++
}

// Run validates every store read-only and returns the report.
func Run(catalog []model.Film, guestList []model.Guest, picks []model.Pick) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Counts:      make(map[string]int),
	}
	r.Stats.MatchMethodCounts = make(map[string]int)

	checkCatalog(r, catalog)
	checkGuests(r, guestList)
	checkPicks(r, picks, guestList, catalog)
	return r
}

func checkCatalog(r *Report, catalog []model.Film) {
	r.Stats.Films = len(catalog)
	maxYear := time.Now().Year() + 1
	seenSpines := make(map[int]string)

	for _, f := range catalog {
		if f.Title == "" {
			r.add(KindMissingTitle, f.FilmID, "")
		}
		if f.FilmID == "" {
			r.add(KindMissingSlug, f.Title, "film has no ID")
		}
		if f.SpineNumber != nil {
			if prev, ok := seenSpines[*f.SpineNumber]; ok {
				r.add(KindDuplicateSpine, fmt.Sprintf("%d", *f.SpineNumber),
					fmt.Sprintf("%s and %s", prev, f.Title))
			}
			seenSpines[*f.SpineNumber] = f.Title
		}
		if f.Year != nil {
			if *f.Year < 1890 || *f.Year > maxYear {
				r.add(KindImplausibleYear, f.FilmID, fmt.Sprintf("year %d", *f.Year))
			} else {
				r.Stats.FilmsWithYear++
			}
		}
		checkURL(r, f.FilmID, f.CriterionURL)
		if f.PosterURL != nil {
			r.Stats.FilmsWithPoster++
			checkURL(r, f.FilmID, *f.PosterURL)
		}
		if len(f.Genres) > 0 {
			r.Stats.FilmsWithGenres++
		}
	}
}

func checkGuests(r *Report, guestList []model.Guest) {
	r.Stats.Guests = len(guestList)
	for _, g := range guestList {
		if g.Slug == "" {
			r.add(KindMissingSlug, g.Name, "guest has no slug")
		}
		if g.Name == "" {
			r.add(KindMissingName, g.Slug, "")
		}
		if g.YouTubeVideoID != nil || g.VimeoVideoID != nil {
			r.Stats.GuestsWithVideo++
		}
		if g.PhotoURL != nil {
			r.Stats.GuestsWithPhoto++
			checkURL(r, g.Slug, *g.PhotoURL)
		}
		if g.LetterboxdListURL != nil {
			checkURL(r, g.Slug, *g.LetterboxdListURL)
		}
		if g.CriterionPageURL != nil {
			checkURL(r, g.Slug, *g.CriterionPageURL)
		}
	}
}

func checkPicks(r *Report, picks []model.Pick, guestList []model.Guest, catalog []model.Film) {
	r.Stats.Picks = len(picks)

	guestSlugs := make(map[string]bool, len(guestList))
	for _, g := range guestList {
		guestSlugs[g.Slug] = true
	}
	filmIDs := make(map[string]bool, len(catalog))
	for _, f := range catalog {
		filmIDs[f.FilmID] = true
	}

	seen := make(map[model.PickKey]bool)
	for _, p := range picks {
		key := fmt.Sprintf("%s/%s/%d", p.GuestSlug, p.FilmID, p.VisitIndex)

		if !guestSlugs[p.GuestSlug] {
			r.add(KindUnknownGuest, key, "")
		}
		if p.IsBoxSet {
			r.Stats.BoxSetPicks++
			// An aggregate with no member titles is malformed however its
			// count field reads.
			if len(p.BoxSetFilmTitles) == 0 {
				r.add(KindEmptyBoxSet, key, p.BoxSetName)
			}
		} else if !filmIDs[p.FilmID] {
			r.add(KindUnknownFilm, key, p.FilmTitle)
		}

		if seen[p.Key()] {
			r.add(KindDuplicatePick, key, "")
		}
		seen[p.Key()] = true

		if p.FilmYear != nil && (*p.FilmYear < 1890 || *p.FilmYear > time.Now().Year()+1) {
			r.add(KindImplausibleYear, key, fmt.Sprintf("year %d", *p.FilmYear))
		}
		checkURL(r, key, p.YouTubeTimestampURL)

		if p.Quote != "" {
			r.Stats.PicksWithQuote++
		}
		if p.CatalogSpine != nil {
			r.Stats.PicksWithSpine++
		}
		if p.MatchMethod != "" {
			r.Stats.MatchMethodCounts[p.MatchMethod]++
		}
		switch p.ExtractionConfidence {
		case model.ConfidenceHigh:
			r.Stats.ConfidenceHigh++
		case model.ConfidenceMedium:
			r.Stats.ConfidenceMedium++
		case model.ConfidenceLow:
			r.Stats.ConfidenceLow++
		default:
			r.Stats.ConfidenceNone++
		}
	}
}

// checkURL flags URLs that are present but unparsable or schemeless.
func checkURL(r *Report, key, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		r.add(KindMalformedURL, key, raw)
	}
}
