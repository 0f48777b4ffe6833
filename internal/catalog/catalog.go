// Package catalog maintains the canonical film set. Entries come from the
// collection-site scrape; films referenced by picks but absent from the
// scrape are backfilled with synthetic entries so that every pick resolves.
package catalog

import (
	"log"
	"sort"
	"strings"

	"closetpicks/internal/model"
	"closetpicks/internal/slug"
)

// MergeResult summarizes a catalog merge.
type MergeResult struct {
	Added   int
	Updated int
	Skipped int
}

// Merge folds scraped entries into the existing catalog. Known film IDs are
// merged field-by-field, filling empty fields only; new IDs are appended in
// input order. Existing entries are never removed.
func Merge(existing, scraped []model.Film) ([]model.Film, *MergeResult) {
	r := &MergeResult{}
	merged := make([]model.Film, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, f := range merged {
		index[f.FilmID] = i
	}

	for _, in := range scraped {
		if in.FilmID == "" {
			in.FilmID = slug.FilmID(in.Title, in.Year)
		}
		if in.FilmID == "" {
			log.Printf("skipping catalog record with no title: %+v", in)
			r.Skipped++
			continue
		}
		if i, ok := index[in.FilmID]; ok {
			if fillFilm(&merged[i], in) {
				r.Updated++
			}
			continue
		}
		index[in.FilmID] = len(merged)
		merged = append(merged, in)
		r.Added++
	}

	return merged, r
}

// fillFilm copies non-empty fields from src into empty fields of dst.
// Returns whether anything changed.
func fillFilm(dst *model.Film, src model.Film) bool {
	changed := false
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
		changed = true
	}
	if dst.SpineNumber == nil && src.SpineNumber != nil {
		dst.SpineNumber = src.SpineNumber
		changed = true
	}
	if dst.Director == "" && src.Director != "" {
		dst.Director = src.Director
		changed = true
	}
	if dst.Year == nil && src.Year != nil {
		dst.Year = src.Year
		changed = true
	}
	if dst.Country == "" && src.Country != "" {
		dst.Country = src.Country
		changed = true
	}
	if len(dst.Genres) == 0 && len(src.Genres) > 0 {
		dst.Genres = src.Genres
		changed = true
	}
	if dst.CriterionURL == "" && src.CriterionURL != "" {
		dst.CriterionURL = src.CriterionURL
		changed = true
	}
	if dst.IMDBID == nil && src.IMDBID != nil {
		dst.IMDBID = src.IMDBID
		changed = true
	}
	if dst.TMDBID == nil && src.TMDBID != nil {
		dst.TMDBID = src.TMDBID
		changed = true
	}
	if dst.PosterURL == nil && src.PosterURL != nil {
		dst.PosterURL = src.PosterURL
		changed = true
	}
	return changed
}

// BackfillResult summarizes a backfill pass.
type BackfillResult struct {
	Added      int
	Propagated int
}

// Backfill synthesizes a minimal catalog entry for every pick film ID with
// no catalog record, and propagates collection-site film URLs from raw picks
// into catalog entries lacking one. Idempotent: entries are keyed by film ID
// and synthesized at most once.
func Backfill(cat []model.Film, picks []model.Pick, raw []model.RawPick) ([]model.Film, *BackfillResult) {
	r := &BackfillResult{}

	known := make(map[string]bool, len(cat))
	for _, f := range cat {
		known[f.FilmID] = true
	}

	info := collectFilmInfo(picks, raw)

	var missing []string
	for _, p := range picks {
		if p.IsBoxSet {
			continue
		}
		if p.FilmID != "" && !known[p.FilmID] {
			known[p.FilmID] = true
			missing = append(missing, p.FilmID)
		}
	}
	// Stable output regardless of pick ordering quirks.
	sort.Strings(missing)

	for _, id := range missing {
		cat = append(cat, syntheticEntry(id, info[id]))
		r.Added++
	}

	urls := criterionURLMap(raw)
	for i := range cat {
		if cat[i].CriterionURL == "" {
			if u, ok := urls[cat[i].FilmID]; ok {
				cat[i].CriterionURL = u
				r.Propagated++
			}
		}
	}

	return cat, r
}

// filmInfo is the best metadata recoverable for a film from pick data.
type filmInfo struct {
	title string
	year  *int
	spine *int
	url   string
}

func collectFilmInfo(picks []model.Pick, raw []model.RawPick) map[string]filmInfo {
	info := make(map[string]filmInfo)

	// Raw picks first: they carry the collection-site URL.
	for _, p := range raw {
		if p.FilmID == "" {
			continue
		}
		if _, ok := info[p.FilmID]; ok {
			continue
		}
		title := p.FilmTitle
		if title == "" {
			title = p.CatalogTitle
		}
		info[p.FilmID] = filmInfo{title: title, year: p.FilmYear, spine: p.CatalogSpine, url: p.CriterionFilmURL}
	}

	// Enriched picks fill remaining blanks.
	for _, p := range picks {
		if p.FilmID == "" {
			continue
		}
		fi, ok := info[p.FilmID]
		if !ok {
			info[p.FilmID] = filmInfo{title: p.FilmTitle, year: p.FilmYear, spine: p.CatalogSpine}
			continue
		}
		if fi.title == "" {
			fi.title = p.FilmTitle
		}
		if fi.year == nil {
			fi.year = p.FilmYear
		}
		if fi.spine == nil {
			fi.spine = p.CatalogSpine
		}
		info[p.FilmID] = fi
	}

	return info
}

func syntheticEntry(filmID string, fi filmInfo) model.Film {
	title := fi.title
	if title == "" {
		title = titleFromID(filmID)
	}
	return model.Film{
		FilmID:       filmID,
		Title:        title,
		SpineNumber:  fi.spine,
		Year:         fi.year,
		CriterionURL: fi.url,
		Genres:       []string{},
	}
}

func criterionURLMap(raw []model.RawPick) map[string]string {
	urls := make(map[string]string)
	for _, p := range raw {
		if p.FilmID != "" && p.CriterionFilmURL != "" {
			if _, ok := urls[p.FilmID]; !ok {
				urls[p.FilmID] = p.CriterionFilmURL
			}
		}
	}
	return urls
}

// titleFromID reconstructs a readable title from a film ID as a last resort.
func titleFromID(id string) string {
	words := strings.Split(id, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ApplyPickCounts recomputes per-film pick counts from the pick snapshot.
// Box-set aggregate picks are excluded so constituent films are never
// double-counted.
func ApplyPickCounts(cat []model.Film, picks []model.Pick) {
	counts := make(map[string]int)
	for _, p := range picks {
		if p.IsBoxSet {
			continue
		}
		counts[p.FilmID]++
	}
	for i := range cat {
		cat[i].PickCount = counts[cat[i].FilmID]
	}
}
