// Package picks builds the pick store: resolves raw selections against the
// film catalog, deduplicates, and collapses box-set runs into aggregate
// entries. A pick is never dropped; titles that resolve nowhere get a
// synthesized film ID that catalog backfill later materializes.
package picks

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"closetpicks/internal/fuzzy"
	"closetpicks/internal/model"
	"closetpicks/internal/slug"
)

// annotation strips trailing catalog parentheticals like "(Apu Trilogy)".
var annotation = regexp.MustCompile(`(?i)\s*\([^)]*(?:box|trilogy|set|collection|films)\s*\)`)

func stripAnnotations(title string) string {
	return strings.TrimSpace(annotation.ReplaceAllString(title, ""))
}

// Resolver matches raw selection titles to catalog films. Resolution order:
// exact film ID, exact normalized title with year guard, fuzzy score at or
// above the floor with year guard.
type Resolver struct {
	byID  map[string]*model.Film
	films []*model.Film
	clean []string
	floor int
}

// NewResolver indexes the catalog. floor <= 0 selects the default fuzzy
// floor of 75.
func NewResolver(catalog []model.Film, floor int) *Resolver {
	if floor <= 0 {
		floor = 75
	}
	r := &Resolver{
		byID:  make(map[string]*model.Film, len(catalog)),
		films: make([]*model.Film, len(catalog)),
		clean: make([]string, len(catalog)),
		floor: floor,
	}
	for i := range catalog {
		f := &catalog[i]
		r.byID[f.FilmID] = f
		r.films[i] = f
		r.clean[i] = stripAnnotations(f.Title)
	}
	return r
}

// Resolve fills film identity fields on every raw pick. Raw picks that
// already carry a film ID known to the catalog are left alone; everything
// else walks the ladder. Unresolved titles get a synthesized film ID and
// match method "backfill".
func (r *Resolver) Resolve(raw []model.RawPick) *ResolveResult {
	res := &ResolveResult{}
	for i := range raw {
		p := &raw[i]

		if p.FilmID != "" {
			if f, ok := r.byID[p.FilmID]; ok {
				fillMatch(p, f, "exact")
				res.Exact++
				continue
			}
		}

		if f := r.exactTitle(p.FilmTitle, p.FilmYear); f != nil {
			fillMatch(p, f, "exact")
			res.Exact++
			continue
		}

		if f, score := r.fuzzyTitle(p.FilmTitle, p.FilmYear); f != nil {
			fillMatch(p, f, fmt.Sprintf("fuzzy_%d", score))
			res.Fuzzy++
			continue
		}

		p.FilmID = slug.FilmID(p.FilmTitle, p.FilmYear)
		p.MatchMethod = "backfill"
		res.Unresolved++
		log.Printf("unresolved pick title %q (%s), synthesized %s", p.FilmTitle, p.GuestSlug, p.FilmID)
	}
	return res
}

// ResolveResult counts outcomes of a resolution pass.
type ResolveResult struct {
	Exact      int
	Fuzzy      int
	Unresolved int
}

func fillMatch(p *model.RawPick, f *model.Film, method string) {
	p.FilmID = f.FilmID
	p.CatalogSpine = f.SpineNumber
	p.CatalogTitle = f.Title
	p.MatchMethod = method
	if p.FilmYear == nil && f.Year != nil {
		p.FilmYear = f.Year
	}
}

func (r *Resolver) exactTitle(title string, year *int) *model.Film {
	want := strings.ToLower(strings.TrimSpace(title))
	if want == "" {
		return nil
	}
	for i, f := range r.films {
		if strings.ToLower(f.Title) != want && strings.ToLower(r.clean[i]) != want {
			continue
		}
		if !fuzzy.YearsCompatible(year, f.Year) {
			continue
		}
		return f
	}
	return nil
}

func (r *Resolver) fuzzyTitle(title string, year *int) (*model.Film, int) {
	bestScore := 0
	var best *model.Film
	for i, f := range r.films {
		if !fuzzy.YearsCompatible(year, f.Year) {
			continue
		}
		score := fuzzy.Score(title, f.Title)
		if s := fuzzy.Score(title, r.clean[i]); s > score {
			score = s
		}
		if score >= r.floor && score > bestScore {
			bestScore = score
			best = f
		}
	}
	return best, bestScore
}

// Build converts resolved raw picks into pick records with no extraction
// data yet. Visit indexes default to 1.
func Build(raw []model.RawPick) []model.Pick {
	out := make([]model.Pick, 0, len(raw))
	for _, rp := range raw {
		out = append(out, model.Pick{
			GuestSlug:            rp.GuestSlug,
			FilmID:               rp.FilmID,
			FilmTitle:            rp.FilmTitle,
			FilmYear:             rp.FilmYear,
			VisitIndex:           rp.Visit(),
			CatalogSpine:         rp.CatalogSpine,
			MatchMethod:          rp.MatchMethod,
			ExtractionConfidence: model.ConfidenceNone,
		})
	}
	return out
}

// Merge folds freshly built picks into the existing pick store without
// disturbing extraction results: known (guest, film, visit) keys keep their
// stored record, new keys append.
func Merge(existing, built []model.Pick) ([]model.Pick, int) {
	seen := make(map[model.PickKey]bool, len(existing))
	for _, p := range existing {
		seen[p.Key()] = true
	}
	added := 0
	for _, p := range built {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		existing = append(existing, p)
		added++
	}
	return existing, added
}

// Dedup removes duplicate (guest, film, visit) tuples, keeping the record
// with the highest extraction confidence. First occurrence wins ties.
func Dedup(picks []model.Pick) ([]model.Pick, int) {
	index := make(map[model.PickKey]int)
	out := make([]model.Pick, 0, len(picks))
	removed := 0
	for _, p := range picks {
		k := p.Key()
		if i, ok := index[k]; ok {
			removed++
			if p.ExtractionConfidence.Rank() > out[i].ExtractionConfidence.Rank() {
				out[i] = p
			}
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out, removed
}

// DedupRaw removes duplicate (guest, film, visit) raw picks, keeping the
// first. Unresolved picks have no film ID yet, so their film key is the
// normalized title and year; distinct unresolved titles never collide.
func DedupRaw(raw []model.RawPick) ([]model.RawPick, int) {
	type key struct {
		guest string
		film  string
		visit int
	}
	seen := make(map[key]bool)
	out := make([]model.RawPick, 0, len(raw))
	removed := 0
	for _, p := range raw {
		k := key{p.GuestSlug, rawFilmKey(p), p.Visit()}
		if seen[k] {
			removed++
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out, removed
}

func rawFilmKey(p model.RawPick) string {
	if p.FilmID != "" {
		return p.FilmID
	}
	k := strings.ToLower(strings.TrimSpace(p.FilmTitle))
	if p.FilmYear != nil {
		k = fmt.Sprintf("%s (%d)", k, *p.FilmYear)
	}
	return k
}
