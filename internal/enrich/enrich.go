// Package enrich fills film and guest metadata gaps from an external movie
// database. Everything is fill-empty: enrichment never replaces data that
// came from the catalog, the scrape, or a curated override.
package enrich

import (
	"context"
	"fmt"
	"log"
	"time"

	"closetpicks/internal/checkpoint"
	"closetpicks/internal/model"
)

// Checkpoint stages. Keys are film IDs and guest slugs.
const (
	FilmStage  = "enrich_film"
	GuestStage = "enrich_guest"
)

// Metadata is the film-level data a lookup can supply.
type Metadata struct {
	TMDBID    int64
	IMDBID    string
	Director  string
	Country   string
	Year      *int
	Genres    []string
	PosterURL string
}

// Person is the guest-level data a person lookup can supply.
type Person struct {
	Profession string
	PhotoURL   string
}

// Client is the metadata backend. Lookup and Person return (nil, nil) when
// nothing matches; that is tolerated, not an error.
type Client interface {
	Lookup(ctx context.Context, title string, year *int) (*Metadata, error)
	Person(ctx context.Context, name string) (*Person, error)
}

// Enricher walks the stores and fills gaps, checkpointing per record so
// re-runs only touch what is new.
type Enricher struct {
	Client      Client
	Checkpoints *checkpoint.Store
	Interval    time.Duration
}

// Result summarizes an enrichment pass.
type Result struct {
	Enriched int
	NoMatch  int
	Skipped  int
	Errors   int
}

// Films enriches catalog entries missing metadata. Lookup errors are logged
// and skipped; the record stays uncheckpointed so the next run retries it.
// A clean no-match is checkpointed to avoid re-querying known gaps.
func (e *Enricher) Films(ctx context.Context, films []model.Film, force bool) (*Result, error) {
	r := &Result{}
	for i := range films {
		f := &films[i]

		if filmComplete(*f) {
			r.Skipped++
			continue
		}
		if !force {
			done, err := e.Checkpoints.IsComplete(FilmStage, f.FilmID)
			if err != nil {
				return r, err
			}
			if done {
				r.Skipped++
				continue
			}
		}

		e.pause()
		md, err := e.Client.Lookup(ctx, f.Title, f.Year)
		if err != nil {
			log.Printf("film lookup failed for %q: %v", f.Title, err)
			r.Errors++
			continue
		}
		matched := md != nil
		if matched {
			fillFilm(f, md)
			r.Enriched++
		} else {
			r.NoMatch++
		}
		meta := map[string]any{"matched": matched}
		if err := e.Checkpoints.Complete(FilmStage, f.FilmID, meta); err != nil {
			return r, fmt.Errorf("checkpointing %s: %w", f.FilmID, err)
		}
	}
	return r, nil
}

// Guests enriches guests missing a profession or photo. Non-person entries
// (groups, characters, events) are skipped outright.
func (e *Enricher) Guests(ctx context.Context, guestList []model.Guest, force bool) (*Result, error) {
	r := &Result{}
	for i := range guestList {
		g := &guestList[i]

		if g.GuestType != "" {
			r.Skipped++
			continue
		}
		if g.Profession != nil && g.PhotoURL != nil {
			r.Skipped++
			continue
		}
		if !force {
			done, err := e.Checkpoints.IsComplete(GuestStage, g.Slug)
			if err != nil {
				return r, err
			}
			if done {
				r.Skipped++
				continue
			}
		}

		e.pause()
		p, err := e.Client.Person(ctx, g.Name)
		if err != nil {
			log.Printf("person lookup failed for %q: %v", g.Name, err)
			r.Errors++
			continue
		}
		matched := p != nil
		if matched {
			if g.Profession == nil && p.Profession != "" {
				prof := p.Profession
				g.Profession = &prof
			}
			if g.PhotoURL == nil && p.PhotoURL != "" {
				photo := p.PhotoURL
				g.PhotoURL = &photo
			}
			r.Enriched++
		} else {
			r.NoMatch++
		}
		meta := map[string]any{"matched": matched}
		if err := e.Checkpoints.Complete(GuestStage, g.Slug, meta); err != nil {
			return r, fmt.Errorf("checkpointing %s: %w", g.Slug, err)
		}
	}
	return r, nil
}

// PendingFilms reports how many catalog entries Films would attempt to
// enrich, without calling the client.
func (e *Enricher) PendingFilms(films []model.Film, force bool) (int, error) {
	pending := 0
	for _, f := range films {
		if filmComplete(f) {
			continue
		}
		if !force {
			done, err := e.Checkpoints.IsComplete(FilmStage, f.FilmID)
			if err != nil {
				return 0, err
			}
			if done {
				continue
			}
		}
		pending++
	}
	return pending, nil
}

// PendingGuests reports how many guests Guests would attempt to enrich.
func (e *Enricher) PendingGuests(guestList []model.Guest, force bool) (int, error) {
	pending := 0
	for _, g := range guestList {
		if g.GuestType != "" || (g.Profession != nil && g.PhotoURL != nil) {
			continue
		}
		if !force {
			done, err := e.Checkpoints.IsComplete(GuestStage, g.Slug)
			if err != nil {
				return 0, err
			}
			if done {
				continue
			}
		}
		pending++
	}
	return pending, nil
}

func (e *Enricher) pause() {
	if e.Interval > 0 {
		time.Sleep(e.Interval)
	}
}

func filmComplete(f model.Film) bool {
	return f.TMDBID != nil && f.PosterURL != nil && len(f.Genres) > 0 &&
		f.Director != "" && f.IMDBID != nil
}

func fillFilm(f *model.Film, md *Metadata) {
	if f.TMDBID == nil && md.TMDBID != 0 {
		id := md.TMDBID
		f.TMDBID = &id
	}
	if f.IMDBID == nil && md.IMDBID != "" {
		id := md.IMDBID
		f.IMDBID = &id
	}
	if f.Director == "" {
		f.Director = md.Director
	}
	if f.Country == "" {
		f.Country = md.Country
	}
	if f.Year == nil && md.Year != nil {
		f.Year = md.Year
	}
	if len(f.Genres) == 0 && len(md.Genres) > 0 {
		f.Genres = md.Genres
	}
	if f.PosterURL == nil && md.PosterURL != "" {
		u := md.PosterURL
		f.PosterURL = &u
	}
}
